package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bryanwahyu/automaton-cam/internal/application"
	"github.com/bryanwahyu/automaton-cam/internal/application/analyses"
	"github.com/bryanwahyu/automaton-cam/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-cam/internal/domain/camrules"
	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
	"github.com/bryanwahyu/automaton-cam/internal/infra/db/sqlite"
	"github.com/bryanwahyu/automaton-cam/internal/infra/storage"
	"github.com/bryanwahyu/automaton-cam/internal/middleware"
	"github.com/bryanwahyu/automaton-cam/internal/testutil"
)

func newServer(t *testing.T, limits analyses.Limits) *httptest.Server {
	t.Helper()
	db, err := sqlite.Connect(context.Background(), sqlite.MemoryPath)
	require.NoError(t, err)
	files, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	pool := analyses.NewPool(context.Background(), 2, 8, zap.NewNop(), nil)
	repo := sqlite.NewAnalysisRepository(db)

	svc := &analyses.Service{
		Repo:     repo,
		Files:    files,
		Pipeline: analyses.NewPipeline(64<<20, 2),
		Pool:     pool,
		Clock:    application.SystemClock{},
		Log:      zap.NewNop(),
		Limits:   limits,
		Rules:    camrules.Defaults(),
	}
	srv := httptest.NewServer(NewRouter(svc, Options{
		Health: map[string]middleware.HealthChecker{
			"database": middleware.PingChecker{Target: repo},
			"storage":  middleware.PingChecker{Target: files},
		},
		AllowedOrigins: []string{"*"},
	}))
	t.Cleanup(func() {
		srv.Close()
		_ = pool.Close()
		_ = db.Close()
	})
	return srv
}

func defaultLimits() analyses.Limits {
	return analyses.Limits{MaxUploadBytes: 8 << 20, MaxFiles: 20, MaxExpandedBytes: 64 << 20}
}

func upload(t *testing.T, srv *httptest.Server, project string, files []design.File, fields map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.Name)
		require.NoError(t, err)
		_, err = part.Write(f.Content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/v1/projects/"+project+"/analyses", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func errorKind(t *testing.T, resp *http.Response) analysis.Kind {
	t.Helper()
	var body errorBody
	decode(t, resp, &body)
	return body.Error.Kind
}

func submitted(t *testing.T, resp *http.Response) analysis.ID {
	t.Helper()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var body struct {
		ID     analysis.ID     `json:"id"`
		Status analysis.Status `json:"status"`
	}
	decode(t, resp, &body)
	assert.Equal(t, analysis.StatusPending, body.Status)
	assert.Equal(t, "/v1/analyses/"+string(body.ID), resp.Header.Get("Location"))
	return body.ID
}

func awaitTerminal(t *testing.T, srv *httptest.Server, id analysis.ID) *analysis.Analysis {
	t.Helper()
	var a analysis.Analysis
	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/v1/analyses/" + string(id))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
			return false
		}
		return a.Status.IsTerminal()
	}, 10*time.Second, 20*time.Millisecond)
	return &a
}

func TestSubmitAndReport(t *testing.T) {
	srv := newServer(t, defaultLimits())
	id := submitted(t, upload(t, srv, "acme", testutil.GerberSet(testutil.Default()), map[string]string{
		"board_name": "ctrl",
		"rules":      `{"min_trace_width": 0.05}`,
	}))

	a := awaitTerminal(t, srv, id)
	require.Equal(t, analysis.StatusCompleted, a.Status, "failure: %+v", a.Failure)
	assert.Equal(t, "acme", a.ProjectName)
	assert.Equal(t, "ctrl", a.BoardName)

	resp := get(t, srv.URL+"/v1/analyses/"+string(id)+"/report")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var structured map[string]any
	decode(t, resp, &structured)
	assert.Contains(t, structured, "summary")

	resp = get(t, srv.URL+"/v1/analyses/"+string(id)+"/report?format=narrative")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	resp = get(t, srv.URL+"/v1/analyses/"+string(id)+"/report?format=pdf")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err := http.Post(srv.URL+"/v1/analyses/"+string(id)+"/cancel", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, analysis.KindStateConflict, errorKind(t, resp))
}

func TestReportOfFailedAnalysisIsNotReady(t *testing.T) {
	srv := newServer(t, defaultLimits())
	archive := testutil.Zip(map[string][]byte{"photo.png": []byte("\x89PNG not a board")})
	id := submitted(t, upload(t, srv, "acme", []design.File{{Name: "board.zip", Content: archive}}, nil))

	a := awaitTerminal(t, srv, id)
	require.Equal(t, analysis.StatusFailed, a.Status)
	require.NotNil(t, a.Failure)
	assert.Equal(t, analysis.KindFormatUnrecognized, a.Failure.Kind)

	resp := get(t, srv.URL+"/v1/analyses/"+string(id)+"/report")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, analysis.KindNotReady, errorKind(t, resp))
}

func TestSubmitRejections(t *testing.T) {
	srv := newServer(t, analyses.Limits{MaxUploadBytes: 512, MaxFiles: 20, MaxExpandedBytes: 64 << 20})
	small := []design.File{{Name: "top.gtl", Content: []byte("%MOMM*%\nM02*\n")}}

	resp := upload(t, srv, "acme", nil, map[string]string{"board_name": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, analysis.KindUploadRejected, errorKind(t, resp))

	resp = upload(t, srv, "acme", small, map[string]string{"rules": `{"min_trace_width": -1}`})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = upload(t, srv, "acme", small, map[string]string{"rules": `{"min_trace": 0.1}`})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = upload(t, srv, "acme", []design.File{{Name: "notes.txt", Content: []byte("hello")}}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = upload(t, srv, "acme", testutil.GerberSet(testutil.Default()), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, analysis.KindUploadRejected, errorKind(t, resp))
}

func TestGetUnknownAnalysis(t *testing.T) {
	srv := newServer(t, defaultLimits())

	resp := get(t, srv.URL+"/v1/analyses/0b8a5d4e-7f59-4c11-9d3b-5d2f5c0c6a11")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, analysis.KindNotFound, errorKind(t, resp))

	resp = get(t, srv.URL+"/v1/analyses/not-a-uuid/report")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListAnalyses(t *testing.T) {
	srv := newServer(t, defaultLimits())
	for _, board := range []string{"ctrl", "ctrl", "psu"} {
		id := submitted(t, upload(t, srv, "acme", testutil.GerberSet(testutil.Default()), map[string]string{"board_name": board}))
		awaitTerminal(t, srv, id)
	}

	resp := get(t, srv.URL+"/v1/projects/acme/analyses?pageSize=2")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page analysis.PaginatedResult
	decode(t, resp, &page)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Data, 2)

	resp = get(t, srv.URL+"/v1/projects/acme/analyses?board=psu")
	var psu analysis.PaginatedResult
	decode(t, resp, &psu)
	assert.Equal(t, int64(1), psu.Total)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newServer(t, defaultLimits())

	resp := get(t, srv.URL+"/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health middleware.HealthStatus
	decode(t, resp, &health)
	assert.Equal(t, "healthy", health.Status)
	assert.Len(t, health.Checks, 2)

	resp = get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
