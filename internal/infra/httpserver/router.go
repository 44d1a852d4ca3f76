package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bryanwahyu/automaton-cam/internal/application/analyses"
	"github.com/bryanwahyu/automaton-cam/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-cam/internal/domain/camrules"
	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
	"github.com/bryanwahyu/automaton-cam/internal/infra/report"
	"github.com/bryanwahyu/automaton-cam/internal/middleware"
)

// multipart parts beyond this are spooled to disk by net/http
const memoryLimit = 32 << 20

type Options struct {
	Log            *zap.Logger
	Health         map[string]middleware.HealthChecker
	RateLimiter    *middleware.RateLimiter
	AllowedOrigins []string
	// MaxUploadBytes caps the request body, zero means no cap
	MaxUploadBytes int64
}

type Router struct {
	svc       *analyses.Service
	log       *zap.Logger
	maxUpload int64
}

func NewRouter(svc *analyses.Service, opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{svc: svc, log: log, maxUpload: opts.MaxUploadBytes}
	mux := chi.NewRouter()

	mux.Use(chimw.RequestID)
	mux.Use(chimw.RealIP)
	mux.Use(middleware.Logging(log))
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.Metrics)
	if len(opts.AllowedOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"Location"},
			MaxAge:         300,
		}))
	}
	if opts.RateLimiter != nil {
		mux.Use(opts.RateLimiter.Handler)
	}

	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/health", middleware.HealthHandler(opts.Health))
	mux.Get("/ready", middleware.HealthHandler(opts.Health))
	mux.Handle("/metrics", promhttp.Handler())

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/projects/{project}/analyses", r.wrap(r.handleSubmit))
		rt.Get("/projects/{project}/analyses", r.wrap(r.handleList))
		rt.Get("/analyses/{id}", r.wrap(r.handleGet))
		rt.Get("/analyses/{id}/report", r.wrap(r.handleReport))
		rt.Post("/analyses/{id}/cancel", r.wrap(r.handleCancel))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequest marks malformed requests that never reached the service
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

func invalid(format string, args ...any) error {
	return badRequest{fmt.Errorf(format, args...)}
}

type errorBody struct {
	Error struct {
		Kind    analysis.Kind `json:"kind"`
		Message string        `json:"message"`
	} `json:"error"`
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		status := http.StatusInternalServerError
		kind := analysis.KindOf(err)
		var tooBig *http.MaxBytesError
		var bad badRequest
		switch {
		case errors.As(err, &tooBig), errors.Is(err, analyses.ErrUploadTooLarge):
			status, kind = http.StatusRequestEntityTooLarge, analysis.KindUploadRejected
		case errors.As(err, &bad), errors.Is(err, analysis.ErrUploadRejected):
			status, kind = http.StatusBadRequest, analysis.KindUploadRejected
		case errors.Is(err, analysis.ErrAnalysisNotFound):
			status = http.StatusNotFound
		case errors.Is(err, analysis.ErrAnalysisNotReady), errors.Is(err, analysis.ErrStateConflict):
			status = http.StatusConflict
		case errors.Is(err, analyses.ErrQueueFull), errors.Is(err, analyses.ErrPoolClosed):
			status = http.StatusServiceUnavailable
			w.Header().Set("Retry-After", "5")
		}

		var body errorBody
		body.Error.Kind = kind
		body.Error.Message = err.Error()
		if status == http.StatusInternalServerError {
			r.log.Error("request failed", zap.String("path", req.URL.Path), zap.Error(err))
			body.Error.Message = "internal error"
		}
		writeJSON(w, status, body)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func analysisID(req *http.Request) (analysis.ID, error) {
	return analysis.ParseID(chi.URLParam(req, "id"))
}

// POST /v1/projects/{project}/analyses
// multipart: files (repeated), board_name, rules (JSON object of threshold overrides)
func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request) error {
	project := middleware.SanitizeString(chi.URLParam(req, "project"))
	if err := middleware.ValidateProjectName(project); err != nil {
		return badRequest{err}
	}
	if r.maxUpload > 0 {
		// multipart framing needs a little room above the payload limit
		req.Body = http.MaxBytesReader(w, req.Body, r.maxUpload+1<<20)
	}
	if err := req.ParseMultipartForm(memoryLimit); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return err
		}
		return invalid("multipart form: %v", err)
	}
	defer func() { _ = req.MultipartForm.RemoveAll() }()

	cmd := analyses.SubmitCommand{
		ProjectName: project,
		BoardName:   middleware.SanitizeString(req.FormValue("board_name")),
	}
	if raw := req.FormValue("rules"); raw != "" {
		dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
		dec.DisallowUnknownFields()
		var o camrules.Overrides
		if err := dec.Decode(&o); err != nil {
			return invalid("rules: %v", err)
		}
		cmd.Rules = o
	}
	for _, fh := range req.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			return err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return err
		}
		cmd.Files = append(cmd.Files, design.File{Name: fh.Filename, Content: data})
	}
	if len(cmd.Files) == 0 {
		return invalid("no files uploaded, use the multipart field \"files\"")
	}

	id, err := r.svc.Submit(req.Context(), cmd)
	if err != nil {
		return err
	}
	w.Header().Set("Location", "/v1/analyses/"+string(id))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":     id,
		"status": analysis.StatusPending,
	})
	return nil
}

// GET /v1/projects/{project}/analyses?board=&page=&pageSize=
func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	q := req.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("pageSize"))

	list, err := r.svc.List(req.Context(), analysis.ListQuery{
		Project:  chi.URLParam(req, "project"),
		Board:    q.Get("board"),
		Page:     middleware.ValidatePage(page),
		PageSize: middleware.ValidateLimit(size),
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}

// GET /v1/analyses/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id, err := analysisID(req)
	if err != nil {
		return err
	}
	a, err := r.svc.Get(req.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, a)
	return nil
}

// GET /v1/analyses/{id}/report?format=structured|narrative
func (r *Router) handleReport(w http.ResponseWriter, req *http.Request) error {
	id, err := analysisID(req)
	if err != nil {
		return err
	}
	f, err := report.ParseFormat(req.URL.Query().Get("format"))
	if err != nil {
		return badRequest{err}
	}
	body, err := r.svc.Report(req.Context(), id, f)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", f.ContentType())
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(body)
	return err
}

// POST /v1/analyses/{id}/cancel
func (r *Router) handleCancel(w http.ResponseWriter, req *http.Request) error {
	id, err := analysisID(req)
	if err != nil {
		return err
	}
	if err := r.svc.Cancel(req.Context(), id); err != nil {
		return err
	}
	a, err := r.svc.Get(req.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, a)
	return nil
}
