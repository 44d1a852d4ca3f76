// Package analyses implements the analysis use cases: submit, process, read,
// report and cancel.
package analyses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/bryanwahyu/automaton-cam/internal/application"
	"github.com/bryanwahyu/automaton-cam/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-cam/internal/domain/camrules"
	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
	"github.com/bryanwahyu/automaton-cam/internal/infra/parser/detect"
	"github.com/bryanwahyu/automaton-cam/internal/infra/report"
)

var validate = validator.New()

// ErrUploadTooLarge marks rejections for size or file count
var ErrUploadTooLarge = errors.New("upload too large")

// Limits bound what one submission may carry
type Limits struct {
	MaxUploadBytes   int64
	MaxFiles         int
	MaxExpandedBytes int64
}

// Observer receives service events, the metrics package implements it
type Observer interface {
	Submitted()
	Finished(format design.Format, status analysis.Status, kind analysis.Kind, d time.Duration)
	Issues(issues []camrules.Issue)
	Warnings(n int)
	QueueDepth(n int)
}

type nopObserver struct{}

func (nopObserver) Submitted() {}
func (nopObserver) Finished(design.Format, analysis.Status, analysis.Kind, time.Duration) {}
func (nopObserver) Issues([]camrules.Issue) {}
func (nopObserver) Warnings(int) {}
func (nopObserver) QueueDepth(int) {}

// NopObserver discards every event
var NopObserver Observer = nopObserver{}

// Service is safe for concurrent use
type Service struct {
	Repo     analysis.Repository
	Files    analysis.FileStore
	Pipeline *Pipeline
	Pool     *Pool
	Clock    application.Clock
	Log      *zap.Logger
	Metrics  Observer
	Limits   Limits
	// Rules are the defaults each submission's overrides apply to
	Rules    camrules.Thresholds
}

// SubmitCommand is one upload
type SubmitCommand struct {
	ProjectName string        `validate:"required,max=255"`
	BoardName   string        `validate:"max=255"`
	Files       []design.File `validate:"required,min=1"`
	Rules       camrules.Overrides
}

func rejected(format string, args ...any) error {
	return fmt.Errorf("%w: %s", analysis.ErrUploadRejected, fmt.Sprintf(format, args...))
}

// checkUpload enforces the limits before anything is stored or parsed
func (s *Service) checkUpload(cmd SubmitCommand) error {
	if err := validate.Struct(cmd); err != nil {
		return rejected("%v", err)
	}
	if err := cmd.Rules.Validate(); err != nil {
		return rejected("rules: %v", err)
	}
	if s.Limits.MaxFiles > 0 && len(cmd.Files) > s.Limits.MaxFiles {
		return fmt.Errorf("%w: %w: %d files exceed the limit of %d", analysis.ErrUploadRejected, ErrUploadTooLarge, len(cmd.Files), s.Limits.MaxFiles)
	}
	var total int64
	usable := false
	for _, f := range cmd.Files {
		if strings.TrimSpace(f.Name) == "" {
			return rejected("a file has no name")
		}
		total += f.Size()
		if detect.Accepted(f.Name, f.Content) {
			usable = true
		}
	}
	if s.Limits.MaxUploadBytes > 0 && total > s.Limits.MaxUploadBytes {
		return fmt.Errorf("%w: %w: %d bytes exceed the limit of %d", analysis.ErrUploadRejected, ErrUploadTooLarge, total, s.Limits.MaxUploadBytes)
	}
	if !usable {
		return rejected("none of the %d file(s) is a Gerber, drill, stackup or archive file", len(cmd.Files))
	}
	return nil
}

func fileKey(id analysis.ID, i int, name string) string {
	return fmt.Sprintf("analyses/%s/files/%02d-%s", id, i, path.Base(strings.ReplaceAll(name, "\\", "/")))
}

func modelKey(id analysis.ID) string {
	return fmt.Sprintf("analyses/%s/model.json", id)
}

// Submit validates the upload, stores the files, creates a pending analysis
// and queues it
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (analysis.ID, error) {
	if err := s.checkUpload(cmd); err != nil {
		return "", err
	}
	th := s.Rules.With(cmd.Rules)
	if err := th.Validate(); err != nil {
		return "", rejected("rules: %v", err)
	}

	now := s.Clock.Now()
	id := analysis.NewID()
	a := &analysis.Analysis{
		ID:          id,
		ProjectName: cmd.ProjectName,
		BoardName:   cmd.BoardName,
		Status:      analysis.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for i, f := range cmd.Files {
		key := fileKey(id, i, f.Name)
		if err := s.Files.Put(ctx, key, f.Content, ""); err != nil {
			return "", fmt.Errorf("store %s: %w", f.Name, err)
		}
		role := f.Role
		if role == "" {
			role = design.FileUnknown
		}
		a.Files = append(a.Files, design.FileRef{Name: f.Name, Role: role, Size: f.Size(), StorageKey: key})
	}
	if err := s.Repo.Create(ctx, a); err != nil {
		return "", err
	}

	files := cmd.Files
	if err := s.Pool.Submit(id, func(jctx context.Context) { s.process(jctx, id, files, th) }); err != nil {
		s.fail(id, "", err, now)
		return "", err
	}
	s.observer().Submitted()
	s.Log.Info("analysis submitted",
		zap.String("analysis_id", string(id)),
		zap.String("project", cmd.ProjectName),
		zap.Int("files", len(cmd.Files)),
	)
	return id, nil
}

func (s *Service) observer() Observer {
	if s.Metrics == nil {
		return NopObserver
	}
	return s.Metrics
}

// fail records err on the analysis. Failures are written with a fresh
// context because the job context is usually the reason for failing.
func (s *Service) fail(id analysis.ID, format design.Format, err error, started time.Time) {
	if errors.Is(err, context.Canceled) {
		err = analysis.ErrCancelled
	}
	f := analysis.NewFailure(err)
	now := s.Clock.Now()
	log := s.Log.With(zap.String("analysis_id", string(id)), zap.String("kind", string(f.Kind)))
	if werr := s.Repo.Fail(context.Background(), id, f, now); werr != nil {
		if errors.Is(werr, analysis.ErrStateConflict) {
			log.Debug("analysis already finished, failure dropped")
			return
		}
		log.Error("record analysis failure", zap.Error(werr))
		return
	}
	s.observer().Finished(format, analysis.StatusFailed, f.Kind, now.Sub(started))
	log.Warn("analysis failed", zap.String("reason", f.Message))
}

// process is the body of one pool job
func (s *Service) process(ctx context.Context, id analysis.ID, files []design.File, th camrules.Thresholds) {
	started := s.Clock.Now()
	log := s.Log.With(zap.String("analysis_id", string(id)))
	defer func() {
		if r := recover(); r != nil {
			log.Error("analysis panicked", zap.Any("panic", r), zap.Stack("stack"))
			s.fail(id, "", fmt.Errorf("internal error while analysing"), started)
		}
	}()

	if err := ctx.Err(); err != nil {
		s.fail(id, "", err, started)
		return
	}
	if err := s.Repo.MarkProcessing(ctx, id, started); err != nil {
		if errors.Is(err, analysis.ErrStateConflict) {
			log.Debug("analysis left pending state before processing")
			return
		}
		s.fail(id, "", err, started)
		return
	}

	out, err := s.Pipeline.Run(ctx, files, th)
	if err != nil {
		s.fail(id, "", err, started)
		return
	}

	snapshot, err := json.Marshal(out.Model)
	if err != nil {
		s.fail(id, out.Format, err, started)
		return
	}
	key := modelKey(id)
	if err := s.Files.Put(ctx, key, snapshot, "application/json"); err != nil {
		s.fail(id, out.Format, err, started)
		return
	}
	// a cancellation that arrived during the last stage still wins
	if err := ctx.Err(); err != nil {
		s.fail(id, out.Format, err, started)
		return
	}

	now := s.Clock.Now()
	c := analysis.NewCompletion(out.Format, out.Summary, out.Issues, out.Model.Warnings, key, now)
	if err := s.Repo.Complete(context.Background(), id, c); err != nil {
		if errors.Is(err, analysis.ErrStateConflict) {
			log.Info("analysis finished elsewhere, result dropped")
			return
		}
		s.fail(id, out.Format, err, started)
		return
	}
	obs := s.observer()
	obs.Finished(out.Format, analysis.StatusCompleted, "", now.Sub(started))
	obs.Issues(out.Issues)
	obs.Warnings(len(out.Model.Warnings))
	log.Info("analysis completed",
		zap.String("format", string(out.Format)),
		zap.Int("issues", len(out.Issues)),
		zap.Int("warnings", len(out.Model.Warnings)),
		zap.Duration("duration", now.Sub(started)),
	)
}

func (s *Service) Get(ctx context.Context, id analysis.ID) (*analysis.Analysis, error) {
	return s.Repo.Get(ctx, id)
}

// Report renders a completed analysis. It fails with ErrAnalysisNotReady
// while the analysis is pending, processing or failed.
func (s *Service) Report(ctx context.Context, id analysis.ID, f report.Format) ([]byte, error) {
	a, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return report.Render(a, f)
}

// Cancel stops a pending or processing analysis and marks it failed
func (s *Service) Cancel(ctx context.Context, id analysis.ID) error {
	held := s.Pool.Cancel(id)
	f := analysis.NewFailure(analysis.ErrCancelled)
	err := s.Repo.Fail(ctx, id, f, s.Clock.Now())
	if err != nil {
		return err
	}
	s.observer().Finished("", analysis.StatusFailed, f.Kind, 0)
	s.Log.Info("analysis cancelled", zap.String("analysis_id", string(id)), zap.Bool("in_pool", held))
	return nil
}

func (s *Service) List(ctx context.Context, q analysis.ListQuery) (*analysis.PaginatedResult, error) {
	if strings.TrimSpace(q.Project) == "" {
		return nil, rejected("project name is required")
	}
	return s.Repo.ListByProject(ctx, q)
}

// Recover fails analyses a previous process left unfinished. Their files are
// stored but the in-memory job is gone.
func (s *Service) Recover(ctx context.Context) (int64, error) {
	n, err := s.Repo.FailStale(ctx, analysis.Failure{
		Kind:    analysis.KindInternal,
		Message: "interrupted by a service restart, submit the files again",
	}, s.Clock.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.Log.Warn("failed analyses interrupted by restart", zap.Int64("count", n))
	}
	return n, nil
}
