package analysis

import (
	"context"
	"errors"

	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
)

var (
	ErrAnalysisNotFound = errors.New("analysis not found")
	ErrAnalysisNotReady = errors.New("analysis not ready")
	ErrCancelled        = errors.New("analysis cancelled")
	ErrUploadRejected   = errors.New("upload rejected")
	// ErrStateConflict is returned when a transition starts from a terminal state
	ErrStateConflict = errors.New("analysis already finished")
)

// Kind names an error class in API responses and failure records
type Kind string

const (
	KindFormatUnrecognized Kind = "FormatUnrecognized"
	KindParse              Kind = "ParseError"
	KindArchiveCorrupt     Kind = "ArchiveCorrupt"
	KindModelBuild         Kind = "ModelBuildError"
	KindNotReady           Kind = "AnalysisNotReady"
	KindNotFound           Kind = "AnalysisNotFound"
	KindCancelled          Kind = "Cancelled"
	KindUploadRejected     Kind = "UploadRejected"
	KindStateConflict      Kind = "StateConflict"
	KindInternal           Kind = "Internal"
)

// KindOf maps err onto the taxonomy. Unknown errors are Internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.Is(err, design.ErrFormatUnrecognized):
		return KindFormatUnrecognized
	case errors.Is(err, design.ErrArchiveCorrupt):
		return KindArchiveCorrupt
	case errors.Is(err, design.ErrParse):
		return KindParse
	case errors.Is(err, design.ErrModelBuild):
		return KindModelBuild
	case errors.Is(err, ErrAnalysisNotReady):
		return KindNotReady
	case errors.Is(err, ErrAnalysisNotFound):
		return KindNotFound
	case errors.Is(err, ErrUploadRejected):
		return KindUploadRejected
	case errors.Is(err, ErrStateConflict):
		return KindStateConflict
	}
	return KindInternal
}
