package analysis

import (
	"context"
	"time"
)

// ListQuery selects analyses of one project, newest first
type ListQuery struct {
	Project  string
	Board    string
	Page     int
	PageSize int
}

// Repository persists analyses. Complete writes status, result, issues and
// warnings in one transaction so readers never see a partial result.
type Repository interface {
	Create(ctx context.Context, a *Analysis) error
	MarkProcessing(ctx context.Context, id ID, at time.Time) error
	Complete(ctx context.Context, id ID, c Completion) error
	Fail(ctx context.Context, id ID, f Failure, at time.Time) error
	Get(ctx context.Context, id ID) (*Analysis, error)
	ListByProject(ctx context.Context, q ListQuery) (*PaginatedResult, error)
	// FailStale fails every analysis left pending or processing by a previous run.
	FailStale(ctx context.Context, f Failure, at time.Time) (int64, error)
}

// FileStore keeps uploaded design files and model snapshots
type FileStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}
