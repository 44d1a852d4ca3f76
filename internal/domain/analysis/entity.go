package analysis

import (
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/automaton-cam/internal/domain/camrules"
	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
	"github.com/bryanwahyu/automaton-cam/internal/domain/summary"
)

type ID string

func NewID() ID { return ID(uuid.NewString()) }

// ParseID accepts only canonical UUIDs
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", ErrAnalysisNotFound
	}
	return ID(u.String()), nil
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) IsTerminal() bool { return s == StatusCompleted || s == StatusFailed }

// maxFailureMessage keeps parser detail out of API responses
const maxFailureMessage = 300

// Failure is the reason attached to a failed analysis
type Failure struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// NewFailure classifies err and shortens its message
func NewFailure(err error) Failure {
	msg := err.Error()
	if r := []rune(msg); len(r) > maxFailureMessage {
		msg = string(r[:maxFailureMessage-3]) + "..."
	}
	return Failure{Kind: KindOf(err), Message: msg}
}

// Result is the one-to-one outcome of a completed analysis
type Result struct {
	Summary     summary.Summary `json:"summary"`
	Counts      camrules.Counts `json:"issue_counts"`
	CompletedAt time.Time       `json:"completed_at"`
}

// NewResult derives the severity counts from issues, they are never set apart
func NewResult(s summary.Summary, issues []camrules.Issue, at time.Time) Result {
	return Result{Summary: s, Counts: camrules.CountIssues(issues), CompletedAt: at}
}

// Aggregate root
type Analysis struct {
	ID          ID               `json:"id"`
	ProjectName string           `json:"project_name"`
	BoardName   string           `json:"board_name"`
	Status      Status           `json:"status"`
	Format      design.Format    `json:"format,omitempty"`
	Files       []design.FileRef `json:"files"`
	ModelKey    string           `json:"model_key,omitempty"`
	Result      *Result          `json:"result,omitempty"`
	Issues      []camrules.Issue `json:"issues,omitempty"`
	Warnings    []design.Warning `json:"warnings,omitempty"`
	Failure     *Failure         `json:"failure,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Completion is everything written when an analysis completes
type Completion struct {
	Format   design.Format
	Result   Result
	Issues   []camrules.Issue
	Warnings []design.Warning
	ModelKey string
}

func NewCompletion(format design.Format, s summary.Summary, issues []camrules.Issue, warnings []design.Warning, modelKey string, at time.Time) Completion {
	return Completion{
		Format:   format,
		Result:   NewResult(s, issues, at),
		Issues:   issues,
		Warnings: warnings,
		ModelKey: modelKey,
	}
}
