package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bryanwahyu/automaton-cam/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-cam/internal/domain/camrules"
	"github.com/bryanwahyu/automaton-cam/internal/domain/design"
	"github.com/bryanwahyu/automaton-cam/internal/domain/summary"
)

type Repository struct {
	db *sql.DB
	d  Dialect
}

func New(db *sql.DB, d Dialect) *Repository {
	return &Repository{db: db, d: d}
}

// timestamps are stored as unix milliseconds so every driver agrees on them
func ms(t time.Time) int64 { return t.UnixMilli() }

func fromMS(v int64) time.Time { return time.UnixMilli(v).UTC() }

func (r *Repository) q(s string) string { return r.d.Rebind(s) }

// Create inserts a pending analysis and its file references
func (r *Repository) Create(ctx context.Context, a *analysis.Analysis) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const q = `
INSERT INTO cam_analyses
(id, project_name, board_name, status, format, model_key, failure_kind, failure_message, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`
	var kind, msg string
	if a.Failure != nil {
		kind, msg = string(a.Failure.Kind), a.Failure.Message
	}
	updated := a.UpdatedAt
	if updated.IsZero() {
		updated = a.CreatedAt
	}
	if _, err := tx.ExecContext(ctx, r.q(q),
		string(a.ID), a.ProjectName, a.BoardName, string(a.Status), string(a.Format), a.ModelKey,
		kind, msg, ms(a.CreatedAt), ms(updated),
	); err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}

	const qf = `
INSERT INTO cam_design_files (analysis_id, seq, name, file_role, file_size, storage_key)
VALUES (?,?,?,?,?,?)`
	for i, f := range a.Files {
		if _, err := tx.ExecContext(ctx, r.q(qf), string(a.ID), i, f.Name, string(f.Role), f.Size, f.StorageKey); err != nil {
			return fmt.Errorf("insert design file: %w", err)
		}
	}
	return tx.Commit()
}

// MarkProcessing moves a pending analysis to processing
func (r *Repository) MarkProcessing(ctx context.Context, id analysis.ID, at time.Time) error {
	const q = `
UPDATE cam_analyses SET status=?, updated_at=?
WHERE id=? AND status=?`
	res, err := r.db.ExecContext(ctx, r.q(q), string(analysis.StatusProcessing), ms(at), string(id), string(analysis.StatusPending))
	if err != nil {
		return err
	}
	return r.expectOne(ctx, r.db, res, id)
}

// Complete writes status, result, issues and warnings in one transaction
func (r *Repository) Complete(ctx context.Context, id analysis.ID, c analysis.Completion) error {
	body, err := json.Marshal(c.Result.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const qa = `
UPDATE cam_analyses SET status=?, format=?, model_key=?, updated_at=?
WHERE id=? AND status IN (?,?)`
	res, err := tx.ExecContext(ctx, r.q(qa),
		string(analysis.StatusCompleted), string(c.Format), c.ModelKey, ms(c.Result.CompletedAt),
		string(id), string(analysis.StatusPending), string(analysis.StatusProcessing),
	)
	if err != nil {
		return err
	}
	if err := r.expectOne(ctx, tx, res, id); err != nil {
		return err
	}

	const qr = `
INSERT INTO cam_analysis_results (analysis_id, summary_json, critical_count, warning_count, info_count, completed_at)
VALUES (?,?,?,?,?,?)`
	cnt := c.Result.Counts
	if _, err := tx.ExecContext(ctx, r.q(qr), string(id), string(body), cnt.Critical, cnt.Warning, cnt.Info, ms(c.Result.CompletedAt)); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	const qi = `
INSERT INTO cam_analysis_issues
(analysis_id, seq, issue_type, severity, layer, loc_x, loc_y, description, recommendation)
VALUES (?,?,?,?,?,?,?,?,?)`
	for i, is := range c.Issues {
		var x, y sql.NullFloat64
		if is.Location != nil {
			x = sql.NullFloat64{Float64: is.Location.X, Valid: true}
			y = sql.NullFloat64{Float64: is.Location.Y, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, r.q(qi),
			string(id), i, string(is.Type), string(is.Severity), is.Layer, x, y, is.Description, is.Recommendation,
		); err != nil {
			return fmt.Errorf("insert issue: %w", err)
		}
	}

	const qw = `
INSERT INTO cam_analysis_warnings (analysis_id, seq, file_name, message)
VALUES (?,?,?,?)`
	for i, w := range c.Warnings {
		if _, err := tx.ExecContext(ctx, r.q(qw), string(id), i, w.File, w.Message); err != nil {
			return fmt.Errorf("insert warning: %w", err)
		}
	}
	return tx.Commit()
}

// Fail records the failure of a non terminal analysis
func (r *Repository) Fail(ctx context.Context, id analysis.ID, f analysis.Failure, at time.Time) error {
	const q = `
UPDATE cam_analyses SET status=?, failure_kind=?, failure_message=?, updated_at=?
WHERE id=? AND status IN (?,?)`
	res, err := r.db.ExecContext(ctx, r.q(q),
		string(analysis.StatusFailed), string(f.Kind), f.Message, ms(at),
		string(id), string(analysis.StatusPending), string(analysis.StatusProcessing),
	)
	if err != nil {
		return err
	}
	return r.expectOne(ctx, r.db, res, id)
}

// FailStale fails analyses a previous process left unfinished
func (r *Repository) FailStale(ctx context.Context, f analysis.Failure, at time.Time) (int64, error) {
	const q = `
UPDATE cam_analyses SET status=?, failure_kind=?, failure_message=?, updated_at=?
WHERE status IN (?,?)`
	res, err := r.db.ExecContext(ctx, r.q(q),
		string(analysis.StatusFailed), string(f.Kind), f.Message, ms(at),
		string(analysis.StatusPending), string(analysis.StatusProcessing),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// expectOne turns a zero-row update into NotFound or StateConflict
func (r *Repository) expectOne(ctx context.Context, qr queryer, res sql.Result, id analysis.ID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var c int
	if err := qr.QueryRowContext(ctx, r.q(`SELECT COUNT(*) FROM cam_analyses WHERE id=?`), string(id)).Scan(&c); err != nil {
		return err
	}
	if c == 0 {
		return analysis.ErrAnalysisNotFound
	}
	return analysis.ErrStateConflict
}

const analysisColumns = `
a.id, a.project_name, a.board_name, a.status, a.format, a.model_key,
a.failure_kind, a.failure_message, a.created_at, a.updated_at,
r.summary_json, r.critical_count, r.warning_count, r.info_count, r.completed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(s scanner) (*analysis.Analysis, error) {
	var (
		a                  analysis.Analysis
		id, status, format string
		kind, msg          string
		created, updated   int64
		body               sql.NullString
		crit, warn, info   sql.NullInt64
		completed          sql.NullInt64
	)
	if err := s.Scan(
		&id, &a.ProjectName, &a.BoardName, &status, &format, &a.ModelKey,
		&kind, &msg, &created, &updated,
		&body, &crit, &warn, &info, &completed,
	); err != nil {
		return nil, err
	}
	a.ID = analysis.ID(id)
	a.Status = analysis.Status(status)
	a.Format = design.Format(format)
	a.CreatedAt, a.UpdatedAt = fromMS(created), fromMS(updated)
	if kind != "" {
		a.Failure = &analysis.Failure{Kind: analysis.Kind(kind), Message: msg}
	}
	if body.Valid {
		var sum summary.Summary
		if err := json.Unmarshal([]byte(body.String), &sum); err != nil {
			return nil, fmt.Errorf("decode summary of %s: %w", id, err)
		}
		a.Result = &analysis.Result{
			Summary: sum,
			Counts: camrules.Counts{
				Critical: int(crit.Int64),
				Warning:  int(warn.Int64),
				Info:     int(info.Int64),
			},
			CompletedAt: fromMS(completed.Int64),
		}
	}
	return &a, nil
}

// snapshot makes the reads of Get see one committed state of an analysis
var snapshot = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

// Get loads an analysis with its files, issues and warnings
func (r *Repository) Get(ctx context.Context, id analysis.ID) (*analysis.Analysis, error) {
	tx, err := r.db.BeginTx(ctx, snapshot)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	q := `SELECT ` + analysisColumns + `
FROM cam_analyses a LEFT JOIN cam_analysis_results r ON r.analysis_id = a.id
WHERE a.id=?`
	a, err := scanAnalysis(tx.QueryRowContext(ctx, r.q(q), string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, analysis.ErrAnalysisNotFound
	}
	if err != nil {
		return nil, err
	}
	if a.Files, err = r.files(ctx, tx, id); err != nil {
		return nil, err
	}
	if a.Issues, err = r.issues(ctx, tx, id); err != nil {
		return nil, err
	}
	if a.Warnings, err = r.warnings(ctx, tx, id); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *Repository) files(ctx context.Context, qr queryer, id analysis.ID) ([]design.FileRef, error) {
	rows, err := qr.QueryContext(ctx, r.q(`
SELECT name, file_role, file_size, storage_key FROM cam_design_files
WHERE analysis_id=? ORDER BY seq`), string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []design.FileRef{}
	for rows.Next() {
		var f design.FileRef
		var role string
		if err := rows.Scan(&f.Name, &role, &f.Size, &f.StorageKey); err != nil {
			return nil, err
		}
		f.Role = design.FileRole(role)
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *Repository) issues(ctx context.Context, qr queryer, id analysis.ID) ([]camrules.Issue, error) {
	rows, err := qr.QueryContext(ctx, r.q(`
SELECT issue_type, severity, layer, loc_x, loc_y, description, recommendation
FROM cam_analysis_issues WHERE analysis_id=? ORDER BY seq`), string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []camrules.Issue{}
	for rows.Next() {
		var is camrules.Issue
		var typ, sev string
		var x, y sql.NullFloat64
		if err := rows.Scan(&typ, &sev, &is.Layer, &x, &y, &is.Description, &is.Recommendation); err != nil {
			return nil, err
		}
		is.Type, is.Severity = camrules.Type(typ), camrules.Severity(sev)
		if x.Valid && y.Valid {
			is.Location = &camrules.Location{X: x.Float64, Y: y.Float64}
		}
		out = append(out, is)
	}
	return out, rows.Err()
}

func (r *Repository) warnings(ctx context.Context, qr queryer, id analysis.ID) ([]design.Warning, error) {
	rows, err := qr.QueryContext(ctx, r.q(`
SELECT file_name, message FROM cam_analysis_warnings
WHERE analysis_id=? ORDER BY seq`), string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []design.Warning{}
	for rows.Next() {
		var w design.Warning
		if err := rows.Scan(&w.File, &w.Message); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ListByProject pages through a project's analyses, newest first. Listed
// analyses carry their result summary but not issues, warnings or files.
func (r *Repository) ListByProject(ctx context.Context, lq analysis.ListQuery) (*analysis.PaginatedResult, error) {
	if lq.Page <= 0 {
		lq.Page = 1
	}
	if lq.PageSize <= 0 {
		lq.PageSize = 20
	}
	offset := (lq.Page - 1) * lq.PageSize

	where := ` WHERE a.project_name=?`
	args := []any{lq.Project}
	if lq.Board != "" {
		where += ` AND a.board_name=?`
		args = append(args, lq.Board)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, r.q(`SELECT COUNT(*) FROM cam_analyses a`+where), args...).Scan(&total); err != nil {
		return nil, err
	}

	q := `SELECT ` + analysisColumns + `
FROM cam_analyses a LEFT JOIN cam_analysis_results r ON r.analysis_id = a.id` + where + `
ORDER BY a.created_at DESC, a.id DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, r.q(q), append(args, lq.PageSize, offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var data []*analysis.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		data = append(data, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return analysis.NewPaginatedResult(data, lq.Page, lq.PageSize, total), nil
}

// Ping reports whether the database answers
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
