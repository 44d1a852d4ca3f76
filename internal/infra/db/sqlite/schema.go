package sqlite

import "github.com/bryanwahyu/automaton-cam/internal/infra/db/sqlstore"

var Dialect = sqlstore.Dialect{
	Name: "sqlite",
	Schema: []string{`
CREATE TABLE IF NOT EXISTS cam_analyses (
  id              TEXT    PRIMARY KEY,
  project_name    TEXT    NOT NULL,
  board_name      TEXT    NOT NULL DEFAULT '',
  status          TEXT    NOT NULL,
  format          TEXT    NOT NULL DEFAULT '',
  model_key       TEXT    NOT NULL DEFAULT '',
  failure_kind    TEXT    NOT NULL DEFAULT '',
  failure_message TEXT    NOT NULL DEFAULT '',
  created_at      INTEGER NOT NULL,
  updated_at      INTEGER NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_cam_analyses_project ON cam_analyses (project_name, board_name, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_cam_analyses_status ON cam_analyses (status)`, `
CREATE TABLE IF NOT EXISTS cam_design_files (
  analysis_id TEXT    NOT NULL REFERENCES cam_analyses(id) ON DELETE CASCADE,
  seq         INTEGER NOT NULL,
  name        TEXT    NOT NULL,
  file_role   TEXT    NOT NULL,
  file_size   INTEGER NOT NULL,
  storage_key TEXT    NOT NULL DEFAULT '',
  PRIMARY KEY (analysis_id, seq)
)`, `
CREATE TABLE IF NOT EXISTS cam_analysis_results (
  analysis_id    TEXT    PRIMARY KEY REFERENCES cam_analyses(id) ON DELETE CASCADE,
  summary_json   TEXT    NOT NULL,
  critical_count INTEGER NOT NULL,
  warning_count  INTEGER NOT NULL,
  info_count     INTEGER NOT NULL,
  completed_at   INTEGER NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS cam_analysis_issues (
  analysis_id    TEXT    NOT NULL REFERENCES cam_analyses(id) ON DELETE CASCADE,
  seq            INTEGER NOT NULL,
  issue_type     TEXT    NOT NULL,
  severity       TEXT    NOT NULL,
  layer          TEXT    NOT NULL,
  loc_x          REAL,
  loc_y          REAL,
  description    TEXT    NOT NULL,
  recommendation TEXT    NOT NULL,
  PRIMARY KEY (analysis_id, seq)
)`, `
CREATE TABLE IF NOT EXISTS cam_analysis_warnings (
  analysis_id TEXT    NOT NULL REFERENCES cam_analyses(id) ON DELETE CASCADE,
  seq         INTEGER NOT NULL,
  file_name   TEXT    NOT NULL,
  message     TEXT    NOT NULL,
  PRIMARY KEY (analysis_id, seq)
)`,
	},
}
