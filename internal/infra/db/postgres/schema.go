package postgres

import "github.com/bryanwahyu/automaton-cam/internal/infra/db/sqlstore"

var Dialect = sqlstore.Dialect{
	Name:     "postgres",
	Numbered: true,
	Schema: []string{`
CREATE TABLE IF NOT EXISTS cam_analyses (
  id              VARCHAR(36)  PRIMARY KEY,
  project_name    VARCHAR(255) NOT NULL,
  board_name      VARCHAR(255) NOT NULL DEFAULT '',
  status          VARCHAR(16)  NOT NULL,
  format          VARCHAR(16)  NOT NULL DEFAULT '',
  model_key       VARCHAR(512) NOT NULL DEFAULT '',
  failure_kind    VARCHAR(32)  NOT NULL DEFAULT '',
  failure_message TEXT         NOT NULL DEFAULT '',
  created_at      BIGINT       NOT NULL,
  updated_at      BIGINT       NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_cam_analyses_project ON cam_analyses (project_name, board_name, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_cam_analyses_status ON cam_analyses (status)`, `
CREATE TABLE IF NOT EXISTS cam_design_files (
  analysis_id VARCHAR(36) NOT NULL REFERENCES cam_analyses(id) ON DELETE CASCADE,
  seq         INTEGER     NOT NULL,
  name        TEXT        NOT NULL,
  file_role   VARCHAR(32) NOT NULL,
  file_size   BIGINT      NOT NULL,
  storage_key TEXT        NOT NULL DEFAULT '',
  PRIMARY KEY (analysis_id, seq)
)`, `
CREATE TABLE IF NOT EXISTS cam_analysis_results (
  analysis_id    VARCHAR(36) PRIMARY KEY REFERENCES cam_analyses(id) ON DELETE CASCADE,
  summary_json   TEXT        NOT NULL,
  critical_count INTEGER     NOT NULL,
  warning_count  INTEGER     NOT NULL,
  info_count     INTEGER     NOT NULL,
  completed_at   BIGINT      NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS cam_analysis_issues (
  analysis_id    VARCHAR(36) NOT NULL REFERENCES cam_analyses(id) ON DELETE CASCADE,
  seq            INTEGER     NOT NULL,
  issue_type     VARCHAR(32) NOT NULL,
  severity       VARCHAR(16) NOT NULL,
  layer          TEXT        NOT NULL,
  loc_x          DOUBLE PRECISION,
  loc_y          DOUBLE PRECISION,
  description    TEXT        NOT NULL,
  recommendation TEXT        NOT NULL,
  PRIMARY KEY (analysis_id, seq)
)`, `
CREATE TABLE IF NOT EXISTS cam_analysis_warnings (
  analysis_id VARCHAR(36) NOT NULL REFERENCES cam_analyses(id) ON DELETE CASCADE,
  seq         INTEGER     NOT NULL,
  file_name   TEXT        NOT NULL,
  message     TEXT        NOT NULL,
  PRIMARY KEY (analysis_id, seq)
)`,
	},
}
