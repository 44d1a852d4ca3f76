package mysql

import "github.com/bryanwahyu/automaton-cam/internal/infra/db/sqlstore"

var Dialect = sqlstore.Dialect{
	Name: "mysql",
	Schema: []string{`
CREATE TABLE IF NOT EXISTS cam_analyses (
  id              VARCHAR(36)  NOT NULL PRIMARY KEY,
  project_name    VARCHAR(255) NOT NULL,
  board_name      VARCHAR(255) NOT NULL DEFAULT '',
  status          VARCHAR(16)  NOT NULL,
  format          VARCHAR(16)  NOT NULL DEFAULT '',
  model_key       VARCHAR(512) NOT NULL DEFAULT '',
  failure_kind    VARCHAR(32)  NOT NULL DEFAULT '',
  failure_message TEXT         NOT NULL,
  created_at      BIGINT       NOT NULL,
  updated_at      BIGINT       NOT NULL,
  INDEX idx_cam_analyses_project (project_name, board_name, created_at),
  INDEX idx_cam_analyses_status (status)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, `
CREATE TABLE IF NOT EXISTS cam_design_files (
  analysis_id VARCHAR(36)  NOT NULL,
  seq         INT          NOT NULL,
  name        VARCHAR(512) NOT NULL,
  file_role   VARCHAR(32)  NOT NULL,
  file_size   BIGINT       NOT NULL,
  storage_key VARCHAR(1024) NOT NULL DEFAULT '',
  PRIMARY KEY (analysis_id, seq),
  FOREIGN KEY (analysis_id) REFERENCES cam_analyses(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, `
CREATE TABLE IF NOT EXISTS cam_analysis_results (
  analysis_id    VARCHAR(36) NOT NULL PRIMARY KEY,
  summary_json   LONGTEXT    NOT NULL,
  critical_count INT         NOT NULL,
  warning_count  INT         NOT NULL,
  info_count     INT         NOT NULL,
  completed_at   BIGINT      NOT NULL,
  FOREIGN KEY (analysis_id) REFERENCES cam_analyses(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, `
CREATE TABLE IF NOT EXISTS cam_analysis_issues (
  analysis_id    VARCHAR(36)  NOT NULL,
  seq            INT          NOT NULL,
  issue_type     VARCHAR(32)  NOT NULL,
  severity       VARCHAR(16)  NOT NULL,
  layer          VARCHAR(255) NOT NULL,
  loc_x          DOUBLE       NULL,
  loc_y          DOUBLE       NULL,
  description    TEXT         NOT NULL,
  recommendation TEXT         NOT NULL,
  PRIMARY KEY (analysis_id, seq),
  FOREIGN KEY (analysis_id) REFERENCES cam_analyses(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, `
CREATE TABLE IF NOT EXISTS cam_analysis_warnings (
  analysis_id VARCHAR(36)  NOT NULL,
  seq         INT          NOT NULL,
  file_name   VARCHAR(512) NOT NULL,
  message     TEXT         NOT NULL,
  PRIMARY KEY (analysis_id, seq),
  FOREIGN KEY (analysis_id) REFERENCES cam_analyses(id) ON DELETE CASCADE
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
}
