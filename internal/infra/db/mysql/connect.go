package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Schema creates the audit and history tables. Both are insert-only.
var Schema = []string{`
CREATE TABLE IF NOT EXISTS safeguard_audit_events (
  id BIGINT AUTO_INCREMENT PRIMARY KEY,
  session_id VARCHAR(64) NOT NULL,
  event_type VARCHAR(64) NOT NULL,
  details_hash CHAR(64) NOT NULL,
  anonymity_verified TINYINT(1) NOT NULL,
  created_at DATETIME(6) NOT NULL,
  INDEX idx_audit_session (session_id, id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`, `
CREATE TABLE IF NOT EXISTS safeguard_analysis_history (
  id VARCHAR(64) PRIMARY KEY,
  subject_key CHAR(64) NOT NULL,
  session_id VARCHAR(64) NOT NULL,
  report_id VARCHAR(64) NOT NULL,
  risk_level VARCHAR(16) NOT NULL,
  confidence DOUBLE NOT NULL,
  fallback_used TINYINT(1) NOT NULL,
  created_at DATETIME(6) NOT NULL,
  INDEX idx_history_subject (subject_key, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`,
}

func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
