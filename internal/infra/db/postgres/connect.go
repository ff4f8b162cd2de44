package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Connect opens a pool through the lib/pq connector and pings it.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, err
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

var Schema = []string{`
CREATE TABLE IF NOT EXISTS safeguard_audit_events (
  id BIGSERIAL PRIMARY KEY,
  session_id VARCHAR(64) NOT NULL,
  event_type VARCHAR(64) NOT NULL,
  details_hash CHAR(64) NOT NULL,
  anonymity_verified BOOLEAN NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
);`,
	`CREATE INDEX IF NOT EXISTS idx_audit_session ON safeguard_audit_events (session_id, id);`,
	`
CREATE TABLE IF NOT EXISTS safeguard_analysis_history (
  id VARCHAR(64) PRIMARY KEY,
  subject_key CHAR(64) NOT NULL,
  session_id VARCHAR(64) NOT NULL,
  report_id VARCHAR(64) NOT NULL,
  risk_level VARCHAR(16) NOT NULL,
  confidence DOUBLE PRECISION NOT NULL,
  fallback_used BOOLEAN NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
);`,
	`CREATE INDEX IF NOT EXISTS idx_history_subject ON safeguard_analysis_history (subject_key, created_at);`,
}

func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

// IsUniqueViolation reports whether err is a Postgres unique_violation.
func IsUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}
