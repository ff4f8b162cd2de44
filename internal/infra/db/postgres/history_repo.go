package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bryanwahyu/safeguard/internal/domain/history"
	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Save inserts a history entry. Entries are never updated.
func (r *HistoryRepository) Save(ctx context.Context, e *history.Entry) error {
	const q = `
INSERT INTO safeguard_analysis_history
  (id, subject_key, session_id, report_id, risk_level, confidence, fallback_used, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.SubjectKey, stringOrDash(e.SessionID), stringOrDash(e.ReportID),
		string(e.RiskLevel), e.Confidence, e.FallbackUsed, timeOrNow(e.CreatedAt))
	if IsUniqueViolation(err) {
		return fmt.Errorf("history entry %s already recorded: %w", e.ID, err)
	}
	return err
}

// ListBySubject returns the newest entries first.
func (r *HistoryRepository) ListBySubject(ctx context.Context, subjectKey string, limit int) ([]*history.Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, subject_key, session_id, report_id, risk_level, confidence, fallback_used, created_at
FROM safeguard_analysis_history
WHERE subject_key=$1
ORDER BY created_at DESC, id DESC
LIMIT $2;`
	rows, err := r.db.QueryContext(ctx, q, subjectKey, limit)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// All returns every entry, oldest first.
func (r *HistoryRepository) All(ctx context.Context) ([]*history.Entry, error) {
	const q = `
SELECT id, subject_key, session_id, report_id, risk_level, confidence, fallback_used, created_at
FROM safeguard_analysis_history
ORDER BY created_at ASC, id ASC;`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]*history.Entry, error) {
	defer rows.Close()
	var out []*history.Entry
	for rows.Next() {
		var e history.Entry
		var level string
		if err := rows.Scan(&e.ID, &e.SubjectKey, &e.SessionID, &e.ReportID, &level, &e.Confidence, &e.FallbackUsed, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.RiskLevel = safeguarding.RiskLevel(level)
		out = append(out, &e)
	}
	return out, rows.Err()
}
