package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bryanwahyu/safeguard/internal/domain/audit"
)

type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts e and sets its ID.
func (r *AuditRepository) Append(ctx context.Context, e *audit.Event) error {
	const q = `
INSERT INTO safeguard_audit_events
  (session_id, event_type, details_hash, anonymity_verified, created_at)
VALUES ($1,$2,$3,$4,$5)
RETURNING id;`
	return r.db.QueryRowContext(ctx, q,
		stringOrDash(e.SessionID), string(e.EventType), e.DetailsHash, e.AnonymityVerified, timeOrNow(e.Timestamp),
	).Scan(&e.ID)
}

// List returns events in insertion order. An empty sessionID lists every
// session.
func (r *AuditRepository) List(ctx context.Context, sessionID string, limit int) ([]*audit.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `
SELECT id, session_id, event_type, details_hash, anonymity_verified, created_at
FROM safeguard_audit_events
`
	args := []any{}
	if sessionID != "" {
		args = append(args, sessionID)
		q += fmt.Sprintf("WHERE session_id=$%d\n", len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf("ORDER BY id ASC\nLIMIT $%d;", len(args))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*audit.Event
	for rows.Next() {
		var e audit.Event
		var typ string
		if err := rows.Scan(&e.ID, &e.SessionID, &typ, &e.DetailsHash, &e.AnonymityVerified, &e.Timestamp); err != nil {
			return nil, err
		}
		if e.SessionID == "-" {
			e.SessionID = ""
		}
		e.EventType = audit.EventType(typ)
		out = append(out, &e)
	}
	return out, rows.Err()
}
