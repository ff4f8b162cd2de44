package audit

import "context"

// Repository persists audit events. Implementations only ever insert.
type Repository interface {
	Append(ctx context.Context, e *Event) error
	List(ctx context.Context, sessionID string, limit int) ([]*Event, error)
}
