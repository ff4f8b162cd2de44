package history

import "context"

// Repository port for persisting and querying analysis history
type Repository interface {
	Save(ctx context.Context, e *Entry) error
	ListBySubject(ctx context.Context, subjectKey string, limit int) ([]*Entry, error)
	All(ctx context.Context) ([]*Entry, error)
}
