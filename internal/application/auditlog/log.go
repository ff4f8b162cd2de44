// Package auditlog is the append-only compliance trail. Only a SHA-256 of
// each event's details is kept; the details are discarded.
package auditlog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/bryanwahyu/safeguard/internal/application"
	"github.com/bryanwahyu/safeguard/internal/domain/audit"
)

type Log struct {
	repo   audit.Repository
	clock  application.Clock
	logger *zap.Logger

	mu     sync.RWMutex
	events []audit.Event
}

// New returns a Log. repo may be nil for an in-memory only trail.
func New(repo audit.Repository, clock application.Clock, logger *zap.Logger) *Log {
	if clock == nil {
		clock = application.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{repo: repo, clock: clock, logger: logger}
}

// HashDetails returns the hex SHA-256 of the JSON encoding of details.
// Unencodable details hash to the digest of an empty object.
func HashDetails(details any) string {
	b, err := json.Marshal(details)
	if err != nil {
		b = []byte("{}")
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Record appends one event. Persistence failures are logged, not returned:
// the in-memory trail stays authoritative for the process.
func (l *Log) Record(ctx context.Context, sessionID string, typ audit.EventType, details any, verified bool) audit.Event {
	e := audit.Event{
		Timestamp:         l.clock.Now(),
		SessionID:         sessionID,
		EventType:         typ,
		DetailsHash:       HashDetails(details),
		AnonymityVerified: verified,
	}

	l.mu.Lock()
	e.ID = int64(len(l.events)) + 1
	l.events = append(l.events, e)
	l.mu.Unlock()

	if l.repo != nil {
		persisted := e
		if err := l.repo.Append(ctx, &persisted); err != nil {
			l.logger.Warn("audit persist failed",
				zap.String("session_id", sessionID),
				zap.String("event_type", string(typ)),
				zap.Error(err))
		}
	}
	return e
}

// Events returns a copy of the trail, oldest first.
func (l *Log) Events() []audit.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]audit.Event(nil), l.events...)
}

// Session returns the events recorded for one session.
func (l *Log) Session(sessionID string) []audit.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []audit.Event
	for _, e := range l.events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out
}

// List returns up to limit events, oldest first. An empty sessionID lists
// every session. It mirrors audit.Repository.List for the in-memory trail.
func (l *Log) List(_ context.Context, sessionID string, limit int) ([]*audit.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := []*audit.Event{}
	for i := range l.events {
		if limit > 0 && len(out) >= limit {
			break
		}
		if sessionID != "" && l.events[i].SessionID != sessionID {
			continue
		}
		e := l.events[i]
		out = append(out, &e)
	}
	return out, nil
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Verified counts events recorded with anonymity verified.
func (l *Log) Verified() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, e := range l.events {
		if e.AnonymityVerified {
			n++
		}
	}
	return n
}
