package mysql

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/bryanwahyu/safeguard/internal/domain/audit"
	"github.com/bryanwahyu/safeguard/internal/domain/history"
	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

// sqliteSchema mirrors Schema in a dialect sqlite accepts; the queries
// themselves are shared.
var sqliteSchema = []string{`
CREATE TABLE safeguard_audit_events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  session_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  details_hash TEXT NOT NULL,
  anonymity_verified BOOLEAN NOT NULL,
  created_at DATETIME NOT NULL
)`, `
CREATE TABLE safeguard_analysis_history (
  id TEXT PRIMARY KEY,
  subject_key TEXT NOT NULL,
  session_id TEXT NOT NULL,
  report_id TEXT NOT NULL,
  risk_level TEXT NOT NULL,
  confidence REAL NOT NULL,
  fallback_used BOOLEAN NOT NULL,
  created_at DATETIME NOT NULL
)`}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	for _, stmt := range sqliteSchema {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return db
}

var ts = time.Date(2025, 10, 14, 9, 0, 0, 0, time.UTC)

func TestAuditRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewAuditRepository(openDB(t))

	events := []*audit.Event{
		{Timestamp: ts, SessionID: "s1", EventType: audit.EventSessionCreated, DetailsHash: "a", AnonymityVerified: true},
		{Timestamp: ts, SessionID: "s2", EventType: audit.EventAnonymityViolation, DetailsHash: "b"},
		{Timestamp: ts.Add(time.Second), SessionID: "s1", EventType: audit.EventSessionComplete, DetailsHash: "c", AnonymityVerified: true},
		{Timestamp: ts, EventType: audit.EventValidationFailure, DetailsHash: "d", AnonymityVerified: true},
	}
	for _, e := range events {
		require.NoError(t, repo.Append(ctx, e))
		assert.NotZero(t, e.ID)
	}

	s1, err := repo.List(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, s1, 2)
	assert.Equal(t, audit.EventSessionCreated, s1[0].EventType)
	assert.Equal(t, audit.EventSessionComplete, s1[1].EventType)
	assert.True(t, s1[0].AnonymityVerified)
	assert.True(t, ts.Equal(s1[0].Timestamp))

	all, err := repo.List(ctx, "", 3)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.False(t, all[1].AnonymityVerified)

	all, err = repo.List(ctx, "", 10)
	require.NoError(t, err)
	assert.Equal(t, "", all[3].SessionID)
}

func TestHistoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewHistoryRepository(openDB(t))

	entries := []*history.Entry{
		{ID: "h1", SubjectKey: "k1", SessionID: "s1", ReportID: "r1", RiskLevel: safeguarding.RiskLow, Confidence: 0.5, CreatedAt: ts},
		{ID: "h2", SubjectKey: "k2", SessionID: "s2", ReportID: "r2", RiskLevel: safeguarding.RiskMedium, Confidence: 0.5, FallbackUsed: true, CreatedAt: ts.Add(time.Hour)},
		{ID: "h3", SubjectKey: "k1", SessionID: "s3", ReportID: "r3", RiskLevel: safeguarding.RiskHigh, Confidence: 0.9, CreatedAt: ts.Add(2 * time.Hour)},
	}
	for _, e := range entries {
		require.NoError(t, repo.Save(ctx, e))
	}
	assert.Error(t, repo.Save(ctx, entries[0]), "entries are insert-only")

	k1, err := repo.ListBySubject(ctx, "k1", 0)
	require.NoError(t, err)
	require.Len(t, k1, 2)
	assert.Equal(t, "h3", k1[0].ID)
	assert.Equal(t, safeguarding.RiskHigh, k1[0].RiskLevel)
	assert.InDelta(t, 0.9, k1[0].Confidence, 1e-9)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"h1", "h2", "h3"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.True(t, all[1].FallbackUsed)
}
