package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestConnect_RejectsBadDSN(t *testing.T) {
	_, err := Connect(context.Background(), "host='unterminated")
	assert.Error(t, err)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "-", stringOrDash("  "))
	assert.Equal(t, "x", stringOrDash("x"))

	local := time.Date(2025, 1, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	assert.Equal(t, time.UTC, timeOrNow(local).Location())
	assert.False(t, timeOrNow(time.Time{}).IsZero())
}
