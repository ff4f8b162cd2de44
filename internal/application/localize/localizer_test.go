package localize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/safeguard/internal/application/tokenize"
	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

func session(t *testing.T) *tokenize.Session {
	t.Helper()
	s, err := tokenize.New([]byte("master"), nil).NewSession()
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestLocalize_RoundTrip(t *testing.T) {
	s := session(t)
	snap, err := s.BuildSnapshot("S-1001", safeguarding.RawRecord{
		Attendance: []safeguarding.AttendanceRecord{{Timestamp: time.Now(), Status: safeguarding.AttendanceAbsent}},
	}, time.Now())
	require.NoError(t, err)

	res := safeguarding.DefaultAnalysis()
	loc, err := New(s).Localize(res, "S-1001")
	require.NoError(t, err)
	assert.Equal(t, "S-1001", loc.StudentID)
	assert.Equal(t, snap.StudentToken(), loc.StudentToken)
	assert.Equal(t, res, loc.Result)

	id, ok := New(s).Resolve(snap.StudentToken())
	require.True(t, ok)
	assert.Equal(t, "S-1001", id)
}

func TestLocalize_OtherSessionResolvesNothing(t *testing.T) {
	s1, s2 := session(t), session(t)
	snap, err := s1.BuildSnapshot("S-1001", safeguarding.RawRecord{}, time.Now())
	require.NoError(t, err)

	_, ok := New(s2).Resolve(snap.StudentToken())
	assert.False(t, ok)

	_, err = New(s2).Localize(safeguarding.DefaultAnalysis(), "S-1001")
	assert.ErrorIs(t, err, safeguarding.ErrUnknownSubject)
}

func TestLocalize_ClosedSession(t *testing.T) {
	s := session(t)
	_, err := s.BuildSnapshot("S-1", safeguarding.RawRecord{}, time.Now())
	require.NoError(t, err)
	s.Close()

	_, err = New(s).Localize(safeguarding.DefaultAnalysis(), "S-1")
	assert.ErrorIs(t, err, safeguarding.ErrUnknownSubject)
	_, err = New(nil).Localize(safeguarding.DefaultAnalysis(), "S-1")
	assert.ErrorIs(t, err, safeguarding.ErrUnknownSubject)
}

func TestLocalize_RejectsResultAboutAnotherSubject(t *testing.T) {
	s := session(t)
	own, err := s.TokenizeIdentifier(safeguarding.CategoryStudent, "S-1")
	require.NoError(t, err)
	other, err := s.TokenizeIdentifier(safeguarding.CategoryStudent, "S-2")
	require.NoError(t, err)

	res := safeguarding.DefaultAnalysis()
	res.Reasoning = "Signals for " + own.Value + " are recurring."
	loc, err := New(s).Localize(res, "S-1")
	require.NoError(t, err)
	assert.Equal(t, own, loc.StudentToken)

	res.EvidenceSummary = "Compare with " + other.Value
	_, err = New(s).Localize(res, "S-1")
	assert.ErrorIs(t, err, safeguarding.ErrUnknownSubject)
	assert.NotContains(t, err.Error(), "S-2")

	res = safeguarding.DefaultAnalysis()
	res.PatternTokens = []string{"TOKEN_STUDENT_000000000000000000000000"}
	_, err = New(s).Localize(res, "S-1")
	assert.ErrorIs(t, err, safeguarding.ErrUnknownSubject)
}
