package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bryanwahyu/safeguard/internal/application"
	"github.com/bryanwahyu/safeguard/internal/bootstrap"
	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

var ref = time.Date(2025, 10, 14, 9, 0, 0, 0, time.UTC)

type downProvider struct{}

func (downProvider) Analyze(context.Context, safeguarding.AnalysisRequest) (string, error) {
	return "", errors.New("connection refused")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out, cliDeps{
		Deps: bootstrap.Deps{
			Provider: downProvider{},
			Clock:    application.FixedClock{T: ref},
		},
		logger: zaptest.NewLogger(t),
	})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeInput(t *testing.T, in analysisInput) string {
	t.Helper()
	data, err := json.Marshal(in)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestAnalyze(t *testing.T) {
	path := writeInput(t, analysisInput{
		StudentID: "S-77",
		Profile:   safeguarding.StudentProfile{StudentID: "S-77", Name: "Jo Example"},
		Record: safeguarding.RawRecord{
			BehavioralIncidents: []safeguarding.BehavioralIncident{
				{Timestamp: ref.Add(-48 * time.Hour), IncidentType: "disruptive"},
				{Timestamp: ref.Add(-24 * time.Hour), IncidentType: "disruptive"},
			},
		},
	})

	out, err := run(t, "analyze", "--record", path)
	require.NoError(t, err)

	var rep safeguarding.SafeguardingReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "S-77", rep.StudentID)
	assert.Equal(t, "Jo Example", rep.StudentName)
	assert.True(t, rep.Summary.FallbackUsed)
	assert.NotEmpty(t, rep.Interventions)
}

func TestAnalyze_OfflineFlag(t *testing.T) {
	path := writeInput(t, analysisInput{
		StudentID: "S-78",
		Record: safeguarding.RawRecord{
			BehavioralIncidents: []safeguarding.BehavioralIncident{
				{Timestamp: ref.Add(-72 * time.Hour), IncidentType: "disruptive"},
				{Timestamp: ref.Add(-48 * time.Hour), IncidentType: "disruptive"},
				{Timestamp: ref.Add(-24 * time.Hour), IncidentType: "disruptive"},
			},
		},
	})

	var out bytes.Buffer
	cmd := newRootCmd(&out, cliDeps{
		Deps:   bootstrap.Deps{Clock: application.FixedClock{T: ref}},
		logger: zaptest.NewLogger(t),
	})
	cmd.SetArgs([]string{"--offline", "analyze", "--record", path})
	require.NoError(t, cmd.Execute())

	var rep safeguarding.SafeguardingReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	assert.Equal(t, "S-78", rep.StudentID)
	assert.False(t, rep.Summary.FallbackUsed)
}

func TestAnalyze_InvalidInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"student_id":"S-1","extra":true}`), 0o600))

	_, err := run(t, "analyze", "--record", path)
	assert.Error(t, err)

	path = writeInput(t, analysisInput{StudentID: "S-1"})
	_, err = run(t, "analyze", "--record", path)
	var ve *safeguarding.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestSummary_UnknownStudent(t *testing.T) {
	_, err := run(t, "summary", "nobody")
	assert.ErrorIs(t, err, safeguarding.ErrUnknownSubject)
}

func TestCompliance_Empty(t *testing.T) {
	out, err := run(t, "compliance")
	require.NoError(t, err)
	assert.Contains(t, out, `"totalAnalyses": 0`)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "safeguard dev\n", out)
}
