package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatus_Valid(t *testing.T) {
	assert.True(t, JobStatusQueued.Valid())
	assert.True(t, JobStatusRunning.Valid())
	assert.True(t, JobStatusDone.Valid())
	assert.True(t, JobStatusDeadletter.Valid())

	// failure never persists as its own status; it resolves to queued or
	// deadletter before the row is visible again
	assert.False(t, JobStatus("failed").Valid())
	assert.False(t, JobStatus("").Valid())
}

func TestJobStatus_IsTerminal(t *testing.T) {
	assert.True(t, JobStatusDone.IsTerminal())
	assert.True(t, JobStatusDeadletter.IsTerminal())
	assert.False(t, JobStatusQueued.IsTerminal())
	assert.False(t, JobStatusRunning.IsTerminal())
}

func TestParseJobKey(t *testing.T) {
	assert.Equal(t, "parse:abc:v2", ParseJobKey("abc", "v2"))
}
