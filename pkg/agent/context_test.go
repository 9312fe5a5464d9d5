package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripforge/tripforge/pkg/models"
)

func TestStatusBookStartsAllPending(t *testing.T) {
	book := NewStatusBook("a", "b")
	assert.Equal(t, models.AgentStatePending, book.Get("a").State)
	assert.Equal(t, models.AgentStatePending, book.Get("b").State)
}

func TestStatusBookRunningToSucceeded(t *testing.T) {
	book := NewStatusBook("a")

	book.MarkRunning("a")
	status := book.Get("a")
	assert.Equal(t, models.AgentStateRunning, status.State)
	require.NotNil(t, status.StartedAt)

	book.MarkSucceeded("a", "planned 3 days")
	status = book.Get("a")
	assert.Equal(t, models.AgentStateSucceeded, status.State)
	assert.Equal(t, "planned 3 days", status.LastMessage)
	assert.Equal(t, 100, status.Progress)
	assert.NotNil(t, status.FinishedAt)
}

func TestStatusBookTerminalStatesAreFinal(t *testing.T) {
	book := NewStatusBook("a")
	book.MarkFailed("a", "upstream declined")

	book.MarkRunning("a")
	book.MarkSucceeded("a", "should not apply")
	book.MarkSkipped("a")

	status := book.Get("a")
	assert.Equal(t, models.AgentStateFailed, status.State)
	assert.Equal(t, "upstream declined", status.LastMessage)
}

func TestStatusBookStartedAtIsStableAcrossRetries(t *testing.T) {
	book := NewStatusBook("a")
	book.MarkRunning("a")
	first := book.Get("a").StartedAt
	require.NotNil(t, first)

	time.Sleep(time.Millisecond)
	book.MarkRunning("a")
	assert.Equal(t, first, book.Get("a").StartedAt)
}

func TestStatusBookProgressIsMonotone(t *testing.T) {
	book := NewStatusBook("a")
	book.SetProgress("a", 40, "day 2 of 5")
	book.SetProgress("a", 20, "late report")

	status := book.Get("a")
	assert.Equal(t, 40, status.Progress)
	assert.Equal(t, "late report", status.LastMessage)
}

func TestStatusBookUnitDoneIsNotTerminal(t *testing.T) {
	book := NewStatusBook("a")
	book.MarkRunning("a")
	book.MarkUnitDone("a", "day 1 planned")

	status := book.Get("a")
	assert.Equal(t, models.AgentStateRunning, status.State)
	assert.Equal(t, "day 1 planned", status.LastMessage)

	// A failure after a completed unit still surfaces.
	book.MarkFailed("a", "upstream declined")
	assert.Equal(t, models.AgentStateFailed, book.Get("a").State)

	book.MarkUnitDone("a", "ignored")
	assert.Equal(t, "upstream declined", book.Get("a").LastMessage)
}

func TestStatusBookMarkAllUnfinishedSkipped(t *testing.T) {
	book := NewStatusBook("done", "running", "pending")
	book.MarkSucceeded("done", "")
	book.MarkRunning("running")

	book.MarkAllUnfinishedSkipped()

	assert.Equal(t, models.AgentStateSucceeded, book.Get("done").State)
	assert.Equal(t, models.AgentStateSkipped, book.Get("running").State)
	assert.Equal(t, models.AgentStateSkipped, book.Get("pending").State)
}

func TestStatusBookSnapshotIsACopy(t *testing.T) {
	book := NewStatusBook("a")
	snap := book.Snapshot()
	snap["a"] = models.AgentStatus{State: models.AgentStateFailed}

	assert.Equal(t, models.AgentStatePending, book.Get("a").State)
}

func TestExecutionContextScratchpadIsPartitioned(t *testing.T) {
	execCtx := NewExecutionContext("exec-1", "trip-1", "user-1", time.Time{}, nil, NewStatusBook())

	execCtx.Put("planner", "anchor", "old town")
	execCtx.Put("estimator", "anchor", 12.5)

	v, ok := execCtx.Get("planner", "anchor")
	require.True(t, ok)
	assert.Equal(t, "old town", v)

	v, ok = execCtx.Get("estimator", "anchor")
	require.True(t, ok)
	assert.Equal(t, 12.5, v)

	_, ok = execCtx.Get("planner", "missing")
	assert.False(t, ok)
}

func TestExecutionContextPhase(t *testing.T) {
	execCtx := NewExecutionContext("exec-1", "trip-1", "user-1", time.Time{}, nil, NewStatusBook())
	assert.Empty(t, execCtx.Phase())

	execCtx.SetPhase("activities")
	assert.Equal(t, "activities", execCtx.Phase())
}
