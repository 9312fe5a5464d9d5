package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripforge/tripforge/pkg/events"
	"github.com/tripforge/tripforge/pkg/models"
)

// scriptedAgent returns its scripted errors in order, then succeeds.
type scriptedAgent struct {
	desc     Descriptor
	failures []error
	calls    int
}

func (a *scriptedAgent) Descriptor() Descriptor { return a.desc }

func (a *scriptedAgent) Run(ctx context.Context, execCtx *ExecutionContext, input Input) (Output, error) {
	a.calls++
	if a.calls <= len(a.failures) {
		return Output{}, a.failures[a.calls-1]
	}
	return Output{Summary: "done"}, nil
}

// blockingAgent blocks until its context ends.
type blockingAgent struct {
	desc Descriptor
}

func (a *blockingAgent) Descriptor() Descriptor { return a.desc }

func (a *blockingAgent) Run(ctx context.Context, execCtx *ExecutionContext, input Input) (Output, error) {
	<-ctx.Done()
	return Output{}, ctx.Err()
}

func newTestRuntime(t *testing.T) (*Runtime, *ExecutionContext, *events.Subscription) {
	t.Helper()
	bus := events.NewBus(events.BusConfig{TailSize: 256}, nil)
	pub := events.NewPublisher(bus)
	sub := bus.Register("trip-1", nil)
	t.Cleanup(func() { bus.Unregister(sub) })

	statuses := NewStatusBook("test-agent")
	execCtx := NewExecutionContext("exec-1", "trip-1", "user-1", time.Now().Add(time.Minute), pub, statuses)

	rt := NewRuntime(pub)
	rt.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return rt, execCtx, sub
}

func readEvents(t *testing.T, sub *events.Subscription) []events.Envelope {
	t.Helper()
	var out []events.Envelope
	for {
		select {
		case frame := <-sub.Frames():
			var env events.Envelope
			require.NoError(t, json.Unmarshal(frame, &env))
			if env.Type == events.EventTypeConnected {
				continue
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestInvokeSucceedsFirstAttempt(t *testing.T) {
	rt, execCtx, _ := newTestRuntime(t)
	ag := &scriptedAgent{desc: Descriptor{Name: "test-agent", Retryable: true}}

	out, err := rt.Invoke(context.Background(), ag, execCtx, Input{})
	require.NoError(t, err)
	assert.False(t, out.Skipped)
	assert.Equal(t, 1, ag.calls)

	// A successful invocation is one unit, not the whole phase: the agent
	// stays running until the phase boundary settles it.
	status := execCtx.Statuses.Get("test-agent")
	assert.Equal(t, models.AgentStateRunning, status.State)
	assert.Equal(t, "done", status.LastMessage)
}

func TestInvokeRetriesTransientFailures(t *testing.T) {
	rt, execCtx, _ := newTestRuntime(t)
	ag := &scriptedAgent{
		desc: Descriptor{Name: "test-agent", Retryable: true, MaxAttempts: 3},
		failures: []error{
			E(KindTransientUpstream, "flaky"),
			E(KindTransientUpstream, "flaky"),
		},
	}

	out, err := rt.Invoke(context.Background(), ag, execCtx, Input{})
	require.NoError(t, err)
	assert.False(t, out.Skipped)
	assert.Equal(t, 3, ag.calls)
	assert.Equal(t, models.AgentStateRunning, execCtx.Statuses.Get("test-agent").State)
}

func TestInvokeKeepsLaterUnitFailureVisible(t *testing.T) {
	rt, execCtx, _ := newTestRuntime(t)

	// Unit 1 succeeds, unit 2 fails non-retryably. The first success must
	// not terminalize the agent, so the failure still lands.
	ok := &scriptedAgent{desc: Descriptor{Name: "test-agent", Retryable: true}}
	_, err := rt.Invoke(context.Background(), ok, execCtx, Input{DayNumber: 1})
	require.NoError(t, err)

	failing := &scriptedAgent{
		desc:     Descriptor{Name: "test-agent", Retryable: true},
		failures: []error{E(KindNonRetryableUpstream, "upstream declined")},
	}
	out, err := rt.Invoke(context.Background(), failing, execCtx, Input{DayNumber: 2})
	require.NoError(t, err)
	assert.True(t, out.Skipped)

	status := execCtx.Statuses.Get("test-agent")
	assert.Equal(t, models.AgentStateFailed, status.State)
}

func TestInvokeDoesNotRetryNonRetryableKind(t *testing.T) {
	rt, execCtx, sub := newTestRuntime(t)
	ag := &scriptedAgent{
		desc: Descriptor{Name: "test-agent", Retryable: true, MaxAttempts: 3},
		failures: []error{
			E(KindNonRetryableUpstream, "provider declined"),
			E(KindNonRetryableUpstream, "provider declined"),
			E(KindNonRetryableUpstream, "provider declined"),
		},
	}

	out, err := rt.Invoke(context.Background(), ag, execCtx, Input{})
	require.NoError(t, err, "non-fatal failures degrade to a skip")
	assert.True(t, out.Skipped)
	assert.Equal(t, 1, ag.calls, "non_retryable_upstream must not be retried")
	assert.Equal(t, models.AgentStateFailed, execCtx.Statuses.Get("test-agent").State)

	evs := readEvents(t, sub)
	require.Len(t, evs, 1)
	assert.Equal(t, events.EventTypePartialFailure, evs[0].Type)
}

func TestInvokeExhaustedRetriesEmitsPartialFailure(t *testing.T) {
	rt, execCtx, sub := newTestRuntime(t)
	ag := &scriptedAgent{
		desc: Descriptor{Name: "test-agent", Retryable: true, MaxAttempts: 2},
		failures: []error{
			E(KindTransientUpstream, "flaky"),
			E(KindTransientUpstream, "flaky"),
			E(KindTransientUpstream, "flaky"),
		},
	}

	out, err := rt.Invoke(context.Background(), ag, execCtx, Input{Node: &models.Node{ID: "d1_act0"}})
	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.Equal(t, 2, ag.calls)

	evs := readEvents(t, sub)
	require.Len(t, evs, 1)
	assert.Equal(t, events.EventTypePartialFailure, evs[0].Type)

	raw, _ := json.Marshal(evs[0].Payload)
	var payload events.FailurePayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "transient_upstream", payload.Kind)
	assert.Equal(t, "node:d1_act0", payload.Scope)
}

func TestInvokeFatalAgentReturnsError(t *testing.T) {
	rt, execCtx, sub := newTestRuntime(t)
	ag := &scriptedAgent{
		desc:     Descriptor{Name: "test-agent", FatalOnFailure: true},
		failures: []error{E(KindInternal, "boom")},
	}

	_, err := rt.Invoke(context.Background(), ag, execCtx, Input{})
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, models.AgentStateFailed, execCtx.Statuses.Get("test-agent").State)

	// Fatal failures are reported by the pipeline, not the runtime.
	assert.Empty(t, readEvents(t, sub))
}

func TestInvokeNonRetryableAgentGetsSingleAttempt(t *testing.T) {
	rt, execCtx, _ := newTestRuntime(t)
	ag := &scriptedAgent{
		desc: Descriptor{Name: "test-agent", Retryable: false, MaxAttempts: 5},
		failures: []error{
			E(KindTransientUpstream, "flaky"),
		},
	}

	out, err := rt.Invoke(context.Background(), ag, execCtx, Input{})
	require.NoError(t, err)
	assert.True(t, out.Skipped)
	assert.Equal(t, 1, ag.calls)
}

func TestInvokeCancelledContext(t *testing.T) {
	rt, execCtx, _ := newTestRuntime(t)
	ag := &blockingAgent{desc: Descriptor{Name: "test-agent", Retryable: true}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := rt.Invoke(ctx, ag, execCtx, Input{})
	require.Error(t, err)
	assert.Equal(t, KindCancelled, KindOf(err))
}

func TestInvokePerAttemptTimeoutIsRetryable(t *testing.T) {
	rt, execCtx, _ := newTestRuntime(t)

	slow := &countingTimeoutAgent{desc: Descriptor{
		Name:              "test-agent",
		Retryable:         true,
		MaxAttempts:       2,
		PerAttemptTimeout: 10 * time.Millisecond,
	}}

	out, err := rt.Invoke(context.Background(), slow, execCtx, Input{})
	require.NoError(t, err)
	assert.False(t, out.Skipped)
	assert.Equal(t, 2, slow.calls, "a timed-out attempt should be retried")
}

// countingTimeoutAgent times out on the first attempt, succeeds on the next.
type countingTimeoutAgent struct {
	desc  Descriptor
	calls int
}

func (a *countingTimeoutAgent) Descriptor() Descriptor { return a.desc }

func (a *countingTimeoutAgent) Run(ctx context.Context, execCtx *ExecutionContext, input Input) (Output, error) {
	a.calls++
	if a.calls == 1 {
		<-ctx.Done()
		return Output{}, ctx.Err()
	}
	return Output{}, nil
}

func TestBackoffBounds(t *testing.T) {
	base := 500 * time.Millisecond
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoff(base, attempt)
		expected := base << (attempt - 1)
		if expected > MaxBackoff || expected <= 0 {
			expected = MaxBackoff
		}
		assert.GreaterOrEqual(t, d, time.Duration(float64(expected)*0.8))
		assert.LessOrEqual(t, d, time.Duration(float64(expected)*1.2))
	}
}

func TestKindOfClassification(t *testing.T) {
	assert.Equal(t, KindCancelled, KindOf(context.Canceled))
	assert.Equal(t, KindCancelled, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindInternal, KindOf(errors.New("anything")))
	assert.Equal(t, KindConflict, KindOf(Wrap(KindConflict, "busy", errors.New("db"))))
}

func TestRetryableKinds(t *testing.T) {
	assert.True(t, Retryable(KindTransientUpstream))
	assert.False(t, Retryable(KindInvalidInput))
	assert.False(t, Retryable(KindNonRetryableUpstream))
	assert.False(t, Retryable(KindConflict))
	assert.False(t, Retryable(KindCancelled))
	assert.False(t, Retryable(KindInternal))
}
