package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/tripforge/tripforge/pkg/events"
)

// Runtime executes agent invocations. It owns the retry, timeout, and
// cancellation policy so individual agents stay free of it: an agent either
// returns an output or a classified error, and the runtime decides what that
// means for the run.
type Runtime struct {
	publisher *events.Publisher
	logger    *slog.Logger

	// sleep is swapped in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRuntime creates a runtime that reports failures through the publisher.
func NewRuntime(publisher *events.Publisher) *Runtime {
	return &Runtime{
		publisher: publisher,
		logger:    slog.With("component", "agent_runtime"),
		sleep:     sleepCtx,
	}
}

// Invoke runs one agent against one input, applying the agent's declared
// retry policy. The returned output has Skipped set when the agent failed
// non-fatally; a non-nil error is returned only for fatal failures and
// cancellation, both of which must abort the pipeline.
func (r *Runtime) Invoke(ctx context.Context, agent Agent, execCtx *ExecutionContext, input Input) (Output, error) {
	desc := agent.Descriptor().withDefaults()
	logger := r.logger.With(
		"agent", desc.Name,
		"itinerary_id", execCtx.ItineraryID,
		"execution_id", execCtx.ExecutionID,
		"unit", unitScope(input),
	)

	execCtx.Statuses.MarkRunning(desc.Name)

	var lastErr error
	for attempt := 1; attempt <= desc.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return r.cancelled(execCtx, desc, logger, err)
		}

		output, err := r.runAttempt(ctx, agent, execCtx, input, desc.PerAttemptTimeout)
		if err == nil {
			// One invocation is one unit of a possibly multi-unit phase;
			// the orchestrator settles the terminal state at the boundary.
			execCtx.Statuses.MarkUnitDone(desc.Name, output.Summary)
			return output, nil
		}
		lastErr = err

		// Distinguish run cancellation from a per-attempt deadline: the
		// former ends the pipeline, the latter is a retryable failure.
		if ctx.Err() != nil {
			return r.cancelled(execCtx, desc, logger, ctx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			lastErr = Wrap(KindTransientUpstream, "A planning step timed out.", err)
		}

		kind := KindOf(lastErr)
		if !Retryable(kind) || attempt == desc.MaxAttempts {
			break
		}

		delay := backoff(desc.BaseBackoff, attempt)
		if after := RetryAfterOf(lastErr); after > delay {
			delay = after
		}
		logger.Warn("Agent attempt failed, retrying",
			"attempt", attempt, "max_attempts", desc.MaxAttempts,
			"kind", string(kind), "backoff", delay, "error", err)
		if err := r.sleep(ctx, delay); err != nil {
			return r.cancelled(execCtx, desc, logger, err)
		}
	}

	kind := KindOf(lastErr)
	userMsg := UserMessageOf(lastErr)
	execCtx.Statuses.MarkFailed(desc.Name, userMsg)

	if desc.FatalOnFailure {
		logger.Error("Agent failed fatally", "kind", string(kind), "error", lastErr)
		return Output{}, fmt.Errorf("agent %s: %w", desc.Name, lastErr)
	}

	logger.Warn("Agent failed, skipping unit", "kind", string(kind), "error", lastErr)
	r.publisher.PublishPartialFailure(execCtx.Scope(), unitScope(input), string(kind), userMsg)
	return Output{Skipped: true}, nil
}

// runAttempt executes a single attempt under the per-attempt timeout.
func (r *Runtime) runAttempt(ctx context.Context, agent Agent, execCtx *ExecutionContext, input Input, timeout time.Duration) (Output, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return agent.Run(attemptCtx, execCtx, input)
}

// cancelled handles run cancellation uniformly: the agent is marked failed
// with a cancellation message and the error is propagated so the pipeline
// stops launching work.
func (r *Runtime) cancelled(execCtx *ExecutionContext, desc Descriptor, logger *slog.Logger, cause error) (Output, error) {
	logger.Info("Agent invocation cancelled")
	execCtx.Statuses.MarkFailed(desc.Name, "Generation was cancelled.")
	return Output{}, Wrap(KindCancelled, "Generation was cancelled.", cause)
}

// backoff computes the delay before retry attempt n+1: exponential from the
// base, capped, with ±20% jitter to avoid thundering retries against the
// same upstream.
func backoff(base time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	if d > MaxBackoff || d <= 0 {
		d = MaxBackoff
	}
	jitter := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(d) * jitter)
}

// sleepCtx waits for d or until the context ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
