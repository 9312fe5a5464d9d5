// Package pipeline runs the multi-phase itinerary generation pipeline:
// phase sequencing, bounded fan-out over days and nodes, durable persistence
// with optimistic concurrency, and event emission along the way.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tripforge/tripforge/pkg/agent"
	"github.com/tripforge/tripforge/pkg/config"
	"github.com/tripforge/tripforge/pkg/events"
	"github.com/tripforge/tripforge/pkg/models"
	"github.com/tripforge/tripforge/pkg/store"
)

// Sentinel errors surfaced to the service layer.
var (
	ErrTooManyGenerations = errors.New("too many concurrent generations")
	ErrAlreadyGenerating  = errors.New("itinerary is already generating")
	ErrNotGenerating      = errors.New("itinerary is not generating")
	ErrDraining           = errors.New("orchestrator is shutting down")
)

// Metrics is the instrumentation hook for pipeline activity.
type Metrics interface {
	GenerationStarted()
	GenerationFinished(outcome string, duration time.Duration)
	PhaseCompleted(phase string, duration time.Duration)
}

// noopMetrics keeps the orchestrator usable without instrumentation.
type noopMetrics struct{}

func (noopMetrics) GenerationStarted()                       {}
func (noopMetrics) GenerationFinished(string, time.Duration) {}
func (noopMetrics) PhaseCompleted(string, time.Duration)     {}

// Generation outcomes reported to metrics.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Orchestrator owns every in-flight generation in this process. One
// generation runs per itinerary at a time; each runs the phase sequence with
// bounded fan-out and persists through the optimistic write protocol.
type Orchestrator struct {
	cfg       config.PipelineConfig
	store     store.Store
	publisher *events.Publisher
	runtime   *agent.Runtime
	phases    []Phase
	metrics   Metrics
	logger    *slog.Logger

	// Generation cancel registry: itinerary_id → cancel function.
	mu       sync.RWMutex
	active   map[string]context.CancelFunc
	draining bool
	wg       sync.WaitGroup
}

// NewOrchestrator creates an orchestrator. A nil metrics falls back to a
// no-op implementation.
func NewOrchestrator(cfg config.PipelineConfig, st store.Store, publisher *events.Publisher, phases []Phase, metrics Metrics) *Orchestrator {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Orchestrator{
		cfg:       cfg,
		store:     st,
		publisher: publisher,
		runtime:   agent.NewRuntime(publisher),
		phases:    phases,
		metrics:   metrics,
		logger:    slog.With("component", "orchestrator"),
		active:    make(map[string]context.CancelFunc),
	}
}

// Start launches a generation for an itinerary that already exists in the
// store. It returns the execution id immediately; the run proceeds on its
// own goroutine, detached from the caller's context.
func (o *Orchestrator) Start(itineraryID, userID string) (string, error) {
	o.mu.Lock()
	if o.draining {
		o.mu.Unlock()
		return "", ErrDraining
	}
	if _, running := o.active[itineraryID]; running {
		o.mu.Unlock()
		return "", ErrAlreadyGenerating
	}
	if len(o.active) >= o.cfg.MaxConcurrentGenerations {
		o.mu.Unlock()
		return "", ErrTooManyGenerations
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.GenerationTimeout)
	o.active[itineraryID] = cancel
	o.wg.Add(1)
	o.mu.Unlock()

	executionID := uuid.New().String()
	o.metrics.GenerationStarted()

	go func() {
		defer o.wg.Done()
		defer cancel()
		defer func() {
			o.mu.Lock()
			delete(o.active, itineraryID)
			o.mu.Unlock()
		}()
		o.run(ctx, executionID, itineraryID, userID)
	}()

	return executionID, nil
}

// Cancel requests cooperative cancellation of an itinerary's generation.
func (o *Orchestrator) Cancel(itineraryID string) error {
	o.mu.RLock()
	cancel, ok := o.active[itineraryID]
	o.mu.RUnlock()
	if !ok {
		return ErrNotGenerating
	}
	cancel()
	return nil
}

// IsGenerating reports whether an itinerary has an in-flight generation.
func (o *Orchestrator) IsGenerating(itineraryID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.active[itineraryID]
	return ok
}

// ActiveCount returns the number of in-flight generations.
func (o *Orchestrator) ActiveCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.active)
}

// Drain stops admitting new generations and waits for in-flight ones to
// finish, up to the context deadline. Remaining runs are cancelled when the
// deadline passes.
func (o *Orchestrator) Drain(ctx context.Context) error {
	o.mu.Lock()
	o.draining = true
	count := len(o.active)
	o.mu.Unlock()

	if count > 0 {
		o.logger.Info("Draining orchestrator", "active_generations", count)
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		o.mu.RLock()
		for _, cancel := range o.active {
			cancel()
		}
		o.mu.RUnlock()
		<-done
		return ctx.Err()
	}
}

// run executes the phase sequence for one generation.
func (o *Orchestrator) run(ctx context.Context, executionID, itineraryID, userID string) {
	start := time.Now()
	logger := o.logger.With("itinerary_id", itineraryID, "execution_id", executionID)
	logger.Info("Generation started")

	statuses := agent.NewStatusBook(agentNames(o.phases)...)
	deadline, _ := ctx.Deadline()
	execCtx := agent.NewExecutionContext(executionID, itineraryID, userID, deadline, o.publisher, statuses)
	scope := execCtx.Scope()
	writer := &docWriter{store: o.store, statuses: statuses, itineraryID: itineraryID}

	exec := &execution{
		o:       o,
		logger:  logger,
		execCtx: execCtx,
		scope:   scope,
		writer:  writer,
	}

	outcome, err := exec.runPhases(ctx)
	duration := time.Since(start)
	o.metrics.GenerationFinished(outcome, duration)

	// Keep the event history around briefly so late subscribers can still
	// catch the terminal event, then let the topic go.
	o.publisher.Bus().ScheduleRelease(itineraryID)

	switch outcome {
	case OutcomeCompleted:
		logger.Info("Generation completed", "duration", duration, "final_version", exec.finalVersion)
	case OutcomeCancelled:
		logger.Info("Generation cancelled", "duration", duration)
	default:
		logger.Error("Generation failed", "duration", duration, "error", err)
	}
}

// execution carries the state of one run through its phases.
type execution struct {
	o       *Orchestrator
	logger  *slog.Logger
	execCtx *agent.ExecutionContext
	scope   events.Scope
	writer  *docWriter

	totalWeight     int
	completedWeight int
	finalVersion    int
}

// runPhases drives the pipeline and returns the generation outcome.
func (e *execution) runPhases(ctx context.Context) (string, error) {
	for _, p := range e.o.phases {
		e.totalWeight += p.Weight
	}
	e.totalWeight += 5 // finalize share

	doc, err := e.o.store.Get(ctx, e.scope.ItineraryID)
	if err != nil {
		e.fail(ctx, agent.Wrap(agent.KindInternal, "The itinerary could not be loaded.", err))
		return OutcomeFailed, err
	}

	for _, phase := range e.o.phases {
		if ctx.Err() != nil {
			e.cancelled(ctx)
			return OutcomeCancelled, ctx.Err()
		}

		doc, err = e.runPhase(ctx, phase, doc)
		if err != nil {
			if agent.KindOf(err) == agent.KindCancelled {
				e.cancelled(ctx)
				return OutcomeCancelled, err
			}
			e.fail(ctx, err)
			return OutcomeFailed, err
		}
		e.completedWeight += phase.Weight
	}

	return e.finalize(ctx, doc)
}

// runPhase fans one phase out over its units and returns the post-phase
// document snapshot.
func (e *execution) runPhase(ctx context.Context, phase Phase, doc *models.Itinerary) (*models.Itinerary, error) {
	start := time.Now()
	e.execCtx.SetPhase(phase.Name)

	var err error
	switch phase.Scope {
	case ScopeItinerary:
		err = e.runItineraryPhase(ctx, phase, doc)
	case ScopeDay:
		err = e.runDayPhase(ctx, phase, doc)
	case ScopeNode:
		err = e.runNodePhase(ctx, phase, doc)
	default:
		err = fmt.Errorf("unknown phase scope %q", phase.Scope)
	}
	if err != nil {
		if phase.Fatal || agent.KindOf(err) == agent.KindCancelled {
			return nil, err
		}
		// A non-fatal phase error degrades to a skipped phase; the runtime
		// already reported the per-unit failures.
		e.logger.Warn("Phase degraded", "phase", phase.Name, "error", err)
	}

	// Settle the agent's terminal state now that every unit ran. A no-op
	// when any unit already marked it failed.
	e.execCtx.Statuses.MarkSucceeded(phase.Agent.Descriptor().Name, "")

	e.o.metrics.PhaseCompleted(phase.Name, time.Since(start))

	// Re-read so the next phase sees everything this one persisted, plus any
	// concurrent user edits.
	fresh, err := e.o.store.Get(ctx, e.scope.ItineraryID)
	if err != nil {
		return nil, agent.Wrap(agent.KindInternal, "The itinerary could not be reloaded.", err)
	}

	// Archive the phase boundary so polling clients always have a coherent
	// snapshot per completed phase. Re-archiving an unchanged version is a
	// no-op in the store.
	if err := e.o.store.SaveRevision(ctx, fresh); err != nil {
		e.logger.Warn("Failed to archive phase revision",
			"phase", phase.Name, "version", fresh.Version, "error", err)
	}
	return fresh, nil
}

// runItineraryPhase executes a single whole-document agent invocation.
func (e *execution) runItineraryPhase(ctx context.Context, phase Phase, doc *models.Itinerary) error {
	e.o.publisher.PublishPhaseStarted(e.scope, phase.Name, 1)
	phaseStart := time.Now()

	out, err := e.o.runtime.Invoke(ctx, phase.Agent, e.execCtx, agent.Input{Itinerary: doc})
	if err != nil {
		return err
	}
	produced := 0
	if !out.Skipped && out.Itinerary != nil {
		var apply applyFunc
		switch phase.Name {
		case PhaseSkeleton:
			apply = applySkeleton(out.Itinerary)
		case PhaseCost:
			apply = applyCosts(out.Itinerary)
		default:
			apply = applySkeleton(out.Itinerary)
		}
		if _, _, err := e.writer.persist(ctx, apply); err != nil {
			if phase.Fatal {
				return err
			}
			e.logger.Warn("Failed to persist phase result", "phase", phase.Name, "error", err)
		} else {
			produced = 1
		}
	}

	e.progress(phase, 1, 1, "")
	e.o.publisher.PublishPhaseCompleted(e.scope, phase.Name, produced, time.Since(phaseStart))
	return nil
}

// runDayPhase fans out over days with bounded parallelism. Each completed
// day persists individually and emits day_completed at its persisted
// version.
func (e *execution) runDayPhase(ctx context.Context, phase Phase, doc *models.Itinerary) error {
	days := make([]int, 0, len(doc.Days))
	for i := range doc.Days {
		days = append(days, doc.Days[i].DayNumber)
	}

	e.o.publisher.PublishPhaseStarted(e.scope, phase.Name, len(days))
	phaseStart := time.Now()

	sem := make(chan struct{}, e.o.cfg.DayPoolSize)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var produced, done int
	var firstErr error

	for _, dayNumber := range days {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(dayNumber int) {
			defer wg.Done()
			defer func() { <-sem }()

			out, err := e.o.runtime.Invoke(ctx, phase.Agent, e.execCtx, agent.Input{
				Itinerary: doc,
				DayNumber: dayNumber,
			})

			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			if out.Skipped || out.Day == nil {
				return
			}

			persisted, ok, perr := e.writer.persist(ctx, applyDay(out.Day))
			if perr != nil {
				e.reportUnitFailure(fmt.Sprintf("day:%d", dayNumber), perr)
				return
			}
			if ok {
				produced++
				if day := persisted.DayByNumber(dayNumber); day != nil {
					e.o.publisher.PublishDayCompleted(e.scope, day, persisted.Version)
				}
			}
			e.execCtx.Statuses.SetProgress(phase.Agent.Descriptor().Name,
				done*100/len(days), fmt.Sprintf("day %d", dayNumber))
			e.progress(phase, done, len(days), fmt.Sprintf("day %d", dayNumber))
		}(dayNumber)
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	e.o.publisher.PublishPhaseCompleted(e.scope, phase.Name, produced, time.Since(phaseStart))
	return nil
}

// runNodePhase fans out over enrichable nodes, funneling results through the
// batcher so durable writes are coalesced.
func (e *execution) runNodePhase(ctx context.Context, phase Phase, doc *models.Itinerary) error {
	type unit struct {
		dayNumber int
		node      *models.Node
	}
	var units []unit
	for d := range doc.Days {
		for n := range doc.Days[d].Nodes {
			node := &doc.Days[d].Nodes[n]
			if enrichable(node) {
				units = append(units, unit{dayNumber: doc.Days[d].DayNumber, node: node})
			}
		}
	}

	e.o.publisher.PublishPhaseStarted(e.scope, phase.Name, len(units))
	phaseStart := time.Now()

	batcher := newEnrichBatcher(e.writer, e.o.publisher, e.scope,
		e.o.cfg.EnrichBatchSize, e.o.cfg.EnrichFlushInterval)
	go batcher.run(ctx)

	sem := make(chan struct{}, e.o.cfg.NodePoolSize)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var produced, done int
	var firstErr error

	for _, u := range units {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(u unit) {
			defer wg.Done()
			defer func() { <-sem }()

			out, err := e.o.runtime.Invoke(ctx, phase.Agent, e.execCtx, agent.Input{
				Itinerary: doc,
				DayNumber: u.dayNumber,
				Node:      u.node,
			})

			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			if out.Skipped || out.Node == nil {
				return
			}
			produced++
			batcher.add(u.dayNumber, out.Node)
			e.execCtx.Statuses.SetProgress(phase.Agent.Descriptor().Name,
				done*100/len(units), u.node.Title)
			e.progress(phase, done, len(units), u.node.Title)
		}(u)
	}
	wg.Wait()
	batcher.close()
	batcher.wait()

	if firstErr != nil {
		return firstErr
	}
	e.o.publisher.PublishPhaseCompleted(e.scope, phase.Name, produced, time.Since(phaseStart))
	return nil
}

// finalize persists the terminal status snapshot, archives the revision,
// and emits generation_complete.
func (e *execution) finalize(ctx context.Context, doc *models.Itinerary) (string, error) {
	e.execCtx.SetPhase(PhaseFinalize)
	e.execCtx.Statuses.MarkAllUnfinishedSkipped()

	persisted, _, err := e.writer.persist(ctx, applyStatusOnly())
	if err != nil {
		e.fail(ctx, err)
		return OutcomeFailed, err
	}
	if err := e.o.store.SaveRevision(ctx, persisted); err != nil {
		e.logger.Warn("Failed to archive revision", "version", persisted.Version, "error", err)
	}

	e.finalVersion = persisted.Version
	e.o.publisher.PublishGenerationComplete(e.scope, persisted.Version)
	return OutcomeCompleted, nil
}

// fail ends the run with a fatal error event and a best-effort terminal
// persist so the stored document reflects what never ran.
func (e *execution) fail(ctx context.Context, err error) {
	e.execCtx.Statuses.MarkAllUnfinishedSkipped()
	e.persistTerminal()

	kind := agent.KindOf(err)
	e.o.publisher.PublishError(e.scope, string(kind), agent.UserMessageOf(err),
		events.SeverityFatal, agent.Retryable(kind), agent.RetryAfterOf(err))
}

// cancelled ends the run after a cancel request or deadline.
func (e *execution) cancelled(ctx context.Context) {
	e.execCtx.Statuses.MarkAllUnfinishedSkipped()
	e.persistTerminal()

	e.o.publisher.PublishError(e.scope, string(agent.KindCancelled),
		"Generation was cancelled.", events.SeverityFatal, false, 0)
}

// persistTerminal writes the final status snapshot on a fresh context; the
// run context is typically already cancelled or expired by now.
func (e *execution) persistTerminal() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, _, err := e.writer.persist(ctx, applyStatusOnly()); err != nil {
		e.logger.Warn("Failed to persist terminal state", "error", err)
	}
}

// progress emits an overall progress event from phase weights and unit
// completion within the current phase.
func (e *execution) progress(phase Phase, unitsDone, unitsTotal int, activity string) {
	if unitsTotal < 1 {
		unitsTotal = 1
	}
	pct := (e.completedWeight*100 + phase.Weight*100*unitsDone/unitsTotal) / e.totalWeight
	e.o.publisher.PublishProgress(e.scope, pct, phase.Name, activity)
}

// reportUnitFailure publishes a per-unit persistence failure that did not
// abort the phase.
func (e *execution) reportUnitFailure(unit string, err error) {
	kind := agent.KindOf(err)
	e.logger.Warn("Unit persist failed", "unit", unit, "kind", string(kind), "error", err)
	e.o.publisher.PublishPartialFailure(e.scope, unit, string(kind), agent.UserMessageOf(err))
}
