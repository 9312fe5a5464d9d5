package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/tripforge/tripforge/pkg/events"
	"github.com/tripforge/tripforge/pkg/models"
)

// enrichedNode is one enrichment result waiting to be persisted.
type enrichedNode struct {
	dayNumber int
	node      *models.Node
}

// enrichBatcher coalesces enrichment results so the final phase does not
// issue one durable write per node. A batch flushes when it reaches
// batchSize or when flushInterval elapses with results pending, whichever
// comes first. Events still go out per node, each carrying the version of
// the write that made its content durable.
type enrichBatcher struct {
	writer        *docWriter
	publisher     *events.Publisher
	scope         events.Scope
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger

	in   chan enrichedNode
	done chan struct{}
}

func newEnrichBatcher(writer *docWriter, publisher *events.Publisher, scope events.Scope, batchSize int, flushInterval time.Duration) *enrichBatcher {
	return &enrichBatcher{
		writer:        writer,
		publisher:     publisher,
		scope:         scope,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.With("component", "enrich_batcher", "itinerary_id", scope.ItineraryID),
		in:            make(chan enrichedNode, batchSize*2),
		done:          make(chan struct{}),
	}
}

// add hands a result to the batcher. Safe from multiple worker goroutines.
func (b *enrichBatcher) add(dayNumber int, node *models.Node) {
	b.in <- enrichedNode{dayNumber: dayNumber, node: node}
}

// close signals no more results; the batcher flushes the remainder and stops.
func (b *enrichBatcher) close() {
	close(b.in)
}

// wait blocks until the final flush completed.
func (b *enrichBatcher) wait() {
	<-b.done
}

// run is the batcher goroutine. The timer only runs while results are
// pending, so an idle phase costs nothing.
func (b *enrichBatcher) run(ctx context.Context) {
	defer close(b.done)

	var batch []enrichedNode
	timer := time.NewTimer(b.flushInterval)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case res, ok := <-b.in:
			if !ok {
				b.flush(ctx, batch)
				return
			}
			if len(batch) == 0 {
				timer.Reset(b.flushInterval)
			}
			batch = append(batch, res)
			if len(batch) >= b.batchSize {
				timer.Stop()
				b.flush(ctx, batch)
				batch = nil
			}
		case <-timer.C:
			b.flush(ctx, batch)
			batch = nil
		case <-ctx.Done():
			// Cancellation drops pending results; the run is ending and
			// unpersisted enrichment is not worth a racing write.
			return
		}
	}
}

// flush persists the batch in one optimistic write and emits node_enhanced
// for every node that actually applied.
func (b *enrichBatcher) flush(ctx context.Context, batch []enrichedNode) {
	if len(batch) == 0 {
		return
	}

	applied := make(map[string]bool, len(batch))
	apply := func(doc *models.Itinerary) (bool, error) {
		any := false
		for _, res := range batch {
			_, target := doc.NodeByID(res.node.ID)
			if target == nil || target.Locked || target.BookingRef != "" {
				applied[res.node.ID] = false
				continue
			}
			*target = *res.node.Clone()
			applied[res.node.ID] = true
			any = true
		}
		return any, nil
	}

	doc, ok, err := b.writer.persist(ctx, apply)
	if err != nil {
		b.logger.Warn("Failed to persist enrichment batch", "batch_size", len(batch), "error", err)
		return
	}
	if !ok {
		return
	}
	for _, res := range batch {
		if applied[res.node.ID] {
			b.publisher.PublishNodeEnhanced(b.scope, res.dayNumber, res.node, doc.Version)
		}
	}
}
