package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripforge/tripforge/pkg/events"
	"github.com/tripforge/tripforge/pkg/models"
	"github.com/tripforge/tripforge/pkg/store"
)

func newBatcherFixture(t *testing.T, batchSize int, flushInterval time.Duration) (*enrichBatcher, store.Store, *events.Subscription) {
	t.Helper()
	s := seedStore(t)
	bus := events.NewBus(events.BusConfig{TailSize: 256}, nil)
	pub := events.NewPublisher(bus)
	sub := bus.Register("trip-1", nil)
	t.Cleanup(func() { bus.Unregister(sub) })

	scope := events.Scope{ItineraryID: "trip-1", ExecutionID: "exec-1"}
	b := newEnrichBatcher(newWriter(s), pub, scope, batchSize, flushInterval)
	return b, s, sub
}

func readEnhanced(t *testing.T, sub *events.Subscription, n int) []events.NodeEnhancedPayload {
	t.Helper()
	out := make([]events.NodeEnhancedPayload, 0, n)
	deadline := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case frame := <-sub.Frames():
			var env events.Envelope
			require.NoError(t, json.Unmarshal(frame, &env))
			if env.Type != events.EventTypeNodeEnhanced {
				continue
			}
			raw, _ := json.Marshal(env.Payload)
			var payload events.NodeEnhancedPayload
			require.NoError(t, json.Unmarshal(raw, &payload))
			out = append(out, payload)
		case <-deadline:
			t.Fatalf("timed out waiting for %d node_enhanced events, got %d", n, len(out))
		}
	}
	return out
}

func TestBatcherFlushesAtBatchSize(t *testing.T) {
	ctx := context.Background()
	b, s, sub := newBatcherFixture(t, 2, time.Hour)
	go b.run(ctx)

	b.add(1, &models.Node{ID: "d1_stay0", Type: models.NodeTypeAccommodation, Status: models.NodeStatusEnhanced})
	b.add(2, &models.Node{ID: "d2_stay0", Type: models.NodeTypeAccommodation, Status: models.NodeStatusEnhanced})

	payloads := readEnhanced(t, sub, 2)

	// One durable write covered both nodes.
	doc, err := s.Get(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Version)
	assert.Equal(t, 2, payloads[0].Version)
	assert.Equal(t, 2, payloads[1].Version)

	b.close()
	b.wait()
}

func TestBatcherFlushesOnInterval(t *testing.T) {
	ctx := context.Background()
	b, s, sub := newBatcherFixture(t, 10, 20*time.Millisecond)
	go b.run(ctx)

	b.add(1, &models.Node{ID: "d1_stay0", Status: models.NodeStatusEnhanced})

	payloads := readEnhanced(t, sub, 1)
	assert.Equal(t, "d1_stay0", payloads[0].NodeID)

	doc, err := s.Get(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Version)

	b.close()
	b.wait()
}

func TestBatcherCloseFlushesRemainder(t *testing.T) {
	ctx := context.Background()
	b, _, sub := newBatcherFixture(t, 10, time.Hour)
	go b.run(ctx)

	b.add(1, &models.Node{ID: "d1_stay0", Status: models.NodeStatusEnhanced})
	b.close()
	b.wait()

	payloads := readEnhanced(t, sub, 1)
	assert.Equal(t, "d1_stay0", payloads[0].NodeID)
}

func TestBatcherSkipsLockedNodesSilently(t *testing.T) {
	ctx := context.Background()
	b, s, sub := newBatcherFixture(t, 2, time.Hour)

	doc, err := s.Get(ctx, "trip-1")
	require.NoError(t, err)
	doc.Days[0].Nodes[0].Locked = true
	require.NoError(t, s.Update(ctx, doc, 1))

	go b.run(ctx)
	b.add(1, &models.Node{ID: "d1_stay0", Status: models.NodeStatusEnhanced})
	b.add(2, &models.Node{ID: "d2_stay0", Status: models.NodeStatusEnhanced})
	b.close()
	b.wait()

	// Only the unlocked node gets an event.
	payloads := readEnhanced(t, sub, 1)
	assert.Equal(t, "d2_stay0", payloads[0].NodeID)

	got, err := s.Get(ctx, "trip-1")
	require.NoError(t, err)
	_, locked := got.NodeByID("d1_stay0")
	assert.NotEqual(t, models.NodeStatusEnhanced, locked.Status)
}
