package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drainFrames decodes every frame currently buffered on a subscription.
func drainFrames(t *testing.T, sub *Subscription) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		select {
		case frame := <-sub.Frames():
			var env Envelope
			require.NoError(t, json.Unmarshal(frame, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

// waitFrames reads n frames with a timeout.
func waitFrames(t *testing.T, sub *Subscription, n int) []Envelope {
	t.Helper()
	out := make([]Envelope, 0, n)
	deadline := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case frame := <-sub.Frames():
			var env Envelope
			require.NoError(t, json.Unmarshal(frame, &env))
			out = append(out, env)
		case <-deadline:
			t.Fatalf("timed out waiting for %d frames, got %d", n, len(out))
		}
	}
	return out
}

func TestBroadcastAssignsSequentialIDs(t *testing.T) {
	bus := NewBus(BusConfig{}, nil)

	for i := 1; i <= 5; i++ {
		id := bus.Broadcast("trip-1", Envelope{Type: EventTypeProgress})
		assert.Equal(t, int64(i), id)
	}
	assert.Equal(t, int64(5), bus.LastEventID("trip-1"))

	// Sequences are independent per itinerary.
	assert.Equal(t, int64(1), bus.Broadcast("trip-2", Envelope{Type: EventTypeProgress}))
}

func TestRegisterDeliversConnectedHandshake(t *testing.T) {
	bus := NewBus(BusConfig{}, nil)
	bus.Broadcast("trip-1", Envelope{Type: EventTypeProgress})
	bus.Broadcast("trip-1", Envelope{Type: EventTypeProgress})

	sub := bus.Register("trip-1", nil)
	defer bus.Unregister(sub)

	frames := drainFrames(t, sub)
	require.Len(t, frames, 1)
	assert.Equal(t, EventTypeConnected, frames[0].Type)
	assert.Zero(t, frames[0].EventID, "handshakes are not sequenced")

	payload, err := json.Marshal(frames[0].Payload)
	require.NoError(t, err)
	var connected ConnectedPayload
	require.NoError(t, json.Unmarshal(payload, &connected))
	assert.Equal(t, int64(2), connected.LastEventID)
	assert.Equal(t, sub.ID, connected.SubscriptionID)
}

func TestRegisterReplaysMissedEvents(t *testing.T) {
	bus := NewBus(BusConfig{}, nil)
	for i := 0; i < 6; i++ {
		bus.Broadcast("trip-1", Envelope{Type: EventTypeProgress})
	}

	lastSeen := int64(3)
	sub := bus.Register("trip-1", &lastSeen)
	defer bus.Unregister(sub)

	frames := drainFrames(t, sub)
	require.Len(t, frames, 4) // connected + events 4, 5, 6
	assert.Equal(t, EventTypeConnected, frames[0].Type)
	for i, want := range []int64{4, 5, 6} {
		assert.Equal(t, want, frames[i+1].EventID)
	}
}

func TestRegisterReplayThenLiveHasNoGapOrDuplicate(t *testing.T) {
	bus := NewBus(BusConfig{TailSize: 64}, nil)
	for i := 0; i < 10; i++ {
		bus.Broadcast("trip-1", Envelope{Type: EventTypeProgress})
	}

	lastSeen := int64(5)
	sub := bus.Register("trip-1", &lastSeen)
	defer bus.Unregister(sub)

	for i := 0; i < 10; i++ {
		bus.Broadcast("trip-1", Envelope{Type: EventTypeProgress})
	}

	frames := waitFrames(t, sub, 1+5+10)
	assert.Equal(t, EventTypeConnected, frames[0].Type)
	next := int64(6)
	for _, env := range frames[1:] {
		assert.Equal(t, next, env.EventID)
		next++
	}
}

func TestRecoveryIncompleteWhenTailEvicted(t *testing.T) {
	bus := NewBus(BusConfig{TailSize: 10}, nil)
	// 25 events through a 10-entry tail: events 1..15 are gone.
	for i := 0; i < 25; i++ {
		bus.Broadcast("trip-1", Envelope{Type: EventTypeProgress})
	}

	lastSeen := int64(3)
	sub := bus.Register("trip-1", &lastSeen)
	defer bus.Unregister(sub)

	frames := drainFrames(t, sub)
	require.Len(t, frames, 2)
	assert.Equal(t, EventTypeConnected, frames[0].Type)
	assert.Equal(t, EventTypeRecoveryIncomplete, frames[1].Type)

	payload, err := json.Marshal(frames[1].Payload)
	require.NoError(t, err)
	var rec RecoveryIncompletePayload
	require.NoError(t, json.Unmarshal(payload, &rec))
	assert.Equal(t, int64(3), rec.RequestedAfter)
	assert.Equal(t, int64(16), rec.OldestRetained)
}

func TestResumeAtTailBoundaryReplaysFully(t *testing.T) {
	bus := NewBus(BusConfig{TailSize: 10}, nil)
	for i := 0; i < 20; i++ {
		bus.Broadcast("trip-1", Envelope{Type: EventTypeProgress})
	}

	// Oldest retained is 11; a client that saw 10 resumes seamlessly.
	lastSeen := int64(10)
	sub := bus.Register("trip-1", &lastSeen)
	defer bus.Unregister(sub)

	frames := drainFrames(t, sub)
	require.Len(t, frames, 11)
	assert.Equal(t, EventTypeConnected, frames[0].Type)
	assert.Equal(t, int64(11), frames[1].EventID)
	assert.Equal(t, int64(20), frames[10].EventID)
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	bus := NewBus(BusConfig{TailSize: 10}, nil)
	sub := bus.Register("trip-1", nil)

	// Never read; the buffer (tail+4 plus the handshake already queued)
	// eventually overflows.
	for i := 0; i < 50; i++ {
		bus.Broadcast("trip-1", Envelope{Type: EventTypeProgress})
	}

	select {
	case <-sub.Done():
	default:
		t.Fatal("expected subscription to be terminated")
	}
	assert.True(t, sub.Dropped())
	assert.Equal(t, 0, bus.SubscriberCount("trip-1"))

	// The bus keeps sequencing for remaining (none) and future subscribers.
	assert.Equal(t, int64(51), bus.Broadcast("trip-1", Envelope{Type: EventTypeProgress}))
}

func TestUnregisterIsIdempotentAndStopsDelivery(t *testing.T) {
	bus := NewBus(BusConfig{}, nil)
	sub := bus.Register("trip-1", nil)

	bus.Unregister(sub)
	bus.Unregister(sub)

	bus.Broadcast("trip-1", Envelope{Type: EventTypeProgress})

	assert.Empty(t, drainFrames(t, sub))
	assert.False(t, sub.Dropped())
}

func TestUnregisterDiscardsBufferedFrames(t *testing.T) {
	bus := NewBus(BusConfig{}, nil)
	sub := bus.Register("trip-1", nil)

	// Leave events sitting in the send buffer, then unregister without
	// reading. Nothing buffered may surface afterwards.
	for i := 0; i < 5; i++ {
		bus.Broadcast("trip-1", Envelope{Type: EventTypeProgress})
	}
	bus.Unregister(sub)

	select {
	case <-sub.Done():
	default:
		t.Fatal("subscription not closed after Unregister")
	}
	assert.Empty(t, drainFrames(t, sub))
}

func TestConcurrentRegisterAndBroadcast(t *testing.T) {
	bus := NewBus(BusConfig{TailSize: 512, SendBuffer: 1024}, nil)
	const total = 200

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			bus.Broadcast("trip-1", Envelope{Type: EventTypeProgress})
		}
	}()

	// Register mid-stream from the current watermark; everything after the
	// snapshot must arrive exactly once in order.
	time.Sleep(time.Millisecond)
	lastSeen := bus.LastEventID("trip-1")
	sub := bus.Register("trip-1", &lastSeen)
	defer bus.Unregister(sub)
	wg.Wait()

	frames := waitFrames(t, sub, 1+int(total-lastSeen))
	assert.Equal(t, EventTypeConnected, frames[0].Type)
	next := lastSeen + 1
	for _, env := range frames[1:] {
		require.Equal(t, next, env.EventID, "stream must be gapless and duplicate-free")
		next++
	}
}

func TestScheduleReleaseDropsIdleTopic(t *testing.T) {
	bus := NewBus(BusConfig{TopicGrace: 10 * time.Millisecond}, nil)
	bus.Broadcast("trip-1", Envelope{Type: EventTypeProgress})
	require.Equal(t, int64(1), bus.LastEventID("trip-1"))

	bus.ScheduleRelease("trip-1")
	assert.Eventually(t, func() bool {
		return bus.LastEventID("trip-1") == 0
	}, time.Second, 5*time.Millisecond, "topic state should be released")
}

func TestScheduleReleaseKeepsTopicWithSubscribers(t *testing.T) {
	bus := NewBus(BusConfig{TopicGrace: 10 * time.Millisecond}, nil)
	bus.Broadcast("trip-1", Envelope{Type: EventTypeProgress})
	sub := bus.Register("trip-1", nil)
	defer bus.Unregister(sub)

	bus.ScheduleRelease("trip-1")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), bus.LastEventID("trip-1"))
}
