package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Default bus sizing. The tail must hold at least enough events for a quick
// reconnect; the send buffer must absorb a full tail replay plus handshakes
// without dropping a fresh subscriber.
const (
	DefaultTailSize   = 64
	DefaultSendBuffer = 32
	MinTailSize       = 10

	// DefaultTopicGrace is how long an itinerary's history survives after
	// its generation ends with no subscribers left.
	DefaultTopicGrace = 60 * time.Second
)

// BusConfig sizes the per-itinerary history tail and per-subscriber buffers.
type BusConfig struct {
	TailSize   int           `yaml:"tail_size"`
	SendBuffer int           `yaml:"send_buffer"`
	TopicGrace time.Duration `yaml:"topic_grace"`
}

// BusMetrics receives bus instrumentation callbacks. Implemented by
// metrics.BusCollector; nil disables instrumentation.
type BusMetrics interface {
	EventBroadcast(eventType string)
	SubscriberRegistered()
	SubscriberClosed(dropped bool)
}

// Subscription is one live consumer of an itinerary's event stream. Frames
// are pre-marshaled JSON envelopes delivered in event_id order. The bus
// closes Done when the subscription ends, either by Unregister or because
// the consumer fell too far behind (Dropped reports which).
type Subscription struct {
	ID          string
	ItineraryID string
	CreatedAt   time.Time

	frames  chan []byte
	done    chan struct{}
	once    sync.Once
	dropped atomic.Bool
}

// Frames returns the ordered stream of marshaled envelopes.
func (s *Subscription) Frames() <-chan []byte { return s.frames }

// Done is closed when the subscription is terminated.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Dropped reports whether the bus terminated this subscription for falling
// behind (send buffer full).
func (s *Subscription) Dropped() bool { return s.dropped.Load() }

func (s *Subscription) close(dropped bool) {
	s.once.Do(func() {
		if dropped {
			s.dropped.Store(true)
		}
		close(s.done)
	})
}

// tailEntry pairs a sequenced event id with its marshaled frame.
type tailEntry struct {
	id    int64
	frame []byte
}

// topic holds all per-itinerary bus state. Every mutation happens under
// topic.mu; this is the itinerary's serialization point: event id
// assignment, tail append, subscriber-set changes, and registration replay
// are all atomic with respect to each other, so a subscriber registering
// concurrently with a broadcast sees each event exactly once (via replay or
// live, never neither and never both).
type topic struct {
	mu          sync.Mutex
	lastEventID int64
	tail        []tailEntry
	subs        map[string]*Subscription
}

func (t *topic) oldestRetained() int64 {
	if len(t.tail) == 0 {
		return 0
	}
	return t.tail[0].id
}

// Bus is the in-memory event bus: the authoritative index from itinerary id
// to live subscriptions, the per-itinerary bounded history tail, and the
// per-itinerary monotonic sequence counter. One process owns the live
// subscribers for an itinerary for its lifetime.
type Bus struct {
	cfg     BusConfig
	metrics BusMetrics

	mu     sync.RWMutex
	topics map[string]*topic
}

// NewBus creates a bus with the given sizing. Zero values fall back to
// defaults; the send buffer is raised to cover a full tail replay.
func NewBus(cfg BusConfig, m BusMetrics) *Bus {
	if cfg.TailSize < MinTailSize {
		cfg.TailSize = DefaultTailSize
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultSendBuffer
	}
	if cfg.SendBuffer < cfg.TailSize+4 {
		cfg.SendBuffer = cfg.TailSize + 4
	}
	if cfg.TopicGrace <= 0 {
		cfg.TopicGrace = DefaultTopicGrace
	}
	return &Bus{
		cfg:     cfg,
		metrics: m,
		topics:  make(map[string]*topic),
	}
}

func (b *Bus) getTopic(itineraryID string) *topic {
	b.mu.RLock()
	t, ok := b.topics[itineraryID]
	b.mu.RUnlock()
	if ok {
		return t
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok = b.topics[itineraryID]; ok {
		return t
	}
	t = &topic{subs: make(map[string]*Subscription)}
	b.topics[itineraryID] = t
	return t
}

// Register creates a subscription for an itinerary. The connected handshake,
// any reconnect recovery, and eligibility for live events are established
// atomically under the itinerary's serialization point:
//
//   - A connected handshake (carrying the current last event id) is enqueued
//     first.
//   - With lastSeen set, every retained event with id > *lastSeen is
//     replayed in ascending order. If *lastSeen predates the tail, a single
//     recovery_incomplete handshake is enqueued instead.
//   - Live delivery starts strictly after the snapshot point, so the stream
//     has no gaps and no duplicates.
func (b *Bus) Register(itineraryID string, lastSeen *int64) *Subscription {
	t := b.getTopic(itineraryID)
	sub := &Subscription{
		ID:          uuid.New().String(),
		ItineraryID: itineraryID,
		CreatedAt:   time.Now(),
		frames:      make(chan []byte, b.cfg.SendBuffer),
		done:        make(chan struct{}),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	b.enqueueLocked(t, sub, b.handshakeFrame(itineraryID, EventTypeConnected, ConnectedPayload{
		SubscriptionID: sub.ID,
		LastEventID:    t.lastEventID,
	}))

	if lastSeen != nil {
		oldest := t.oldestRetained()
		// A client that last saw oldest-1 can resume seamlessly; anything
		// older has been evicted and requires a full resync.
		if oldest > 0 && *lastSeen < oldest-1 {
			b.enqueueLocked(t, sub, b.handshakeFrame(itineraryID, EventTypeRecoveryIncomplete, RecoveryIncompletePayload{
				RequestedAfter: *lastSeen,
				OldestRetained: oldest,
			}))
		} else {
			for _, e := range t.tail {
				if e.id > *lastSeen {
					b.enqueueLocked(t, sub, e.frame)
				}
			}
		}
	}

	t.subs[sub.ID] = sub
	if b.metrics != nil {
		b.metrics.SubscriberRegistered()
	}
	return sub
}

// Unregister removes a subscription and closes it. Idempotent. After
// Unregister returns, no further frame is delivered to the subscription:
// removal from the subscriber set stops new sends, and any frames still
// buffered are discarded before returning.
func (b *Bus) Unregister(sub *Subscription) {
	if sub == nil {
		return
	}
	t := b.getTopic(sub.ItineraryID)
	t.mu.Lock()
	_, present := t.subs[sub.ID]
	delete(t.subs, sub.ID)
	t.mu.Unlock()
	sub.close(false)

	// No sender remains once the subscription left the set, so this drain
	// empties the buffer for good.
	for {
		select {
		case <-sub.frames:
		default:
			if present && b.metrics != nil {
				b.metrics.SubscriberClosed(false)
			}
			return
		}
	}
}

// Broadcast assigns the next event id for the itinerary, appends the event
// to the history tail (evicting the oldest entry when full), and delivers it
// to every current subscriber. Delivery is best-effort per subscriber: a
// full send buffer disconnects that subscriber without blocking the bus.
// Returns the assigned event id.
func (b *Bus) Broadcast(itineraryID string, env Envelope) int64 {
	t := b.getTopic(itineraryID)

	t.mu.Lock()
	t.lastEventID++
	env.EventID = t.lastEventID
	env.ItineraryID = itineraryID
	if env.Timestamp == "" {
		env.Timestamp = time.Now().Format(time.RFC3339Nano)
	}

	frame, err := json.Marshal(env)
	if err != nil {
		// Payloads are service-owned types; a marshal failure is a bug.
		t.mu.Unlock()
		slog.Error("Failed to marshal event envelope",
			"itinerary_id", itineraryID, "type", env.Type, "error", err)
		return env.EventID
	}

	t.tail = append(t.tail, tailEntry{id: env.EventID, frame: frame})
	if len(t.tail) > b.cfg.TailSize {
		t.tail = t.tail[1:]
	}

	for id, sub := range t.subs {
		select {
		case sub.frames <- frame:
		default:
			// Slow consumer: disconnect it rather than stall the bus.
			delete(t.subs, id)
			sub.close(true)
			if b.metrics != nil {
				b.metrics.SubscriberClosed(true)
			}
			slog.Warn("Dropping slow subscriber",
				"itinerary_id", itineraryID, "subscription_id", id)
		}
	}
	t.mu.Unlock()

	if b.metrics != nil {
		b.metrics.EventBroadcast(env.Type)
	}
	return env.EventID
}

// LastEventID returns the current sequence watermark for an itinerary.
func (b *Bus) LastEventID(itineraryID string) int64 {
	t := b.getTopic(itineraryID)
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastEventID
}

// SubscriberCount returns the number of live subscriptions for an itinerary.
func (b *Bus) SubscriberCount(itineraryID string) int {
	b.mu.RLock()
	t, ok := b.topics[itineraryID]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// ActiveSubscribers returns the total subscription count across itineraries.
func (b *Bus) ActiveSubscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := 0
	for _, t := range b.topics {
		t.mu.Lock()
		total += len(t.subs)
		t.mu.Unlock()
	}
	return total
}

// ScheduleRelease drops an itinerary's bus state (sequence counter and tail)
// after the configured grace period, provided no subscribers remain. Called
// after a generation reaches a terminal state; the grace period lets clients
// receive the final events and reconnect once more before history disappears.
func (b *Bus) ScheduleRelease(itineraryID string) {
	time.AfterFunc(b.cfg.TopicGrace, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		t, ok := b.topics[itineraryID]
		if !ok {
			return
		}
		t.mu.Lock()
		empty := len(t.subs) == 0
		t.mu.Unlock()
		if empty {
			delete(b.topics, itineraryID)
		}
	})
}

// enqueueLocked delivers a frame to a single subscriber with the same
// drop-on-full policy as live broadcast. Caller holds topic.mu.
func (b *Bus) enqueueLocked(t *topic, sub *Subscription, frame []byte) {
	select {
	case sub.frames <- frame:
	default:
		delete(t.subs, sub.ID)
		sub.close(true)
		if b.metrics != nil {
			b.metrics.SubscriberClosed(true)
		}
	}
}

// handshakeFrame builds a marshaled non-sequenced message (no event_id).
func (b *Bus) handshakeFrame(itineraryID, msgType string, payload any) []byte {
	frame, err := json.Marshal(Envelope{
		ItineraryID: itineraryID,
		Type:        msgType,
		Timestamp:   time.Now().Format(time.RFC3339Nano),
		Payload:     payload,
	})
	if err != nil {
		slog.Error("Failed to marshal handshake message",
			"itinerary_id", itineraryID, "type", msgType, "error", err)
		return []byte(`{}`)
	}
	return frame
}
