package events

import (
	"sync"

	"github.com/rs/zerolog"

	"ai-call-insight-service/internal/observability/logging"
	"ai-call-insight-service/internal/observability/metrics"
)

// DefaultSubscriberBuffer is the per-subscription event buffer size. When a
// subscriber stalls and its buffer fills, the oldest buffered event is
// dropped so publishers never block.
const DefaultSubscriberBuffer = 64

// Subscription is a live feed of events for one session. Events arrive on C
// in publish order. The feed carries no backlog: events published before
// Subscribe are never delivered.
type Subscription struct {
	C chan Event

	sessionId string
	id        uint64
}

// SessionID returns the session this subscription is attached to.
func (s *Subscription) SessionID() string { return s.sessionId }

// Bus is an in-process pub/sub fabric keyed by session id. Publishing is
// fire-and-forget; delivery is best-effort, at-most-once per live
// subscription. The durable record lives in the transcript assembler, not
// here.
type Bus struct {
	mu      sync.RWMutex
	topics  map[string]map[uint64]*Subscription
	nextID  uint64
	bufSize int
	mirror  *Publisher
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewBus creates a bus with the default subscriber buffer size. mirror may
// be nil; when set, every published event is also written to Kafka so peer
// instances observe the same per-session stream.
func NewBus(mirror *Publisher) *Bus {
	return NewBusWithBuffer(mirror, DefaultSubscriberBuffer)
}

// NewBusWithBuffer creates a bus with a custom subscriber buffer size.
func NewBusWithBuffer(mirror *Publisher, bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = DefaultSubscriberBuffer
	}
	return &Bus{
		topics:  make(map[string]map[uint64]*Subscription),
		bufSize: bufSize,
		mirror:  mirror,
		logger:  logging.WithComponent("event_bus"),
		metrics: metrics.DefaultMetrics,
	}
}

// Subscribe opens a live feed for the given session.
func (b *Bus) Subscribe(sessionId string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		C:         make(chan Event, b.bufSize),
		sessionId: sessionId,
		id:        b.nextID,
	}
	subs, ok := b.topics[sessionId]
	if !ok {
		subs = make(map[uint64]*Subscription)
		b.topics[sessionId] = subs
	}
	subs[sub.id] = sub

	b.logger.Debug().
		Str("sessionId", sessionId).
		Int("subscribers", len(subs)).
		Msg("Subscriber attached")
	return sub
}

// Unsubscribe detaches the feed and closes its channel. Safe to call more
// than once.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.topics[sub.sessionId]
	if !ok {
		return
	}
	if _, live := subs[sub.id]; !live {
		return
	}
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(b.topics, sub.sessionId)
	}
	close(sub.C)
}

// Publish delivers the event to every live subscriber of its session, in
// publish order. A subscriber whose buffer is full loses its oldest
// buffered event rather than stalling the publisher.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := b.topics[ev.SessionID]
	delivered := 0
	for _, sub := range subs {
		for {
			select {
			case sub.C <- ev:
				delivered++
			default:
				// Buffer full: drop the oldest event to make room.
				select {
				case <-sub.C:
					b.metrics.RecordBusDrop(ev.SessionID)
				default:
				}
				continue
			}
			break
		}
	}
	b.mu.RUnlock()

	b.metrics.RecordBusPublish(string(ev.Kind))
	b.logger.Debug().
		Str("sessionId", ev.SessionID).
		Str("type", string(ev.Kind)).
		Int("delivered", delivered).
		Msg("Event published")

	if b.mirror != nil {
		b.mirror.Publish(ev)
	}
}

// SubscriberCount reports live subscriptions for a session.
func (b *Bus) SubscriberCount(sessionId string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[sessionId])
}
