// Package registry tracks live real-time connections per session and
// forwards bus events to them in order. Connections follow a
// Connecting -> Connected -> Closed state machine with heartbeat-driven
// cleanup; Closed is terminal and closing is idempotent.
package registry

import (
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-call-insight-service/internal/events"
	"ai-call-insight-service/internal/observability/logging"
	"ai-call-insight-service/internal/observability/metrics"
)

// State is the lifecycle state of a connection.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ErrClosed is returned when attaching through a shut-down registry.
var ErrClosed = errors.New("registry is closed")

// Transport is the write side of a real-time connection. The gorilla
// websocket adapter lives in the API layer; tests supply fakes.
type Transport interface {
	// WriteJSON marshals and sends one message.
	WriteJSON(v any) error
	// Ping sends a keepalive probe.
	Ping(deadline time.Time) error
	// Close tears down the underlying connection.
	Close() error
}

// Config tunes the heartbeat exchange.
type Config struct {
	HeartbeatInterval time.Duration // ping cadence
	HeartbeatTimeout  time.Duration // close after this long without life signs
}

// DefaultConfig returns the default heartbeat policy.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 25 * time.Second,
		HeartbeatTimeout:  60 * time.Second,
	}
}

const connShardCount = 16

type connShard struct {
	mu    sync.RWMutex
	conns map[string]map[string]*Connection // sessionId -> connId
}

// Registry is a sharded map of session id to live connections. Multiple
// connections may observe the same session; all receive identical streams.
type Registry struct {
	cfg    Config
	bus    *events.Bus
	shards [connShardCount]*connShard

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewRegistry creates a registry forwarding from the given bus.
func NewRegistry(cfg Config, bus *events.Bus) *Registry {
	r := &Registry{
		cfg:     cfg,
		bus:     bus,
		logger:  logging.WithComponent("connection_registry"),
		metrics: metrics.DefaultMetrics,
	}
	for i := range r.shards {
		r.shards[i] = &connShard{conns: make(map[string]map[string]*Connection)}
	}
	return r
}

func (r *Registry) shardFor(sessionId string) *connShard {
	h := fnv.New32a()
	h.Write([]byte(sessionId))
	return r.shards[h.Sum32()%connShardCount]
}

// Connection is one live observer of a session.
type Connection struct {
	ID        string
	sessionId string

	registry  *Registry
	transport Transport
	sub       *events.Subscription

	mu       sync.Mutex
	state    State
	lastSeen time.Time

	closeOnce sync.Once
	done      chan struct{}

	logger zerolog.Logger
}

// greeting is the first message written on a new connection.
type greeting struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	ClientID  string    `json:"client_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Attach registers a transport as an observer of the session, subscribes
// it to the bus, and starts forwarding. Events published before Attach are
// not replayed; reconnecting clients recover via the session read path.
func (r *Registry) Attach(sessionId string, t Transport) (*Connection, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.wg.Add(1)
	r.mu.Unlock()

	c := &Connection{
		ID:        uuid.NewString(),
		sessionId: sessionId,
		registry:  r,
		transport: t,
		state:     StateConnecting,
		lastSeen:  time.Now(),
		done:      make(chan struct{}),
	}
	c.logger = logging.WithConnection(sessionId, c.ID)

	sh := r.shardFor(sessionId)
	sh.mu.Lock()
	set, ok := sh.conns[sessionId]
	if !ok {
		set = make(map[string]*Connection)
		sh.conns[sessionId] = set
	}
	set[c.ID] = c
	sh.mu.Unlock()

	// Subscribe before greeting so no event published after the greeting
	// can be missed.
	c.sub = r.bus.Subscribe(sessionId)

	if err := t.WriteJSON(greeting{
		Type:      "connection_established",
		SessionID: sessionId,
		ClientID:  c.ID,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		c.Close()
		r.wg.Done()
		return nil, err
	}

	c.mu.Lock()
	c.state = StateConnected
	c.mu.Unlock()

	r.metrics.RecordConnectionOpened()
	c.logger.Info().Msg("Connection established")

	go func() {
		defer r.wg.Done()
		c.forward()
	}()
	return c, nil
}

// SessionID returns the session this connection observes.
func (c *Connection) SessionID() string { return c.sessionId }

// State returns the current connection state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Heartbeat records a life sign from the client (pong or ping message).
func (c *Connection) Heartbeat() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// forward serializes bus events onto the transport in the order received
// and runs the heartbeat exchange.
func (c *Connection) forward() {
	interval := c.registry.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultConfig().HeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case ev, ok := <-c.sub.C:
			if !ok {
				c.Close()
				return
			}
			if err := c.transport.WriteJSON(ev); err != nil {
				c.logger.Debug().Err(err).Msg("Write failed, closing connection")
				c.Close()
				return
			}
		case <-ticker.C:
			timeout := c.registry.cfg.HeartbeatTimeout
			c.mu.Lock()
			expired := timeout > 0 && time.Since(c.lastSeen) > timeout
			c.mu.Unlock()
			if expired {
				c.logger.Info().Msg("Heartbeat timeout, closing connection")
				c.closeInternal(true)
				return
			}
			if err := c.transport.Ping(time.Now().Add(10 * time.Second)); err != nil {
				c.logger.Debug().Err(err).Msg("Ping failed, closing connection")
				c.Close()
				return
			}
		}
	}
}

// Close transitions the connection to Closed, unsubscribes it from the
// bus, and removes it from the registry. Closing an already-closed
// connection is a no-op.
func (c *Connection) Close() {
	c.closeInternal(false)
}

func (c *Connection) closeInternal(timedOut bool) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()

		close(c.done)
		c.registry.bus.Unsubscribe(c.sub)
		c.transport.Close()

		sh := c.registry.shardFor(c.sessionId)
		sh.mu.Lock()
		if set, ok := sh.conns[c.sessionId]; ok {
			delete(set, c.ID)
			if len(set) == 0 {
				delete(sh.conns, c.sessionId)
			}
		}
		sh.mu.Unlock()

		c.registry.metrics.RecordConnectionClosed(timedOut)
		c.logger.Info().Bool("timedOut", timedOut).Msg("Connection closed")
	})
}

// Count reports live connections for a session.
func (r *Registry) Count(sessionId string) int {
	sh := r.shardFor(sessionId)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return len(sh.conns[sessionId])
}

// Shutdown closes every connection and waits for forwarders to finish.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	for _, sh := range r.shards {
		sh.mu.RLock()
		var all []*Connection
		for _, set := range sh.conns {
			for _, c := range set {
				all = append(all, c)
			}
		}
		sh.mu.RUnlock()
		for _, c := range all {
			c.Close()
		}
	}
	r.wg.Wait()
}
