package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wricardo/mcp-training/watchparty/watch/config"
	"github.com/wricardo/mcp-training/watchparty/watch/metrics"
	"github.com/wricardo/mcp-training/watchparty/watch/party"
	"github.com/wricardo/mcp-training/watchparty/watch/roster"
)

const (
	// Time allowed to write a message to the peer.
	defaultWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	defaultPongWait = 60 * time.Second

	// Maximum message size allowed from peer.
	defaultMaxMessageSize = 64 * 1024

	// Frames buffered per connection before it counts as a slow consumer.
	defaultSendBuffer = 256
)

var ErrHubClosed = errors.New("hub is shutting down")

// Bus carries locally accepted player states to other hub instances and
// delivers theirs back.
type Bus interface {
	Publish(ctx context.Context, payload json.RawMessage) error
	Subscribe(ctx context.Context, fn func(json.RawMessage))
}

// Stats is a point-in-time view of the hub
type Stats struct {
	InstanceID      string    `json:"instance_id"`
	OpenConnections int       `json:"open_connections"`
	Registered      int       `json:"registered"`
	StartedAt       time.Time `json:"started_at"`
	UptimeSeconds   int64     `json:"uptime_seconds"`
	ReplayLastState bool      `json:"replay_last_state"`
	CrossInstance   bool      `json:"cross_instance"`
}

// Hub admits connections, keeps the roster, and relays events between them
type Hub struct {
	id       string
	started  time.Time
	log      *slog.Logger
	metrics  *metrics.Metrics
	bus      Bus
	upgrader websocket.Upgrader

	registry *roster.Registry
	relay    *Relay

	// Open connections, registered or not
	mu      sync.RWMutex
	clients map[*Client]struct{}
	closing bool
	wg      sync.WaitGroup

	// Serializes roster mutation with the roster fan-out that follows it
	rosterMu sync.Mutex

	replay bool
	// Orders replay against live broadcasts so a late joiner never ends on a
	// stale state
	stateMu   sync.Mutex
	lastState json.RawMessage

	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	maxMessageSize int64
	sendBuffer     int
}

// Option configures a Hub
type Option func(*Hub)

func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithBus enables cross-instance fan-out of player states
func WithBus(b Bus) Option {
	return func(h *Hub) { h.bus = b }
}

// WithInstanceID sets the identity stamped on bus messages. Instances sharing
// a bus must use distinct ids.
func WithInstanceID(id string) Option {
	return func(h *Hub) {
		if id != "" {
			h.id = id
		}
	}
}

// WithReplayLastState makes the hub remember the last relayed player state
// and send it to each connection right after it registers.
func WithReplayLastState(enabled bool) Option {
	return func(h *Hub) { h.replay = enabled }
}

// WithTimeouts overrides the heartbeat timings. Pings go out at 9/10 of pongWait.
func WithTimeouts(writeWait, pongWait time.Duration) Option {
	return func(h *Hub) {
		if writeWait > 0 {
			h.writeWait = writeWait
		}
		if pongWait > 0 {
			h.pongWait = pongWait
		}
	}
}

func WithMaxMessageSize(n int64) Option {
	return func(h *Hub) {
		if n > 0 {
			h.maxMessageSize = n
		}
	}
}

func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithAllowedOrigins restricts browser origins allowed to upgrade. An empty
// list or "*" allows every origin. Requests without an Origin header (non
// browser clients) are always allowed.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Hub) {
		allowed := make(map[string]bool, len(origins))
		for _, o := range origins {
			if o == "*" {
				h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
				return
			}
			allowed[o] = true
		}
		if len(allowed) == 0 {
			return
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		}
	}
}

// NewHub creates a new WebSocket hub
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		id:       uuid.NewString(),
		started:  time.Now(),
		log:      config.Discard(),
		registry: roster.NewRegistry(),
		clients:  make(map[*Client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		writeWait:      defaultWriteWait,
		pongWait:       defaultPongWait,
		maxMessageSize: defaultMaxMessageSize,
		sendBuffer:     defaultSendBuffer,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.pingPeriod = (h.pongWait * 9) / 10
	h.relay = NewRelay(h.peers, h.log, h.metrics)
	return h
}

// ID returns the hub instance identity used on the cross-instance bus
func (h *Hub) ID() string { return h.id }

// Run relays player states arriving from other instances until ctx is done.
// Without a bus it just waits.
func (h *Hub) Run(ctx context.Context) {
	if h.bus == nil {
		<-ctx.Done()
		return
	}

	h.bus.Subscribe(ctx, func(payload json.RawMessage) {
		_, raw, err := party.ParsePlayerState(payload)
		if err != nil {
			h.log.Warn("bus.malformed", "err", err)
			return
		}
		h.metrics.BusApplied()
		h.relayPlayerState(ctx, raw, false)
	})
}

// ServeWS upgrades the request and admits the connection
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closing := h.closing
	h.mu.RUnlock()
	if closing {
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws.upgrade", "err", err)
		return
	}

	client := newClient(h, conn, uuid.NewString())
	if !h.addClient(client) {
		client.Kick(ErrHubClosed.Error())
		return
	}

	h.metrics.ConnectionOpened()
	h.log.Info("ws.connect", "conn", client.id, "remote", r.RemoteAddr)

	// Start client goroutines
	go client.writePump()
	go client.readPump()
}

// Participants returns the current roster
func (h *Hub) Participants() []party.Participant {
	return h.registry.Snapshot()
}

// Stats reports connection counts and settings
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	open := len(h.clients)
	h.mu.RUnlock()

	return Stats{
		InstanceID:      h.id,
		OpenConnections: open,
		Registered:      h.registry.Len(),
		StartedAt:       h.started,
		UptimeSeconds:   int64(time.Since(h.started).Seconds()),
		ReplayLastState: h.replay,
		CrossInstance:   h.bus != nil,
	}
}

// PublishPlayerState validates payload and relays it to every connection as
// if a participant had sent it. It returns the decoded state and how many
// connections it was queued for.
func (h *Hub) PublishPlayerState(ctx context.Context, payload []byte) (party.PlayerState, int, error) {
	state, raw, err := party.ParsePlayerState(payload)
	if err != nil {
		return party.PlayerState{}, 0, err
	}
	n := h.relayPlayerState(ctx, raw, true)
	return state, n, nil
}

// Shutdown closes every connection and waits for their cleanup to finish
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.Kick("server shutdown")
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("ws.shutdown", "closed", len(clients))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// addClient adds c to the open set unless the hub is shutting down
func (h *Hub) addClient(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// peers snapshots the open connections for the relay
func (h *Hub) peers() []peer {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]peer, 0, len(h.clients))
	for c := range h.clients {
		result = append(result, c)
	}
	return result
}

// handleMessage acts on one inbound frame
func (h *Hub) handleMessage(c *Client, data []byte) {
	if c.currentState() == stateClosed {
		return
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		h.metrics.Malformed("envelope")
		h.log.Warn("ws.malformed", "conn", c.id, "event", "", "err", err)
		return
	}

	switch msg.Event {
	case EventRegisterParticipant:
		h.metrics.Inbound(msg.Event)
		p, err := party.ParseParticipant(msg.Payload)
		if err != nil {
			h.metrics.Malformed(msg.Event)
			h.log.Warn("ws.malformed", "conn", c.id, "event", msg.Event, "err", err)
			return
		}
		h.register(c, p)

	case EventPlayerStateChanged:
		h.metrics.Inbound(msg.Event)
		if c.currentState() != stateRegistered {
			h.log.Info("ws.unregistered_sender", "conn", c.id, "event", msg.Event)
			return
		}
		_, raw, err := party.ParsePlayerState(msg.Payload)
		if err != nil {
			h.metrics.Malformed(msg.Event)
			h.log.Warn("ws.malformed", "conn", c.id, "event", msg.Event, "err", err)
			return
		}
		h.relayPlayerState(context.Background(), raw, true)

	default:
		h.metrics.Malformed("unknown")
		h.log.Warn("ws.unknown_event", "conn", c.id, "event", msg.Event)
	}
}

// register binds p to c and sends the new roster to everyone
func (h *Hub) register(c *Client, p party.Participant) {
	h.rosterMu.Lock()
	if c.currentState() == stateClosed {
		h.rosterMu.Unlock()
		return
	}
	h.registry.Register(c.id, p)
	c.setState(stateRegistered)
	snapshot := h.registry.Snapshot()
	h.relay.BroadcastRoster(snapshot)
	h.rosterMu.Unlock()

	h.metrics.SetRosterSize(len(snapshot))
	h.log.Info("ws.register", "conn", c.id, "participant", p.ID, "role", p.Role, "roster", len(snapshot))

	if !h.replay {
		return
	}
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	if h.lastState == nil {
		return
	}
	frame, err := encode(EventPlayerStateBroadcast, h.lastState)
	if err != nil {
		return
	}
	if err := c.Enqueue(frame); err != nil {
		h.log.Warn("ws.replay", "conn", c.id, "err", err)
	}
}

// relayPlayerState fans raw out locally and, for local origins, to the bus
func (h *Hub) relayPlayerState(ctx context.Context, raw json.RawMessage, local bool) int {
	var n int
	if h.replay {
		h.stateMu.Lock()
		h.lastState = raw
		n = h.relay.BroadcastPlayerState(raw)
		h.stateMu.Unlock()
	} else {
		n = h.relay.BroadcastPlayerState(raw)
	}

	if local && h.bus != nil {
		pubCtx, cancel := context.WithTimeout(ctx, h.writeWait)
		defer cancel()
		if err := h.bus.Publish(pubCtx, raw); err != nil {
			h.log.Warn("bus.publish", "err", err)
		}
	}
	return n
}

// disconnect is the single exit path of a connection. It runs once no matter
// how the connection ended.
func (h *Hub) disconnect(c *Client) {
	c.cleanup.Do(func() {
		defer h.wg.Done()

		prev := connState(c.state.Swap(int32(stateClosed)))
		h.removeClient(c)

		if prev == stateRegistered {
			h.rosterMu.Lock()
			h.registry.Unregister(c.id)
			snapshot := h.registry.Snapshot()
			h.relay.BroadcastRoster(snapshot)
			h.rosterMu.Unlock()
			h.metrics.SetRosterSize(len(snapshot))
		}

		c.closeSend()
		_ = c.conn.Close()
		h.metrics.ConnectionClosed()
		h.log.Info("ws.disconnect", "conn", c.id, "state", prev)
	})
}
