package websocket

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/wricardo/mcp-training/watchparty/watch/metrics"
	"github.com/wricardo/mcp-training/watchparty/watch/party"
)

// peer is a fan-out target. *Client is the only production implementation.
type peer interface {
	ID() string
	Enqueue(b []byte) error
	Kick(reason string)
}

// Relay fans events out to every open connection. It never touches the
// roster; callers hand it the snapshot to send.
type Relay struct {
	peers   func() []peer
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewRelay creates a relay that delivers to whatever peers returns at the
// moment of each broadcast.
func NewRelay(peers func() []peer, log *slog.Logger, m *metrics.Metrics) *Relay {
	return &Relay{peers: peers, log: log, metrics: m}
}

// BroadcastRoster sends the roster to every open connection once.
// It returns the number of connections the frame was queued for.
func (r *Relay) BroadcastRoster(roster []party.Participant) int {
	if roster == nil {
		roster = []party.Participant{}
	}
	payload, err := json.Marshal(roster)
	if err != nil {
		r.log.Error("relay.encode", "event", EventRosterUpdated, "err", err)
		return 0
	}
	return r.broadcast(EventRosterUpdated, payload)
}

// BroadcastPlayerState sends raw, unchanged, to every open connection once,
// the originating connection included.
func (r *Relay) BroadcastPlayerState(raw json.RawMessage) int {
	return r.broadcast(EventPlayerStateBroadcast, raw)
}

func (r *Relay) broadcast(event string, payload json.RawMessage) int {
	frame, err := encode(event, payload)
	if err != nil {
		r.log.Error("relay.encode", "event", event, "err", err)
		return 0
	}

	targets := r.peers()
	delivered, dropped := 0, 0
	for _, p := range targets {
		if err := p.Enqueue(frame); err != nil {
			// A failed recipient is evicted; the others still get the frame.
			dropped++
			r.log.Warn("relay.drop", "event", event, "conn", p.ID(), "err", err)
			if errors.Is(err, ErrSendBufferFull) {
				p.Kick("slow consumer")
			}
			continue
		}
		delivered++
	}

	r.metrics.Broadcast(event, delivered, dropped)
	r.log.Debug("relay.broadcast", "event", event, "recipients", len(targets), "delivered", delivered)
	return delivered
}
