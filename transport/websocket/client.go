package websocket

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrSendBufferFull = errors.New("send buffer full")
	ErrClientClosed   = errors.New("client closed")
)

// connState is the position of a connection in its lifecycle
type connState int32

const (
	stateOpen connState = iota
	stateRegistered
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateRegistered:
		return "registered"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// Client is one websocket connection held by the hub
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	id   string

	state atomic.Int32

	// send is closed exactly once, under sendMu, when the client is torn down
	send   chan []byte
	sendMu sync.Mutex
	closed bool

	cleanup sync.Once
	kick    sync.Once
}

func newClient(h *Hub, conn *websocket.Conn, id string) *Client {
	c := &Client{
		hub:  h,
		conn: conn,
		id:   id,
		send: make(chan []byte, h.sendBuffer),
	}
	c.state.Store(int32(stateOpen))
	return c
}

// ID returns the hub-assigned connection identity
func (c *Client) ID() string { return c.id }

func (c *Client) currentState() connState { return connState(c.state.Load()) }

func (c *Client) setState(s connState) { c.state.Store(int32(s)) }

// Enqueue queues a frame for the writer without blocking
func (c *Client) Enqueue(b []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return ErrClientClosed
	}

	select {
	case c.send <- b:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Kick forces the connection closed. The reader notices the dead socket and
// runs the normal cleanup path. It does not wait for the close frame, so it
// is safe to call from a broadcast.
func (c *Client) Kick(reason string) {
	c.kick.Do(func() {
		go func() {
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.hub.writeWait))
			_ = c.conn.Close()
		}()
	})
}

// closeSend stops the writer. Safe to call more than once.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump pumps frames from the connection to the hub until the connection
// fails, then runs cleanup.
func (c *Client) readPump() {
	defer c.hub.disconnect(c)

	c.conn.SetReadLimit(c.hub.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Info("ws.read_error", "conn", c.id, "err", err)
			}
			return
		}
		c.hub.handleMessage(c, data)
	}
}

// writePump pumps queued frames from the hub to the connection, one frame
// per message, and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.log.Debug("ws.write_error", "conn", c.id, "err", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
