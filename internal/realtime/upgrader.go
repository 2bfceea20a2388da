// Package realtime implements the three WebSocket channel families spec.md
// §4.5 describes: lightspeed aggregate subscriptions, signed publish
// streams, and Merkle-root feeds. The connection lifecycle (upgrade, read
// loop, drop-oldest-on-full send, context-cancellation teardown) is built
// on a server-side gorilla/websocket.Upgrader.
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"oracleflow/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// FrameType discriminates the JSON frames exchanged on every channel
// family, per spec.md §6.
type FrameType string

const (
	FrameSubscribe   FrameType = "subscribe"
	FrameUnsubscribe FrameType = "unsubscribe"
	FrameList        FrameType = "list"
	FrameUpdate      FrameType = "update"
	FrameAck         FrameType = "ack"
	FrameError       FrameType = "error"
	FramePing        FrameType = "ping"
	FramePong        FrameType = "pong"
)

// Frame is the discriminated envelope every channel speaks.
type Frame struct {
	Type     FrameType       `json:"type"`
	PairIDs  []string        `json:"pair_ids,omitempty"`
	Interval string          `json:"interval,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

const (
	pingInterval   = 30 * time.Second
	pongWait       = 65 * time.Second
	maxMissedPings = 2
	sendWindow     = 16
)

// conn wraps a gorilla/websocket connection with a bounded outbound queue
// so one slow client never blocks the tick loop, per spec.md §4.5's
// drop-oldest-on-full rule.
type conn struct {
	ws   *websocket.Conn
	send chan Frame
	log  *logger.Entry

	mu     sync.Mutex
	closed bool
}

func newConn(ws *websocket.Conn, log *logger.Entry) *conn {
	return &conn{ws: ws, send: make(chan Frame, sendWindow), log: log}
}

// enqueue drops the oldest queued frame rather than blocking when the send
// window is full. It reports whether the frame was accepted without
// dropping anything.
func (c *conn) enqueue(f Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- f:
		return true
	default:
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- f:
		default:
		}
		return false
	}
}

// trySend is an alias for enqueue used where the caller tracks drops.
func (c *conn) trySend(f Frame) bool { return c.enqueue(f) }

func (c *conn) writeLoop() {
	for f := range c.send {
		if err := c.ws.WriteJSON(f); err != nil {
			return
		}
	}
}

func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	c.ws.Close()
}
