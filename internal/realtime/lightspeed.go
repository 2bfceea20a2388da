package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"oracleflow/internal/aggregate"
	"oracleflow/internal/logger"
	"oracleflow/internal/metrics"
)

const defaultCadence = 500 * time.Millisecond

// LightspeedHub upgrades and serves the generic aggregate subscription
// channel, per spec.md §4.5.
type LightspeedHub struct {
	engine  *aggregate.Engine
	cadence time.Duration
	log     *logger.Entry
}

// NewLightspeedHub builds a hub driving the lightspeed channel off engine.
func NewLightspeedHub(engine *aggregate.Engine, log *logger.Log) *LightspeedHub {
	return &LightspeedHub{engine: engine, cadence: defaultCadence, log: log.WithComponent("lightspeed")}
}

// ServeHTTP upgrades the connection and runs its session to completion.
func (h *LightspeedHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("upgrade failed")
		return
	}
	metrics.RealtimeConnections.WithLabelValues("lightspeed").Inc()
	defer metrics.RealtimeConnections.WithLabelValues("lightspeed").Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s := &lightspeedSession{
		hub:  h,
		conn: newConn(ws, h.log),
		subs: make(map[string]string),
	}
	s.run(ctx)
}

// lightspeedSession tracks one connection's state machine: Open ->
// Streaming(subs) -> Closed, per spec.md §4.5.
type lightspeedSession struct {
	hub  *LightspeedHub
	conn *conn

	mu   sync.Mutex
	subs map[string]string // pair-id -> interval
}

func (s *lightspeedSession) run(ctx context.Context) {
	defer s.conn.close()

	go s.conn.writeLoop()

	readErr := make(chan struct{})
	go s.readLoop(readErr)

	ticker := time.NewTicker(s.hub.cadence)
	defer ticker.Stop()
	heartbeat := time.NewTicker(pingInterval)
	defer heartbeat.Stop()
	missed := 0

	s.conn.ws.SetPongHandler(func(string) error {
		missed = 0
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-readErr:
			return
		case <-heartbeat.C:
			missed++
			if missed > maxMissedPings {
				s.conn.enqueue(Frame{Type: FrameError, Reason: "heartbeat-timeout"})
				return
			}
			s.conn.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *lightspeedSession) readLoop(done chan<- struct{}) {
	defer close(done)
	for {
		var f Frame
		if err := s.conn.ws.ReadJSON(&f); err != nil {
			return
		}
		s.handleFrame(f)
	}
}

func (s *lightspeedSession) handleFrame(f Frame) {
	switch f.Type {
	case FrameSubscribe:
		s.mu.Lock()
		for _, p := range f.PairIDs {
			s.subs[p] = f.Interval
		}
		s.mu.Unlock()
		s.conn.enqueue(Frame{Type: FrameAck, PairIDs: f.PairIDs})
	case FrameUnsubscribe:
		s.mu.Lock()
		for _, p := range f.PairIDs {
			delete(s.subs, p)
		}
		s.mu.Unlock()
		s.conn.enqueue(Frame{Type: FrameAck, PairIDs: f.PairIDs})
	case FrameList:
		s.mu.Lock()
		pairs := make([]string, 0, len(s.subs))
		for p := range s.subs {
			pairs = append(pairs, p)
		}
		s.mu.Unlock()
		s.conn.enqueue(Frame{Type: FrameAck, PairIDs: pairs})
	default:
		s.conn.enqueue(Frame{Type: FrameError, Error: "malformed or unknown frame type"})
	}
}

func (s *lightspeedSession) tick(ctx context.Context) {
	s.mu.Lock()
	pairs := make([]string, 0, len(s.subs))
	for p := range s.subs {
		pairs = append(pairs, p)
	}
	s.mu.Unlock()

	boundary := time.Now().Truncate(s.hub.cadence)
	for _, pair := range pairs {
		bucket, err := s.hub.engine.PointMedian(ctx, pair, boundary)
		if err != nil {
			continue
		}
		data, err := json.Marshal(bucket)
		if err != nil {
			continue
		}
		if ok := s.conn.trySend(Frame{Type: FrameUpdate, PairIDs: []string{pair}, Data: data}); !ok {
			metrics.RealtimeDroppedFrames.WithLabelValues("lightspeed").Inc()
		}
	}
}
