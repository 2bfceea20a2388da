package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"oracleflow/internal/domain"
	"oracleflow/internal/logger"
	"oracleflow/internal/merkle"
	"oracleflow/internal/metrics"
)

// BlockSource resolves the latest block a network has priced options for,
// implemented by internal/store.Store.
type BlockSource interface {
	LatestBlock(ctx context.Context, network domain.Network) (int64, error)
}

type merkleUpdate struct {
	Network     domain.Network `json:"network"`
	BlockNumber int64          `json:"block_number"`
	Root        string         `json:"root"`
}

type proofRequest struct {
	Network    domain.Network `json:"network"`
	Block      int64          `json:"block"`
	Instrument string         `json:"instrument"`
}

type proofResponse struct {
	Price    string   `json:"price"`
	Root     string   `json:"root"`
	Index    int      `json:"index"`
	Siblings []string `json:"proof_path"`
}

const merkleCadence = 2 * time.Second

// MerkleHub serves the Merkle-root feed channel spec.md §4.5 describes:
// periodic (block-number, root) updates for a set of networks, plus
// on-demand per-instrument proof requests served from the Merkle cache.
type MerkleHub struct {
	cache    *merkle.Cache
	blocks   BlockSource
	networks []domain.Network
	log      *logger.Entry
}

// NewMerkleHub builds a hub streaming roots for networks off cache.
func NewMerkleHub(cache *merkle.Cache, blocks BlockSource, networks []domain.Network, log *logger.Log) *MerkleHub {
	return &MerkleHub{cache: cache, blocks: blocks, networks: networks, log: log.WithComponent("merkle-channel")}
}

// ServeHTTP upgrades the connection and runs its session to completion.
func (h *MerkleHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("upgrade failed")
		return
	}
	metrics.RealtimeConnections.WithLabelValues("merkle").Inc()
	defer metrics.RealtimeConnections.WithLabelValues("merkle").Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := newConn(ws, h.log)
	defer c.close()
	go c.writeLoop()

	readErr := make(chan struct{})
	go func() {
		defer close(readErr)
		for {
			var f Frame
			if err := ws.ReadJSON(&f); err != nil {
				return
			}
			h.handleFrame(ctx, c, f)
		}
	}()

	ticker := time.NewTicker(merkleCadence)
	defer ticker.Stop()
	heartbeat := time.NewTicker(pingInterval)
	defer heartbeat.Stop()
	missed := 0
	ws.SetPongHandler(func(string) error { missed = 0; return nil })

	for {
		select {
		case <-ctx.Done():
			return
		case <-readErr:
			return
		case <-heartbeat.C:
			missed++
			if missed > maxMissedPings {
				c.enqueue(Frame{Type: FrameError, Reason: "heartbeat-timeout"})
				return
			}
			ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		case <-ticker.C:
			h.tick(ctx, c)
		}
	}
}

func (h *MerkleHub) tick(ctx context.Context, c *conn) {
	for _, network := range h.networks {
		block, err := h.blocks.LatestBlock(ctx, network)
		if err != nil {
			continue
		}
		root, err := h.cache.Root(ctx, network, block)
		if err != nil {
			continue
		}
		data, _ := json.Marshal(merkleUpdate{Network: network, BlockNumber: block, Root: hexString(root)})
		if ok := c.trySend(Frame{Type: FrameUpdate, Data: data}); !ok {
			metrics.RealtimeDroppedFrames.WithLabelValues("merkle").Inc()
		}
	}
}

func (h *MerkleHub) handleFrame(ctx context.Context, c *conn, f Frame) {
	if f.Type != FrameSubscribe && len(f.Data) == 0 {
		c.enqueue(Frame{Type: FrameError, Error: "malformed or unknown frame type"})
		return
	}
	var req proofRequest
	if err := json.Unmarshal(f.Data, &req); err != nil {
		c.enqueue(Frame{Type: FrameError, Error: "malformed proof request"})
		return
	}
	proof, err := h.cache.GetProof(ctx, req.Network, req.Block, req.Instrument)
	if err != nil {
		c.enqueue(Frame{Type: FrameError, Error: err.Error()})
		return
	}
	siblings := make([]string, len(proof.Siblings))
	for i, s := range proof.Siblings {
		siblings[i] = hexString(s)
	}
	data, _ := json.Marshal(proofResponse{
		Price:    proof.Leaf.Price.String(),
		Root:     hexString(proof.Root),
		Index:    proof.Leaf.Index,
		Siblings: siblings,
	})
	c.enqueue(Frame{Type: FrameAck, Data: data})
}

func hexString(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hextable[v>>4]
		out[i*2+1] = hextable[v&0x0f]
	}
	return string(out)
}
