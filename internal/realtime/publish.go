package realtime

import (
	"context"
	"encoding/json"
	"net/http"

	"oracleflow/internal/admission"
	"oracleflow/internal/apierr"
	"oracleflow/internal/domain"
	"oracleflow/internal/logger"
	"oracleflow/internal/metrics"
)

// publishBatch is one pushed batch on the publish channel: the publisher
// name plus spot or future entries. The REST routes instead take a bare
// JSON array of entries; both surfaces feed the same admission pipeline.
type publishBatch struct {
	Publisher string              `json:"publisher_name"`
	Entries   []domain.SpotEntry  `json:"entries,omitempty"`
	Futures   []domain.FutureEntry `json:"future_entries,omitempty"`
}

type publishAck struct {
	Count   int      `json:"count"`
	PairIDs []string `json:"pair_ids"`
}

type publishReject struct {
	Code  string `json:"code"`
	Index int    `json:"index"`
}

// PublishHub serves the long-lived publisher push stream spec.md §4.5
// calls the "signed publish channel": a symmetric WS form of §4.1 where the
// client pushes batches and the server acks or rejects with the failing
// index.
type PublishHub struct {
	pipeline *admission.Pipeline
	log      *logger.Entry
}

// NewPublishHub builds a hub driving the publish channel off pipeline.
func NewPublishHub(pipeline *admission.Pipeline, log *logger.Log) *PublishHub {
	return &PublishHub{pipeline: pipeline, log: log.WithComponent("publish-channel")}
}

// ServeHTTP upgrades the connection and runs the publisher's session to
// completion.
func (h *PublishHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("upgrade failed")
		return
	}
	metrics.RealtimeConnections.WithLabelValues("publish").Inc()
	defer metrics.RealtimeConnections.WithLabelValues("publish").Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := newConn(ws, h.log)
	defer c.close()
	go c.writeLoop()

	sessionID := r.Header.Get("X-Session-Id")
	if sessionID == "" {
		sessionID = r.RemoteAddr
	}

	var publisher string
	ws.SetPongHandler(func(string) error { return nil })

	for {
		var batch publishBatch
		if err := ws.ReadJSON(&batch); err != nil {
			if publisher != "" {
				h.pipeline.CloseSession(publisher, sessionID)
			}
			return
		}

		if publisher == "" {
			publisher = batch.Publisher
			if err := h.pipeline.OpenSession(publisher, sessionID); err != nil {
				c.enqueue(Frame{Type: FrameError, Error: "superseded"})
				return
			}
		}

		h.handleBatch(ctx, c, batch)
	}
}

func (h *PublishHub) handleBatch(ctx context.Context, c *conn, batch publishBatch) {
	pairs := make(map[string]struct{})
	for _, e := range batch.Entries {
		pairs[e.PairID] = struct{}{}
	}
	for _, e := range batch.Futures {
		pairs[e.PairID] = struct{}{}
	}

	var admitErr error
	switch {
	case len(batch.Entries) > 0:
		admitErr = h.pipeline.AdmitSpot(ctx, batch.Entries)
	case len(batch.Futures) > 0:
		admitErr = h.pipeline.AdmitFuture(ctx, batch.Futures)
	}

	if admitErr != nil {
		if apiErr, ok := admitErr.(*apierr.Error); ok {
			idx := 0
			if apiErr.Index != nil {
				idx = *apiErr.Index
			}
			data, _ := json.Marshal(publishReject{Code: string(apiErr.Kind), Index: idx})
			c.enqueue(Frame{Type: FrameError, Data: data})
			return
		}
		c.enqueue(Frame{Type: FrameError, Error: admitErr.Error()})
		return
	}

	ids := make([]string, 0, len(pairs))
	for p := range pairs {
		ids = append(ids, p)
	}
	data, _ := json.Marshal(publishAck{Count: len(batch.Entries) + len(batch.Futures), PairIDs: ids})
	c.enqueue(Frame{Type: FrameAck, Data: data})
}
