package httpapi

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"oracleflow/internal/apierr"
	"oracleflow/internal/domain"
)

// handleHealth reports per-dependency readiness alongside the overall
// status, per spec.md §6's health-check contract.
func (s *Server) handleHealth(c *gin.Context) {
	storeStatus := "ok"
	if err := s.store.Ping(c.Request.Context()); err != nil {
		storeStatus = "down"
	}
	busStatus := "ok"
	if err := s.bus.Ping(c.Request.Context()); err != nil {
		busStatus = "down"
	}

	status := "ok"
	if storeStatus != "ok" || busStatus != "ok" {
		status = "degraded"
	}
	statusOK(c, gin.H{"status": status, "mode": s.cfg.Mode, "store": storeStatus, "bus": busStatus})
}

func (s *Server) handlePublishEntry(c *gin.Context) {
	var entries []domain.SpotEntry
	if err := c.ShouldBindJSON(&entries); err != nil {
		writeError(c, apierr.InvalidInput(err.Error()))
		return
	}
	if err := s.admission.AdmitSpot(c.Request.Context(), entries); err != nil {
		writeError(c, err)
		return
	}
	statusOK(c, gin.H{"accepted": len(entries)})
}

func (s *Server) handlePublishFutureEntry(c *gin.Context) {
	var entries []domain.FutureEntry
	if err := c.ShouldBindJSON(&entries); err != nil {
		writeError(c, apierr.InvalidInput(err.Error()))
		return
	}
	if err := s.admission.AdmitFuture(c.Request.Context(), entries); err != nil {
		writeError(c, err)
		return
	}
	statusOK(c, gin.H{"accepted": len(entries)})
}

func pairID(c *gin.Context) string {
	return fmt.Sprintf("%s/%s", strings.ToUpper(c.Param("base")), strings.ToUpper(c.Param("quote")))
}

// parseInterval maps spec.md §6's human intervals ("1min", "5min", "1h",
// "10s", "100ms", "1day", "1week") onto domain.BucketWidth.
func parseInterval(s string) (domain.BucketWidth, error) {
	switch s {
	case "", "1min":
		return domain.Width1m, nil
	case "100ms":
		return domain.Width100ms, nil
	case "1s":
		return domain.Width1s, nil
	case "5s":
		return domain.Width5s, nil
	case "10s":
		return domain.Width10s, nil
	case "5min":
		return domain.Width5m, nil
	case "15min":
		return domain.Width15m, nil
	case "1h":
		return domain.Width1h, nil
	case "2h":
		return domain.Width2h, nil
	case "1day":
		return domain.Width1d, nil
	case "1week":
		return domain.Width1w, nil
	default:
		return 0, fmt.Errorf("unsupported interval %q", s)
	}
}

func (s *Server) handleAggregate(c *gin.Context) {
	pair := pairID(c)

	at := time.Now()
	if ts := c.Query("timestamp"); ts != "" {
		ms, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			writeError(c, apierr.InvalidInput("invalid timestamp"))
			return
		}
		at = time.UnixMilli(ms)
	}

	entryType := c.DefaultQuery("entry_type", "spot")
	if entryType != "spot" {
		writeError(c, apierr.InvalidInput(fmt.Sprintf("entry_type %q is not yet readable through this route", entryType)))
		return
	}

	aggregation := c.DefaultQuery("aggregation", "median")
	var (
		bucket domain.AggregatedBucket
		err    error
	)
	switch aggregation {
	case "median":
		bucket, err = s.engine.PointMedian(c.Request.Context(), pair, at)
	case "twap":
		bucket, err = s.engine.PointTWAP(c.Request.Context(), pair, at)
	default:
		writeError(c, apierr.InvalidInput(fmt.Sprintf("unsupported aggregation %q", aggregation)))
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	statusOK(c, bucket)
}

func (s *Server) handleHistory(c *gin.Context) {
	pair := pairID(c)

	from, to, err := parseTimestampRange(c.Query("timestamp"))
	if err != nil {
		writeError(c, apierr.InvalidInput(err.Error()))
		return
	}
	width, err := parseInterval(c.Query("interval"))
	if err != nil {
		writeError(c, apierr.InvalidInput(err.Error()))
		return
	}

	aggregation := c.DefaultQuery("aggregation", "median")
	var buckets interface{}
	switch aggregation {
	case "twap":
		buckets, err = s.engine.RangeTWAP(c.Request.Context(), pair, width, from, to)
	default:
		buckets, err = s.engine.RangeMedian(c.Request.Context(), pair, width, from, to)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	statusOK(c, gin.H{"pair_id": pair, "interval": c.Query("interval"), "buckets": buckets})
}

func (s *Server) handleOHLC(c *gin.Context) {
	pair := pairID(c)

	from, to, err := parseTimestampRange(c.Query("timestamp"))
	if err != nil {
		writeError(c, apierr.InvalidInput(err.Error()))
		return
	}
	width, err := parseInterval(c.Query("interval"))
	if err != nil {
		writeError(c, apierr.InvalidInput(err.Error()))
		return
	}

	buckets, err := s.engine.RangeOHLC(c.Request.Context(), pair, width, from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	statusOK(c, gin.H{"pair_id": pair, "interval": c.Query("interval"), "candles": buckets})
}

func parseTimestampRange(raw string) (from, to time.Time, err error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("timestamp must be \"<from>,<to>\" in epoch milliseconds")
	}
	f, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from timestamp")
	}
	t, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid to timestamp")
	}
	return time.UnixMilli(f), time.UnixMilli(t), nil
}

func (s *Server) handlePublishers(c *gin.Context) {
	pubs, err := s.store.ListPublishers(c.Request.Context())
	if err != nil {
		writeError(c, apierr.Transient(err))
		return
	}
	statusOK(c, gin.H{"publishers": pubs})
}

// handleMerkleOptionPrice serves a bare option price without a Merkle
// proof, fronted by the Redis option-price cache instead of a tree build,
// for callers that only need the price and not inclusion verification.
func (s *Server) handleMerkleOptionPrice(c *gin.Context) {
	instrument := c.Param("instrument")
	network := domain.Network(c.DefaultQuery("network", string(domain.NetworkMainnet)))

	block := int64(domain.PendingBlock)
	if raw := c.Query("block"); raw != "" {
		b, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(c, apierr.InvalidInput("invalid block"))
			return
		}
		block = b
	}

	price, err := s.optionCache.GetOptionPriceAtBlock(c.Request.Context(), network, block, instrument)
	if err != nil {
		writeError(c, apierr.Transient(err))
		return
	}
	if price == nil {
		writeError(c, apierr.NotFound("no price for that instrument at this block"))
		return
	}
	statusOK(c, gin.H{
		"network":      price.Network,
		"block_number": price.BlockNumber,
		"instrument":   price.Instrument(),
		"price":        price.Price,
	})
}

func (s *Server) handleMerkleOption(c *gin.Context) {
	instrument := c.Param("instrument")
	network := domain.Network(c.DefaultQuery("network", string(domain.NetworkMainnet)))

	block := int64(domain.PendingBlock)
	if raw := c.Query("block"); raw != "" {
		b, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(c, apierr.InvalidInput("invalid block"))
			return
		}
		block = b
	}

	proof, err := s.merkleCache.GetProof(c.Request.Context(), network, block, instrument)
	if err != nil {
		writeError(c, err)
		return
	}
	statusOK(c, gin.H{
		"price":     proof.Leaf.Price,
		"root":      fmt.Sprintf("%x", proof.Root),
		"index":     proof.Leaf.Index,
		"proof_path": hexSiblings(proof.Siblings),
	})
}

func hexSiblings(siblings [][]byte) []string {
	out := make([]string, len(siblings))
	for i, s := range siblings {
		out[i] = fmt.Sprintf("%x", s)
	}
	return out
}

func (s *Server) handleMerkleProofByHash(c *gin.Context) {
	raw := c.Param("option_hash")
	hash, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		writeError(c, apierr.InvalidInput("option_hash must be hex"))
		return
	}
	network := domain.Network(c.DefaultQuery("network", string(domain.NetworkMainnet)))

	block := int64(domain.PendingBlock)
	if v := c.Query("block"); v != "" {
		b, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(c, apierr.InvalidInput("invalid block"))
			return
		}
		block = b
	}

	proof, err := s.merkleCache.GetProofByHash(c.Request.Context(), network, block, hash)
	if err != nil {
		writeError(c, err)
		return
	}
	statusOK(c, gin.H{
		"price":      proof.Leaf.Price,
		"root":       fmt.Sprintf("%x", proof.Root),
		"index":      proof.Leaf.Index,
		"proof_path": hexSiblings(proof.Siblings),
	})
}

func (s *Server) handleFundingRate(c *gin.Context) {
	pair := c.Param("pair")
	latest, err := s.store.LatestFundingRate(c.Request.Context(), pair)
	if err != nil {
		writeError(c, apierr.Transient(err))
		return
	}
	if latest == nil {
		writeError(c, apierr.NotFound("no funding rate observation for pair"))
		return
	}
	statusOK(c, latest)
}

func (s *Server) handleFundingRateHistory(c *gin.Context) {
	pair := c.Param("pair")
	from, to, err := parseTimestampRange(c.Query("timestamp"))
	if err != nil {
		writeError(c, apierr.InvalidInput(err.Error()))
		return
	}
	history, err := s.store.FundingRateHistory(c.Request.Context(), pair, from, to)
	if err != nil {
		writeError(c, apierr.Transient(err))
		return
	}
	statusOK(c, gin.H{"pair": pair, "observations": history})
}

func (s *Server) handleFundingRateInstruments(c *gin.Context) {
	pairs, err := s.store.FundingRateInstruments(c.Request.Context())
	if err != nil {
		writeError(c, apierr.Transient(err))
		return
	}
	statusOK(c, gin.H{"instruments": pairs})
}

func (s *Server) handleOpenInterest(c *gin.Context) {
	pair := c.Param("pair")
	latest, err := s.store.LatestOpenInterest(c.Request.Context(), pair)
	if err != nil {
		writeError(c, apierr.Transient(err))
		return
	}
	if latest == nil {
		writeError(c, apierr.NotFound("no open interest observation for pair"))
		return
	}
	statusOK(c, latest)
}

func (s *Server) handleOpenInterestHistory(c *gin.Context) {
	pair := c.Param("pair")
	from, to, err := parseTimestampRange(c.Query("timestamp"))
	if err != nil {
		writeError(c, apierr.InvalidInput(err.Error()))
		return
	}
	history, err := s.store.OpenInterestHistory(c.Request.Context(), pair, from, to)
	if err != nil {
		writeError(c, apierr.Transient(err))
		return
	}
	statusOK(c, gin.H{"pair": pair, "observations": history})
}
