package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ohikava/token-sandbox/internal/domain"
)

// handleTradeStream pushes executed trades as server-sent events. With a
// replay store every event carries its log index as id, so a reconnecting
// client resumes after Last-Event-ID; live notifications then only trigger
// a replay read. Without one, live trades are sent as they arrive.
func (s *Server) handleTradeStream(c *gin.Context) {
	if s.feed == nil && s.replay == nil {
		c.String(http.StatusServiceUnavailable, "trade stream not available")
		return
	}

	w := c.Writer
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	var live chan domain.TradeRecord
	if s.feed != nil {
		live = s.feed.Subscribe()
		defer s.feed.Unsubscribe(live)
	}

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	var poll <-chan time.Time
	lastIndex := parseLastEventID(c.GetHeader("Last-Event-ID"), c.Query("last_event_id"), s.logger)
	if s.replay != nil {
		pollTicker := time.NewTicker(s.pollInterval)
		defer pollTicker.Stop()
		poll = pollTicker.C

		if err := s.sendReplay(w, &lastIndex); err != nil {
			s.logger.Error("trade stream initial load", zap.Error(err))
			return
		}
	}
	w.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			w.Flush()
		case record, ok := <-live:
			if !ok {
				return
			}
			if s.replay != nil {
				if err := s.sendReplay(w, &lastIndex); err != nil {
					s.logger.Warn("trade stream replay", zap.Error(err))
				}
				continue
			}
			if err := writeTradeEvent(w, 0, record); err != nil {
				s.logger.Warn("trade stream write", zap.Error(err))
				return
			}
			w.Flush()
		case <-poll:
			if err := s.sendReplay(w, &lastIndex); err != nil {
				s.logger.Warn("trade stream poll", zap.Error(err))
			}
		}
	}
}

func (s *Server) sendReplay(w gin.ResponseWriter, lastIndex *uint64) error {
	entries, err := s.replay.RecordsAfter(*lastIndex)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := writeTradeEvent(w, e.Index, e.Record); err != nil {
			return err
		}
		*lastIndex = e.Index
	}
	if len(entries) > 0 {
		w.Flush()
	}
	return nil
}

func writeTradeEvent(w io.Writer, id uint64, record domain.TradeRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if id > 0 {
		fmt.Fprintf(w, "id: %d\n", id)
	}
	_, err = fmt.Fprintf(w, "event: trade\ndata: %s\n\n", payload)
	return err
}

func parseLastEventID(headerVal, queryVal string, logger *zap.Logger) uint64 {
	idStr := strings.TrimSpace(headerVal)
	if idStr == "" {
		idStr = strings.TrimSpace(queryVal)
	}
	if idStr == "" {
		return 0
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		logger.Warn("invalid last event id", zap.String("id", idStr), zap.Error(err))
		return 0
	}
	return id
}
