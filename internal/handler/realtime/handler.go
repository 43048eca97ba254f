package realtime

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/osdentaire/agenda-api/internal/realtime"
	"github.com/osdentaire/agenda-api/pkg/errors"
	"github.com/osdentaire/agenda-api/pkg/httputil"
	"github.com/osdentaire/agenda-api/pkg/metrics"
)

const DefaultPollTimeout = 25 * time.Second

// Handler exposes the long-poll surface of the change broker. A request
// always completes within the configured timeout: either with the events that
// arrived past the caller's cursor or with an empty heartbeat telling the
// caller to poll again with the same cursor.
type Handler struct {
	broker  *realtime.Broker
	timeout time.Duration
	metrics *metrics.RealtimeMetrics
}

func NewHandler(broker *realtime.Broker, timeout time.Duration, m *metrics.RealtimeMetrics) *Handler {
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	return &Handler{broker: broker, timeout: timeout, metrics: m}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/appointments/updates", h.PollUpdates)
}

func (h *Handler) PollUpdates(c *gin.Context) {
	since := int64(0)
	if raw := c.Query("cursor"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			httputil.RespondWithError(c, errors.BadRequest("cursor must be a non-negative integer", err))
			return
		}
		since = parsed
	}

	payloadCh := make(chan realtime.Payload, 1)
	cancel := h.broker.Wait(since, func(p realtime.Payload) {
		payloadCh <- p
	}, h.timeout)

	select {
	case payload := <-payloadCh:
		if len(payload.Events) == 0 && h.metrics != nil {
			h.metrics.PollTimeouts.Inc()
		}
		httputil.RespondWithSuccess(c, http.StatusOK, payload)
	case <-c.Request.Context().Done():
		// Client went away; release the waiter instead of keeping it parked
		// until timeout.
		cancel()
	}
}
