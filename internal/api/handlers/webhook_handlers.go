package handlers

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ton-sweeper/sweeper_service/internal/domain/entities"
	"github.com/ton-sweeper/sweeper_service/pkg/logger"
)

// maxWalkDepth bounds recursion into untrusted payloads
const maxWalkDepth = 32

// DrainTrigger is the coordinator surface the webhook needs
type DrainTrigger interface {
	IsSource(address string) bool
	TriggerAsync(trig entities.Trigger) error
}

type TonEventResponse struct {
	Status string `json:"status"`
	Queued int    `json:"queued"`
}

// TonEventHandler turns chain event deliveries into drain triggers. The
// delivery is only a hint: the coordinator re-reads the balance itself.
type TonEventHandler struct {
	drains DrainTrigger
	logger *logger.Logger
	now    func() time.Time
}

func NewTonEventHandler(drains DrainTrigger, logger *logger.Logger) *TonEventHandler {
	return &TonEventHandler{
		drains: drains,
		logger: logger,
		now:    time.Now,
	}
}

// HandleTonEvent always acknowledges an authenticated delivery with 200 so
// the sender does not retry. Only sources named in the payload are drained,
// in the background; a delivery naming none is ignored.
// @Summary Receive a chain event
// @Description Queue a drain for every configured source address mentioned in the event payload
// @Tags webhooks
// @Accept json
// @Produce json
// @Param X-Webhook-Secret header string false "Shared secret, when configured"
// @Param Idempotency-Key header string false "Delivery ID used to drop redeliveries"
// @Success 200 {object} TonEventResponse
// @Failure 401 {object} map[string]interface{} "Missing or wrong shared secret"
// @Router /api/v1/webhooks/ton-event [post]
func (h *TonEventHandler) HandleTonEvent(c *gin.Context) {
	requestID := getRequestID(c)

	var payload interface{}
	if raw, err := c.GetRawData(); err != nil {
		h.logger.Warn("Failed to read ton event body", "request_id", requestID, "error", err)
	} else if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			h.logger.Warn("Ton event body is not JSON", "request_id", requestID, "error", err)
		}
	}

	targets := h.matchSources(payload)
	if len(targets) == 0 {
		h.logger.Debug("Ton event names no known source", "request_id", requestID)
		c.JSON(http.StatusOK, TonEventResponse{Status: "ignored"})
		return
	}

	h.logger.Info("Ton event received",
		"request_id", requestID,
		"targets", len(targets))

	queued := 0
	for _, source := range targets {
		err := h.drains.TriggerAsync(entities.Trigger{
			Owner:      source,
			Source:     entities.TriggerSourceWebhook,
			ReceivedAt: h.now(),
		})
		if err != nil {
			h.logger.Warn("Failed to queue webhook drain",
				"request_id", requestID,
				"source", entities.ShortAddress(source),
				"error", err)
			continue
		}
		queued++
	}

	c.JSON(http.StatusOK, TonEventResponse{Status: "accepted", Queued: queued})
}

// matchSources returns the configured sources mentioned anywhere in the
// payload, sorted and without duplicates.
func (h *TonEventHandler) matchSources(payload interface{}) []string {
	var out []string
	seen := make(map[string]struct{})

	var walk func(v interface{}, depth int)
	walk = func(v interface{}, depth int) {
		if depth > maxWalkDepth {
			return
		}
		switch node := v.(type) {
		case string:
			candidate := strings.TrimSpace(node)
			if _, dup := seen[candidate]; dup {
				return
			}
			if h.drains.IsSource(candidate) {
				seen[candidate] = struct{}{}
				out = append(out, candidate)
			}
		case []interface{}:
			for _, item := range node {
				walk(item, depth+1)
			}
		case map[string]interface{}:
			for key, item := range node {
				walk(key, depth+1)
				walk(item, depth+1)
			}
		}
	}
	walk(payload, 0)
	sort.Strings(out)
	return out
}
