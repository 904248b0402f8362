package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ton-sweeper/sweeper_service/internal/domain/entities"
	"github.com/ton-sweeper/sweeper_service/internal/domain/repositories"
	"github.com/ton-sweeper/sweeper_service/internal/domain/services/drain"
	"github.com/ton-sweeper/sweeper_service/internal/domain/services/priority"
	"github.com/ton-sweeper/sweeper_service/pkg/logger"
)

// SourceCoordinator is the coordinator surface the ops endpoints read
type SourceCoordinator interface {
	IsSource(address string) bool
	Status() []drain.SourceStatus
	TriggerAsync(trig entities.Trigger) error
}

// RankingReader exposes the published rankings
type RankingReader interface {
	Snapshot(owner string) (*entities.PriorityEntry, bool)
}

// SourceHandlers serves read-only views of the sweeper plus manual drains
type SourceHandlers struct {
	coordinator SourceCoordinator
	rankings    RankingReader
	runs        repositories.DrainRunRepository
	logger      *logger.Logger
}

// NewSourceHandlers wires the ops endpoints. runs may be nil when the audit
// log is disabled.
func NewSourceHandlers(
	coordinator SourceCoordinator,
	rankings RankingReader,
	runs repositories.DrainRunRepository,
	logger *logger.Logger,
) *SourceHandlers {
	return &SourceHandlers{
		coordinator: coordinator,
		rankings:    rankings,
		runs:        runs,
		logger:      logger,
	}
}

// ListSources returns every source with its coordinator state
// @Summary List monitored sources
// @Tags sources
// @Produce json
// @Success 200 {object} map[string]interface{} "sources and count"
// @Failure 429 {object} map[string]interface{} "Too many requests"
// @Router /api/v1/sources [get]
func (h *SourceHandlers) ListSources(c *gin.Context) {
	sources := h.coordinator.Status()
	c.JSON(http.StatusOK, gin.H{"sources": sources, "count": len(sources)})
}

// GetPriorities returns the published ranking for one source
// @Summary Get token priority ranking
// @Description Holdings ordered by USD value as last published for the source
// @Tags sources
// @Produce json
// @Param address path string true "Source wallet address"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse "Unknown source or ranking not ready"
// @Failure 429 {object} map[string]interface{} "Too many requests"
// @Router /api/v1/sources/{address}/priorities [get]
func (h *SourceHandlers) GetPriorities(c *gin.Context) {
	address := c.Param("address")
	if !h.coordinator.IsSource(address) {
		respondError(c, http.StatusNotFound, "UNKNOWN_SOURCE", "address is not a configured source")
		return
	}

	entry, ok := h.rankings.Snapshot(address)
	if !ok {
		respondError(c, http.StatusNotFound, "RANKING_NOT_READY", "no ranking has been published for this source yet")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"owner_address": entry.OwnerAddress,
		"refreshed_at":  entry.RefreshedAt,
		"prices_as_of":  entry.PricesAsOf,
		"summary":       priority.Summary(entry.Holdings),
		"holdings":      entry.Holdings,
	})
}

// TriggerDrain queues a manual drain evaluation
// @Summary Queue a manual drain
// @Tags sources
// @Produce json
// @Param address path string true "Source wallet address"
// @Param X-Webhook-Secret header string false "Shared secret, when configured"
// @Success 202 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{} "Missing or wrong shared secret"
// @Failure 404 {object} ErrorResponse
// @Failure 429 {object} map[string]interface{} "Too many requests"
// @Failure 503 {object} ErrorResponse "Coordinator is shutting down"
// @Router /api/v1/sources/{address}/drain [post]
func (h *SourceHandlers) TriggerDrain(c *gin.Context) {
	address := c.Param("address")
	if !h.coordinator.IsSource(address) {
		respondError(c, http.StatusNotFound, "UNKNOWN_SOURCE", "address is not a configured source")
		return
	}

	err := h.coordinator.TriggerAsync(entities.Trigger{
		Owner:      address,
		Source:     entities.TriggerSourceManual,
		ReceivedAt: time.Now(),
	})
	if err != nil {
		h.logger.Warn("Failed to queue manual drain",
			"request_id", getRequestID(c),
			"source", entities.ShortAddress(address),
			"error", err)
		respondError(c, http.StatusServiceUnavailable, "DRAIN_NOT_QUEUED", "drain could not be queued")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "source": address})
}

// ListDrains returns recent drain runs from the audit log
// @Summary List drain runs
// @Tags drains
// @Produce json
// @Param source query string false "Filter by source address"
// @Param outcome query string false "Filter by outcome"
// @Param limit query int false "Maximum rows"
// @Success 200 {object} map[string]interface{} "drains and count"
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse "Audit log disabled"
// @Failure 429 {object} map[string]interface{} "Too many requests"
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/drains [get]
func (h *SourceHandlers) ListDrains(c *gin.Context) {
	if h.runs == nil {
		respondError(c, http.StatusNotFound, "AUDIT_LOG_DISABLED", "drain history is not enabled")
		return
	}

	var filter repositories.DrainRunFilter
	if source := c.Query("source"); source != "" {
		filter.SourceAddress = &source
	}
	if raw := c.Query("outcome"); raw != "" {
		outcome := entities.DrainOutcome(raw)
		filter.Outcome = &outcome
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			respondError(c, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	runs, err := h.runs.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list drain runs", "request_id", getRequestID(c), "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to list drain runs")
		return
	}

	c.JSON(http.StatusOK, gin.H{"drains": runs, "count": len(runs)})
}
