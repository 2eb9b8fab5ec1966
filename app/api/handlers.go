package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/meme-comb/app/collection"
	"github.com/lysyi3m/meme-comb/app/feed"
	"github.com/lysyi3m/meme-comb/app/source"
	"github.com/lysyi3m/meme-comb/app/tasks"
)

const defaultListLimit = 50

func NewHandler(f *feed.Feed, generator GeneratorInterface, configCache *source.ConfigCache,
	scheduler tasks.TaskSchedulerInterface, acquirer StateReporter, feedMaxItems int, version string) *Handler {
	return &Handler{
		feed:         f,
		generator:    generator,
		configCache:  configCache,
		scheduler:    scheduler,
		acquirer:     acquirer,
		feedMaxItems: feedMaxItems,
		version:      version,
	}
}

func (h *Handler) GetFeed(c *gin.Context) {
	items, err := h.feed.Items("accepted", h.feedMaxItems)
	if err != nil {
		slog.Error("Failed to list accepted items", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	rss, err := h.generator.Run(items)
	if err != nil {
		slog.Error("RSS generation error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(items)))

	c.String(http.StatusOK, rss)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp":             time.Now().In(time.Local).Format(time.RFC3339),
		"version":               h.version,
		"loaded_configurations": h.configCache.GetConfigCount(),
		"enabled_sources":       len(h.configCache.GetEnabledConfigs()),
	}

	if h.acquirer != nil {
		health["cycle_state"] = h.acquirer.State()
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.feed.Overview())
}

func (h *Handler) APIListItems(c *gin.Context) {
	limit, ok := intQuery(c, "limit", defaultListLimit)
	if !ok {
		return
	}

	pool := c.DefaultQuery("pool", "accepted")
	if pool == "rejected" {
		rejections := h.feed.Rejections(limit)
		c.JSON(http.StatusOK, gin.H{
			"pool":  pool,
			"items": rejections,
			"total": len(rejections),
		})
		return
	}

	items, err := h.feed.Items(pool, limit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pool":  pool,
		"items": items,
		"total": len(items),
	})
}

func (h *Handler) APIListSources(c *gin.Context) {
	configs := h.configCache.GetConfigs()

	sources := make([]map[string]interface{}, 0, len(configs))
	for _, config := range configs {
		sources = append(sources, map[string]interface{}{
			"name":             config.Name,
			"kind":             config.Kind,
			"label":            config.Label(),
			"enabled":          config.Settings.Enabled,
			"timeout":          (time.Duration(config.Settings.Timeout) * time.Second).String(),
			"extract_metadata": config.Settings.ExtractMetadata,
			"tags":             config.Tags,
		})
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"sources": sources,
		"total":   len(sources),
	})
}

func (h *Handler) APIRefresh(c *gin.Context) {
	h.enqueue(c, tasks.TaskTypeRefresh, h.scheduler.TriggerRefresh)
}

func (h *Handler) APIRefilter(c *gin.Context) {
	h.enqueue(c, tasks.TaskTypeRefilter, h.scheduler.TriggerRefilter)
}

func (h *Handler) enqueue(c *gin.Context, taskType tasks.TaskType, trigger func(string) (string, error)) {
	id, err := trigger("api")
	if err != nil {
		slog.Error("Error enqueueing task", "type", string(taskType), "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to enqueue task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"task": gin.H{
			"id":   id,
			"type": taskType,
		},
	})
}

func (h *Handler) APIReportItem(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing item id parameter"})
		return
	}

	item, err := h.feed.ReportItem(c.Request.Context(), id)
	if errors.Is(err, collection.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found in accepted pool"})
		return
	}
	if err != nil {
		slog.Error("Failed to report item", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to report item"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"item":    item,
	})
}

func (h *Handler) APIUserStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.feed.Stats(c.Param("id")))
}

func (h *Handler) APIUserRecommendations(c *gin.Context) {
	n, ok := intQuery(c, "n", 5)
	if !ok {
		return
	}

	items := h.feed.Recommendations(c.Param("id"), n)
	c.JSON(http.StatusOK, gin.H{
		"user_id": c.Param("id"),
		"items":   items,
		"total":   len(items),
	})
}

// intQuery reads a positive integer query parameter, answering 400 itself
// when the value is invalid.
func intQuery(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name + " parameter"})
		return 0, false
	}
	return value, true
}
