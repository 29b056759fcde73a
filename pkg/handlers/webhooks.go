package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dev-sujan/prepdesk/pkg/models"
)

// ListWebhooks returns the configured endpoints. Secrets never leave the
// site file.
func (s *Server) ListWebhooks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"endpoints": s.Site.Webhooks})
}

// ListDeliveries returns the most recent delivery records, newest first.
func (s *Server) ListDeliveries(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 500 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
		return
	}
	deliveries, err := s.Store.RecentDeliveries(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": deliveries})
}

// TestWebhook queues a test event to every subscribed endpoint.
func (s *Server) TestWebhook(c *gin.Context) {
	s.Webhooks.Publish(models.Event{
		Name: models.EventWebhookTest,
		Data: gin.H{"requested_by": c.ClientIP()},
	})
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
