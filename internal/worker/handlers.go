package worker

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

type triggerRequest struct {
	MALID      int64  `json:"mal_id" binding:"required"`
	Episode    int    `json:"episode" binding:"required"`
	Provider   string `json:"provider" binding:"required"`
	VideoURL   string `json:"video_url" binding:"required"`
	Resolution string `json:"resolution"`
}

// RegisterRoutes wires the worker's own HTTP surface: health, status
// counters, and the authenticated webhook-trigger endpoint that starts a
// job immediately instead of waiting for the next poll tick.
func RegisterRoutes(r gin.IRouter, w *Worker, authed gin.IRouter) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/status", func(c *gin.Context) {
		counts, err := w.queue.Counts(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, counts)
	})

	authed.POST("/trigger", func(c *gin.Context) {
		var req triggerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		go w.TriggerWebhook(context.Background(), req.MALID, req.Episode, req.Provider, req.VideoURL, req.Resolution)
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	})
}
