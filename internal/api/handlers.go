// Package api implements the JSON HTTP surface of SPEC_FULL §6: the home
// feed, genre search, anime lookups by slug or MAL id, per-episode
// streaming, and the salt-authenticated cache-invalidation endpoint.
package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mangahub/internal/homefeed"
	"mangahub/internal/mapping"
	"mangahub/internal/resolver"
	"mangahub/internal/streaming"
	"mangahub/pkg/models"
)

type Handler struct {
	resolver  *resolver.Resolver
	store     *mapping.Store
	streaming *streaming.Service
	home      *homefeed.Service
	salt      string
}

func NewHandler(r *resolver.Resolver, store *mapping.Store, streamSvc *streaming.Service, home *homefeed.Service, salt string) *Handler {
	return &Handler{resolver: r, store: store, streaming: streamSvc, home: home, salt: salt}
}

// RegisterRoutes wires every client-facing endpoint from SPEC_FULL §6.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": "mangahub-api", "version": "1"})
	})

	v1 := r.Group("/api/v1")
	v1.GET("/home", h.home_)
	v1.GET("/search", h.search)
	v1.GET("/anime/:slug", h.animeBySlug)
	v1.GET("/anime/mal/:malId", h.animeByMALID)
	v1.GET("/streaming/:malId/:episode", h.streamingFor)
	v1.POST("/streaming/invalidate", h.invalidate)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Not Found", "message": "no route for " + c.Request.URL.Path})
	})
}

func (h *Handler) home_(c *gin.Context) {
	start := time.Now()
	items := h.home.Home(c.Request.Context())
	c.Header("X-Response-Time", strconv.FormatFloat(time.Since(start).Seconds(), 'f', 3, 64))
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"count":    len(items),
		"duration": time.Since(start).Seconds(),
		"data":     items,
	})
}

func (h *Handler) search(c *gin.Context) {
	genre := c.Query("genre")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	if genre == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "genre query param is required"})
		return
	}

	candidates, hasNext, err := h.home.SearchGenre(c.Request.Context(), genre, page)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	type row struct {
		MALID int64  `json:"mal_id"`
		Name  string `json:"name"`
		Cover string `json:"cover"`
	}
	data := make([]row, 0, len(candidates))
	for _, cand := range candidates {
		name := cand.TitleEnglish
		if name == "" {
			name = cand.TitleRomaji
		}
		data = append(data, row{MALID: cand.MALID, Name: name, Cover: cand.CoverURL})
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"genre_id":      genre,
		"page":          page,
		"has_next_page": hasNext,
		"count":         len(data),
		"data":          data,
	})
}

func (h *Handler) animeBySlug(c *gin.Context) {
	slug := c.Param("slug")
	provider := c.Query("provider")
	if provider == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "provider query param is required"})
		return
	}

	cached, err := h.store.BySlug(c.Request.Context(), provider, slug)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	m := cached
	if m == nil {
		m, err = h.resolver.ResolveBySlug(c.Request.Context(), provider, slug)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
	}
	h.respondAnime(c, m, cached != nil)
}

func (h *Handler) animeByMALID(c *gin.Context) {
	malID, err := strconv.ParseInt(c.Param("malId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid malId"})
		return
	}

	cached, err := h.store.ByMALID(c.Request.Context(), malID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	m := cached
	if m == nil {
		m, err = h.resolver.ResolveByMALID(c.Request.Context(), malID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
	}
	h.respondAnime(c, m, cached != nil)
}

func (h *Handler) respondAnime(c *gin.Context, m *models.Mapping, cached bool) {
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not found"})
		return
	}
	meta, _ := mapping.GetMALMetadata(c.Request.Context(), h.store.DB, m.MALID)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"cached":  cached,
		"data": gin.H{
			"mapping":  m,
			"mal":      meta,
			"episodes": gin.H{},
		},
	})
}

func (h *Handler) streamingFor(c *gin.Context) {
	malID, err := strconv.ParseInt(c.Param("malId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid malId"})
		return
	}
	episode, err := strconv.Atoi(c.Param("episode"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid episode"})
		return
	}

	m, err := h.store.ByMALID(c.Request.Context(), malID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "mapping not found"})
		return
	}

	servers, err := h.streaming.GetStreaming(c.Request.Context(), m, episode)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	byProvider := map[string][]models.StreamingServer{}
	for _, s := range servers {
		byProvider[s.Provider] = append(byProvider[s.Provider], s)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"mal_id":  malID,
		"episode": episode,
		"data":    byProvider,
	})
}

type invalidateRequest struct {
	MALID   int64  `json:"mal_id" binding:"required"`
	Episode int    `json:"episode" binding:"required"`
	Secret  string `json:"secret" binding:"required"`
}

func (h *Handler) invalidate(c *gin.Context) {
	var req invalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.salt)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
		return
	}
	h.streaming.InvalidateCache(req.MALID, req.Episode)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
