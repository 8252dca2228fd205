package http

import (
	"net/http"

	"github.com/dkeye/chatrelay/internal/app/orch"
	"github.com/dkeye/chatrelay/internal/config"
	"github.com/dkeye/chatrelay/internal/core"
	"github.com/dkeye/chatrelay/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type NoticeRequest struct {
	Text string `json:"text"`
}

type NoticeResponse struct {
	SendTo  int `json:"send_to"`
	Dropped int `json:"dropped"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

// SetupRouter builds the admin API. gateway serves /ws and may be nil.
func SetupRouter(cfg *config.Config, o *orch.Orchestrator, gateway http.Handler) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	h := &adminHandlers{orch: o}
	api := r.Group("/api")
	api.GET("/health", h.health)
	api.GET("/rooms", h.rooms)
	api.GET("/rooms/:name/members", h.members)
	api.DELETE("/members/:id", h.kick)
	api.POST("/notice", h.notice)

	if gateway != nil {
		r.GET("/ws", func(c *gin.Context) {
			gateway.ServeHTTP(c.Writer, c.Request)
		})
	}

	log.Info().Str("module", "adapters.http").Bool("ws", gateway != nil).Msg("router setup")
	return r
}

type adminHandlers struct {
	orch *orch.Orchestrator
}

func (h *adminHandlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Clients: h.orch.Registry.Len()})
}

func (h *adminHandlers) rooms(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.Rooms())
}

func (h *adminHandlers) members(c *gin.Context) {
	room, err := domain.NormalizeRoom(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.orch.Members(room))
}

func (h *adminHandlers) kick(c *gin.Context) {
	sid := core.SessionID(c.Param("id"))
	if !h.orch.Kick(sid) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such session"})
		return
	}
	log.Info().Str("module", "adapters.http").Str("sid", string(sid)).Msg("session kicked via admin API")
	c.Status(http.StatusNoContent)
}

func (h *adminHandlers) notice(c *gin.Context) {
	var req NoticeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid text"})
		return
	}
	res := h.orch.Announce(req.Text)
	c.JSON(http.StatusAccepted, NoticeResponse{SendTo: res.SendTo, Dropped: len(res.Dropped)})
}
