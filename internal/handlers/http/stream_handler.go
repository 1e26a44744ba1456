package http

import (
	"context"
	_ "embed"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"arcast/internal/core/domain"
	"arcast/internal/core/ports"
	"arcast/internal/core/services"
	"arcast/internal/infrastructure/monitoring"
	apperrors "arcast/pkg/errors"
)

//go:embed player.html
var playerPage []byte

// StreamHandler serves the browser player page and the session control API.
// Control calls go to the coordinator through the controller port; reads
// come from the state store snapshot.
type StreamHandler struct {
	controller ports.StreamController
	store      *services.StateStore
	health     *monitoring.HealthChecker
	logger     *zap.SugaredLogger
}

func NewStreamHandler(controller ports.StreamController, store *services.StateStore, health *monitoring.HealthChecker, logger *zap.SugaredLogger) *StreamHandler {
	return &StreamHandler{
		controller: controller,
		store:      store,
		health:     health,
		logger:     logger,
	}
}

func (h *StreamHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/", h.Player)

	api := router.Group("/api/v1")
	{
		api.GET("/status", h.GetStatus)
		api.POST("/session/start", h.StartSession)
		api.POST("/session/stop", h.StopSession)
		api.POST("/session/mode", h.ChangeMode)
		api.POST("/errors/ack", h.AckError)
	}

	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}

// Player serves the embedded browser client.
func (h *StreamHandler) Player(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", playerPage)
}

// GetStatus returns the state-store snapshot.
func (h *StreamHandler) GetStatus(c *gin.Context) {
	snap := h.store.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"state":             snap.State.String(),
		"mode":              snap.Mode.String(),
		"generation":        snap.Generation,
		"session_id":        snap.SessionID,
		"connected_clients": snap.ConnectedClients,
		"video_rate":        snap.VideoRate,
		"tracking_rate":     snap.TrackingRate,
		"tracking_state":    snap.TrackingState.String(),
		"last_error":        snap.LastError,
	})
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

// StartSession arms the given stream mode; the session itself is built when
// a client submits an offer over signaling.
func (h *StreamHandler) StartSession(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("mode is required"))
		return
	}

	mode, err := domain.ParseStreamMode(req.Mode)
	if err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	if err := h.controller.Start(mode); err != nil {
		if errors.Is(err, domain.ErrSessionBusy) {
			c.Error(apperrors.NewSessionBusyError("a session is already in progress"))
			return
		}
		c.Error(apperrors.NewCaptureFailureError(err, "failed to start streaming"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"mode": mode.String()})
}

// StopSession disposes the current session.
func (h *StreamHandler) StopSession(c *gin.Context) {
	if err := h.controller.Stop(); err != nil {
		c.Error(apperrors.NewCaptureFailureError(err, "failed to stop streaming"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": domain.StateIdle.String()})
}

// ChangeMode switches the stream mode. While a session is active this
// rebuilds only the affected sources; the peer connection is not
// renegotiated, so a connected client keeps its negotiated tracks.
func (h *StreamHandler) ChangeMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("mode is required"))
		return
	}

	mode, err := domain.ParseStreamMode(req.Mode)
	if err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	if err := h.controller.ChangeMode(mode); err != nil {
		c.Error(apperrors.NewCaptureFailureError(err, "failed to change mode"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"mode": mode.String()})
}

// AckError clears the latest user-facing error.
func (h *StreamHandler) AckError(c *gin.Context) {
	h.store.AckError()
	c.JSON(http.StatusOK, gin.H{"last_error": ""})
}

func (h *StreamHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

func (h *StreamHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := h.health.CheckAll(ctx)
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
