package handler

import (
	"context"
	"errors"
	"net/http"

	"campaign-engine/internal/repository/schedule"
	"campaign-engine/internal/service"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type Handler struct {
	engine service.Engine
	server *http.Server
}

// @title Campaign Dispatch Engine API
// @version 1.0
// @description Control surface for the campaign and scheduled-message dispatch engine
// @host localhost:6060
// @BasePath /
func NewHttpHandler(addr string, engine service.Engine) *Handler {
	h := &Handler{
		engine: engine,
	}

	// create router
	router := gin.Default()

	// register routes
	router.POST("/start", h.startEngine)
	router.POST("/stop", h.stopEngine)
	router.GET("/running", h.isRunning)
	router.POST("/campaigns/:id/trigger", h.triggerCampaign)
	router.POST("/messages/:id/trigger", h.triggerMessage)
	router.GET("/campaigns/:id/status", h.campaignStatus)
	router.GET("/messages/:id/status", h.messageStatus)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// create http server
	h.server = &http.Server{
		Addr:    addr,
		Handler: router.Handler(),
	}

	return h
}

func (h *Handler) Run() error {
	return h.server.ListenAndServe()
}

func (h *Handler) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// StartEngine godoc
// @Summary Start the dispatch engine
// @Description Starts the background tick loop that dispatches due campaigns and scheduled messages
// @Tags Control
// @Success 200
// @Router /start [post]
func (h *Handler) startEngine(c *gin.Context) {
	h.engine.Start()
	c.Status(http.StatusOK)
}

// StopEngine godoc
// @Summary Stop the dispatch engine
// @Description Stops scheduling new ticks; in-flight dispatches run to completion
// @Tags Control
// @Success 200
// @Router /stop [post]
func (h *Handler) stopEngine(c *gin.Context) {
	h.engine.Stop()
	c.Status(http.StatusOK)
}

// IsRunning godoc
// @Summary Report whether the engine is running
// @Tags Control
// @Success 200 {object} map[string]bool
// @Router /running [get]
func (h *Handler) isRunning(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"running": h.engine.IsRunning()})
}

// TriggerCampaign godoc
// @Summary Trigger one campaign immediately
// @Description Runs the campaign through the normal claim pipeline and returns the execution summary
// @Tags Dispatch
// @Param id path string true "campaign id"
// @Success 200 {object} service.ExecutionSummary
// @Failure 404
// @Failure 409
// @Router /campaigns/{id}/trigger [post]
func (h *Handler) triggerCampaign(c *gin.Context) {
	h.trigger(c, service.KindCampaign)
}

// TriggerMessage godoc
// @Summary Trigger one scheduled message immediately
// @Description Runs the message through the normal claim pipeline and returns the execution summary
// @Tags Dispatch
// @Param id path string true "message id"
// @Success 200 {object} service.ExecutionSummary
// @Failure 404
// @Failure 409
// @Router /messages/{id}/trigger [post]
func (h *Handler) triggerMessage(c *gin.Context) {
	h.trigger(c, service.KindMessage)
}

// CampaignStatus godoc
// @Summary Get a campaign's record and recent execution logs
// @Tags Status
// @Param id path string true "campaign id"
// @Success 200 {object} service.StatusReport
// @Failure 404
// @Router /campaigns/{id}/status [get]
func (h *Handler) campaignStatus(c *gin.Context) {
	h.status(c, service.KindCampaign)
}

// MessageStatus godoc
// @Summary Get a scheduled message's record, recent execution logs and next occurrence
// @Tags Status
// @Param id path string true "message id"
// @Success 200 {object} service.StatusReport
// @Failure 404
// @Router /messages/{id}/status [get]
func (h *Handler) messageStatus(c *gin.Context) {
	h.status(c, service.KindMessage)
}

func (h *Handler) trigger(c *gin.Context, kind string) {
	summary, err := h.engine.TriggerNow(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, schedule.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		case errors.Is(err, service.ErrNotClaimable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) status(c *gin.Context, kind string) {
	report, err := h.engine.Status(kind, c.Param("id"))
	if err != nil {
		if errors.Is(err, schedule.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}
