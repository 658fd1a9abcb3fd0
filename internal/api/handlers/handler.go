package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mbaylor/leafwatch/internal/repository"
	"github.com/mbaylor/leafwatch/internal/service"
	"github.com/mbaylor/leafwatch/pkg/ws"
)

// Handler serves the HTTP and WebSocket API.
type Handler struct {
	logger      *zap.Logger
	vehicleRepo *repository.VehicleRepository
	stateRepo   *repository.StateRepository
	svc         *service.RefreshService
	wsHub       *ws.Hub
	upgrader    websocket.Upgrader
}

// NewHandler creates a handler.
func NewHandler(
	logger *zap.Logger,
	vehicleRepo *repository.VehicleRepository,
	stateRepo *repository.StateRepository,
	svc *service.RefreshService,
	wsHub *ws.Hub,
) *Handler {
	return &Handler{
		logger:      logger,
		vehicleRepo: vehicleRepo,
		stateRepo:   stateRepo,
		svc:         svc,
		wsHub:       wsHub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RegisterRoutes wires the API routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.GET("/vehicles", h.ListVehicles)
		api.GET("/vehicles/:vin/snapshot", h.GetSnapshot)
		api.GET("/vehicles/:vin/states", h.GetStates)
		api.POST("/vehicles/:vin/refresh", h.TriggerRefresh)

		api.POST("/vehicles/:vin/charge/start", h.StartCharging)
		api.POST("/vehicles/:vin/climate/start", h.StartClimate)
		api.POST("/vehicles/:vin/climate/stop", h.StopClimate)

		api.GET("/health", h.Health)
	}

	r.GET("/ws", h.ServeWS)
}

// Health is a liveness probe.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ServeWS upgrades the connection and attaches it to the hub.
func (h *Handler) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	client.Register()

	go client.WritePump()
	go client.ReadPump()
}
