package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mbaylor/leafwatch/internal/remote"
)

// StartCharging asks the vehicle to begin charging.
func (h *Handler) StartCharging(c *gin.Context) {
	h.command(c, "start charging", h.svc.StartCharging)
}

// StartClimate turns the HVAC on.
func (h *Handler) StartClimate(c *gin.Context) {
	h.command(c, "start climate control", h.svc.StartClimateControl)
}

// StopClimate turns the HVAC off.
func (h *Handler) StopClimate(c *gin.Context) {
	h.command(c, "stop climate control", h.svc.StopClimateControl)
}

func (h *Handler) command(c *gin.Context, name string, run func(ctx context.Context, vin string) error) {
	vin := c.Param("vin")

	if err := run(c.Request.Context(), vin); err != nil {
		h.logger.Error("Command failed",
			zap.String("command", name),
			zap.String("vin", vin),
			zap.Error(err))

		code := http.StatusBadGateway
		if remote.KindOf(err) == remote.KindAuth {
			code = http.StatusUnauthorized
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
