package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ListVehicles returns the registered vehicles.
func (h *Handler) ListVehicles(c *gin.Context) {
	vehicles, err := h.vehicleRepo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list vehicles", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list vehicles"})
		return
	}

	c.JSON(http.StatusOK, vehicles)
}

// GetSnapshot returns the latest decoded snapshot for one vehicle.
func (h *Handler) GetSnapshot(c *gin.Context) {
	vin := c.Param("vin")

	snap, ok := h.svc.Snapshot(vin)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot yet"})
		return
	}

	c.JSON(http.StatusOK, snap)
}

// GetStates returns the vehicle's current state slots.
func (h *Handler) GetStates(c *gin.Context) {
	vin := c.Param("vin")

	slots, err := h.stateRepo.States(c.Request.Context(), vin)
	if err != nil {
		h.logger.Error("Failed to list states", zap.Error(err), zap.String("vin", vin))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list states"})
		return
	}

	c.JSON(http.StatusOK, slots)
}

// TriggerRefresh makes the vehicle due on the next loop tick.
func (h *Handler) TriggerRefresh(c *gin.Context) {
	vin := c.Param("vin")

	vehicle, err := h.vehicleRepo.GetByVIN(c.Request.Context(), vin)
	if err != nil {
		h.logger.Error("Failed to look up vehicle", zap.Error(err), zap.String("vin", vin))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if vehicle == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown vehicle"})
		return
	}

	h.svc.RefreshNow(vin, time.Now())
	c.JSON(http.StatusAccepted, gin.H{"status": "scheduled"})
}
