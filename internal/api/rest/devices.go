package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KevinKickass/GridDeck/internal/peer"
)

// GET /api/v1/status
func (s *Server) getStatus(c *gin.Context) {
	statuses := s.manager.Statuses()

	online := 0
	for _, st := range statuses {
		if st.Peer.State == peer.StateOnline {
			online++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"devices":         len(statuses),
		"adapters_online": online,
		"timestamp":       time.Now().Unix(),
	})
}

// GET /api/v1/devices
func (s *Server) listDevices(c *gin.Context) {
	statuses := s.manager.Statuses()

	c.JSON(http.StatusOK, gin.H{
		"devices": statuses,
		"count":   len(statuses),
	})
}

// GET /api/v1/devices/:order
func (s *Server) getDevice(c *gin.Context) {
	order, err := strconv.Atoi(c.Param("order"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid display order"})
		return
	}

	status, exists := s.manager.Status(order)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}

	c.JSON(http.StatusOK, status)
}

// POST /api/v1/brightness
func (s *Server) setBrightness(c *gin.Context) {
	var req struct {
		Level *int `json:"level" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.manager.SetBrightness(*req.Level); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Brightness updated",
		"level":   *req.Level,
	})
}
