package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tumapay/tumapay/internal/settings"
)

type updateSettingRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) UpdateSetting(c *gin.Context) {
	key := c.Param("key")
	if key != settings.KeyPaymentsBlocked && key != settings.KeyMaintenance {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_setting"})
		return
	}

	var req updateSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.settingsSvc.Set(c.Request.Context(), key, req.Enabled); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "enabled": req.Enabled})
}
