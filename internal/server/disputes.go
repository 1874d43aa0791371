package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	disputedomain "github.com/tumapay/tumapay/internal/dispute/domain"
)

type openDisputeRequest struct {
	OpenedBy string `json:"opened_by" binding:"required"`
	Reason   string `json:"reason" binding:"required"`
}

func (s *Server) OpenDispute(c *gin.Context) {
	var req openDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dispute, err := s.disputeSvc.Open(c.Request.Context(),
		c.Param("invoice_number"),
		disputedomain.Party(req.OpenedBy),
		req.Reason,
	)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dispute)
}

type resolveDisputeRequest struct {
	Winner string `json:"winner" binding:"required"`
}

func (s *Server) ResolveDispute(c *gin.Context) {
	var req resolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.disputeSvc.Resolve(c.Request.Context(),
		c.Param("admin_token"),
		disputedomain.Party(req.Winner),
	)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
