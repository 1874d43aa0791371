package server

import (
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/tumapay/tumapay/internal/invoice/domain"
)

type releaseFundsRequest struct {
	InvoiceNumber string `json:"invoice_number" binding:"required"`
	Code          string `json:"code" binding:"required"`
}

// ReleaseFunds is the seller-side path: present the buyer's short code.
func (s *Server) ReleaseFunds(c *gin.Context) {
	var req releaseFundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.settlementSvc.SettleByCode(c.Request.Context(), req.InvoiceNumber, req.Code)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PreviewPayout shows the buyer what their emailed link will release without
// consuming the credential.
func (s *Server) PreviewPayout(c *gin.Context) {
	preview, err := s.settlementSvc.PreviewToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

// ConfirmPayout is the buyer-side path: the emailed link confirms receipt and
// releases the escrow.
func (s *Server) ConfirmPayout(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		s.respondError(c, invoicedomain.ErrNotFound)
		return
	}

	result, err := s.settlementSvc.SettleByToken(c.Request.Context(), c.Param("token"), snowflake.ID(id))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PreviewMilestoneRelease resolves a milestone release link for display.
func (s *Server) PreviewMilestoneRelease(c *gin.Context) {
	milestone, err := s.invoiceSvc.MilestoneByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, milestone)
}

func (s *Server) ReleaseMilestone(c *gin.Context) {
	result, err := s.settlementSvc.SettleMilestone(c.Request.Context(), c.Param("token"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) ListReferralEarnings(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_user_id"})
		return
	}

	earnings, err := s.referralSvc.Earnings(c.Request.Context(), snowflake.ID(id))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"earnings": earnings})
}
