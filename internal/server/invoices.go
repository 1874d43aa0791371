package server

import (
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/tumapay/tumapay/internal/invoice/domain"
	invoiceservice "github.com/tumapay/tumapay/internal/invoice/service"
)

type createInvoiceRequest struct {
	SellerID    int64                    `json:"seller_id" binding:"required"`
	BuyerEmail  string                   `json:"buyer_email" binding:"required,email"`
	BuyerPhone  string                   `json:"buyer_phone" binding:"required"`
	GrossAmount int64                    `json:"gross_amount" binding:"required,gt=0"`
	Currency    string                   `json:"currency" binding:"required"`
	Milestones  []createMilestoneRequest `json:"milestones"`
}

type createMilestoneRequest struct {
	Label  string `json:"label" binding:"required"`
	Amount int64  `json:"amount" binding:"required,gt=0"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := invoiceservice.CreateInvoiceInput{
		SellerID:    snowflake.ID(req.SellerID),
		BuyerEmail:  req.BuyerEmail,
		BuyerPhone:  req.BuyerPhone,
		GrossAmount: req.GrossAmount,
		Currency:    req.Currency,
	}
	for _, m := range req.Milestones {
		input.Milestones = append(input.Milestones, invoiceservice.MilestoneInput{
			Label:  m.Label,
			Amount: m.Amount,
		})
	}

	invoice, err := s.invoiceSvc.Create(c.Request.Context(), input)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, invoice)
}

func (s *Server) GetInvoice(c *gin.Context) {
	invoice, err := s.invoiceSvc.Get(c.Request.Context(), c.Param("invoice_number"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func (s *Server) MarkDelivered(c *gin.Context) {
	invoice, err := s.invoiceSvc.MarkDelivered(c.Request.Context(), c.Param("invoice_number"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func (s *Server) CompleteMilestone(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		s.respondError(c, invoicedomain.ErrMilestoneNotFound)
		return
	}

	milestone, err := s.invoiceSvc.CompleteMilestone(c.Request.Context(), snowflake.ID(id))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, milestone)
}
