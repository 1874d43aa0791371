package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// signatureHeader carries the rail's HMAC over the raw webhook body.
const signatureHeader = "X-Momo-Signature"

func (s *Server) HandleMomoWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable_body"})
		return
	}

	if err := s.webhookSvc.Handle(c.Request.Context(), body, c.GetHeader(signatureHeader)); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) PollPayment(c *gin.Context) {
	status, err := s.poller.Poll(c.Request.Context(), c.Param("invoice_number"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

type initiatePaymentRequest struct {
	PayerNumber string `json:"payer_number" binding:"required"`
}

func (s *Server) InitiatePayment(c *gin.Context) {
	var req initiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payment, err := s.paymentSvc.InitiatePayment(c.Request.Context(), c.Param("invoice_number"), req.PayerNumber)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, payment)
}
