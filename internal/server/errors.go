package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	confirmationdomain "github.com/tumapay/tumapay/internal/confirmation/domain"
	disputedomain "github.com/tumapay/tumapay/internal/dispute/domain"
	invoicedomain "github.com/tumapay/tumapay/internal/invoice/domain"
	paymentdomain "github.com/tumapay/tumapay/internal/payment/domain"
	settlementdomain "github.com/tumapay/tumapay/internal/settlement/domain"
	userdomain "github.com/tumapay/tumapay/internal/user/domain"
	"go.uber.org/zap"
)

// respondError maps domain errors onto HTTP statuses. Conflicts mean "this
// money already moved", unprocessable means "the state machine says no".
func (s *Server) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, paymentdomain.ErrAlreadyProcessed),
		errors.Is(err, settlementdomain.ErrAlreadyProcessed),
		errors.Is(err, disputedomain.ErrAlreadyResolved),
		errors.Is(err, disputedomain.ErrDisputeActive),
		errors.Is(err, invoicedomain.ErrAlreadyDelivered):
		status = http.StatusConflict

	case errors.Is(err, settlementdomain.ErrNotAuthorized),
		errors.Is(err, paymentdomain.ErrInvalidSignature),
		errors.Is(err, confirmationdomain.ErrCodeMismatch):
		status = http.StatusUnauthorized

	case errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrMilestoneNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, confirmationdomain.ErrNotFound),
		errors.Is(err, disputedomain.ErrNotFound),
		errors.Is(err, userdomain.ErrNotFound):
		status = http.StatusNotFound

	case errors.Is(err, invoicedomain.ErrInvalidTransition),
		errors.Is(err, invoicedomain.ErrNotPaid),
		errors.Is(err, invoicedomain.ErrMilestoneOutOfOrder),
		errors.Is(err, invoicedomain.ErrMilestoneNotPending),
		errors.Is(err, invoicedomain.ErrMilestoneAmountsSum),
		errors.Is(err, confirmationdomain.ErrInvoiceMismatch),
		errors.Is(err, disputedomain.ErrSellerWindow),
		errors.Is(err, disputedomain.ErrNotDelivered),
		errors.Is(err, disputedomain.ErrInvoiceNotEscrow),
		errors.Is(err, disputedomain.ErrInvalidParty),
		errors.Is(err, disputedomain.ErrInvalidOutcome):
		status = http.StatusUnprocessableEntity

	case errors.Is(err, settlementdomain.ErrGatewayFailure):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
