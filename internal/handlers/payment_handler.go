package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/whoami847/topup-payments/internal/models"
	"github.com/whoami847/topup-payments/internal/service"
	"github.com/whoami847/topup-payments/internal/telemetry"
)

type PaymentHandler struct {
	initiator   *service.Initiator
	settlement  *service.Settlement
	frontendURL string
}

func NewPaymentHandler(initiator *service.Initiator, settlement *service.Settlement, frontendURL string) *PaymentHandler {
	return &PaymentHandler{
		initiator:   initiator,
		settlement:  settlement,
		frontendURL: frontendURL,
	}
}

type initiateRequest struct {
	Amount        float64          `json:"amount"`
	UserID        string           `json:"userId"`
	Currency      string           `json:"currency"`
	Kind          models.OrderKind `json:"kind"`
	Description   string           `json:"description"`
	CustomerName  string           `json:"customer_name"`
	CustomerEmail string           `json:"customer_email"`
	CustomerPhone string           `json:"customer_phone"`
}

// Initiate handles POST /payment/initiate.
func (h *PaymentHandler) Initiate(c *gin.Context) {
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	paymentURL, err := h.initiator.Initiate(c.Request.Context(), service.InitiateRequest{
		UserID:      req.UserID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Kind:        req.Kind,
		Description: req.Description,
		Customer: models.Customer{
			Name:  req.CustomerName,
			Email: req.CustomerEmail,
			Phone: req.CustomerPhone,
		},
	})
	if err != nil {
		c.JSON(initiationStatus(err), gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"payment_url": paymentURL})
}

func initiationStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNoActiveGateway):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrUnsupportedGateway):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrGatewayRejected):
		return http.StatusBadGateway
	default:
		// Transport-level failures: the provider could not be reached, as
		// opposed to the provider refusing the request.
		return http.StatusServiceUnavailable
	}
}

// HandleIPN handles POST /payment/ipn. The provider retries until it sees
// 200, so everything past authentication acknowledges receipt even when
// the application outcome is a rejection.
func (h *PaymentHandler) HandleIPN(c *gin.Context) {
	rawBody, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "unreadable body"})
		return
	}

	err = h.settlement.HandleIPN(c.Request.Context(), rawBody)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "processed"})
	case errors.Is(err, models.ErrAlreadyProcessed):
		c.JSON(http.StatusOK, gin.H{"status": "already_processed"})
	case errors.Is(err, models.ErrSettlementInProgress):
		// Not settled yet; a non-2xx keeps the provider redelivering in
		// case the delivery holding the lock fails.
		c.JSON(http.StatusConflict, gin.H{"status": "in_progress"})
	case errors.Is(err, models.ErrSignatureInvalid):
		// The order is now FAILED and the payload retained; acknowledge so
		// the provider stops redelivering a notification we will never
		// accept.
		c.JSON(http.StatusOK, gin.H{"status": "rejected"})
	case errors.Is(err, models.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
	default:
		telemetry.Logger.Error("IPN processing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "settlement failed"})
	}
}

// Success handles the provider's success redirect. Display only: the IPN
// is the sole trust source for settlement, so nothing is mutated here.
func (h *PaymentHandler) Success(c *gin.Context) {
	tranID := c.Param("tran_id")
	c.Redirect(http.StatusFound, h.frontendURL+"/payment/success?tran_id="+tranID)
}

// Fail handles the provider's fail redirect.
func (h *PaymentHandler) Fail(c *gin.Context) {
	tranID := c.Param("tran_id")
	if err := h.settlement.MarkFailed(c.Request.Context(), tranID); err != nil {
		telemetry.Logger.Warn("Fail callback could not update order",
			zap.String("tran_id", tranID),
			zap.Error(err),
		)
	}
	c.Redirect(http.StatusFound, h.frontendURL+"/payment/failed?tran_id="+tranID)
}

// Cancel handles the provider's cancel redirect.
func (h *PaymentHandler) Cancel(c *gin.Context) {
	tranID := c.Param("tran_id")
	if err := h.settlement.MarkCancelled(c.Request.Context(), tranID); err != nil {
		telemetry.Logger.Warn("Cancel callback could not update order",
			zap.String("tran_id", tranID),
			zap.Error(err),
		)
	}
	c.Redirect(http.StatusFound, h.frontendURL+"/payment/failed?tran_id="+tranID)
}
