package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/whoami847/topup-payments/internal/gateway"
	"github.com/whoami847/topup-payments/internal/interfaces"
	"github.com/whoami847/topup-payments/internal/models"
	"github.com/whoami847/topup-payments/internal/telemetry"
)

// InitiateRequest is a validated-on-entry request to start a payment.
type InitiateRequest struct {
	UserID      string
	Amount      float64
	Currency    string
	Kind        models.OrderKind
	Description string
	Customer    models.Customer
}

// Initiator creates PENDING orders and opens checkout sessions with the
// selected gateway's provider.
type Initiator struct {
	orders          interfaces.OrderRepository
	gateways        interfaces.GatewayRepository
	users           interfaces.UserRepository
	registry        *gateway.Registry
	publicBaseURL   string
	providerTimeout time.Duration
}

func NewInitiator(
	orders interfaces.OrderRepository,
	gateways interfaces.GatewayRepository,
	users interfaces.UserRepository,
	registry *gateway.Registry,
	publicBaseURL string,
	providerTimeout time.Duration,
) *Initiator {
	return &Initiator{
		orders:          orders,
		gateways:        gateways,
		users:           users,
		registry:        registry,
		publicBaseURL:   strings.TrimRight(publicBaseURL, "/"),
		providerTimeout: providerTimeout,
	}
}

// Initiate validates the request, persists a PENDING order and asks the
// provider for a checkout URL. The order is written before the provider
// call so a crash mid-initiation leaves a resolvable PENDING record, never
// an orphaned provider payment.
func (i *Initiator) Initiate(ctx context.Context, req InitiateRequest) (string, error) {
	if req.Amount <= 0 || math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		telemetry.InitiationsTotal.WithLabelValues("invalid_request").Inc()
		return "", fmt.Errorf("amount must be a positive number: %w", models.ErrInvalidArgument)
	}

	exists, err := i.users.Exists(ctx, req.UserID)
	if err != nil {
		return "", fmt.Errorf("look up user: %w", err)
	}
	if !exists {
		telemetry.InitiationsTotal.WithLabelValues("unknown_user").Inc()
		return "", fmt.Errorf("user %s: %w", req.UserID, models.ErrNotFound)
	}

	gw, err := i.gateways.FirstEnabled(ctx)
	if err != nil {
		telemetry.InitiationsTotal.WithLabelValues("no_gateway").Inc()
		return "", err
	}

	adapter := i.registry.Resolve(gw)
	if adapter == nil {
		telemetry.InitiationsTotal.WithLabelValues("unsupported_gateway").Inc()
		return "", fmt.Errorf("gateway %q: %w", gw.Name, models.ErrUnsupportedGateway)
	}

	kind := req.Kind
	if kind == "" {
		kind = models.KindWalletTopup
	}
	currency := req.Currency
	if currency == "" {
		currency = "BDT"
	}

	order := &models.Order{
		ID:          newTransactionID(),
		UserID:      req.UserID,
		GatewayID:   gw.ID,
		Kind:        kind,
		Amount:      req.Amount,
		Currency:    currency,
		Description: req.Description,
		Status:      models.StatusPending,
	}

	if err := i.orders.Create(ctx, order); err != nil {
		return "", fmt.Errorf("create order: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, i.providerTimeout)
	defer cancel()

	paymentURL, err := adapter.InitiatePayment(callCtx, gateway.InitiationRequest{
		Order:    order,
		Customer: req.Customer,
		Callback: i.callbackURLs(order.ID),
	}, gw)
	if err != nil {
		// The order was created before the provider call; close it out so
		// it does not linger PENDING behind a failed initiation.
		if _, casErr := i.orders.TransitionState(ctx, order.ID, models.StatusFailed, nil); casErr != nil {
			telemetry.Logger.Error("Failed to mark order FAILED after initiation error",
				zap.String("tran_id", order.ID),
				zap.Error(casErr),
			)
		}
		telemetry.InitiationsTotal.WithLabelValues("provider_error").Inc()
		telemetry.Logger.Warn("Payment initiation failed",
			zap.String("tran_id", order.ID),
			zap.String("gateway", gw.Name),
			zap.Error(err),
		)
		return "", err
	}

	telemetry.InitiationsTotal.WithLabelValues("success").Inc()
	telemetry.Logger.Info("Payment initiated",
		zap.String("tran_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.String("gateway", gw.Name),
		zap.Float64("amount", order.Amount),
	)

	return paymentURL, nil
}

func (i *Initiator) callbackURLs(tranID string) gateway.CallbackURLs {
	base := i.publicBaseURL
	return gateway.CallbackURLs{
		Success: fmt.Sprintf("%s/payment/success/%s", base, tranID),
		Fail:    fmt.Sprintf("%s/payment/fail/%s", base, tranID),
		Cancel:  fmt.Sprintf("%s/payment/cancel/%s", base, tranID),
		IPN:     fmt.Sprintf("%s/payment/ipn", base),
	}
}

// newTransactionID builds a time-prefixed unique id. The prefix keeps ids
// sortable and readable in provider dashboards; the uuid suffix makes a
// collision on write effectively impossible.
func newTransactionID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("TXN%s%s", time.Now().UTC().Format("20060102150405"), strings.ToUpper(suffix))
}
