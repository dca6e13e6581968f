package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/whoami847/topup-payments/internal/gateway"
	"github.com/whoami847/topup-payments/internal/interfaces"
	"github.com/whoami847/topup-payments/internal/models"
	"github.com/whoami847/topup-payments/internal/telemetry"
)

const ipnLockTTL = 30 * time.Second

// Locker serializes concurrent deliveries for the same transaction id. It
// is an optimization, not the correctness guarantee: the repository's
// compare-and-swap is what makes double-settlement impossible.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// EventPublisher emits order state-change events for downstream consumers.
type EventPublisher interface {
	OrderStateChanged(ctx context.Context, order *models.Order, from, to models.OrderStatus) error
}

// Fulfiller hands a completed product purchase to the fulfillment side.
// Fire-and-forget; settlement does not depend on its outcome.
type Fulfiller interface {
	RequestFulfillment(ctx context.Context, order *models.Order) error
}

// Settlement is the IPN handler: it validates provider notifications and
// performs the single atomic order+wallet+ledger transition.
type Settlement struct {
	orders   interfaces.OrderRepository
	gateways interfaces.GatewayRepository
	registry *gateway.Registry
	locker   Locker
	events   EventPublisher
	fulfill  Fulfiller
}

func NewSettlement(
	orders interfaces.OrderRepository,
	gateways interfaces.GatewayRepository,
	registry *gateway.Registry,
	locker Locker,
	events EventPublisher,
	fulfill Fulfiller,
) *Settlement {
	return &Settlement{
		orders:   orders,
		gateways: gateways,
		registry: registry,
		locker:   locker,
		events:   events,
		fulfill:  fulfill,
	}
}

// HandleIPN processes one provider notification. Safe under arbitrary
// retransmission and out-of-order delivery: a terminal order short-circuits
// to ErrAlreadyProcessed, which callers treat as success.
//
// The provider's own retry policy is the only retry mechanism. A failure
// partway through leaves the order PENDING, so the next delivery gets a
// clean attempt; a success is absorbing.
func (s *Settlement) HandleIPN(ctx context.Context, rawBody []byte) error {
	tranID := gateway.ExtractTransactionID(rawBody)
	if tranID == "" {
		telemetry.IPNResultsTotal.WithLabelValues("malformed").Inc()
		return fmt.Errorf("notification has no transaction id: %w", models.ErrInvalidArgument)
	}

	order, err := s.orders.GetByID(ctx, tranID)
	if err != nil {
		telemetry.IPNResultsTotal.WithLabelValues("unknown_order").Inc()
		return err
	}

	if order.Status.IsTerminal() {
		telemetry.IPNResultsTotal.WithLabelValues("already_processed").Inc()
		return models.ErrAlreadyProcessed
	}

	lockKey := "ipn_lock:" + tranID
	locked, err := s.locker.TryLock(ctx, lockKey, ipnLockTTL)
	if err != nil {
		// Lock service unavailable; the CAS below still guarantees
		// at-most-once, so keep going.
		telemetry.Logger.Warn("IPN lock unavailable, proceeding on CAS only",
			zap.String("tran_id", tranID),
			zap.Error(err),
		)
	} else if !locked {
		// The holder may still fail and leave the order PENDING, so this
		// delivery must not be acknowledged as processed; a retryable
		// answer keeps the provider redelivering until a terminal status
		// really exists.
		telemetry.IPNResultsTotal.WithLabelValues("contended").Inc()
		return fmt.Errorf("order %s: %w", tranID, models.ErrSettlementInProgress)
	} else {
		defer s.locker.Unlock(ctx, lockKey)
	}

	gw, err := s.gateways.GetByID(ctx, order.GatewayID)
	if err != nil {
		telemetry.IPNResultsTotal.WithLabelValues("misconfigured").Inc()
		return fmt.Errorf("resolve gateway for order %s: %w", tranID, err)
	}

	adapter := s.registry.Resolve(gw)
	if adapter == nil {
		telemetry.IPNResultsTotal.WithLabelValues("misconfigured").Inc()
		return fmt.Errorf("gateway %q: %w", gw.Name, models.ErrUnsupportedGateway)
	}

	result := adapter.ValidateIPN(rawBody, gw)
	if !result.IsValid {
		return s.failOnInvalidSignature(ctx, order, rawBody)
	}

	if result.Status != models.StatusCompleted {
		return s.transition(ctx, order, models.StatusFailed, result.DetailsJSON(), "provider_failed")
	}

	if order.Kind == models.KindWalletTopup {
		return s.settleTopup(ctx, order, result)
	}
	return s.settlePurchase(ctx, order, result)
}

// MarkFailed handles the provider's fail redirect. Idempotent: a terminal
// order is left untouched.
func (s *Settlement) MarkFailed(ctx context.Context, tranID string) error {
	order, err := s.orders.GetByID(ctx, tranID)
	if err != nil {
		return err
	}
	if order.Status.IsTerminal() {
		return nil
	}
	return s.transition(ctx, order, models.StatusFailed, nil, "callback_failed")
}

// MarkCancelled handles the provider's cancel redirect, with the same
// idempotency as MarkFailed.
func (s *Settlement) MarkCancelled(ctx context.Context, tranID string) error {
	order, err := s.orders.GetByID(ctx, tranID)
	if err != nil {
		return err
	}
	if order.Status.IsTerminal() {
		return nil
	}
	return s.transition(ctx, order, models.StatusCancelled, nil, "callback_cancelled")
}

func (s *Settlement) failOnInvalidSignature(ctx context.Context, order *models.Order, rawBody []byte) error {
	// Keep the raw payload: a forged or corrupted notification is an
	// incident to investigate, not just a declined payment.
	audit, _ := json.Marshal(map[string]string{
		"reason":  "signature verification failed",
		"raw_ipn": string(rawBody),
	})

	rows, err := s.orders.TransitionState(ctx, order.ID, models.StatusFailed, audit)
	if err != nil {
		return err
	}
	if rows > 0 {
		s.publish(ctx, order, models.StatusPending, models.StatusFailed)
	}

	telemetry.IPNResultsTotal.WithLabelValues("signature_invalid").Inc()
	telemetry.Logger.Warn("IPN signature verification failed",
		zap.String("tran_id", order.ID),
	)
	return fmt.Errorf("order %s: %w", order.ID, models.ErrSignatureInvalid)
}

func (s *Settlement) settleTopup(ctx context.Context, order *models.Order, result gateway.IPNResult) error {
	err := s.orders.SettleTopup(ctx, order, result.DetailsJSON())
	if errors.Is(err, models.ErrAlreadyProcessed) {
		telemetry.IPNResultsTotal.WithLabelValues("already_processed").Inc()
		return models.ErrAlreadyProcessed
	}
	if err != nil {
		// Nothing committed; the order stays PENDING for the provider's
		// next delivery.
		return fmt.Errorf("settle top-up %s: %w", order.ID, err)
	}

	telemetry.IPNResultsTotal.WithLabelValues("completed").Inc()
	telemetry.WalletCreditedTotal.Add(order.Amount)
	telemetry.Logger.Info("Wallet top-up settled",
		zap.String("tran_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.Float64("amount", order.Amount),
	)

	s.publish(ctx, order, models.StatusPending, models.StatusCompleted)
	return nil
}

func (s *Settlement) settlePurchase(ctx context.Context, order *models.Order, result gateway.IPNResult) error {
	rows, err := s.orders.TransitionState(ctx, order.ID, models.StatusCompleted, result.DetailsJSON())
	if err != nil {
		return err
	}
	if rows == 0 {
		telemetry.IPNResultsTotal.WithLabelValues("already_processed").Inc()
		return models.ErrAlreadyProcessed
	}

	telemetry.IPNResultsTotal.WithLabelValues("completed").Inc()
	telemetry.Logger.Info("Product purchase settled",
		zap.String("tran_id", order.ID),
		zap.String("user_id", order.UserID),
	)

	s.publish(ctx, order, models.StatusPending, models.StatusCompleted)

	if err := s.fulfill.RequestFulfillment(ctx, order); err != nil {
		telemetry.Logger.Warn("Fulfillment handoff failed",
			zap.String("tran_id", order.ID),
			zap.Error(err),
		)
	}
	return nil
}

func (s *Settlement) transition(ctx context.Context, order *models.Order, to models.OrderStatus, details []byte, metric string) error {
	rows, err := s.orders.TransitionState(ctx, order.ID, to, details)
	if err != nil {
		return err
	}
	if rows == 0 {
		return nil
	}

	telemetry.IPNResultsTotal.WithLabelValues(metric).Inc()
	telemetry.Logger.Info("Order state transition",
		zap.String("tran_id", order.ID),
		zap.String("from_state", string(models.StatusPending)),
		zap.String("to_state", string(to)),
	)

	s.publish(ctx, order, models.StatusPending, to)
	return nil
}

func (s *Settlement) publish(ctx context.Context, order *models.Order, from, to models.OrderStatus) {
	if err := s.events.OrderStateChanged(ctx, order, from, to); err != nil {
		telemetry.Logger.Warn("Failed to publish state-change event",
			zap.String("tran_id", order.ID),
			zap.Error(err),
		)
	}
}
