package models

import "errors"

// Error taxonomy. Handlers map these to HTTP codes with errors.Is; services
// wrap them with context via fmt.Errorf("...: %w", err).
var (
	// ErrInvalidArgument covers bad amounts and missing required fields.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned for unknown users, orders and gateways.
	ErrNotFound = errors.New("not found")

	// ErrNoActiveGateway is returned when no enabled gateway is configured.
	ErrNoActiveGateway = errors.New("no active payment gateway")

	// ErrUnsupportedGateway is returned when a configured gateway has no
	// registered adapter.
	ErrUnsupportedGateway = errors.New("unsupported payment gateway")

	// ErrSignatureInvalid is returned when an IPN fails signature
	// verification. The order is moved to FAILED; the raw payload is kept
	// for audit.
	ErrSignatureInvalid = errors.New("ipn signature invalid")

	// ErrAlreadyProcessed is returned when an order is already terminal.
	// Callers treat it as success: it is the idempotency guard firing, not
	// a failure.
	ErrAlreadyProcessed = errors.New("order already processed")

	// ErrSettlementInProgress is returned when another delivery for the
	// same transaction holds the settlement lock. Unlike
	// ErrAlreadyProcessed nothing is settled yet, so callers must answer
	// with a retryable status: the in-flight delivery may still fail and
	// the provider's redelivery is the only way the order leaves PENDING.
	ErrSettlementInProgress = errors.New("settlement already in progress")

	// ErrGatewayRejected is returned when the provider refuses an
	// initiation request.
	ErrGatewayRejected = errors.New("payment gateway rejected the request")
)
