// Package gateway defines the contract payment-provider adapters implement
// and the registry that resolves a configured gateway to its adapter.
package gateway

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/whoami847/topup-payments/internal/models"
)

// CallbackURLs are the redirect and notification endpoints handed to the
// provider at checkout. They are built by the caller from the public base
// URL; adapters only forward them.
type CallbackURLs struct {
	Success string
	Fail    string
	Cancel  string
	IPN     string
}

// InitiationRequest is everything an adapter needs to open a checkout
// session with its provider.
type InitiationRequest struct {
	Order    *models.Order
	Customer models.Customer
	Callback CallbackURLs
}

// IPNResult is the normalized outcome of validating a provider
// notification. IsValid is false whenever the signature does not match,
// regardless of what the payload's own status field claims.
type IPNResult struct {
	IsValid        bool
	TransactionID  string
	Status         models.OrderStatus
	PaymentDetails map[string]string
}

// DetailsJSON renders the captured provider fields for storage on the
// order. Returns nil when there is nothing to record.
func (r IPNResult) DetailsJSON() []byte {
	if len(r.PaymentDetails) == 0 {
		return nil
	}
	b, err := json.Marshal(r.PaymentDetails)
	if err != nil {
		return nil
	}
	return b
}

// Adapter is implemented once per payment provider.
//
// InitiatePayment opens a checkout session and returns the URL the user is
// redirected to. Transport errors and provider-reported failures are both
// returned as errors; the adapter performs no side effect on the order.
//
// ValidateIPN recomputes the provider's signature over the raw notification
// body using the gateway's server-held secret. Malformed input never
// panics or errors; it maps to IsValid=false.
type Adapter interface {
	Name() string
	InitiatePayment(ctx context.Context, req InitiationRequest, gw *models.Gateway) (string, error)
	ValidateIPN(rawBody []byte, gw *models.Gateway) IPNResult
}

// ExtractTransactionID pulls the transaction id out of a raw notification
// body before the owning gateway is known. Providers deliver either
// form-encoded or JSON bodies; the id field name varies per provider.
func ExtractTransactionID(rawBody []byte) string {
	keys := []string{"tran_id", "mer_txnid", "transaction_id"}

	if vals, err := url.ParseQuery(string(rawBody)); err == nil {
		for _, k := range keys {
			if id := vals.Get(k); id != "" {
				return id
			}
		}
	}

	var body map[string]any
	if err := json.Unmarshal(rawBody, &body); err == nil {
		for _, k := range keys {
			if id, ok := body[k].(string); ok && id != "" {
				return id
			}
		}
	}

	return ""
}
