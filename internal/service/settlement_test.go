package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whoami847/topup-payments/internal/gateway"
	"github.com/whoami847/topup-payments/internal/models"
)

type settlementFixture struct {
	store      *memStore
	gateways   *memGateways
	adapter    *fakeAdapter
	publisher  *spyPublisher
	fulfiller  *spyFulfiller
	settlement *Settlement
}

func newSettlementFixture(t *testing.T, kind models.OrderKind, amount float64) (*settlementFixture, *models.Order) {
	t.Helper()

	store := newMemStore()
	gateways := &memGateways{}
	adapter := &fakeAdapter{name: "fakepay"}
	publisher := &spyPublisher{}
	fulfiller := &spyFulfiller{}

	gw := &models.Gateway{ID: "gw-1", Name: "fakepay", StoreID: "s", StoreSecret: "k", Enabled: true}
	require.NoError(t, gateways.Create(context.Background(), gw))

	order := &models.Order{
		ID:        "TXN-IPN-1",
		UserID:    "u1",
		GatewayID: gw.ID,
		Kind:      kind,
		Amount:    amount,
		Currency:  "BDT",
		Status:    models.StatusPending,
	}
	require.NoError(t, store.Create(context.Background(), order))

	settlement := NewSettlement(store, gateways, gateway.NewRegistry(adapter),
		noopLocker{}, publisher, fulfiller)

	return &settlementFixture{
		store:      store,
		gateways:   gateways,
		adapter:    adapter,
		publisher:  publisher,
		fulfiller:  fulfiller,
		settlement: settlement,
	}, order
}

func validIPN(tranID string) gateway.IPNResult {
	return gateway.IPNResult{
		IsValid:        true,
		TransactionID:  tranID,
		Status:         models.StatusCompleted,
		PaymentDetails: map[string]string{"bank_tran_id": "BANK123"},
	}
}

func TestHandleIPN_TopupCreditsWalletExactly(t *testing.T) {
	f, order := newSettlementFixture(t, models.KindWalletTopup, 512.75)
	f.adapter.result = validIPN(order.ID)

	err := f.settlement.HandleIPN(context.Background(), []byte("tran_id="+order.ID))
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, f.store.status(order.ID))
	assert.Equal(t, 512.75, f.store.balance("u1"))

	entries := f.store.ledgerEntries(order.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, 512.75, entries[0].Amount)
	assert.Equal(t, 1, f.publisher.count())
	assert.Equal(t, 0, f.fulfiller.count(), "top-ups never reach fulfillment")
}

func TestHandleIPN_InvalidSignatureFailsOrderWalletUntouched(t *testing.T) {
	f, order := newSettlementFixture(t, models.KindWalletTopup, 500)
	f.adapter.result = gateway.IPNResult{IsValid: false, TransactionID: order.ID}

	rawBody := []byte("tran_id=" + order.ID + "&status=VALID&verify_sign=forged")
	err := f.settlement.HandleIPN(context.Background(), rawBody)

	assert.ErrorIs(t, err, models.ErrSignatureInvalid)
	assert.Equal(t, models.StatusFailed, f.store.status(order.ID))
	assert.Equal(t, 0.0, f.store.balance("u1"))

	// The raw payload is retained on the order for audit.
	stored, getErr := f.store.GetByID(context.Background(), order.ID)
	require.NoError(t, getErr)
	assert.Contains(t, string(stored.PaymentDetails), "forged")
}

func TestHandleIPN_RedeliveryIsIdempotent(t *testing.T) {
	f, order := newSettlementFixture(t, models.KindWalletTopup, 500)
	f.adapter.result = validIPN(order.ID)
	rawBody := []byte("tran_id=" + order.ID)

	require.NoError(t, f.settlement.HandleIPN(context.Background(), rawBody))

	for i := 0; i < 5; i++ {
		err := f.settlement.HandleIPN(context.Background(), rawBody)
		assert.ErrorIs(t, err, models.ErrAlreadyProcessed)
	}

	assert.Equal(t, 500.0, f.store.balance("u1"), "wallet credited at most once")
	assert.Len(t, f.store.ledgerEntries(order.ID), 1)
}

func TestHandleIPN_ConcurrentDeliveriesCreditOnce(t *testing.T) {
	f, order := newSettlementFixture(t, models.KindWalletTopup, 500)
	f.adapter.result = validIPN(order.ID)
	rawBody := []byte("tran_id=" + order.ID)

	const deliveries = 16
	var wg sync.WaitGroup
	errs := make([]error, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.settlement.HandleIPN(context.Background(), rawBody)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, models.ErrAlreadyProcessed):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded, "exactly one delivery settles")
	assert.Equal(t, 500.0, f.store.balance("u1"), "wallet credited exactly once")
	assert.Len(t, f.store.ledgerEntries(order.ID), 1)
}

func TestHandleIPN_LockContentionIsRetryable(t *testing.T) {
	f, order := newSettlementFixture(t, models.KindWalletTopup, 500)
	f.adapter.result = validIPN(order.ID)
	f.settlement = NewSettlement(f.store, f.gateways, gateway.NewRegistry(f.adapter),
		contendedLocker{}, f.publisher, f.fulfiller)

	err := f.settlement.HandleIPN(context.Background(), []byte("tran_id="+order.ID))

	// The holder may still fail, so a contended delivery must not report
	// success: the provider has to keep retrying until a terminal status
	// exists.
	assert.ErrorIs(t, err, models.ErrSettlementInProgress)
	assert.NotErrorIs(t, err, models.ErrAlreadyProcessed)
	assert.Equal(t, models.StatusPending, f.store.status(order.ID))
	assert.Equal(t, 0.0, f.store.balance("u1"))
	assert.Len(t, f.store.ledgerEntries(order.ID), 0)
}

func TestHandleIPN_ContentionAfterSettlementReportsProcessed(t *testing.T) {
	f, order := newSettlementFixture(t, models.KindWalletTopup, 500)
	f.adapter.result = validIPN(order.ID)
	require.NoError(t, f.settlement.HandleIPN(context.Background(), []byte("tran_id="+order.ID)))

	// Once the order is terminal the lock no longer matters; redelivery
	// acknowledges instead of asking the provider to retry forever.
	f.settlement = NewSettlement(f.store, f.gateways, gateway.NewRegistry(f.adapter),
		contendedLocker{}, f.publisher, f.fulfiller)

	err := f.settlement.HandleIPN(context.Background(), []byte("tran_id="+order.ID))
	assert.ErrorIs(t, err, models.ErrAlreadyProcessed)
	assert.Equal(t, 500.0, f.store.balance("u1"))
}

func TestHandleIPN_LockOutageFallsBackToCAS(t *testing.T) {
	f, order := newSettlementFixture(t, models.KindWalletTopup, 500)
	f.adapter.result = validIPN(order.ID)
	f.settlement = NewSettlement(f.store, f.gateways, gateway.NewRegistry(f.adapter),
		downLocker{}, f.publisher, f.fulfiller)

	err := f.settlement.HandleIPN(context.Background(), []byte("tran_id="+order.ID))
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, f.store.status(order.ID))
	assert.Equal(t, 500.0, f.store.balance("u1"))
}

func TestHandleIPN_ProviderReportedFailure(t *testing.T) {
	f, order := newSettlementFixture(t, models.KindWalletTopup, 500)
	f.adapter.result = gateway.IPNResult{
		IsValid:       true,
		TransactionID: order.ID,
		Status:        models.StatusFailed,
	}

	err := f.settlement.HandleIPN(context.Background(), []byte("tran_id="+order.ID))
	require.NoError(t, err)

	assert.Equal(t, models.StatusFailed, f.store.status(order.ID))
	assert.Equal(t, 0.0, f.store.balance("u1"))
}

func TestHandleIPN_PurchaseHandsOffToFulfillment(t *testing.T) {
	f, order := newSettlementFixture(t, models.KindProductPurchase, 250)
	f.adapter.result = validIPN(order.ID)

	err := f.settlement.HandleIPN(context.Background(), []byte("tran_id="+order.ID))
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, f.store.status(order.ID))
	assert.Equal(t, 0.0, f.store.balance("u1"), "purchases never touch the wallet")
	assert.Equal(t, 1, f.fulfiller.count())
}

func TestHandleIPN_MissingTransactionID(t *testing.T) {
	f, _ := newSettlementFixture(t, models.KindWalletTopup, 500)

	err := f.settlement.HandleIPN(context.Background(), []byte("status=VALID"))
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestHandleIPN_UnknownOrder(t *testing.T) {
	f, _ := newSettlementFixture(t, models.KindWalletTopup, 500)

	err := f.settlement.HandleIPN(context.Background(), []byte("tran_id=TXN-GHOST"))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestHandleIPN_UnsupportedGateway(t *testing.T) {
	f, order := newSettlementFixture(t, models.KindWalletTopup, 500)
	// Reconfigure the order's gateway to a provider with no adapter.
	f.gateways.list[0].Name = "unknownpay"

	err := f.settlement.HandleIPN(context.Background(), []byte("tran_id="+order.ID))
	assert.ErrorIs(t, err, models.ErrUnsupportedGateway)
	assert.Equal(t, models.StatusPending, f.store.status(order.ID), "misconfiguration never mutates state")
}

func TestHandleIPN_StorageFailureLeavesOrderPending(t *testing.T) {
	f, order := newSettlementFixture(t, models.KindWalletTopup, 500)
	f.adapter.result = validIPN(order.ID)
	f.store.settleErr = errors.New("connection reset")

	err := f.settlement.HandleIPN(context.Background(), []byte("tran_id="+order.ID))
	require.Error(t, err)

	// Nothing committed: the provider's next retry gets a clean attempt.
	assert.Equal(t, models.StatusPending, f.store.status(order.ID))
	assert.Equal(t, 0.0, f.store.balance("u1"))
}

func TestMarkFailed(t *testing.T) {
	f, order := newSettlementFixture(t, models.KindWalletTopup, 500)

	require.NoError(t, f.settlement.MarkFailed(context.Background(), order.ID))
	assert.Equal(t, models.StatusFailed, f.store.status(order.ID))

	// Repeat is a no-op.
	require.NoError(t, f.settlement.MarkFailed(context.Background(), order.ID))
	assert.Equal(t, 1, f.publisher.count())
}

func TestMarkCancelled(t *testing.T) {
	f, order := newSettlementFixture(t, models.KindWalletTopup, 500)

	require.NoError(t, f.settlement.MarkCancelled(context.Background(), order.ID))
	assert.Equal(t, models.StatusCancelled, f.store.status(order.ID))
}

func TestMarkCancelled_NeverRevertsCompleted(t *testing.T) {
	f, order := newSettlementFixture(t, models.KindWalletTopup, 500)
	f.adapter.result = validIPN(order.ID)
	require.NoError(t, f.settlement.HandleIPN(context.Background(), []byte("tran_id="+order.ID)))

	require.NoError(t, f.settlement.MarkCancelled(context.Background(), order.ID))
	assert.Equal(t, models.StatusCompleted, f.store.status(order.ID))
	assert.Equal(t, 500.0, f.store.balance("u1"))
}

func TestMarkFailed_UnknownOrder(t *testing.T) {
	f, _ := newSettlementFixture(t, models.KindWalletTopup, 500)
	err := f.settlement.MarkFailed(context.Background(), "TXN-GHOST")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
