package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/whoami847/topup-payments/internal/gateway"
	"github.com/whoami847/topup-payments/internal/models"
)

// memStore is an in-memory OrderRepository with the same compare-and-swap
// semantics as the Postgres implementation, so the concurrency properties
// of settlement can be exercised without a database.
type memStore struct {
	mu        sync.Mutex
	orders    map[string]*models.Order
	balances  map[string]float64
	ledger    []models.WalletTransaction
	settleErr error // injected failure for the atomicity test
}

func newMemStore() *memStore {
	return &memStore{
		orders:   make(map[string]*models.Order),
		balances: make(map[string]float64),
	}
}

func (s *memStore) Create(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ID]; ok {
		return fmt.Errorf("duplicate order id %s", order.ID)
	}
	cp := *order
	cp.CreatedAt = time.Now()
	s.orders[order.ID] = &cp
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	cp := *order
	return &cp, nil
}

func (s *memStore) TransitionState(_ context.Context, id string, to models.OrderStatus, details []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok || order.Status != models.StatusPending {
		return 0, nil
	}
	order.Status = to
	if details != nil {
		order.PaymentDetails = details
	}
	order.UpdatedAt = time.Now()
	return 1, nil
}

func (s *memStore) SettleTopup(_ context.Context, order *models.Order, details []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settleErr != nil {
		return s.settleErr
	}
	stored, ok := s.orders[order.ID]
	if !ok || stored.Status != models.StatusPending {
		return models.ErrAlreadyProcessed
	}
	stored.Status = models.StatusCompleted
	if details != nil {
		stored.PaymentDetails = details
	}
	s.balances[stored.UserID] += stored.Amount
	s.ledger = append(s.ledger, models.WalletTransaction{
		ID:      fmt.Sprintf("ledger-%d", len(s.ledger)+1),
		UserID:  stored.UserID,
		OrderID: stored.ID,
		Amount:  stored.Amount,
		Status:  "completed",
	})
	return nil
}

func (s *memStore) balance(userID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID]
}

func (s *memStore) ledgerEntries(orderID string) []models.WalletTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WalletTransaction
	for _, e := range s.ledger {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out
}

func (s *memStore) status(id string) models.OrderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id].Status
}

type memGateways struct {
	mu   sync.Mutex
	list []*models.Gateway
}

func (g *memGateways) Create(_ context.Context, gw *models.Gateway) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.list = append(g.list, gw)
	return nil
}

func (g *memGateways) GetByID(_ context.Context, id string) (*models.Gateway, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, gw := range g.list {
		if gw.ID == id {
			return gw, nil
		}
	}
	return nil, fmt.Errorf("gateway %s: %w", id, models.ErrNotFound)
}

func (g *memGateways) FirstEnabled(_ context.Context) (*models.Gateway, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, gw := range g.list {
		if gw.Enabled {
			return gw, nil
		}
	}
	return nil, models.ErrNoActiveGateway
}

type memUsers struct {
	ids map[string]bool
}

func (u *memUsers) Exists(_ context.Context, id string) (bool, error) {
	return u.ids[id], nil
}

func (u *memUsers) WalletBalance(_ context.Context, _ string) (float64, error) {
	return 0, nil
}

func (u *memUsers) RecentTransactions(_ context.Context, _ string, _ int) ([]models.WalletTransaction, error) {
	return nil, nil
}

// fakeAdapter returns canned initiation and validation results.
type fakeAdapter struct {
	name       string
	paymentURL string
	initErr    error
	result     gateway.IPNResult
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) InitiatePayment(_ context.Context, _ gateway.InitiationRequest, _ *models.Gateway) (string, error) {
	if f.initErr != nil {
		return "", f.initErr
	}
	return f.paymentURL, nil
}

func (f *fakeAdapter) ValidateIPN(_ []byte, _ *models.Gateway) gateway.IPNResult {
	return f.result
}

// noopLocker always grants the lock; the CAS carries the guarantee.
type noopLocker struct{}

func (noopLocker) TryLock(context.Context, string, time.Duration) (bool, error) { return true, nil }
func (noopLocker) Unlock(context.Context, string) error                        { return nil }

// contendedLocker simulates another delivery holding the settlement lock.
type contendedLocker struct{}

func (contendedLocker) TryLock(context.Context, string, time.Duration) (bool, error) {
	return false, nil
}
func (contendedLocker) Unlock(context.Context, string) error { return nil }

// downLocker simulates the lock service being unreachable.
type downLocker struct{}

func (downLocker) TryLock(context.Context, string, time.Duration) (bool, error) {
	return false, fmt.Errorf("lock service unavailable")
}
func (downLocker) Unlock(context.Context, string) error { return nil }

// spyPublisher records emitted state-change events.
type spyPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *spyPublisher) OrderStateChanged(_ context.Context, order *models.Order, _, to models.OrderStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, order.ID+":"+string(to))
	return nil
}

func (p *spyPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// spyFulfiller records fulfillment handoffs.
type spyFulfiller struct {
	mu     sync.Mutex
	orders []string
}

func (f *spyFulfiller) RequestFulfillment(_ context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, order.ID)
	return nil
}

func (f *spyFulfiller) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}
