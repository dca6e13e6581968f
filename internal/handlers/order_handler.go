package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/whoami847/topup-payments/internal/interfaces"
	"github.com/whoami847/topup-payments/internal/models"
)

type OrderHandler struct {
	orders interfaces.OrderRepository
	users  interfaces.UserRepository
}

func NewOrderHandler(orders interfaces.OrderRepository, users interfaces.UserRepository) *OrderHandler {
	return &OrderHandler{orders: orders, users: users}
}

// GetOrder handles GET /orders/:id. Gateway credentials never appear here;
// the order record only carries the gateway id.
func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.orders.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, models.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch order"})
		return
	}

	c.JSON(http.StatusOK, order)
}

// GetWallet handles GET /users/:id/wallet: current balance plus the most
// recent ledger entries, for the storefront's wallet page.
func (h *OrderHandler) GetWallet(c *gin.Context) {
	userID := c.Param("id")

	exists, err := h.users.Exists(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch wallet"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	balance, err := h.users.WalletBalance(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch wallet"})
		return
	}

	txns, err := h.users.RecentTransactions(c.Request.Context(), userID, 20)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch wallet"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      userID,
		"balance":      balance,
		"transactions": txns,
	})
}
