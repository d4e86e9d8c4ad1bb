package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/vendimia/refledger/internal/app/service"
	"go.uber.org/zap"
)

// BalanceDeps groups dependencies for seller balance endpoints.
type BalanceDeps struct {
	Logger   *zap.Logger
	Balances service.BalanceService
}

// BalanceHandler exposes the materialized seller balance, the movement log
// and the repair-only rebuild.
type BalanceHandler struct {
	logger   *zap.Logger
	balances service.BalanceService
}

// NewBalanceHandler creates a balance handler with the provided dependencies.
func NewBalanceHandler(deps BalanceDeps) *BalanceHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BalanceHandler{
		logger:   logger,
		balances: deps.Balances,
	}
}

// Register wires balance routes onto the provided router.
func (h *BalanceHandler) Register(router fiber.Router) {
	sellers := router.Group("/sellers")
	{
		sellers.Get("/:id/balance", h.GetBalance)
		sellers.Get("/:id/movements", h.ListMovements)
		sellers.Post("/:id/balance/rebuild", h.RebuildBalance)
	}
}

// GetBalance handles GET /api/sellers/:id/balance.
func (h *BalanceHandler) GetBalance(c *fiber.Ctx) error {
	sellerID := c.Params("id")
	if sellerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "seller id is required",
		})
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	balance, err := h.balances.GetBalance(ctx, sellerID)
	if err != nil {
		h.logger.Error("failed to get seller balance",
			zap.String("seller_id", sellerID),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to get balance",
		})
	}

	return c.JSON(balance)
}

// ListMovements handles GET /api/sellers/:id/movements.
func (h *BalanceHandler) ListMovements(c *fiber.Ctx) error {
	sellerID := c.Params("id")
	limit := c.QueryInt("limit")

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	movements, err := h.balances.ListMovements(ctx, sellerID, limit)
	if err != nil {
		h.logger.Error("failed to list balance movements",
			zap.String("seller_id", sellerID),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list movements",
		})
	}

	return c.JSON(fiber.Map{
		"movements": movements,
		"count":     len(movements),
	})
}

// RebuildBalance handles POST /api/sellers/:id/balance/rebuild, the repair
// path that resums the full movement history.
func (h *BalanceHandler) RebuildBalance(c *fiber.Ctx) error {
	sellerID := c.Params("id")
	if sellerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "seller id is required",
		})
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	balance, err := h.balances.RebuildBalance(ctx, sellerID)
	if err != nil {
		h.logger.Error("failed to rebuild seller balance",
			zap.String("seller_id", sellerID),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to rebuild balance",
		})
	}

	return c.JSON(balance)
}
