package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/vendimia/refledger/internal/app/repository"
	"github.com/vendimia/refledger/internal/app/service"
	httpUtil "github.com/vendimia/refledger/internal/http/util"
	"go.uber.org/zap"
)

// AffiliateDeps groups dependencies for commission and settlement endpoints.
type AffiliateDeps struct {
	Logger      *zap.Logger
	Commissions service.CommissionService
	Settlements service.SettlementEngine
	Ledger      service.ClickLedger
	Clicks      repository.ValidatedClickRepository
	Resolver    service.SellerResolver
	Verifier    *httpUtil.SignatureVerifier
}

// AffiliateHandler implements the sale-confirmation webhook and the
// affiliate-facing reporting endpoints.
type AffiliateHandler struct {
	logger      *zap.Logger
	commissions service.CommissionService
	settlements service.SettlementEngine
	ledger      service.ClickLedger
	clicks      repository.ValidatedClickRepository
	resolver    service.SellerResolver
	verifier    *httpUtil.SignatureVerifier
}

// NewAffiliateHandler creates the handler with the provided dependencies.
func NewAffiliateHandler(deps AffiliateDeps) *AffiliateHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	resolver := deps.Resolver
	if resolver == nil {
		resolver = service.SelfSellerResolver{}
	}
	return &AffiliateHandler{
		logger:      logger,
		commissions: deps.Commissions,
		settlements: deps.Settlements,
		ledger:      deps.Ledger,
		clicks:      deps.Clicks,
		resolver:    resolver,
		verifier:    deps.Verifier,
	}
}

// Register wires commission and affiliate routes onto the provided router.
func (h *AffiliateHandler) Register(router fiber.Router) {
	router.Post("/commissions", h.RecordCommission)

	affiliates := router.Group("/affiliates")
	{
		affiliates.Post("/:id/settle", h.Settle)
		affiliates.Get("/:id/links", h.ListLinks)
		affiliates.Get("/:id/commissions", h.ListCommissions)
		affiliates.Get("/:id/clicks", h.ListClicks)
	}
}

// CommissionRequest is the sale-confirmation webhook body. SaleValue and
// CommissionPercent are decimal strings to avoid float drift in transit.
type CommissionRequest struct {
	AffiliateID       string `json:"affiliate_id"`
	SaleID            string `json:"sale_id"`
	SaleValue         string `json:"sale_value"`
	CommissionPercent string `json:"commission_percent"`
	TargetSellerID    string `json:"target_seller_id,omitempty"`
}

const signatureHeader = "X-Webhook-Signature"

// RecordCommission handles POST /api/commissions: book the commission, then
// evaluate settlement for the affiliate.
func (h *AffiliateHandler) RecordCommission(c *fiber.Ctx) error {
	if h.verifier != nil && h.verifier.Enabled() {
		if err := h.verifier.Verify(c.Body(), c.Get(signatureHeader)); err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid webhook signature",
			})
		}
	}

	var req CommissionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	saleValue, err := decimal.NewFromString(req.SaleValue)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "sale_value must be a decimal string",
		})
	}
	pct, err := decimal.NewFromString(req.CommissionPercent)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "commission_percent must be a decimal string",
		})
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	commission, created, err := h.commissions.RecordCommission(ctx, service.RecordCommissionInput{
		AffiliateID:       req.AffiliateID,
		SaleID:            req.SaleID,
		SaleValue:         saleValue,
		CommissionPercent: pct,
	})
	if err != nil {
		if isValidationError(err) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		h.logger.Error("failed to record commission",
			zap.String("sale_id", req.SaleID),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to record commission",
		})
	}

	settlement := h.trySettle(ctx, req.AffiliateID, req.TargetSellerID)

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{
		"commission": commission,
		"created":    created,
		"settlement": settlement,
	})
}

// trySettle runs the post-insert settlement evaluation. Settlement problems
// never fail the commission call; the sweeper retries later.
func (h *AffiliateHandler) trySettle(ctx context.Context, affiliateID, sellerID string) *service.Settlement {
	if sellerID == "" {
		resolved, err := h.resolver.SellerFor(ctx, affiliateID)
		if err != nil {
			h.logger.Error("failed to resolve target seller",
				zap.String("affiliate_id", affiliateID),
				zap.Error(err))
			return nil
		}
		sellerID = resolved
	}

	settlement, err := h.settlements.EvaluateAndSettle(ctx, affiliateID, sellerID)
	if err != nil {
		if !errors.Is(err, service.ErrSettlementInProgress) {
			h.logger.Error("post-commission settlement failed",
				zap.String("affiliate_id", affiliateID),
				zap.Error(err))
		}
		return nil
	}
	return settlement
}

// SettleRequest optionally overrides the settlement target seller.
type SettleRequest struct {
	TargetSellerID string `json:"target_seller_id,omitempty"`
}

// Settle handles POST /api/affiliates/:id/settle, the on-demand evaluation.
func (h *AffiliateHandler) Settle(c *fiber.Ctx) error {
	affiliateID := c.Params("id")
	if affiliateID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "affiliate id is required",
		})
	}

	var req SettleRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
			})
		}
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	sellerID := req.TargetSellerID
	if sellerID == "" {
		resolved, err := h.resolver.SellerFor(ctx, affiliateID)
		if err != nil {
			h.logger.Error("failed to resolve target seller",
				zap.String("affiliate_id", affiliateID),
				zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to resolve target seller",
			})
		}
		sellerID = resolved
	}

	settlement, err := h.settlements.EvaluateAndSettle(ctx, affiliateID, sellerID)
	if err != nil {
		if errors.Is(err, service.ErrSettlementInProgress) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "settlement already in progress",
			})
		}
		h.logger.Error("settlement failed",
			zap.String("affiliate_id", affiliateID),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "settlement failed",
		})
	}

	return c.JSON(settlement)
}

// ListLinks handles GET /api/affiliates/:id/links.
func (h *AffiliateHandler) ListLinks(c *fiber.Ctx) error {
	affiliateID := c.Params("id")

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	links, err := h.ledger.ListLinks(ctx, affiliateID)
	if err != nil {
		h.logger.Error("failed to list affiliate links", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list links",
		})
	}

	return c.JSON(fiber.Map{
		"links": links,
		"count": len(links),
	})
}

// ListCommissions handles GET /api/affiliates/:id/commissions.
func (h *AffiliateHandler) ListCommissions(c *fiber.Ctx) error {
	affiliateID := c.Params("id")
	limit := c.QueryInt("limit")

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	commissions, err := h.commissions.ListCommissions(ctx, affiliateID, limit)
	if err != nil {
		h.logger.Error("failed to list commissions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list commissions",
		})
	}

	return c.JSON(fiber.Map{
		"commissions": commissions,
		"count":       len(commissions),
	})
}

// ListClicks handles GET /api/affiliates/:id/clicks, the audit view that
// includes rejected clicks with their reasons.
func (h *AffiliateHandler) ListClicks(c *fiber.Ctx) error {
	affiliateID := c.Params("id")
	limit := c.QueryInt("limit")

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	clicks, err := h.clicks.ListRecentByAffiliate(ctx, affiliateID, limit)
	if err != nil {
		h.logger.Error("failed to list validated clicks", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list clicks",
		})
	}

	return c.JSON(fiber.Map{
		"clicks": clicks,
		"count":  len(clicks),
	})
}

func isValidationError(err error) bool {
	return errors.Is(err, service.ErrMissingAffiliateID) ||
		errors.Is(err, service.ErrMissingSaleID) ||
		errors.Is(err, service.ErrInvalidSaleValue) ||
		errors.Is(err, service.ErrInvalidCommissionPercent)
}
