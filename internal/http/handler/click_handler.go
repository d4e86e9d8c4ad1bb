package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/vendimia/refledger/internal/app/model"
	"github.com/vendimia/refledger/internal/app/service"
	"go.uber.org/zap"
)

// ClickDeps groups dependencies required by the click-ingestion handler.
type ClickDeps struct {
	Logger     *zap.Logger
	Classifier service.FraudClassifier
	Ledger     service.ClickLedger
}

// ClickHandler implements the click-ingestion endpoint: classify first, then
// feed the accrual ledger, and report both outcomes to the caller.
type ClickHandler struct {
	logger     *zap.Logger
	classifier service.FraudClassifier
	ledger     service.ClickLedger
}

// NewClickHandler creates a click handler with the provided dependencies.
func NewClickHandler(deps ClickDeps) *ClickHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClickHandler{
		logger:     logger,
		classifier: deps.Classifier,
		ledger:     deps.Ledger,
	}
}

// Register wires click routes onto the provided router.
func (h *ClickHandler) Register(router fiber.Router) {
	router.Post("/clicks", h.Ingest)
}

// ClickRequest is the raw request metadata forwarded by the link frontend.
// IP and user agent fall back to transport-level values when absent.
type ClickRequest struct {
	AffiliateID  string  `json:"affiliate_id"`
	ProductID    string  `json:"product_id"`
	LinkID       *string `json:"link_id,omitempty"`
	IP           string  `json:"ip,omitempty"`
	UserAgent    string  `json:"user_agent,omitempty"`
	Referer      string  `json:"referer,omitempty"`
	Fingerprint  string  `json:"fingerprint,omitempty"`
	ScreenWidth  int     `json:"screen_width,omitempty"`
	ScreenHeight int     `json:"screen_height,omitempty"`
	Timezone     string  `json:"timezone,omitempty"`
	Locale       string  `json:"locale,omitempty"`
}

// ClickResponse reports the classification verdict plus the accrual outcome
// for valid clicks.
type ClickResponse struct {
	Valid   bool             `json:"valid"`
	Reason  string           `json:"reason,omitempty"`
	Device  model.DeviceInfo `json:"device"`
	Accrual *service.Accrual `json:"accrual,omitempty"`
}

// Ingest handles POST /api/clicks.
func (h *ClickHandler) Ingest(c *fiber.Ctx) error {
	var req ClickRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if req.AffiliateID == "" || req.ProductID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "affiliate_id and product_id are required",
		})
	}

	if req.IP == "" {
		req.IP = c.IP()
	}
	if req.UserAgent == "" {
		req.UserAgent = c.Get("User-Agent")
	}
	if req.Referer == "" {
		req.Referer = c.Get("Referer")
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	event := model.ClickEvent{
		AffiliateID:  req.AffiliateID,
		ProductID:    req.ProductID,
		LinkID:       req.LinkID,
		IP:           req.IP,
		UserAgent:    req.UserAgent,
		Referer:      req.Referer,
		Fingerprint:  req.Fingerprint,
		ScreenWidth:  req.ScreenWidth,
		ScreenHeight: req.ScreenHeight,
		Timezone:     req.Timezone,
		Locale:       req.Locale,
		Timestamp:    time.Now().UTC(),
	}

	verdict, err := h.classifier.Classify(ctx, event)
	if err != nil {
		if errors.Is(err, service.ErrMissingAffiliateID) || errors.Is(err, service.ErrMissingProductID) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		h.logger.Error("failed to classify click", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to classify click",
		})
	}

	accrual, err := h.ledger.RecordClick(ctx, req.AffiliateID, req.ProductID, verdict.Valid, event.Timestamp)
	if err != nil {
		h.logger.Error("failed to record click accrual",
			zap.String("affiliate_id", req.AffiliateID),
			zap.String("product_id", req.ProductID),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to record click",
		})
	}

	return c.JSON(ClickResponse{
		Valid:   verdict.Valid,
		Reason:  verdict.Reason,
		Device:  verdict.Device,
		Accrual: accrual,
	})
}
