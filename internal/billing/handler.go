package billing

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const idempotencyKeyHeader = "Idempotency-Key"

// Handler exposes billing HTTP endpoints.
type Handler struct {
	service *Service
	cron    *Cron
}

// NewHandler builds a billing HTTP handler. cron may be nil when the sweep is
// disabled on this instance.
func NewHandler(service *Service, cron *Cron) *Handler {
	return &Handler{service: service, cron: cron}
}

type submitUsageRequest struct {
	CustomerID string `json:"customerId"`
	ProductID  string `json:"productId"`
	Units      int64  `json:"units"`
}

// SubmitUsage records a usage event.
func (h *Handler) SubmitUsage(c *fiber.Ctx) error {
	var req submitUsageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	view, err := h.service.SubmitUsage(c.UserContext(), UsageInput{
		CustomerID: strings.TrimSpace(req.CustomerID),
		ProductID:  strings.TrimSpace(req.ProductID),
		Units:      req.Units,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(view)
}

type creditRequest struct {
	CustomerID     string `json:"customerId"`
	AmountCents    int64  `json:"amountCents"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// Credit tops up a wallet. The Idempotency-Key header takes precedence over
// the body field.
func (h *Handler) Credit(c *fiber.Ctx) error {
	var req creditRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	key := c.Get(idempotencyKeyHeader)
	if strings.TrimSpace(key) == "" {
		key = req.IdempotencyKey
	}
	res, err := h.service.CreditWallet(c.UserContext(), CreditInput{
		CustomerID:     strings.TrimSpace(req.CustomerID),
		AmountCents:    req.AmountCents,
		IdempotencyKey: key,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(res)
}

// Balance returns the cached balance and usage history.
func (h *Handler) Balance(c *fiber.Ctx) error {
	view, err := h.service.GetBalance(c.UserContext(), c.Params("customerId"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(view)
}

// Ledger returns the wallet audit trail.
func (h *Handler) Ledger(c *fiber.Ctx) error {
	view, err := h.service.WalletLedger(c.UserContext(), c.Params("customerId"), c.QueryInt("limit", defaultLedgerLimit))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(view)
}

type productResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

// ListProducts returns the catalog.
func (h *Handler) ListProducts(c *fiber.Ctx) error {
	products, err := h.service.ListProducts(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, productResponse{ID: p.ID, Name: p.Name, UnitPriceCents: p.UnitPriceCents})
	}
	return c.JSON(out)
}

type createCustomerRequest struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	OpeningBalanceCents int64  `json:"openingBalanceCents"`
}

func (h *Handler) CreateCustomer(c *fiber.Ctx) error {
	var req createCustomerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	view, err := h.service.CreateCustomer(c.UserContext(), CustomerInput(req))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(view)
}

type createProductRequest struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

func (h *Handler) CreateProduct(c *fiber.Ctx) error {
	var req createProductRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	p, err := h.service.CreateProduct(c.UserContext(), ProductInput(req))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(productResponse{ID: p.ID, Name: p.Name, UnitPriceCents: p.UnitPriceCents})
}

type updatePriceRequest struct {
	UnitPriceCents *int64 `json:"unitPriceCents"`
}

func (h *Handler) UpdateProductPrice(c *fiber.Ctx) error {
	var req updatePriceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.UnitPriceCents == nil {
		return fiber.NewError(http.StatusBadRequest, "unitPriceCents is required")
	}
	p, err := h.service.UpdateProductPrice(c.UserContext(), c.Params("productId"), *req.UnitPriceCents)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(productResponse{ID: p.ID, Name: p.Name, UnitPriceCents: p.UnitPriceCents})
}

// RunSweep triggers a billing sweep through the cron guard.
func (h *Handler) RunSweep(c *fiber.Ctx) error {
	if h.cron == nil {
		return fiber.NewError(http.StatusServiceUnavailable, "billing cron disabled on this instance")
	}
	report, err := h.cron.RunOnce(c.UserContext())
	switch {
	case errors.Is(err, ErrNotLeader), errors.Is(err, ErrSweepInProgress):
		return fiber.NewError(http.StatusConflict, err.Error())
	case err != nil:
		return toHTTPError(err)
	}
	return c.JSON(fiber.Map{
		"count":  report.EventsBilled,
		"report": report,
	})
}

func toHTTPError(err error) error {
	var be *Error
	if !errors.As(err, &be) {
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
	switch be.Kind {
	case KindNotFound:
		return fiber.NewError(http.StatusNotFound, be.Message)
	case KindConflict:
		return fiber.NewError(http.StatusConflict, be.Message)
	case KindInvalid:
		return fiber.NewError(http.StatusBadRequest, be.Message)
	default:
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
}
