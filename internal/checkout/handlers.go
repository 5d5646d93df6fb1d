package checkout

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/pos-checkout/internal/cart"
	"github.com/noah-isme/pos-checkout/internal/catalog"
	"github.com/noah-isme/pos-checkout/internal/common"
	"github.com/noah-isme/pos-checkout/internal/obs"
	"github.com/noah-isme/pos-checkout/internal/storefront"
)

const maxRequestBytes = 1 << 20

// Request is the body of the evaluate and checkout endpoints.
type Request struct {
	Items   []Line  `json:"items" validate:"max=100,dive"`
	Options Options `json:"options"`
}

// ProductView is a catalog entry as seen by a shopper with a given cart.
type ProductView struct {
	catalog.Product
	QuantityInCart int               `json:"quantityInCart"`
	Availability   cart.Availability `json:"availability"`
}

// Handler exposes checkout endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

// NewHandler constructs a Handler with a default validator.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc, Validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Products lists the catalog with remaining stock and add availability for
// the cart given as ?cart=<productId>:<qty>,...
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	lines, err := parseCartQuery(r.URL.Query().Get("cart"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	idx := h.Svc.Catalog.Snapshot(r.Context())
	ledger, _ := BuildLedger(idx, lines)
	products := idx.Products()
	out := make([]ProductView, 0, len(products))
	for _, p := range products {
		out = append(out, ProductView{
			Product:        p,
			QuantityInCart: ledger.Quantity(p.ID),
			Availability:   ledger.Availability(idx, p.ID),
		})
	}
	common.Data(w, http.StatusOK, out)
}

// Evaluate prices a cart and reports promotion findings without submitting.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	quote, err := h.Svc.Quote(r.Context(), req.Items, req.Options)
	if err != nil {
		obs.Annotate(r.Context(), OutcomeFailed, len(req.Items))
		h.writeError(w, err, nil)
		return
	}
	outcome := OutcomeReady
	if quote.NeedsResolution() {
		outcome = OutcomeResolutionRequired
	}
	obs.Annotate(r.Context(), outcome, len(quote.Items))
	common.Data(w, http.StatusOK, quote)
}

// Checkout finalizes and submits the order.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if len(req.Items) == 0 {
		obs.Annotate(r.Context(), OutcomeEmpty, 0)
		common.JSONError(w, http.StatusUnprocessableEntity, "EMPTY_CART", "cart is empty", nil)
		return
	}
	out, err := h.Svc.Finalize(r.Context(), req.Items, req.Options, r.Header.Get(common.IdempotencyHeader))
	obs.Annotate(r.Context(), outcomeOf(err), len(req.Items))
	if errors.Is(err, ErrDeclined) {
		common.Data(w, http.StatusOK, out)
		return
	}
	if err != nil {
		h.writeError(w, err, out.Items)
		return
	}
	common.Data(w, http.StatusOK, out)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (Request, bool) {
	var req Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return req, false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid payload", validationDetails(err))
			return req, false
		}
	}
	return req, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error, items []cart.Item) {
	if items == nil {
		items = []cart.Item{}
	}
	var sfErr *storefront.Error
	switch {
	case errors.Is(err, ErrResolutionRequired):
		common.WriteError(w, &common.AppError{
			Code:       "RESOLUTION_REQUIRED",
			Message:    "promotion shortfall needs acceptNonPromoPurchase",
			HTTPStatus: http.StatusConflict,
			Err:        err,
			Details:    map[string]any{"items": items},
		})
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusUnprocessableEntity, "EMPTY_CART", "no purchasable items in cart", map[string]any{"items": items})
	case errors.As(err, &sfErr):
		common.JSONError(w, http.StatusBadGateway, "UPSTREAM_ERROR", sfErr.Message, map[string]any{"items": items, "status": sfErr.Status})
	default:
		common.WriteError(w, err)
	}
}

func outcomeOf(err error) string {
	var sfErr *storefront.Error
	switch {
	case err == nil:
		return StatusCompleted
	case errors.Is(err, ErrDeclined):
		return StatusAborted
	case errors.Is(err, ErrResolutionRequired):
		return OutcomeResolutionRequired
	case errors.Is(err, ErrEmptyCart):
		return OutcomeEmpty
	case errors.As(err, &sfErr):
		return OutcomeUpstreamError
	default:
		return OutcomeFailed
	}
}

func validationDetails(err error) []map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]map[string]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, map[string]string{"field": fe.Namespace(), "rule": fe.Tag()})
	}
	return out
}

func parseCartQuery(raw string) ([]Line, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	lines := make([]Line, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, qtyText, found := strings.Cut(part, ":")
		qty := 1
		if found {
			n, err := strconv.Atoi(strings.TrimSpace(qtyText))
			if err != nil || n < 1 {
				return nil, errors.New("cart entries must be productId:quantity with quantity >= 1")
			}
			qty = n
		}
		lines = append(lines, Line{ProductID: strings.TrimSpace(id), Quantity: qty})
	}
	return lines, nil
}
