package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/petcorner/storefront/internal/domain"
	"github.com/petcorner/storefront/internal/platform/httpx"
	"github.com/petcorner/storefront/internal/services"
)

type checkoutRequest struct {
	Address       addressPayload      `json:"address"`
	PaymentMethod string              `json:"payment_method"`
	Card          *cardPayload        `json:"card"`
	Destination   *coordinatesPayload `json:"destination"`
}

func (req checkoutRequest) toCommand(customerID string) services.CheckoutCommand {
	cmd := services.CheckoutCommand{
		CustomerID:    customerID,
		Address:       req.Address.toDomain(),
		PaymentMethod: domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		Destination:   req.Destination.toDomain(),
	}
	if req.Card != nil {
		cmd.Card = &domain.CardDetails{
			HolderName: req.Card.HolderName,
			Number:     req.Card.Number,
			Expiry:     req.Card.Expiry,
			CVC:        req.Card.CVC,
		}
	}
	return cmd
}

// CheckoutHandlers prices and submits the customer's stored cart.
type CheckoutHandlers struct {
	orders services.OrderService
}

// NewCheckoutHandlers constructs checkout handlers backed by the order service.
func NewCheckoutHandlers(orders services.OrderService) *CheckoutHandlers {
	return &CheckoutHandlers{orders: orders}
}

// Routes registers the checkout endpoints on the API root.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/checkout:quote", h.quote)
	r.Post("/checkout", h.checkout)
}

func (h *CheckoutHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}
	customerID, ok := requireCustomer(w, r)
	if !ok {
		return
	}
	var req checkoutRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	quote, err := h.orders.PreviewCheckout(ctx, req.toCommand(customerID))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newQuoteResponse(quote))
}

func (h *CheckoutHandlers) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}
	customerID, ok := requireCustomer(w, r)
	if !ok {
		return
	}
	var req checkoutRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.orders.Checkout(ctx, req.toCommand(customerID))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	draft := result.Draft
	quote := services.Quote{
		Lines:         draft.Lines,
		Totals:        services.OrderTotals{SubtotalExclTax: draft.SubtotalExclTax, TaxTotal: draft.TaxTotal},
		Delivery:      draft.Delivery,
		DeliveryKnown: draft.DeliveryKnown,
		GrandTotal:    draft.GrandTotal,
	}
	httpx.WriteJSON(w, http.StatusCreated, checkoutResponse{
		OrderID:        result.Reference.ID,
		DraftReference: result.Reference.DraftReference,
		CartCleared:    result.CartCleared,
		Quote:          newQuoteResponse(quote),
	})
}
