package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domain "github.com/petcorner/storefront/internal/domain"
	"github.com/petcorner/storefront/internal/platform/httpx"
	"github.com/petcorner/storefront/internal/platform/requestctx"
	"github.com/petcorner/storefront/internal/repositories"
	"github.com/petcorner/storefront/internal/services"
)

const maxCartItems = 100

type cartItemPayload struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type cartRequest struct {
	Items []cartItemPayload `json:"items"`
}

type cartResponse struct {
	Items []cartItemPayload `json:"items"`
	Quote *quoteResponse    `json:"quote,omitempty"`
}

// CartHandlers manage the stored cart that checkout consumes.
type CartHandlers struct {
	carts  repositories.CartStore
	orders services.OrderService
}

// NewCartHandlers constructs cart handlers. orders is optional and only used to price the cart.
func NewCartHandlers(carts repositories.CartStore, orders services.OrderService) *CartHandlers {
	return &CartHandlers{carts: carts, orders: orders}
}

// Routes registers the /cart endpoints.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Put("/", h.putCart)
	r.Delete("/", h.clearCart)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart storage unavailable", http.StatusServiceUnavailable))
		return
	}
	customerID, ok := requireCustomer(w, r)
	if !ok {
		return
	}
	snapshot, err := h.carts.Load(ctx, customerID)
	if err != nil {
		requestctx.Logger(ctx).Error("load cart failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "unable to load cart", http.StatusInternalServerError))
		return
	}

	resp := cartResponse{Items: cartItems(snapshot)}
	if h.orders != nil && len(snapshot.ProductIDs) > 0 {
		quote, err := h.orders.PreviewCheckout(ctx, services.CheckoutCommand{CustomerID: customerID})
		switch {
		case err == nil:
			priced := newQuoteResponse(quote)
			resp.Quote = &priced
		case errors.Is(err, services.ErrEmptyCart):
		default:
			writeServiceError(ctx, w, err)
			return
		}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *CartHandlers) putCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart storage unavailable", http.StatusServiceUnavailable))
		return
	}
	customerID, ok := requireCustomer(w, r)
	if !ok {
		return
	}
	var req cartRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Items) > maxCartItems {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "too many cart items", http.StatusBadRequest))
		return
	}

	snapshot := repositories.CartSnapshot{
		ProductIDs: make([]string, 0, len(req.Items)),
		Quantities: domain.QuantityMap{},
	}
	for _, item := range req.Items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product_id is required", http.StatusBadRequest))
			return
		}
		if item.Quantity < 0 {
			writeServiceError(ctx, w, services.ErrInvalidQuantity)
			return
		}
		snapshot.ProductIDs = append(snapshot.ProductIDs, id)
		if item.Quantity > 0 {
			snapshot.Quantities[id] = item.Quantity
		}
	}
	if err := h.carts.Save(ctx, customerID, snapshot); err != nil {
		requestctx.Logger(ctx).Error("save cart failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "unable to save cart", http.StatusInternalServerError))
		return
	}

	saved, err := h.carts.Load(ctx, customerID)
	if err != nil {
		saved = snapshot
	}
	httpx.WriteJSON(w, http.StatusOK, cartResponse{Items: cartItems(saved)})
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart storage unavailable", http.StatusServiceUnavailable))
		return
	}
	customerID, ok := requireCustomer(w, r)
	if !ok {
		return
	}
	if err := h.carts.Clear(ctx, customerID); err != nil {
		requestctx.Logger(ctx).Error("clear cart failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "unable to clear cart", http.StatusInternalServerError))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// cartItems reports the effective quantity of each product, which defaults to one.
func cartItems(snapshot repositories.CartSnapshot) []cartItemPayload {
	items := make([]cartItemPayload, 0, len(snapshot.ProductIDs))
	for _, id := range snapshot.ProductIDs {
		items = append(items, cartItemPayload{ProductID: id, Quantity: snapshot.Quantities.Resolve(id)})
	}
	return items
}
