package handlers

import (
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/petcorner/storefront/internal/domain"
	"github.com/petcorner/storefront/internal/platform/httpx"
	"github.com/petcorner/storefront/internal/platform/requestctx"
	"github.com/petcorner/storefront/internal/services"
)

type statusChangeRequest struct {
	Current string `json:"current"`
	Target  string `json:"target"`
}

type noteRequest struct {
	Text       string `json:"text"`
	Visibility string `json:"visibility"`
}

type orderListResponse struct {
	Items []orderResponse `json:"items"`
}

// OrderHandlers exposes the customer's orders and the actions available on them.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Post("/{orderID}/status", h.requestStatusChange)
	r.Post("/{orderID}/notes", h.attachNote)
	r.Post("/{orderID}/feedback", h.attachFeedback)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}
	customerID, ok := requireCustomer(w, r)
	if !ok {
		return
	}

	orders, err := h.orders.ListOrders(ctx, customerID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		items = append(items, newOrderResponse(order, h.orders.Describe(order.Status), false))
	}
	httpx.WriteJSON(w, http.StatusOK, orderListResponse{Items: items})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadOwnedOrder(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderResponse(order, h.orders.Describe(order.Status), true))
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, ok := h.loadOwnedOrder(w, r)
	if !ok {
		return
	}
	result, err := h.orders.CancelOrder(ctx, order.ID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newStatusChangeResponse(result))
}

func (h *OrderHandlers) requestStatusChange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req statusChangeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	target := domain.ParseOrderStatus(req.Target)
	if !target.Known() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "target must be a known order status", http.StatusBadRequest))
		return
	}

	order, ok := h.loadOwnedOrder(w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Current) != "" {
		if claimed := domain.ParseOrderStatus(req.Current); claimed != order.Status {
			writeServiceError(ctx, w, &services.StaleStatusError{Expected: claimed, Actual: order.Status})
			return
		}
	}

	result, err := h.orders.RequestCustomerStatusChange(ctx, order.ID, order.Status, target)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newStatusChangeResponse(result))
}

func (h *OrderHandlers) attachNote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req noteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	visibility := domain.NoteVisibility(strings.ToLower(strings.TrimSpace(req.Visibility)))
	if visibility == "" {
		visibility = domain.NoteVisibilityPublic
	}

	order, ok := h.loadOwnedOrder(w, r)
	if !ok {
		return
	}
	if !slices.Contains(h.orders.Describe(order.Status).Actions, services.CustomerActionAttachNote) {
		writeServiceError(ctx, w, &services.ActionNotPermittedError{Status: order.Status, Action: services.CustomerActionAttachNote})
		return
	}
	updated, err := h.orders.AttachNote(ctx, order.ID, req.Text, visibility)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderResponse(updated, h.orders.Describe(updated.Status), false))
}

func (h *OrderHandlers) attachFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req noteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	order, ok := h.loadOwnedOrder(w, r)
	if !ok {
		return
	}
	updated, err := h.orders.AttachFeedback(ctx, order.ID, req.Text)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderResponse(updated, h.orders.Describe(updated.Status), false))
}

// loadOwnedOrder fetches the order named in the path and hides orders of other customers behind
// the same 404 as a missing order.
func (h *OrderHandlers) loadOwnedOrder(w http.ResponseWriter, r *http.Request) (services.Order, bool) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return services.Order{}, false
	}
	customerID, ok := requireCustomer(w, r)
	if !ok {
		return services.Order{}, false
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return services.Order{}, false
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return services.Order{}, false
	}
	if order.CustomerID != "" && order.CustomerID != customerID {
		requestctx.Logger(ctx).Warn("order requested by another customer")
		writeServiceError(ctx, w, services.ErrNotFound)
		return services.Order{}, false
	}
	return order, true
}
