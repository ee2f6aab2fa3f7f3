package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/petcorner/storefront/internal/platform/httpx"
	"github.com/petcorner/storefront/internal/platform/requestctx"
	"github.com/petcorner/storefront/internal/services"
)

const maxRequestBodySize = 16 * 1024

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxRequestBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeBody reads and decodes a JSON body, writing the error response itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxRequestBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func requireCustomer(w http.ResponseWriter, r *http.Request) (string, bool) {
	customerID := requestctx.CustomerID(r.Context())
	if customerID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("customer_required", "a customer id is required", http.StatusUnauthorized))
		return "", false
	}
	return customerID, true
}

func writeServiceUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
}

// writeServiceError maps order core errors onto the JSON error envelope. The message is the
// customer-facing text from services.UserMessage.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	message := services.UserMessage(err)
	var incomplete *services.IncompleteCheckoutError
	switch {
	case errors.As(err, &incomplete):
		httpx.WriteError(ctx, w, httpx.NewError("incomplete_checkout", message, http.StatusUnprocessableEntity).
			WithDetails(map[string]any{"missing": incomplete.Missing}))
	case errors.Is(err, services.ErrEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", message, http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrInvalidQuantity):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_quantity", message, http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrInvalidPrice):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_price", message, http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrIllegalTransition):
		httpx.WriteError(ctx, w, httpx.NewError("illegal_transition", message, http.StatusConflict))
	case errors.Is(err, services.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", message, http.StatusNotFound))
	case errors.Is(err, services.ErrGeolocationUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("geolocation_unavailable", message, http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
	case errors.Is(err, services.ErrNetwork):
		requestctx.Logger(ctx).Warn("order repository call failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("upstream_unavailable", message, http.StatusBadGateway))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("request_timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		requestctx.Logger(ctx).Error("unexpected order error", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", message, http.StatusInternalServerError))
	}
}
