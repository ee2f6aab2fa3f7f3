package handlers

import (
	"net/http"
	"strings"

	"github.com/petcorner/storefront/internal/platform/httpx"
	"github.com/petcorner/storefront/internal/platform/requestctx"
)

// CustomerHeader carries the ERP third-party id of the customer the app is signed in as.
const CustomerHeader = "X-Customer-ID"

const maxCustomerIDLength = 64

// CustomerMiddleware records the acting customer on the request context, taking the header when
// present and falling back to the configured default.
func CustomerMiddleware(defaultCustomerID string) func(http.Handler) http.Handler {
	defaultCustomerID = strings.TrimSpace(defaultCustomerID)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			customerID := strings.TrimSpace(r.Header.Get(CustomerHeader))
			if len(customerID) > maxCustomerIDLength {
				httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "customer id is too long", http.StatusBadRequest))
				return
			}
			if customerID == "" {
				customerID = defaultCustomerID
			}
			next.ServeHTTP(w, r.WithContext(requestctx.WithCustomer(r.Context(), customerID)))
		})
	}
}
