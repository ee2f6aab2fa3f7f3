package repositories

import (
	"context"

	domain "github.com/petcorner/storefront/internal/domain"
)

// DefaultOrderListLimit is the page size requested when listing a customer's orders.
const DefaultOrderListLimit = 100

// RepositoryError wraps low-level failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderPatch carries the fields sent on an order update. Nil fields are left out of the request.
type OrderPatch struct {
	Status      *domain.OrderStatus
	NotePrivate *string
	NotePublic  *string
}

// OrderRepository is the external system of record for orders.
type OrderRepository interface {
	// ListByCustomer returns the customer's orders. A missing collection is reported as an empty slice.
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error)
	// FindByID returns a single order including its lines. Should return a RepositoryError with
	// IsNotFound when the order does not exist.
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// Create submits a new order. The call is not idempotent unless the backend honours the
	// draft's idempotency key.
	Create(ctx context.Context, draft domain.OrderDraft) (domain.OrderReference, error)
	// Update applies patch to the order.
	Update(ctx context.Context, orderID string, patch OrderPatch) error
}

// CatalogRepository resolves product snapshots used to price a cart.
type CatalogRepository interface {
	FindProducts(ctx context.Context, productIDs []string) ([]domain.CatalogProduct, error)
}

// CartSnapshot is the cart content kept per customer: the ordered list of product ids in the cart
// and their requested quantities.
type CartSnapshot struct {
	ProductIDs []string
	Quantities domain.QuantityMap
}

// CartStore persists cart membership and quantities. The order core only reads and clears it.
type CartStore interface {
	Load(ctx context.Context, customerID string) (CartSnapshot, error)
	Save(ctx context.Context, customerID string, cart CartSnapshot) error
	Clear(ctx context.Context, customerID string) error
}

// HealthRepository probes downstream dependencies for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}
