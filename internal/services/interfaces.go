package services

import (
	"context"

	"github.com/shopspring/decimal"

	domain "github.com/petcorner/storefront/internal/domain"
)

// Order aliases the repository order shape exposed by the service layer.
type Order = domain.Order

// OrderService is the facade used by the HTTP layer to price carts, submit orders, and drive the
// customer-facing order lifecycle.
type OrderService interface {
	// Quote prices an explicit product/quantity snapshot and estimates delivery.
	Quote(ctx context.Context, cmd QuoteCommand) (Quote, error)
	// PreviewCheckout prices the customer's stored cart without submitting anything.
	PreviewCheckout(ctx context.Context, cmd CheckoutCommand) (Quote, error)
	// BuildCheckoutPayload validates checkout data and assembles a submittable draft.
	BuildCheckoutPayload(cmd BuildCheckoutCommand) (domain.OrderDraft, error)
	// SubmitOrder sends a draft to the repository exactly once; it never retries.
	SubmitOrder(ctx context.Context, draft domain.OrderDraft) (domain.OrderReference, error)
	// Checkout runs quote, payload validation, submission and cart clearing for the stored cart.
	Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error)

	ListOrders(ctx context.Context, customerID string) ([]Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)

	// RequestStatusChange re-reads the order, rejects a stale current status and consults the state
	// machine before asking the repository to move it. Notes are written back unchanged.
	RequestStatusChange(ctx context.Context, orderID string, current, target domain.OrderStatus) (StatusChangeResult, error)
	// RequestCustomerStatusChange is RequestStatusChange limited to targets a customer action reaches
	// from the order's status. Cancellation still asks the customer to confirm.
	RequestCustomerStatusChange(ctx context.Context, orderID string, current, target domain.OrderStatus) (StatusChangeResult, error)
	// CancelOrder applies the customer cancel action to the order's current status.
	CancelOrder(ctx context.Context, orderID string) (StatusChangeResult, error)
	// AttachNote merges text into the selected note field using read-modify-write.
	AttachNote(ctx context.Context, orderID, text string, visibility domain.NoteVisibility) (Order, error)
	// AttachFeedback records customer feedback on a delivered order.
	AttachFeedback(ctx context.Context, orderID, text string) (Order, error)

	Describe(status domain.OrderStatus) StatusDescriptor
}

// Notifier surfaces messages to the customer without the core knowing how they are displayed.
type Notifier interface {
	Info(ctx context.Context, message string)
	Error(ctx context.Context, message string, err error)
	// Confirm asks the customer to confirm a destructive action.
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// Locator resolves an address to coordinates when the device did not supply a position.
type Locator interface {
	Locate(ctx context.Context, address domain.Address) (domain.Coordinates, error)
}

// QuoteCommand prices an explicit cart snapshot.
type QuoteCommand struct {
	Products    []domain.CatalogProduct
	Quantities  domain.QuantityMap
	Destination *domain.Coordinates
	Address     *domain.Address
}

// Quote is a priced cart including the delivery estimate.
type Quote struct {
	Lines         []domain.OrderLine
	Totals        OrderTotals
	Delivery      domain.DeliveryEstimate
	DeliveryKnown bool
	GrandTotal    decimal.Decimal
}

// BuildCheckoutCommand carries everything the checkout form collected.
type BuildCheckoutCommand struct {
	CustomerID    string
	Lines         []domain.OrderLine
	Delivery      *domain.DeliveryEstimate
	Address       domain.Address
	PaymentMethod domain.PaymentMethod
	Card          *domain.CardDetails
}

// CheckoutCommand checks out the customer's stored cart.
type CheckoutCommand struct {
	CustomerID    string
	Address       domain.Address
	PaymentMethod domain.PaymentMethod
	Card          *domain.CardDetails
	Destination   *domain.Coordinates
}

// CheckoutResult reports the created order. CartCleared is false when the order was created but
// the cart could not be emptied; the order stands regardless.
type CheckoutResult struct {
	Reference   domain.OrderReference
	Draft       domain.OrderDraft
	CartCleared bool
}

// StatusChangeResult describes the outcome of a status change request.
type StatusChangeResult struct {
	OrderID  string
	Previous domain.OrderStatus
	Current  domain.OrderStatus
	Changed  bool
}
