package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/petcorner/storefront/internal/domain"
	"github.com/petcorner/storefront/internal/repositories"
)

const (
	orderEventSubmitted       = "order.submitted"
	orderEventStatusRequested = "order.status.requested"
	orderEventNoteAttached    = "order.note.attached"
	orderEventCartClearFailed = "order.cart.clear.failed"
	orderEventDeliveryUnknown = "order.delivery.unknown"

	draftReferencePrefix = "drf_"
	maxNoteLength        = 2000
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Catalog       repositories.CatalogRepository
	Carts         repositories.CartStore
	Locator       Locator
	StoreLocation *domain.Coordinates
	Notifier      Notifier
	Clock         func() time.Time
	IDGenerator   func() string
	KeyGenerator  func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	catalog    repositories.CatalogRepository
	carts      repositories.CartStore
	locator    Locator
	store      *domain.Coordinates
	notifier   Notifier
	clock      func() time.Time
	newID      func() string
	newKey     func() string
	logger     func(context.Context, string, map[string]any)
	states     OrderStateMachine
	reconciler *CartReconciler
	pricing    PricingCalculator
	delivery   *DeliveryCostEstimator
	notes      *bluemonday.Policy
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	keyGen := deps.KeyGenerator
	if keyGen == nil {
		keyGen = func() string {
			return uuid.NewString()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}

	var store *domain.Coordinates
	if deps.StoreLocation != nil {
		loc := *deps.StoreLocation
		store = &loc
	}

	return &orderService{
		orders:   deps.Orders,
		catalog:  deps.Catalog,
		carts:    deps.Carts,
		locator:  deps.Locator,
		store:    store,
		notifier: notifier,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:      idGen,
		newKey:     keyGen,
		logger:     logger,
		reconciler: NewCartReconciler(),
		delivery:   NewDeliveryCostEstimator(),
		notes:      bluemonday.StrictPolicy(),
	}, nil
}

func (s *orderService) Quote(ctx context.Context, cmd QuoteCommand) (Quote, error) {
	lines, err := s.reconciler.Reconcile(cmd.Products, cmd.Quantities)
	if err != nil {
		return Quote{}, err
	}
	totals := s.pricing.Aggregate(lines)

	estimate, known := s.estimateDelivery(ctx, cmd.Destination, cmd.Address)

	return Quote{
		Lines:         lines,
		Totals:        totals,
		Delivery:      estimate,
		DeliveryKnown: known,
		GrandTotal:    totals.SubtotalExclTax.Add(totals.TaxTotal).Add(estimate.Cost),
	}, nil
}

func (s *orderService) PreviewCheckout(ctx context.Context, cmd CheckoutCommand) (Quote, error) {
	products, quantities, err := s.loadCart(ctx, cmd.CustomerID)
	if err != nil {
		return Quote{}, err
	}
	address := cmd.Address
	return s.Quote(ctx, QuoteCommand{
		Products:    products,
		Quantities:  quantities,
		Destination: cmd.Destination,
		Address:     &address,
	})
}

func (s *orderService) BuildCheckoutPayload(cmd BuildCheckoutCommand) (domain.OrderDraft, error) {
	if len(cmd.Lines) == 0 {
		return domain.OrderDraft{}, ErrEmptyCart
	}

	var missing []string
	if strings.TrimSpace(cmd.CustomerID) == "" {
		missing = append(missing, "customer_id")
	}
	if strings.TrimSpace(cmd.Address.Street) == "" {
		missing = append(missing, "address.street")
	}
	if strings.TrimSpace(cmd.Address.City) == "" {
		missing = append(missing, "address.city")
	}
	if strings.TrimSpace(cmd.Address.PostalCode) == "" {
		missing = append(missing, "address.postal_code")
	}
	method := domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(cmd.PaymentMethod))))
	switch method {
	case domain.PaymentMethodCashOnDelivery:
	case domain.PaymentMethodCard:
		if cmd.Card == nil || strings.TrimSpace(cmd.Card.Number) == "" {
			missing = append(missing, "card_details")
		}
	default:
		missing = append(missing, "payment_method")
	}
	if len(missing) > 0 {
		return domain.OrderDraft{}, &IncompleteCheckoutError{Missing: missing}
	}

	for _, line := range cmd.Lines {
		if line.Quantity < 1 {
			return domain.OrderDraft{}, fmt.Errorf("%w: product %s has quantity %d", ErrInvalidQuantity, line.ProductID, line.Quantity)
		}
	}

	lines := make([]domain.OrderLine, len(cmd.Lines))
	copy(lines, cmd.Lines)
	totals := s.pricing.Aggregate(lines)

	delivery := domain.DeliveryEstimate{Cost: decimal.Zero}
	known := false
	if cmd.Delivery != nil {
		delivery = *cmd.Delivery
		known = true
	}

	draft := domain.OrderDraft{
		Reference:       draftReferencePrefix + s.newID(),
		IdempotencyKey:  s.newKey(),
		CustomerID:      strings.TrimSpace(cmd.CustomerID),
		Lines:           lines,
		Delivery:        delivery,
		DeliveryKnown:   known,
		Address:         trimAddress(cmd.Address),
		PaymentMethod:   method,
		SubtotalExclTax: totals.SubtotalExclTax,
		TaxTotal:        totals.TaxTotal,
		DeliveryCost:    delivery.Cost,
		GrandTotal:      totals.SubtotalExclTax.Add(totals.TaxTotal).Add(delivery.Cost),
		CreatedAt:       s.clock(),
	}
	draft.Note = buildDraftNote(draft)
	return draft, nil
}

func (s *orderService) SubmitOrder(ctx context.Context, draft domain.OrderDraft) (domain.OrderReference, error) {
	if len(draft.Lines) == 0 {
		return domain.OrderReference{}, ErrEmptyCart
	}
	if strings.TrimSpace(draft.CustomerID) == "" {
		return domain.OrderReference{}, &IncompleteCheckoutError{Missing: []string{"customer_id"}}
	}

	ref, err := s.orders.Create(ctx, draft)
	if err != nil {
		return domain.OrderReference{}, s.mapRepositoryError("create order", err)
	}
	if ref.DraftReference == "" {
		ref.DraftReference = draft.Reference
	}

	s.logger(ctx, orderEventSubmitted, map[string]any{
		"orderId":    ref.ID,
		"draft":      draft.Reference,
		"customerId": draft.CustomerID,
		"lines":      len(draft.Lines),
		"grandTotal": draft.GrandTotal.StringFixed(moneyPlaces),
	})
	return ref, nil
}

func (s *orderService) Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error) {
	quote, err := s.PreviewCheckout(ctx, cmd)
	if err != nil {
		return CheckoutResult{}, err
	}

	var delivery *domain.DeliveryEstimate
	if quote.DeliveryKnown {
		estimate := quote.Delivery
		delivery = &estimate
	}

	draft, err := s.BuildCheckoutPayload(BuildCheckoutCommand{
		CustomerID:    cmd.CustomerID,
		Lines:         quote.Lines,
		Delivery:      delivery,
		Address:       cmd.Address,
		PaymentMethod: cmd.PaymentMethod,
		Card:          cmd.Card,
	})
	if err != nil {
		return CheckoutResult{}, err
	}

	ref, err := s.SubmitOrder(ctx, draft)
	if err != nil {
		return CheckoutResult{}, err
	}

	result := CheckoutResult{Reference: ref, Draft: draft, CartCleared: true}
	if s.carts != nil {
		if err := s.carts.Clear(ctx, draft.CustomerID); err != nil {
			result.CartCleared = false
			s.logger(ctx, orderEventCartClearFailed, map[string]any{
				"orderId":    ref.ID,
				"customerId": draft.CustomerID,
				"error":      err.Error(),
			})
			s.notifier.Error(ctx, "Your order was placed but the cart could not be emptied.", err)
		}
	}

	s.notifier.Info(ctx, fmt.Sprintf("Order %s has been placed.", ref.ID))
	return result, nil
}

func (s *orderService) ListOrders(ctx context.Context, customerID string) ([]Order, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", ErrInvalidInput)
	}
	orders, err := s.orders.ListByCustomer(ctx, customerID, repositories.DefaultOrderListLimit)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return []Order{}, nil
		}
		return nil, s.mapRepositoryError("list orders", err)
	}
	if orders == nil {
		orders = []Order{}
	}
	return orders, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError("get order", err)
	}
	return order, nil
}

func (s *orderService) RequestStatusChange(ctx context.Context, orderID string, current, target domain.OrderStatus) (StatusChangeResult, error) {
	order, err := s.loadForChange(ctx, orderID, current)
	if err != nil {
		return StatusChangeResult{}, err
	}
	return s.applyStatusChange(ctx, order, target)
}

func (s *orderService) RequestCustomerStatusChange(ctx context.Context, orderID string, current, target domain.OrderStatus) (StatusChangeResult, error) {
	order, err := s.loadForChange(ctx, orderID, current)
	if err != nil {
		return StatusChangeResult{}, err
	}
	changed, err := s.states.Transition(order.Status, target)
	if err != nil {
		return StatusChangeResult{}, err
	}
	if !changed {
		return unchangedResult(order), nil
	}
	action, err := s.states.CustomerActionFor(order.Status, target)
	if err != nil {
		return StatusChangeResult{}, err
	}
	return s.confirmAndApply(ctx, order, action, target)
}

func (s *orderService) CancelOrder(ctx context.Context, orderID string) (StatusChangeResult, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return StatusChangeResult{}, err
	}
	if err := s.states.AuthorizeCustomer(order.Status, CustomerActionCancel); err != nil {
		return StatusChangeResult{}, err
	}
	return s.confirmAndApply(ctx, order, CustomerActionCancel, domain.OrderStatusCancelled)
}

func (s *orderService) AttachNote(ctx context.Context, orderID, text string, visibility domain.NoteVisibility) (Order, error) {
	cleaned, err := s.cleanNote(text, visibility)
	if err != nil {
		return Order{}, err
	}
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	return s.writeNote(ctx, order, cleaned, visibility)
}

func (s *orderService) AttachFeedback(ctx context.Context, orderID, text string) (Order, error) {
	cleaned, err := s.cleanNote(text, domain.NoteVisibilityPublic)
	if err != nil {
		return Order{}, err
	}
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := s.states.AuthorizeCustomer(order.Status, CustomerActionAttachNote); err != nil {
		return Order{}, err
	}
	return s.writeNote(ctx, order, cleaned, domain.NoteVisibilityPublic)
}

func (s *orderService) Describe(status domain.OrderStatus) StatusDescriptor {
	return s.states.Describe(status)
}

// loadForChange fetches the order and rejects the change when the caller's view of its status is stale.
func (s *orderService) loadForChange(ctx context.Context, orderID string, current domain.OrderStatus) (Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.Status != current {
		return Order{}, &StaleStatusError{Expected: current, Actual: order.Status}
	}
	return order, nil
}

func (s *orderService) confirmAndApply(ctx context.Context, order Order, action CustomerAction, target domain.OrderStatus) (StatusChangeResult, error) {
	if action == CustomerActionCancel {
		confirmed, err := s.notifier.Confirm(ctx, fmt.Sprintf("Cancel order %s?", displayReference(order)))
		if err != nil {
			return StatusChangeResult{}, err
		}
		if !confirmed {
			return unchangedResult(order), nil
		}
	}
	return s.applyStatusChange(ctx, order, target)
}

// applyStatusChange writes the new status together with the order's notes; the ERP PUT replaces
// any field it is not sent.
func (s *orderService) applyStatusChange(ctx context.Context, order Order, target domain.OrderStatus) (StatusChangeResult, error) {
	changed, err := s.states.Transition(order.Status, target)
	if err != nil {
		return StatusChangeResult{}, err
	}
	result := unchangedResult(order)
	if !changed {
		return result, nil
	}

	private, public := order.Notes.Private, order.Notes.Public
	patch := repositories.OrderPatch{Status: &target, NotePrivate: &private, NotePublic: &public}
	if err := s.orders.Update(ctx, order.ID, patch); err != nil {
		return StatusChangeResult{}, s.mapRepositoryError("update order status", err)
	}

	s.logger(ctx, orderEventStatusRequested, map[string]any{
		"orderId":  order.ID,
		"previous": order.Status.String(),
		"target":   target.String(),
	})

	result.Current = target
	result.Changed = true
	return result, nil
}

func unchangedResult(order Order) StatusChangeResult {
	return StatusChangeResult{OrderID: order.ID, Previous: order.Status, Current: order.Status}
}

// writeNote is a read-modify-write without a version token; concurrent writers can lose a note.
func (s *orderService) writeNote(ctx context.Context, order Order, text string, visibility domain.NoteVisibility) (Order, error) {
	notes := order.Notes
	switch visibility {
	case domain.NoteVisibilityPublic:
		notes.Public = mergeNote(notes.Public, text)
	default:
		notes.Private = mergeNote(notes.Private, text)
	}

	private, public := notes.Private, notes.Public
	patch := repositories.OrderPatch{NotePrivate: &private, NotePublic: &public}
	if err := s.orders.Update(ctx, order.ID, patch); err != nil {
		return Order{}, s.mapRepositoryError("update order notes", err)
	}

	s.logger(ctx, orderEventNoteAttached, map[string]any{
		"orderId":    order.ID,
		"visibility": string(visibility),
		"length":     len(text),
	})

	order.Notes = notes
	return order, nil
}

func (s *orderService) cleanNote(text string, visibility domain.NoteVisibility) (string, error) {
	switch visibility {
	case domain.NoteVisibilityPrivate, domain.NoteVisibilityPublic:
	default:
		return "", fmt.Errorf("%w: unknown note visibility %q", ErrInvalidInput, visibility)
	}
	cleaned := strings.TrimSpace(html.UnescapeString(s.notes.Sanitize(text)))
	if cleaned == "" {
		return "", fmt.Errorf("%w: note text is required", ErrInvalidInput)
	}
	if len([]rune(cleaned)) > maxNoteLength {
		return "", fmt.Errorf("%w: note exceeds %d characters", ErrInvalidInput, maxNoteLength)
	}
	return cleaned, nil
}

func (s *orderService) loadCart(ctx context.Context, customerID string) ([]domain.CatalogProduct, domain.QuantityMap, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, nil, &IncompleteCheckoutError{Missing: []string{"customer_id"}}
	}
	if s.carts == nil || s.catalog == nil {
		return nil, nil, errors.New("order service: cart store and catalog are required for checkout")
	}
	cart, err := s.carts.Load(ctx, customerID)
	if err != nil {
		return nil, nil, fmt.Errorf("order service: load cart: %w", err)
	}
	if len(cart.ProductIDs) == 0 {
		return nil, nil, ErrEmptyCart
	}
	products, err := s.catalog.FindProducts(ctx, cart.ProductIDs)
	if err != nil {
		return nil, nil, s.mapRepositoryError("load catalog products", err)
	}
	return products, cart.Quantities.Clone(), nil
}

// estimateDelivery never fails: an unknown position degrades to a zero fee to be re-estimated later.
func (s *orderService) estimateDelivery(ctx context.Context, destination *domain.Coordinates, address *domain.Address) (domain.DeliveryEstimate, bool) {
	if destination == nil && address != nil && s.locator != nil {
		located, err := s.locator.Locate(ctx, *address)
		if err == nil {
			destination = &located
		} else {
			s.logger(ctx, orderEventDeliveryUnknown, map[string]any{"reason": "locate", "error": err.Error()})
		}
	}

	estimate, err := s.delivery.Estimate(s.store, destination)
	if err != nil {
		if destination != nil {
			s.logger(ctx, orderEventDeliveryUnknown, map[string]any{"reason": "estimate", "error": err.Error()})
		}
		return domain.DeliveryEstimate{Cost: decimal.Zero}, false
	}
	return estimate, true
}

func (s *orderService) mapRepositoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &NetworkError{Op: op, Err: err}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %s: %v", ErrNotFound, op, err)
	}
	return &NetworkError{Op: op, Err: err}
}

func mergeNote(existing, addition string) string {
	existing = strings.TrimSpace(existing)
	if existing == "" {
		return addition
	}
	return existing + "\n" + addition
}

func trimAddress(addr domain.Address) domain.Address {
	return domain.Address{
		Street:     strings.TrimSpace(addr.Street),
		City:       strings.TrimSpace(addr.City),
		PostalCode: strings.TrimSpace(addr.PostalCode),
		Country:    strings.TrimSpace(addr.Country),
	}
}

func buildDraftNote(draft domain.OrderDraft) string {
	var b strings.Builder
	addr := draft.Address
	fmt.Fprintf(&b, "Delivery address: %s, %s %s", addr.Street, addr.PostalCode, addr.City)
	if addr.Country != "" {
		fmt.Fprintf(&b, ", %s", addr.Country)
	}
	b.WriteString("\n")
	switch draft.PaymentMethod {
	case domain.PaymentMethodCard:
		b.WriteString("Payment: card\n")
	default:
		b.WriteString("Payment: cash on delivery\n")
	}
	if draft.DeliveryKnown {
		fmt.Fprintf(&b, "Delivery: %s (%.1f km)\n", draft.DeliveryCost.StringFixed(moneyPlaces), draft.Delivery.DistanceKm)
	} else {
		b.WriteString("Delivery: to be estimated\n")
	}
	fmt.Fprintf(&b, "Draft: %s", draft.Reference)
	return b.String()
}

func displayReference(order Order) string {
	if order.Reference != "" {
		return order.Reference
	}
	return order.ID
}

type nopNotifier struct{}

func (nopNotifier) Info(context.Context, string) {}

func (nopNotifier) Error(context.Context, string, error) {}

func (nopNotifier) Confirm(context.Context, string) (bool, error) { return true, nil }
