package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/petcorner/storefront/internal/domain"
	"github.com/petcorner/storefront/internal/repositories"
)

type stubOrderRepo struct {
	listFn   func(context.Context, string, int) ([]domain.Order, error)
	findFn   func(context.Context, string) (domain.Order, error)
	createFn func(context.Context, domain.OrderDraft) (domain.OrderReference, error)
	updateFn func(context.Context, string, repositories.OrderPatch) error

	creates int
	updates int
}

func (s *stubOrderRepo) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	if s.listFn != nil {
		return s.listFn(ctx, customerID, limit)
	}
	return nil, nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) Create(ctx context.Context, draft domain.OrderDraft) (domain.OrderReference, error) {
	s.creates++
	if s.createFn != nil {
		return s.createFn(ctx, draft)
	}
	return domain.OrderReference{ID: "1"}, nil
}

func (s *stubOrderRepo) Update(ctx context.Context, orderID string, patch repositories.OrderPatch) error {
	s.updates++
	if s.updateFn != nil {
		return s.updateFn(ctx, orderID, patch)
	}
	return nil
}

type stubCatalogRepo struct {
	products map[string]domain.CatalogProduct
}

func (s *stubCatalogRepo) FindProducts(_ context.Context, ids []string) ([]domain.CatalogProduct, error) {
	out := make([]domain.CatalogProduct, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type stubCartStore struct {
	cart     repositories.CartSnapshot
	clearErr error
	cleared  bool
}

func (s *stubCartStore) Load(context.Context, string) (repositories.CartSnapshot, error) {
	return s.cart, nil
}

func (s *stubCartStore) Save(_ context.Context, _ string, cart repositories.CartSnapshot) error {
	s.cart = cart
	return nil
}

func (s *stubCartStore) Clear(context.Context, string) error {
	if s.clearErr != nil {
		return s.clearErr
	}
	s.cleared = true
	s.cart = repositories.CartSnapshot{}
	return nil
}

type stubNotifier struct {
	infos   []string
	errs    []string
	confirm bool
	prompts []string
}

func (s *stubNotifier) Info(_ context.Context, message string) {
	s.infos = append(s.infos, message)
}

func (s *stubNotifier) Error(_ context.Context, message string, _ error) {
	s.errs = append(s.errs, message)
}

func (s *stubNotifier) Confirm(_ context.Context, prompt string) (bool, error) {
	s.prompts = append(s.prompts, prompt)
	return s.confirm, nil
}

type stubLocator struct {
	coords domain.Coordinates
	err    error
}

func (s *stubLocator) Locate(context.Context, domain.Address) (domain.Coordinates, error) {
	return s.coords, s.err
}

type stubRepoError struct {
	notFound    bool
	unavailable bool
}

func (e stubRepoError) Error() string       { return "repository failure" }
func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return false }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

var testAddress = domain.Address{Street: "1 Rue des Chats", City: "Lyon", PostalCode: "69001", Country: "FR"}

func newTestOrderService(t *testing.T, deps OrderServiceDeps) OrderService {
	t.Helper()
	if deps.Clock == nil {
		now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
		deps.Clock = func() time.Time { return now }
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "01TEST" }
	}
	if deps.KeyGenerator == nil {
		deps.KeyGenerator = func() string { return "key-1" }
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return svc
}

func TestNewOrderServiceRequiresRepository(t *testing.T) {
	if _, err := NewOrderService(OrderServiceDeps{}); err == nil {
		t.Fatalf("expected error without order repository")
	}
}

func TestOrderServiceCheckoutEndToEnd(t *testing.T) {
	ctx := context.Background()
	repo := &stubOrderRepo{}
	var submitted domain.OrderDraft
	repo.createFn = func(_ context.Context, draft domain.OrderDraft) (domain.OrderReference, error) {
		submitted = draft
		return domain.OrderReference{ID: "42"}, nil
	}
	carts := &stubCartStore{cart: repositories.CartSnapshot{
		ProductIDs: []string{"kibble"},
		Quantities: domain.QuantityMap{"kibble": 2},
	}}
	notifier := &stubNotifier{}

	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:        repo,
		Catalog:       &stubCatalogRepo{products: map[string]domain.CatalogProduct{"kibble": {ID: "kibble", Label: "Kibble", UnitPriceInclTax: dec(t, "120")}}},
		Carts:         carts,
		StoreLocation: &domain.Coordinates{Latitude: 0, Longitude: 0},
		Notifier:      notifier,
	})

	result, err := svc.Checkout(ctx, CheckoutCommand{
		CustomerID:    "7",
		Address:       testAddress,
		PaymentMethod: domain.PaymentMethodCashOnDelivery,
		Destination:   &domain.Coordinates{Latitude: 0.063, Longitude: 0},
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if result.Reference.ID != "42" {
		t.Fatalf("expected order id 42 got %s", result.Reference.ID)
	}
	if result.Reference.DraftReference != "drf_01TEST" {
		t.Fatalf("expected draft reference carried, got %s", result.Reference.DraftReference)
	}
	if !result.CartCleared || !carts.cleared {
		t.Fatalf("expected cart cleared")
	}
	if repo.creates != 1 {
		t.Fatalf("expected exactly one create, got %d", repo.creates)
	}
	if !submitted.SubtotalExclTax.Equal(dec(t, "200")) {
		t.Fatalf("expected subtotal 200 got %s", submitted.SubtotalExclTax)
	}
	if !submitted.TaxTotal.Equal(dec(t, "40")) {
		t.Fatalf("expected tax 40 got %s", submitted.TaxTotal)
	}
	if !submitted.DeliveryCost.Equal(dec(t, "15")) {
		t.Fatalf("expected delivery 15 got %s", submitted.DeliveryCost)
	}
	if !submitted.GrandTotal.Equal(dec(t, "255")) {
		t.Fatalf("expected grand total 255 got %s", submitted.GrandTotal)
	}
	if submitted.IdempotencyKey != "key-1" {
		t.Fatalf("expected idempotency key, got %q", submitted.IdempotencyKey)
	}
	if !strings.Contains(submitted.Note, "69001 Lyon") || !strings.Contains(submitted.Note, "cash on delivery") {
		t.Fatalf("unexpected draft note %q", submitted.Note)
	}
	if len(notifier.infos) != 1 {
		t.Fatalf("expected confirmation message, got %v", notifier.infos)
	}
}

func TestOrderServiceCheckoutKeepsOrderWhenCartClearFails(t *testing.T) {
	repo := &stubOrderRepo{}
	carts := &stubCartStore{
		cart:     repositories.CartSnapshot{ProductIDs: []string{"p"}},
		clearErr: errors.New("disk full"),
	}
	notifier := &stubNotifier{}
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:   repo,
		Catalog:  &stubCatalogRepo{products: map[string]domain.CatalogProduct{"p": {ID: "p", UnitPriceInclTax: dec(t, "12")}}},
		Carts:    carts,
		Notifier: notifier,
	})

	result, err := svc.Checkout(context.Background(), CheckoutCommand{
		CustomerID:    "7",
		Address:       testAddress,
		PaymentMethod: domain.PaymentMethodCashOnDelivery,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if result.CartCleared {
		t.Fatalf("expected CartCleared false")
	}
	if result.Reference.ID == "" {
		t.Fatalf("expected order reference despite cart failure")
	}
	if len(notifier.errs) != 1 {
		t.Fatalf("expected cart failure surfaced, got %v", notifier.errs)
	}
	if result.Draft.DeliveryKnown || !result.Draft.DeliveryCost.IsZero() {
		t.Fatalf("expected delivery unknown without store location")
	}
	if !strings.Contains(result.Draft.Note, "to be estimated") {
		t.Fatalf("expected deferred delivery note, got %q", result.Draft.Note)
	}
}

func TestOrderServiceCheckoutEmptyCart(t *testing.T) {
	repo := &stubOrderRepo{}
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:  repo,
		Catalog: &stubCatalogRepo{},
		Carts:   &stubCartStore{},
	})

	_, err := svc.Checkout(context.Background(), CheckoutCommand{CustomerID: "7", Address: testAddress, PaymentMethod: domain.PaymentMethodCard})
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected empty cart, got %v", err)
	}
	if repo.creates != 0 {
		t.Fatalf("expected no create call")
	}
}

func TestOrderServiceQuoteUsesLocatorFallback(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:        &stubOrderRepo{},
		StoreLocation: &domain.Coordinates{Latitude: 0, Longitude: 0},
		Locator:       &stubLocator{coords: domain.Coordinates{Latitude: 0.15, Longitude: 0}},
	})

	address := testAddress
	quote, err := svc.Quote(context.Background(), QuoteCommand{
		Products: []domain.CatalogProduct{{ID: "p", UnitPriceInclTax: dec(t, "6")}},
		Address:  &address,
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !quote.DeliveryKnown {
		t.Fatalf("expected delivery estimated through locator")
	}
	if !quote.Delivery.Cost.Equal(dec(t, "25")) {
		t.Fatalf("expected 25 for ~16.7 km got %s", quote.Delivery.Cost)
	}
	if !quote.GrandTotal.Equal(dec(t, "31")) {
		t.Fatalf("expected grand total 31 got %s", quote.GrandTotal)
	}
}

func TestOrderServiceQuoteDegradesWhenLocatorFails(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{
		Orders:        &stubOrderRepo{},
		StoreLocation: &domain.Coordinates{Latitude: 0, Longitude: 0},
		Locator:       &stubLocator{err: errors.New("timeout")},
	})

	address := testAddress
	quote, err := svc.Quote(context.Background(), QuoteCommand{
		Products: []domain.CatalogProduct{{ID: "p", UnitPriceInclTax: dec(t, "6")}},
		Address:  &address,
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.DeliveryKnown || !quote.Delivery.Cost.IsZero() {
		t.Fatalf("expected unknown delivery with zero fee, got %+v", quote.Delivery)
	}
}

func TestOrderServiceBuildCheckoutPayloadValidation(t *testing.T) {
	svc := newTestOrderService(t, OrderServiceDeps{Orders: &stubOrderRepo{}})
	lines := []domain.OrderLine{{ProductID: "p", Quantity: 1, LineTotalExclTax: dec(t, "10"), LineTotalTax: dec(t, "2")}}

	if _, err := svc.BuildCheckoutPayload(BuildCheckoutCommand{CustomerID: "7", Address: testAddress, PaymentMethod: domain.PaymentMethodCard}); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected empty cart, got %v", err)
	}

	_, err := svc.BuildCheckoutPayload(BuildCheckoutCommand{
		Lines:         lines,
		Address:       domain.Address{Street: "  ", City: "Lyon"},
		PaymentMethod: domain.PaymentMethodCard,
	})
	var incomplete *IncompleteCheckoutError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected incomplete checkout, got %v", err)
	}
	want := []string{"customer_id", "address.street", "address.postal_code", "card_details"}
	if strings.Join(incomplete.Missing, ",") != strings.Join(want, ",") {
		t.Fatalf("expected missing %v got %v", want, incomplete.Missing)
	}
	if !errors.Is(err, ErrIncompleteCheckout) {
		t.Fatalf("expected ErrIncompleteCheckout in chain")
	}

	_, err = svc.BuildCheckoutPayload(BuildCheckoutCommand{CustomerID: "7", Lines: lines, Address: testAddress, PaymentMethod: "bitcoin"})
	if !errors.As(err, &incomplete) || incomplete.Missing[0] != "payment_method" {
		t.Fatalf("expected unknown payment method reported, got %v", err)
	}

	draft, err := svc.BuildCheckoutPayload(BuildCheckoutCommand{
		CustomerID:    "7",
		Lines:         lines,
		Address:       testAddress,
		PaymentMethod: domain.PaymentMethodCard,
		Card:          &domain.CardDetails{HolderName: "A", Number: "4111111111111111", Expiry: "12/30", CVC: "123"},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if strings.Contains(draft.Note, "4111") {
		t.Fatalf("card number leaked into note %q", draft.Note)
	}
	if !draft.GrandTotal.Equal(dec(t, "12")) {
		t.Fatalf("expected grand total 12 got %s", draft.GrandTotal)
	}
}

func TestOrderServiceSubmitOrderMapsErrors(t *testing.T) {
	draft := domain.OrderDraft{CustomerID: "7", Lines: []domain.OrderLine{{ProductID: "p", Quantity: 1}}}

	repo := &stubOrderRepo{createFn: func(context.Context, domain.OrderDraft) (domain.OrderReference, error) {
		return domain.OrderReference{}, stubRepoError{unavailable: true}
	}}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo})

	_, err := svc.SubmitOrder(context.Background(), draft)
	var netErr *NetworkError
	if !errors.As(err, &netErr) || !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if repo.creates != 1 {
		t.Fatalf("expected no retry, got %d creates", repo.creates)
	}
}

func TestOrderServiceListOrders(t *testing.T) {
	repo := &stubOrderRepo{}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo})
	ctx := context.Background()

	repo.listFn = func(_ context.Context, customerID string, limit int) ([]domain.Order, error) {
		if customerID != "7" || limit != repositories.DefaultOrderListLimit {
			t.Fatalf("unexpected list args %s %d", customerID, limit)
		}
		return nil, stubRepoError{notFound: true}
	}
	orders, err := svc.ListOrders(ctx, "7")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if orders == nil || len(orders) != 0 {
		t.Fatalf("expected empty list for missing collection, got %#v", orders)
	}

	repo.listFn = func(context.Context, string, int) ([]domain.Order, error) {
		return nil, stubRepoError{unavailable: true}
	}
	if _, err := svc.ListOrders(ctx, "7"); !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}

	if _, err := svc.ListOrders(ctx, " "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestOrderServiceGetOrderNotFound(t *testing.T) {
	repo := &stubOrderRepo{findFn: func(context.Context, string) (domain.Order, error) {
		return domain.Order{}, stubRepoError{notFound: true}
	}}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo})

	if _, err := svc.GetOrder(context.Background(), "99"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderServiceRequestStatusChange(t *testing.T) {
	status := domain.OrderStatusValidated
	repo := &stubOrderRepo{}
	repo.findFn = func(_ context.Context, id string) (domain.Order, error) {
		return domain.Order{ID: id, Status: status, Notes: domain.OrderNotes{Private: "Draft: drf_1", Public: "leave at door"}}, nil
	}
	var patched repositories.OrderPatch
	repo.updateFn = func(_ context.Context, id string, patch repositories.OrderPatch) error {
		if id != "5" {
			t.Fatalf("unexpected order id %s", id)
		}
		patched = patch
		return nil
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo})
	ctx := context.Background()

	result, err := svc.RequestStatusChange(ctx, "5", domain.OrderStatusValidated, domain.OrderStatusDelivered)
	if err != nil {
		t.Fatalf("status change: %v", err)
	}
	if !result.Changed || result.Current != domain.OrderStatusDelivered {
		t.Fatalf("unexpected result %+v", result)
	}
	if patched.Status == nil || *patched.Status != domain.OrderStatusDelivered {
		t.Fatalf("expected status patch, got %+v", patched)
	}
	if patched.NotePrivate == nil || *patched.NotePrivate != "Draft: drf_1" || patched.NotePublic == nil || *patched.NotePublic != "leave at door" {
		t.Fatalf("expected notes round-tripped, got %+v", patched)
	}

	status = domain.OrderStatusProcessing
	result, err = svc.RequestStatusChange(ctx, "5", domain.OrderStatusProcessing, domain.OrderStatusProcessing)
	if err != nil {
		t.Fatalf("same state: %v", err)
	}
	if result.Changed || repo.updates != 1 {
		t.Fatalf("expected same-state request to skip the repository")
	}

	status = domain.OrderStatusDelivered
	if _, err := svc.RequestStatusChange(ctx, "5", domain.OrderStatusDelivered, domain.OrderStatusDraft); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
	if repo.updates != 1 {
		t.Fatalf("illegal transition must not reach the repository")
	}
}

func TestOrderServiceRequestStatusChangeRejectsStaleStatus(t *testing.T) {
	repo := &stubOrderRepo{}
	repo.findFn = func(_ context.Context, id string) (domain.Order, error) {
		return domain.Order{ID: id, Status: domain.OrderStatusDelivered}, nil
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo})

	_, err := svc.RequestStatusChange(context.Background(), "5", domain.OrderStatusDraft, domain.OrderStatusCancelled)
	var stale *StaleStatusError
	if !errors.As(err, &stale) {
		t.Fatalf("expected stale status, got %v", err)
	}
	if stale.Actual != domain.OrderStatusDelivered || stale.Expected != domain.OrderStatusDraft {
		t.Fatalf("unexpected stale error %+v", stale)
	}
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("stale status must read as an illegal transition")
	}
	if repo.updates != 0 {
		t.Fatalf("stale request must not reach the repository")
	}

	if _, err := svc.RequestCustomerStatusChange(context.Background(), "5", domain.OrderStatusDraft, domain.OrderStatusCancelled); !errors.As(err, &stale) {
		t.Fatalf("expected customer request rejected as stale, got %v", err)
	}
}

func TestOrderServiceRequestCustomerStatusChange(t *testing.T) {
	ctx := context.Background()
	status := domain.OrderStatusValidated
	repo := &stubOrderRepo{}
	repo.findFn = func(_ context.Context, id string) (domain.Order, error) {
		return domain.Order{ID: id, Reference: "CO-9", Status: status, Notes: domain.OrderNotes{Private: "Draft: drf_1"}}, nil
	}
	var patched repositories.OrderPatch
	repo.updateFn = func(_ context.Context, _ string, patch repositories.OrderPatch) error {
		patched = patch
		return nil
	}
	notifier := &stubNotifier{confirm: true}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo, Notifier: notifier})

	for _, target := range []domain.OrderStatus{domain.OrderStatusProcessing, domain.OrderStatusDelivered, domain.OrderStatusCancelled} {
		if _, err := svc.RequestCustomerStatusChange(ctx, "9", status, target); !errors.Is(err, ErrIllegalTransition) {
			t.Fatalf("expected customer move to %s refused, got %v", target, err)
		}
	}
	if repo.updates != 0 || len(notifier.prompts) != 0 {
		t.Fatalf("refused requests must not prompt or update")
	}

	result, err := svc.RequestCustomerStatusChange(ctx, "9", status, status)
	if err != nil || result.Changed {
		t.Fatalf("expected same-state no-op, got %+v %v", result, err)
	}

	status = domain.OrderStatusDraft
	if _, err := svc.RequestCustomerStatusChange(ctx, "9", status, domain.OrderStatusValidated); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected customer validation refused, got %v", err)
	}

	result, err = svc.RequestCustomerStatusChange(ctx, "9", status, domain.OrderStatusCancelled)
	if err != nil {
		t.Fatalf("customer cancel: %v", err)
	}
	if !result.Changed || result.Current != domain.OrderStatusCancelled {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(notifier.prompts) != 1 || !strings.Contains(notifier.prompts[0], "CO-9") {
		t.Fatalf("expected cancel confirmation, got %v", notifier.prompts)
	}
	if patched.NotePrivate == nil || *patched.NotePrivate != "Draft: drf_1" {
		t.Fatalf("expected private note round-tripped, got %+v", patched)
	}
}

func TestOrderServiceCancelOrder(t *testing.T) {
	ctx := context.Background()
	status := domain.OrderStatusDraft
	repo := &stubOrderRepo{}
	repo.findFn = func(_ context.Context, id string) (domain.Order, error) {
		return domain.Order{ID: id, Reference: "CO-1", Status: status, Notes: domain.OrderNotes{Private: "p", Public: "q"}}, nil
	}
	var patched repositories.OrderPatch
	repo.updateFn = func(_ context.Context, _ string, patch repositories.OrderPatch) error {
		patched = patch
		return nil
	}
	notifier := &stubNotifier{confirm: false}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo, Notifier: notifier})

	result, err := svc.CancelOrder(ctx, "3")
	if err != nil {
		t.Fatalf("cancel declined: %v", err)
	}
	if result.Changed || repo.updates != 0 {
		t.Fatalf("declined confirmation must not update the order")
	}
	if len(notifier.prompts) != 1 || !strings.Contains(notifier.prompts[0], "CO-1") {
		t.Fatalf("unexpected prompts %v", notifier.prompts)
	}

	notifier.confirm = true
	result, err = svc.CancelOrder(ctx, "3")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !result.Changed || result.Current != domain.OrderStatusCancelled {
		t.Fatalf("unexpected result %+v", result)
	}
	if patched.NotePrivate == nil || *patched.NotePrivate != "p" || patched.NotePublic == nil || *patched.NotePublic != "q" {
		t.Fatalf("expected notes round-tripped, got %+v", patched)
	}

	status = domain.OrderStatusProcessing
	if _, err := svc.CancelOrder(ctx, "3"); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected processing cancel refused, got %v", err)
	}
}

func TestOrderServiceAttachNoteMergesAndSanitizes(t *testing.T) {
	repo := &stubOrderRepo{}
	repo.findFn = func(_ context.Context, id string) (domain.Order, error) {
		return domain.Order{ID: id, Status: domain.OrderStatusProcessing, Notes: domain.OrderNotes{Private: "first", Public: "visible"}}, nil
	}
	var patched repositories.OrderPatch
	repo.updateFn = func(_ context.Context, _ string, patch repositories.OrderPatch) error {
		patched = patch
		return nil
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo})

	order, err := svc.AttachNote(context.Background(), "3", "<b>ring</b> the bell & wait", domain.NoteVisibilityPrivate)
	if err != nil {
		t.Fatalf("attach note: %v", err)
	}
	if order.Notes.Private != "first\nring the bell & wait" {
		t.Fatalf("unexpected private note %q", order.Notes.Private)
	}
	if *patched.NotePrivate != order.Notes.Private || *patched.NotePublic != "visible" {
		t.Fatalf("unexpected patch %+v", patched)
	}

	if _, err := svc.AttachNote(context.Background(), "3", "<script></script>", domain.NoteVisibilityPrivate); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected empty sanitized note refused, got %v", err)
	}
	if _, err := svc.AttachNote(context.Background(), "3", "hello", "internal"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected bad visibility refused, got %v", err)
	}
}

func TestOrderServiceAttachFeedbackRequiresDelivered(t *testing.T) {
	status := domain.OrderStatusValidated
	repo := &stubOrderRepo{}
	repo.findFn = func(_ context.Context, id string) (domain.Order, error) {
		return domain.Order{ID: id, Status: status}, nil
	}
	svc := newTestOrderService(t, OrderServiceDeps{Orders: repo})

	var notPermitted *ActionNotPermittedError
	if _, err := svc.AttachFeedback(context.Background(), "3", "great"); !errors.As(err, &notPermitted) {
		t.Fatalf("expected feedback refused before delivery, got %v", err)
	}

	status = domain.OrderStatusDelivered
	order, err := svc.AttachFeedback(context.Background(), "3", "great")
	if err != nil {
		t.Fatalf("feedback: %v", err)
	}
	if order.Notes.Public != "great" {
		t.Fatalf("expected public note set, got %q", order.Notes.Public)
	}
}

func TestUserMessage(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{err: ErrEmptyCart, want: "Your cart is empty."},
		{err: &IncompleteCheckoutError{Missing: []string{"address.city"}}, want: "Please complete the following fields: address.city."},
		{err: &IllegalTransitionError{Current: domain.OrderStatusDelivered, Requested: domain.OrderStatusCancelled}, want: "This action is not available for the order in its current state."},
		{err: &NetworkError{Op: "create", Err: errors.New("eof")}, want: "The order service is unreachable. Please try again."},
		{err: ErrGeolocationUnavailable, want: "Your location is unavailable; delivery cost will be estimated later."},
	}
	for _, tc := range cases {
		if got := UserMessage(tc.err); got != tc.want {
			t.Fatalf("expected %q got %q", tc.want, got)
		}
	}
	if UserMessage(nil) != "" {
		t.Fatalf("expected empty message for nil error")
	}
}
