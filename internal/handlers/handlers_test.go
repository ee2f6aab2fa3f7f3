package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	domain "github.com/petcorner/storefront/internal/domain"
	"github.com/petcorner/storefront/internal/repositories"
	"github.com/petcorner/storefront/internal/repositories/memory"
	"github.com/petcorner/storefront/internal/services"
)

type stubRepoError struct {
	notFound    bool
	unavailable bool
}

func (e stubRepoError) Error() string       { return "repository failure" }
func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return false }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

type stubOrderRepo struct {
	mu      sync.Mutex
	orders  map[string]domain.Order
	created []domain.OrderDraft
	patches map[string][]repositories.OrderPatch
	listErr error
}

func newStubOrderRepo(orders ...domain.Order) *stubOrderRepo {
	repo := &stubOrderRepo{orders: map[string]domain.Order{}, patches: map[string][]repositories.OrderPatch{}}
	for _, order := range orders {
		repo.orders[order.ID] = order
	}
	return repo
}

func (r *stubOrderRepo) ListByCustomer(_ context.Context, customerID string, _ int) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []domain.Order
	for _, order := range r.orders {
		if order.CustomerID == customerID {
			out = append(out, order)
		}
	}
	return out, nil
}

func (r *stubOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, stubRepoError{notFound: true}
	}
	return order, nil
}

func (r *stubOrderRepo) Create(_ context.Context, draft domain.OrderDraft) (domain.OrderReference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, draft)
	return domain.OrderReference{ID: "42"}, nil
}

func (r *stubOrderRepo) Update(_ context.Context, orderID string, patch repositories.OrderPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return stubRepoError{notFound: true}
	}
	if patch.Status != nil {
		order.Status = *patch.Status
	}
	if patch.NotePrivate != nil {
		order.Notes.Private = *patch.NotePrivate
	}
	if patch.NotePublic != nil {
		order.Notes.Public = *patch.NotePublic
	}
	r.orders[orderID] = order
	r.patches[orderID] = append(r.patches[orderID], patch)
	return nil
}

type stubCatalog struct {
	products map[string]domain.CatalogProduct
}

func (c stubCatalog) FindProducts(_ context.Context, ids []string) ([]domain.CatalogProduct, error) {
	out := make([]domain.CatalogProduct, 0, len(ids))
	for _, id := range ids {
		if product, ok := c.products[id]; ok {
			out = append(out, product)
		}
	}
	return out, nil
}

type testEnv struct {
	router chi.Router
	orders *stubOrderRepo
	carts  *memory.CartStore
}

func newTestEnv(t *testing.T, orders ...domain.Order) testEnv {
	t.Helper()
	repo := newStubOrderRepo(orders...)
	carts := memory.NewCartStore()
	catalog := stubCatalog{products: map[string]domain.CatalogProduct{
		"1": {ID: "1", Label: "Kibble", UnitPriceInclTax: decimal.RequireFromString("120.00"), Stock: 5},
		"2": {ID: "2", Label: "Leash", UnitPriceInclTax: decimal.RequireFromString("9.99"), Stock: 2},
	}}
	svc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:        repo,
		Catalog:       catalog,
		Carts:         carts,
		StoreLocation: &domain.Coordinates{Latitude: 0, Longitude: 0},
		Clock:         func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) },
		IDGenerator:   func() string { return "01TEST" },
		KeyGenerator:  func() string { return "key-1" },
	})
	require.NoError(t, err)

	router := NewRouter(
		WithMiddlewares(CustomerMiddleware("")),
		WithCheckoutRoutes(NewCheckoutHandlers(svc).Routes),
		WithCartRoutes(NewCartHandlers(carts, svc).Routes),
		WithOrderRoutes(NewOrderHandlers(svc).Routes),
	)
	return testEnv{router: router, orders: repo, carts: carts}
}

func (env testEnv) do(t *testing.T, method, path, customerID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if customerID != "" {
		req.Header.Set(CustomerHeader, customerID)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

type errorBody struct {
	Error     string   `json:"error"`
	Message   string   `json:"message"`
	Status    int      `json:"status"`
	Missing   []string `json:"missing"`
	Retryable bool     `json:"retryable"`
}

func TestRouterUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body errorBody
	decodeJSON(t, rec, &body)
	require.Equal(t, errorNotFoundCode, body.Error)
}

func TestRouterNotImplementedGroups(t *testing.T) {
	router := NewRouter()
	for _, path := range []string{"/api/v1/orders", "/api/v1/cart", "/api/v1/checkout"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusNotImplemented, rec.Code, path)
	}
}

func TestCustomerMiddlewareRejectsOversizedID(t *testing.T) {
	env := newTestEnv(t)
	long := make([]byte, maxCustomerIDLength+1)
	for i := range long {
		long[i] = '7'
	}
	rec := env.do(t, http.MethodGet, "/api/v1/orders", string(long), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
