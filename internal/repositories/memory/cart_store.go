package memory

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	domain "github.com/petcorner/storefront/internal/domain"
	"github.com/petcorner/storefront/internal/repositories"
)

// Keys under which cart membership and quantities are kept for each customer.
const (
	CartItemsKey      = "cart_items"
	CartQuantitiesKey = "cart_quantities"
)

var errCustomerRequired = errors.New("cart store: customer id is required")

// CartStore keeps carts in process memory, one record per customer and well-known key.
type CartStore struct {
	mu      sync.RWMutex
	records map[string]map[string]any
}

var _ repositories.CartStore = (*CartStore)(nil)

// NewCartStore constructs an empty memory-backed cart store.
func NewCartStore() *CartStore {
	return &CartStore{records: make(map[string]map[string]any)}
}

// Load returns a copy of the customer's cart. An unknown customer has an empty cart.
func (s *CartStore) Load(_ context.Context, customerID string) (repositories.CartSnapshot, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return repositories.CartSnapshot{}, errCustomerRequired
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	record := s.records[customerID]
	snapshot := repositories.CartSnapshot{Quantities: domain.QuantityMap{}}
	if ids, ok := record[CartItemsKey].([]string); ok {
		snapshot.ProductIDs = slices.Clone(ids)
	}
	if qty, ok := record[CartQuantitiesKey].(domain.QuantityMap); ok {
		snapshot.Quantities = qty.Clone()
	}
	return snapshot, nil
}

// Save replaces the customer's cart. Duplicate and blank product ids are dropped.
func (s *CartStore) Save(_ context.Context, customerID string, cart repositories.CartSnapshot) error {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return errCustomerRequired
	}

	ids := make([]string, 0, len(cart.ProductIDs))
	seen := make(map[string]struct{}, len(cart.ProductIDs))
	for _, id := range cart.ProductIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	quantities := cart.Quantities.Clone()
	for id := range quantities {
		if _, ok := seen[id]; !ok {
			delete(quantities, id)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[customerID] = map[string]any{
		CartItemsKey:      ids,
		CartQuantitiesKey: quantities,
	}
	return nil
}

// Clear empties the customer's cart.
func (s *CartStore) Clear(_ context.Context, customerID string) error {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return errCustomerRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, customerID)
	return nil
}
