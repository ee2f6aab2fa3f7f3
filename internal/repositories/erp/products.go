package erp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	domain "github.com/petcorner/storefront/internal/domain"
)

const productFetchConcurrency = 4

// FindProducts fetches product snapshots in the order of productIDs. Products the ERP no longer
// knows are dropped so a stale cart entry does not block checkout.
func (c *Client) FindProducts(ctx context.Context, productIDs []string) ([]domain.CatalogProduct, error) {
	results := make([]*domain.CatalogProduct, len(productIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(productFetchConcurrency)
	for i, id := range productIDs {
		i, id := i, id
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		g.Go(func() error {
			product, found, err := c.findProduct(gctx, id)
			if err != nil {
				return err
			}
			if found {
				results[i] = &product
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	products := make([]domain.CatalogProduct, 0, len(results))
	for _, p := range results {
		if p != nil {
			products = append(products, *p)
		}
	}
	return products, nil
}

func (c *Client) findProduct(ctx context.Context, id string) (domain.CatalogProduct, bool, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "products/"+url.PathEscape(id), nil)
	if err != nil {
		return domain.CatalogProduct{}, false, err
	}
	resp, err := c.do(ctx, "get_product", req)
	if err != nil {
		return domain.CatalogProduct{}, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return domain.CatalogProduct{}, false, nil
	default:
		return domain.CatalogProduct{}, false, c.errorFromResponse("get_product", resp)
	}

	var payload productPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.CatalogProduct{}, false, &Error{Op: "get_product", StatusCode: resp.StatusCode, Err: fmt.Errorf("decode product: %w", err)}
	}

	productID := string(payload.ID)
	if productID == "" {
		productID = id
	}
	label := strings.TrimSpace(payload.Label)
	if label == "" {
		label = strings.TrimSpace(payload.Ref)
	}
	return domain.CatalogProduct{
		ID:               productID,
		Label:            label,
		UnitPriceInclTax: payload.PriceTTC.Decimal,
		Stock:            int(payload.StockReel.IntPart()),
		PhotoRef:         payload.PhotoRef,
	}, true, nil
}
