package erp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domain "github.com/petcorner/storefront/internal/domain"
	"github.com/petcorner/storefront/internal/repositories"
)

const (
	orderTypeStandard = 0
	wireTaxRatePct    = 20
)

var (
	_ repositories.OrderRepository   = (*Client)(nil)
	_ repositories.CatalogRepository = (*Client)(nil)
	_ repositories.RepositoryError   = (*Error)(nil)
)

// ListByCustomer lists the third party's orders. The ERP answers 404 when there are none.
func (c *Client) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = repositories.DefaultOrderListLimit
	}
	query := url.Values{}
	query.Set("thirdparty_ids", strings.TrimSpace(customerID))
	query.Set("limit", strconv.Itoa(limit))

	req, err := c.newRequest(ctx, http.MethodGet, "orders?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, "list_orders", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return []domain.Order{}, nil
	default:
		return nil, c.errorFromResponse("list_orders", resp)
	}

	var payload []orderPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &Error{Op: "list_orders", StatusCode: resp.StatusCode, Err: fmt.Errorf("decode orders: %w", err)}
	}
	orders := make([]domain.Order, 0, len(payload))
	for _, p := range payload {
		orders = append(orders, p.toDomain())
	}
	return orders, nil
}

// FindByID fetches a single order with its lines.
func (c *Client) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "orders/"+url.PathEscape(strings.TrimSpace(orderID)), nil)
	if err != nil {
		return domain.Order{}, err
	}
	resp, err := c.do(ctx, "get_order", req)
	if err != nil {
		return domain.Order{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Order{}, c.errorFromResponse("get_order", resp)
	}

	var payload orderPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Order{}, &Error{Op: "get_order", StatusCode: resp.StatusCode, Err: fmt.Errorf("decode order: %w", err)}
	}
	return payload.toDomain(), nil
}

// Create posts a new order. It is sent once; the caller decides whether to retry.
func (c *Client) Create(ctx context.Context, draft domain.OrderDraft) (domain.OrderReference, error) {
	body := createOrderRequest{
		Socid:       strings.TrimSpace(draft.CustomerID),
		Date:        draft.CreatedAt.Unix(),
		Type:        orderTypeStandard,
		Lines:       make([]createOrderLineRequest, 0, len(draft.Lines)),
		NotePrivate: draft.Note,
	}
	if draft.CreatedAt.IsZero() {
		body.Date = time.Now().Unix()
	}
	for _, line := range draft.Lines {
		body.Lines = append(body.Lines, createOrderLineRequest{
			FkProduct: line.ProductID,
			Qty:       line.Quantity,
			Price:     line.UnitPriceExclTax.StringFixed(2),
			SubPrice:  line.LineTotalExclTax.StringFixed(2),
			TotalTVA:  line.LineTotalTax.StringFixed(2),
			TvaTx:     wireTaxRatePct,
		})
	}

	req, err := c.newJSONRequest(ctx, http.MethodPost, "orders", body)
	if err != nil {
		return domain.OrderReference{}, err
	}
	if c.sendIdemKey && draft.IdempotencyKey != "" {
		req.Header.Set(idempotencyKeyHeader, draft.IdempotencyKey)
	}
	resp, err := c.do(ctx, "create_order", req)
	if err != nil {
		return domain.OrderReference{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return domain.OrderReference{}, c.errorFromResponse("create_order", resp)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return domain.OrderReference{}, &Error{Op: "create_order", StatusCode: resp.StatusCode, Err: err}
	}
	id, err := parseCreatedID(raw)
	if err != nil {
		return domain.OrderReference{}, &Error{Op: "create_order", StatusCode: resp.StatusCode, Err: err}
	}

	c.logger.Info("erp order created",
		zap.String("orderId", id),
		zap.String("draft", draft.Reference),
		zap.Int("lines", len(draft.Lines)),
	)
	return domain.OrderReference{ID: id, DraftReference: draft.Reference}, nil
}

// Update sends the patched fields. Status travels as its stringified numeric code.
func (c *Client) Update(ctx context.Context, orderID string, patch repositories.OrderPatch) error {
	body := updateOrderRequest{
		NotePrivate: patch.NotePrivate,
		NotePublic:  patch.NotePublic,
	}
	if patch.Status != nil {
		code := patch.Status.WireCode()
		body.Statut = &code
	}
	if body.Statut == nil && body.NotePrivate == nil && body.NotePublic == nil {
		return errors.New("erp: empty order update")
	}

	req, err := c.newJSONRequest(ctx, http.MethodPut, "orders/"+url.PathEscape(strings.TrimSpace(orderID)), body)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, "update_order", req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return c.errorFromResponse("update_order", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (p orderPayload) toDomain() domain.Order {
	statusRaw := p.Statut
	if statusRaw == "" {
		statusRaw = p.Status
	}

	order := domain.Order{
		ID:              string(p.ID),
		Reference:       strings.TrimSpace(p.Ref),
		CustomerID:      string(p.Socid),
		Status:          domain.ParseOrderStatus(string(statusRaw)),
		SubtotalExclTax: p.TotalHT.Decimal,
		TaxTotal:        p.TotalTVA.Decimal,
		GrandTotal:      p.TotalTTC.Decimal,
		Lines:           make([]domain.OrderLine, 0, len(p.Lines)),
	}
	if p.NotePrivate != nil {
		order.Notes.Private = *p.NotePrivate
	}
	if p.NotePublic != nil {
		order.Notes.Public = *p.NotePublic
	}

	created := int64(p.Date)
	if created == 0 {
		created = int64(p.DateCreation)
	}
	if created > 0 {
		order.CreatedAt = time.Unix(created, 0).UTC()
	}

	// Delivery is not a line of its own on the ERP side; it is what remains once lines are paid.
	// A short total clamps delivery to zero and the grand total is rebuilt so the parts still add up.
	delivery := p.TotalTTC.Sub(p.TotalHT.Decimal).Sub(p.TotalTVA.Decimal)
	if delivery.IsNegative() {
		delivery = decimal.Zero
		order.GrandTotal = order.SubtotalExclTax.Add(order.TaxTotal)
	}
	order.DeliveryCost = delivery

	for _, line := range p.Lines {
		order.Lines = append(order.Lines, line.toDomain())
	}
	return order
}

func (l orderLinePayload) toDomain() domain.OrderLine {
	qty := int(l.Qty.IntPart())
	label := strings.TrimSpace(l.ProductLabel)
	if label == "" {
		label = strings.TrimSpace(l.Label)
	}
	if label == "" {
		label = strings.TrimSpace(l.Desc)
	}

	line := domain.OrderLine{
		ProductID:        string(l.FkProduct),
		Label:            label,
		Quantity:         qty,
		LineTotalExclTax: l.TotalHT.Decimal,
		LineTotalTax:     l.TotalTVA.Decimal,
	}
	// subprice is not a reliable unit price: orders created here store the line total in it.
	if qty > 0 {
		q := decimal.NewFromInt(int64(qty))
		line.UnitPriceExclTax = l.TotalHT.Div(q).Round(2)
		line.TaxAmountPerUnit = l.TotalTVA.Div(q).Round(2)
		incl := l.TotalTTC.Decimal
		if incl.IsZero() {
			incl = l.TotalHT.Add(l.TotalTVA.Decimal)
		}
		line.UnitPriceInclTax = incl.Div(q).Round(2)
	}
	return line
}
