package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/petcorner/storefront/internal/domain"
	"github.com/petcorner/storefront/internal/services"
)

const moneyPlaces = 2

type addressPayload struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country,omitempty"`
}

func (a addressPayload) toDomain() domain.Address {
	return domain.Address{Street: a.Street, City: a.City, PostalCode: a.PostalCode, Country: a.Country}
}

type coordinatesPayload struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// toDomain returns nil unless both coordinates were sent.
func (c *coordinatesPayload) toDomain() *domain.Coordinates {
	if c == nil || c.Latitude == nil || c.Longitude == nil {
		return nil
	}
	return &domain.Coordinates{Latitude: *c.Latitude, Longitude: *c.Longitude}
}

type cardPayload struct {
	HolderName string `json:"holder_name"`
	Number     string `json:"number"`
	Expiry     string `json:"expiry"`
	CVC        string `json:"cvc"`
}

type lineResponse struct {
	ProductID        string `json:"product_id"`
	Label            string `json:"label"`
	Quantity         int    `json:"quantity"`
	UnitPriceInclTax string `json:"unit_price_incl_tax"`
	UnitPriceExclTax string `json:"unit_price_excl_tax"`
	TaxPerUnit       string `json:"tax_per_unit"`
	LineTotalExclTax string `json:"line_total_excl_tax"`
	LineTotalTax     string `json:"line_total_tax"`
}

type deliveryResponse struct {
	Known      bool     `json:"known"`
	DistanceKm *float64 `json:"distance_km,omitempty"`
	Cost       string   `json:"cost"`
}

type quoteResponse struct {
	Lines           []lineResponse   `json:"lines"`
	SubtotalExclTax string           `json:"subtotal_excl_tax"`
	TaxTotal        string           `json:"tax_total"`
	Delivery        deliveryResponse `json:"delivery"`
	GrandTotal      string           `json:"grand_total"`
}

type checkoutResponse struct {
	OrderID        string        `json:"order_id"`
	DraftReference string        `json:"draft_reference"`
	CartCleared    bool          `json:"cart_cleared"`
	Quote          quoteResponse `json:"quote"`
}

type orderResponse struct {
	ID              string         `json:"id"`
	Reference       string         `json:"reference,omitempty"`
	Status          string         `json:"status"`
	StatusCode      int            `json:"status_code"`
	StatusLabel     string         `json:"status_label"`
	Actions         []string       `json:"actions"`
	Terminal        bool           `json:"terminal"`
	Lines           []lineResponse `json:"lines,omitempty"`
	SubtotalExclTax string         `json:"subtotal_excl_tax"`
	TaxTotal        string         `json:"tax_total"`
	DeliveryCost    string         `json:"delivery_cost"`
	GrandTotal      string         `json:"grand_total"`
	CreatedAt       string         `json:"created_at,omitempty"`
	NotePublic      string         `json:"note_public,omitempty"`
}

type statusChangeResponse struct {
	OrderID  string `json:"order_id"`
	Previous string `json:"previous_status"`
	Status   string `json:"status"`
	Changed  bool   `json:"changed"`
}

func money(value decimal.Decimal) string {
	return value.StringFixed(moneyPlaces)
}

func newLineResponses(lines []domain.OrderLine) []lineResponse {
	out := make([]lineResponse, 0, len(lines))
	for _, line := range lines {
		out = append(out, lineResponse{
			ProductID:        line.ProductID,
			Label:            line.Label,
			Quantity:         line.Quantity,
			UnitPriceInclTax: money(line.UnitPriceInclTax),
			UnitPriceExclTax: money(line.UnitPriceExclTax),
			TaxPerUnit:       money(line.TaxAmountPerUnit),
			LineTotalExclTax: money(line.LineTotalExclTax),
			LineTotalTax:     money(line.LineTotalTax),
		})
	}
	return out
}

func newQuoteResponse(quote services.Quote) quoteResponse {
	delivery := deliveryResponse{Known: quote.DeliveryKnown, Cost: money(quote.Delivery.Cost)}
	if quote.DeliveryKnown {
		distance := quote.Delivery.DistanceKm
		delivery.DistanceKm = &distance
	}
	return quoteResponse{
		Lines:           newLineResponses(quote.Lines),
		SubtotalExclTax: money(quote.Totals.SubtotalExclTax),
		TaxTotal:        money(quote.Totals.TaxTotal),
		Delivery:        delivery,
		GrandTotal:      money(quote.GrandTotal),
	}
}

// newOrderResponse renders an order with the status label and the actions the customer may take.
// The private note is internal to the back office and never returned.
func newOrderResponse(order services.Order, desc services.StatusDescriptor, withLines bool) orderResponse {
	actions := make([]string, 0, len(desc.Actions))
	for _, action := range desc.Actions {
		actions = append(actions, string(action))
	}
	resp := orderResponse{
		ID:              order.ID,
		Reference:       order.Reference,
		Status:          order.Status.String(),
		StatusCode:      int(order.Status),
		StatusLabel:     desc.Label,
		Actions:         actions,
		Terminal:        desc.Terminal,
		SubtotalExclTax: money(order.SubtotalExclTax),
		TaxTotal:        money(order.TaxTotal),
		DeliveryCost:    money(order.DeliveryCost),
		GrandTotal:      money(order.GrandTotal),
		NotePublic:      order.Notes.Public,
	}
	if withLines {
		resp.Lines = newLineResponses(order.Lines)
	}
	if !order.CreatedAt.IsZero() {
		resp.CreatedAt = order.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func newStatusChangeResponse(result services.StatusChangeResult) statusChangeResponse {
	return statusChangeResponse{
		OrderID:  result.OrderID,
		Previous: result.Previous.String(),
		Status:   result.Current.String(),
		Changed:  result.Changed,
	}
}
