package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CatalogProduct is an immutable snapshot of a sellable product as published by the catalog.
type CatalogProduct struct {
	ID               string
	Label            string
	UnitPriceInclTax decimal.Decimal
	Stock            int
	PhotoRef         string
}

// QuantityMap maps product ids to the quantity the customer asked for.
// Non-positive entries are treated as absent.
type QuantityMap map[string]int

// Resolve returns the quantity recorded for the product, defaulting to 1 when the entry is
// missing or not positive.
func (q QuantityMap) Resolve(productID string) int {
	if q == nil {
		return 1
	}
	if qty, ok := q[productID]; ok && qty > 0 {
		return qty
	}
	return 1
}

// Clone returns a copy that only keeps positive quantities.
func (q QuantityMap) Clone() QuantityMap {
	out := make(QuantityMap, len(q))
	for id, qty := range q {
		if qty > 0 {
			out[id] = qty
		}
	}
	return out
}

// OrderLine is a priced order line. Lines are recomputed on every pricing pass.
type OrderLine struct {
	ProductID        string
	Label            string
	Quantity         int
	UnitPriceExclTax decimal.Decimal
	UnitPriceInclTax decimal.Decimal
	TaxAmountPerUnit decimal.Decimal
	LineTotalExclTax decimal.Decimal
	LineTotalTax     decimal.Decimal
}

// Coordinates is a WGS84 position in decimal degrees.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// DeliveryEstimate captures the distance between store and customer and the resulting fee.
type DeliveryEstimate struct {
	DistanceKm float64
	Cost       decimal.Decimal
}

// OrderStatus mirrors the numeric status codes used by the order repository.
type OrderStatus int

const (
	// OrderStatusCancelled is terminal; the order will not be fulfilled.
	OrderStatusCancelled OrderStatus = -1
	// OrderStatusDraft is assigned by the repository when an order is created.
	OrderStatusDraft OrderStatus = 0
	// OrderStatusValidated means the back office accepted the order.
	OrderStatusValidated OrderStatus = 1
	// OrderStatusProcessing means the order is being prepared or shipped.
	OrderStatusProcessing OrderStatus = 2
	// OrderStatusDelivered is terminal; the customer received the order.
	OrderStatusDelivered OrderStatus = 3
	// OrderStatusUnknown is only produced when parsing unrecognised repository data.
	OrderStatusUnknown OrderStatus = -99
)

// ParseOrderStatusCode maps a wire status code onto OrderStatus. Unrecognised codes map to Unknown.
func ParseOrderStatusCode(code int) OrderStatus {
	switch OrderStatus(code) {
	case OrderStatusCancelled, OrderStatusDraft, OrderStatusValidated, OrderStatusProcessing, OrderStatusDelivered:
		return OrderStatus(code)
	default:
		return OrderStatusUnknown
	}
}

// ParseOrderStatus accepts either the numeric wire form ("-1".."3") or a status name.
func ParseOrderStatus(raw string) OrderStatus {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return OrderStatusUnknown
	}
	if code, err := strconv.Atoi(trimmed); err == nil {
		return ParseOrderStatusCode(code)
	}
	switch strings.ToLower(trimmed) {
	case "draft":
		return OrderStatusDraft
	case "validated":
		return OrderStatusValidated
	case "processing":
		return OrderStatusProcessing
	case "delivered":
		return OrderStatusDelivered
	case "cancelled", "canceled":
		return OrderStatusCancelled
	default:
		return OrderStatusUnknown
	}
}

// Known reports whether the status is one of the five lifecycle states.
func (s OrderStatus) Known() bool {
	return ParseOrderStatusCode(int(s)) != OrderStatusUnknown
}

// WireCode returns the stringified numeric code sent to the repository.
func (s OrderStatus) WireCode() string {
	return strconv.Itoa(int(s))
}

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusDraft:
		return "draft"
	case OrderStatusValidated:
		return "validated"
	case OrderStatusProcessing:
		return "processing"
	case OrderStatusDelivered:
		return "delivered"
	case OrderStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// OrderNotes holds the two free-text note fields kept by the repository.
type OrderNotes struct {
	Private string
	Public  string
}

// Order is the repository's view of a submitted order.
type Order struct {
	ID              string
	Reference       string
	CustomerID      string
	Status          OrderStatus
	Lines           []OrderLine
	SubtotalExclTax decimal.Decimal
	TaxTotal        decimal.Decimal
	DeliveryCost    decimal.Decimal
	GrandTotal      decimal.Decimal
	CreatedAt       time.Time
	Notes           OrderNotes
}

// NoteVisibility selects which note field a note is written to.
type NoteVisibility string

const (
	NoteVisibilityPrivate NoteVisibility = "private"
	NoteVisibilityPublic  NoteVisibility = "public"
)

// Address is the delivery address captured at checkout.
type Address struct {
	Street     string
	City       string
	PostalCode string
	Country    string
}

// PaymentMethod identifies how the customer pays.
type PaymentMethod string

const (
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentMethodCard           PaymentMethod = "card"
)

// CardDetails is opaque to the core; format validation belongs to the form layer.
type CardDetails struct {
	HolderName string
	Number     string
	Expiry     string
	CVC        string
}

// OrderDraft is a fully priced order ready to be submitted to the repository.
type OrderDraft struct {
	Reference       string
	IdempotencyKey  string
	CustomerID      string
	Lines           []OrderLine
	Delivery        DeliveryEstimate
	DeliveryKnown   bool
	Address         Address
	PaymentMethod   PaymentMethod
	SubtotalExclTax decimal.Decimal
	TaxTotal        decimal.Decimal
	DeliveryCost    decimal.Decimal
	GrandTotal      decimal.Decimal
	CreatedAt       time.Time
	Note            string
}

// OrderReference identifies an order created by the repository.
type OrderReference struct {
	ID             string
	DraftReference string
}
