package erp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// The ERP serialises most scalars as strings but is inconsistent across versions, so the wire
// types below accept strings, numbers and null interchangeably.

type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("erp: expected string or number, got %s", string(data))
	}
	*f = flexString(n.String())
	return nil
}

type flexDecimal struct {
	decimal.Decimal
}

func (f *flexDecimal) UnmarshalJSON(data []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	if s == "" {
		f.Decimal = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(string(s))
	if err != nil {
		return fmt.Errorf("erp: parse decimal %q: %w", string(s), err)
	}
	f.Decimal = d
	return nil
}

type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		d, derr := decimal.NewFromString(string(s))
		if derr != nil {
			return fmt.Errorf("erp: parse integer %q: %w", string(s), err)
		}
		n = d.IntPart()
	}
	*f = flexInt(n)
	return nil
}

type orderPayload struct {
	ID           flexString         `json:"id"`
	Ref          string             `json:"ref"`
	Socid        flexString         `json:"socid"`
	Statut       flexString         `json:"statut"`
	Status       flexString         `json:"status"`
	TotalHT      flexDecimal        `json:"total_ht"`
	TotalTVA     flexDecimal        `json:"total_tva"`
	TotalTTC     flexDecimal        `json:"total_ttc"`
	Date         flexInt            `json:"date"`
	DateCreation flexInt            `json:"date_creation"`
	NotePrivate  *string            `json:"note_private"`
	NotePublic   *string            `json:"note_public"`
	Lines        []orderLinePayload `json:"lines"`
}

type orderLinePayload struct {
	FkProduct    flexString  `json:"fk_product"`
	ProductLabel string      `json:"product_label"`
	Label        string      `json:"label"`
	Desc         string      `json:"desc"`
	Qty          flexDecimal `json:"qty"`
	TotalHT      flexDecimal `json:"total_ht"`
	TotalTVA     flexDecimal `json:"total_tva"`
	TotalTTC     flexDecimal `json:"total_ttc"`
}

type productPayload struct {
	ID        flexString  `json:"id"`
	Ref       string      `json:"ref"`
	Label     string      `json:"label"`
	PriceTTC  flexDecimal `json:"price_ttc"`
	StockReel flexDecimal `json:"stock_reel"`
	PhotoRef  string      `json:"photo"`
}

type createOrderRequest struct {
	Socid       string                   `json:"socid"`
	Date        int64                    `json:"date"`
	Type        int                      `json:"type"`
	Lines       []createOrderLineRequest `json:"lines"`
	NotePrivate string                   `json:"note_private,omitempty"`
}

type createOrderLineRequest struct {
	FkProduct string `json:"fk_product"`
	Qty       int    `json:"qty"`
	// Price is the excl-tax unit price; SubPrice carries the excl-tax line total.
	Price    string `json:"price"`
	SubPrice string `json:"subprice"`
	TotalTVA string `json:"total_tva"`
	TvaTx    int    `json:"tva_tx"`
}

type updateOrderRequest struct {
	Statut      *string `json:"statut,omitempty"`
	NotePrivate *string `json:"note_private,omitempty"`
	NotePublic  *string `json:"note_public,omitempty"`
}

// parseCreatedID accepts {"id": n}, "id :<n>", a bare string id or a bare number.
func parseCreatedID(body []byte) (string, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return "", fmt.Errorf("erp: empty create response")
	}
	switch body[0] {
	case '{':
		var payload struct {
			ID flexString `json:"id"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return "", fmt.Errorf("erp: decode create response: %w", err)
		}
		if payload.ID == "" {
			return "", fmt.Errorf("erp: create response has no id")
		}
		return string(payload.ID), nil
	case '"':
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return "", fmt.Errorf("erp: decode create response: %w", err)
		}
		return idFromText(s)
	default:
		var id flexString
		if err := id.UnmarshalJSON(body); err == nil && id != "" {
			return string(id), nil
		}
		return idFromText(string(body))
	}
}

func idFromText(s string) (string, error) {
	s = strings.TrimSpace(s)
	if idx := strings.LastIndex(s, ":"); idx >= 0 {
		s = strings.TrimSpace(s[idx+1:])
	}
	if _, err := strconv.ParseInt(s, 10, 64); err != nil || s == "" {
		return "", fmt.Errorf("erp: unexpected create response %q", s)
	}
	return s, nil
}
