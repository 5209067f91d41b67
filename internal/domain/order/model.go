package order

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot is the read-only view of an order owned by the order subsystem
type Snapshot struct {
	ID           string    `db:"id" json:"id"`
	TenantID     string    `db:"tenant_id" json:"tenant_id"`
	UserID       string    `db:"user_id" json:"user_id"`
	Subtotal     int64     `db:"subtotal" json:"subtotal"`
	Total        int64     `db:"total" json:"total"`
	Shipping     int64     `db:"shipping" json:"shipping"`
	Currency     string    `db:"currency" json:"currency"`
	IsFirstOrder bool      `db:"is_first_order" json:"is_first_order"`
	LineItems    LineItems `db:"line_items" json:"line_items"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// LineItem is one product line of an order, prices in minor units
type LineItem struct {
	ProductID  string `json:"product_id"`
	CategoryID string `json:"category_id,omitempty"`
	BrandID    string `json:"brand_id,omitempty"`
	Quantity   int64  `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
	OnSale     bool   `json:"on_sale,omitempty"`
}

// Amount is the line total
func (li LineItem) Amount() int64 {
	return li.Quantity * li.UnitPrice
}

// LineItems is stored as a JSON column
type LineItems []LineItem

// Scan implements the sql.Scanner interface for LineItems
func (l *LineItems) Scan(value interface{}) error {
	if value == nil {
		*l = LineItems{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("failed to unmarshal line items value: %v", value)
	}

	result := make(LineItems, 0)
	if len(bytes) > 0 {
		if err := json.Unmarshal(bytes, &result); err != nil {
			return err
		}
	}
	*l = result
	return nil
}

// Value implements the driver.Valuer interface for LineItems
func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]LineItem(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
