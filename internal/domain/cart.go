package domain

import (
	"github.com/shopspring/decimal"
)

// Item is the product snapshot a shopper adds to the cart.
type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	ImageRef  string          `json:"imageRef,omitempty"`
	Brand     string          `json:"brand,omitempty"`
}

// CartLine is one product entry in the cart. Quantity is always >= 1.
type CartLine struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	ImageRef  string          `json:"imageRef,omitempty"`
	Brand     string          `json:"brand,omitempty"`
}

// NewCartLine builds a line from an item.
func NewCartLine(item Item, quantity int) CartLine {
	return CartLine{
		ProductID: item.ProductID,
		Name:      item.Name,
		UnitPrice: item.UnitPrice,
		Quantity:  quantity,
		ImageRef:  item.ImageRef,
		Brand:     item.Brand,
	}
}

// LineTotal is unit price times quantity.
func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
