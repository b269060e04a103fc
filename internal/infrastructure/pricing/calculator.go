package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/snapbooth/kiosk/internal/domain/order"
)

// TemplatePrice is the tariff for one template kind: a base price for the
// session plus a price per printed copy.
type TemplatePrice struct {
	Base    decimal.Decimal
	PerCopy decimal.Decimal
}

// Calculator prices an order from a static tariff table. Pure and
// idempotent: the same order always yields the same total.
type Calculator struct {
	table map[order.TemplateKind]TemplatePrice
}

func New(table map[order.TemplateKind]TemplatePrice) *Calculator {
	return &Calculator{table: table}
}

// DefaultTable is the bench tariff.
func DefaultTable() map[order.TemplateKind]TemplatePrice {
	return map[order.TemplateKind]TemplatePrice{
		order.TemplateStrip:    {Base: decimal.NewFromInt(10), PerCopy: decimal.NewFromInt(5)},
		order.TemplatePostcard: {Base: decimal.NewFromInt(15), PerCopy: decimal.NewFromInt(5)},
		order.TemplateLarge:    {Base: decimal.NewFromInt(20), PerCopy: decimal.NewFromInt(10)},
	}
}

func (c *Calculator) TotalDue(ctx context.Context, o *order.Order) (decimal.Decimal, error) {
	_ = ctx
	if o == nil {
		return decimal.Zero, fmt.Errorf("pricing: order is required")
	}
	price, ok := c.table[o.Template]
	if !ok {
		return decimal.Zero, fmt.Errorf("pricing: no tariff for template %q", o.Template)
	}
	copies := decimal.NewFromInt(int64(o.Copies))
	return price.Base.Add(price.PerCopy.Mul(copies)), nil
}
