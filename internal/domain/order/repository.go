package order

import "context"

// Repository persists orders across the kiosk flow. The payment orchestrator
// is the only writer while an order is on the payment screen.
type Repository interface {
	Save(ctx context.Context, order *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, order *Order) error
}
