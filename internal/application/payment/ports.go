package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/snapbooth/kiosk/internal/domain/order"
	dompay "github.com/snapbooth/kiosk/internal/domain/payment"
)

// CashTender drives the bill acceptor. Connect and Disconnect are idempotent
// and safe to call repeatedly or while a previous call is still settling.
// The adapter alone decides whether an inserted bill is accepted; it reports
// the outcome asynchronously as a BillAcceptedEvent or BillRejectedEvent.
type CashTender interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	// SetAcceptLimit tells the hardware the highest amount it may accept.
	// Zero disables intake entirely.
	SetAcceptLimit(ctx context.Context, limit decimal.Decimal) error

	// InsertBill feeds a bill (simulated or physically detected) into the
	// acceptor for evaluation. amount is the face value.
	InsertBill(ctx context.Context, amount int64) error
}

// CardTender drives the card terminal. StartPayment returning an error means
// the terminal refused the request synchronously; the actual approval or
// decline always arrives later as a CardApprovedEvent or CardDeclinedEvent,
// never as the return value.
type CardTender interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Cancel(ctx context.Context) error
	StartPayment(ctx context.Context, amount decimal.Decimal) error
}

// TestSimulation is the optional card-adapter capability used on bench
// configurations: it submits a well-known test card against the in-flight
// payment. Production terminals do not implement it.
type TestSimulation interface {
	SimulatePayment(ctx context.Context, cardNumber string) error
}

// PriceCalculator computes the total amount due for an order's current
// selections.
type PriceCalculator interface {
	TotalDue(ctx context.Context, o *order.Order) (decimal.Decimal, error)
}

// Transaction is one completed tender leg to be journaled.
type Transaction struct {
	ID          string
	OrderID     string
	Method      dompay.Mode
	Amount      decimal.Decimal
	ExternalRef string
	CreatedAt   time.Time
}

// TransactionRecorder durably records a completed tender. Recording is
// best-effort from the orchestrator's point of view: a failure is logged and
// never blocks or reverses the paid transition.
type TransactionRecorder interface {
	Record(ctx context.Context, tx Transaction) error
}

// FlowSignal is how the orchestrator hands the session back to the
// surrounding screen flow. Implementations are invoked on the dispatch
// goroutine and must return quickly.
type FlowSignal interface {
	PaymentCompleted(orderID string)
	PaymentCanceled(orderID string)
}
