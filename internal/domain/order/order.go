package order

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("order: not found")
	ErrInvalidCopies   = errors.New("order: copies must be greater than zero")
	ErrUnknownTemplate = errors.New("order: unknown template kind")
)

// TemplateKind identifies the print layout the customer picked on the size
// and layout screens.
type TemplateKind string

const (
	TemplateStrip    TemplateKind = "strip"
	TemplatePostcard TemplateKind = "postcard"
	TemplateLarge    TemplateKind = "large"
)

func (k TemplateKind) Valid() bool {
	switch k {
	case TemplateStrip, TemplatePostcard, TemplateLarge:
		return true
	}
	return false
}

type Status string

const (
	StatusSelecting Status = "selecting"
	StatusPaying    Status = "paying"
	StatusPaid      Status = "paid"
	StatusCanceled  Status = "canceled"
)

// Order is one customer visit. The payment orchestrator persists the running
// cash total back onto the order so an interrupted collection can be
// reconciled against the transaction journal.
type Order struct {
	ID       string
	Template TemplateKind
	Copies   int
	Category string
	FrameID  string

	Status        Status
	CashCollected decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func New(id string, template TemplateKind, copies int) (*Order, error) {
	if !template.Valid() {
		return nil, ErrUnknownTemplate
	}
	if copies <= 0 {
		return nil, ErrInvalidCopies
	}

	now := time.Now().UTC()
	return &Order{
		ID:            id,
		Template:      template,
		Copies:        copies,
		Status:        StatusSelecting,
		CashCollected: decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (o *Order) BeginPayment() {
	o.Status = StatusPaying
	o.touch()
}

func (o *Order) MarkPaid() {
	o.Status = StatusPaid
	o.touch()
}

func (o *Order) MarkCanceled() {
	o.Status = StatusCanceled
	o.touch()
}

// SetCashCollected records the running cash total on the order.
func (o *Order) SetCashCollected(total decimal.Decimal) {
	o.CashCollected = total
	o.touch()
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	return &clone
}
