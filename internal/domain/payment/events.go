package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillAcceptedEvent is emitted by the cash tender adapter once the acceptor
// has physically stacked a bill.
type BillAcceptedEvent struct {
	Amount     decimal.Decimal
	OccurredAt time.Time
}

func (BillAcceptedEvent) EventName() string { return "tender.bill_accepted" }

// BillRejectedEvent is emitted by the cash tender adapter when a bill is
// refused. Amount is the face value of the refused bill.
type BillRejectedEvent struct {
	Amount     int64
	Reason     RejectReason
	OccurredAt time.Time
}

func (BillRejectedEvent) EventName() string { return "tender.bill_rejected" }

// CardApprovedEvent is emitted by the card tender adapter when the terminal
// reports an authorized charge. Ref is the external payment-intent id.
type CardApprovedEvent struct {
	Amount     decimal.Decimal
	Ref        string
	OccurredAt time.Time
}

func (CardApprovedEvent) EventName() string { return "tender.card_approved" }

// CardDeclinedEvent is emitted by the card tender adapter when the terminal
// declines a charge.
type CardDeclinedEvent struct {
	Reason     string
	OccurredAt time.Time
}

func (CardDeclinedEvent) EventName() string { return "tender.card_declined" }
