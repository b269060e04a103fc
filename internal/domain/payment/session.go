package payment

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidStateTransition = errors.New("payment: invalid state transition")
	ErrInvalidAmount          = errors.New("payment: amount must be greater than zero")
)

// Phase is the observable tender-machine state.
type Phase string

const (
	PhaseCashActive   Phase = "cash_active"
	PhaseCardIdle     Phase = "card_idle"
	PhaseCardAwaiting Phase = "card_awaiting"
	PhasePaid         Phase = "paid"
	PhaseCanceled     Phase = "canceled"
)

// Mode is the active tender channel.
type Mode string

const (
	ModeCash Mode = "cash"
	ModeCard Mode = "card"
)

// CardStatus tracks the card terminal leg of the session.
type CardStatus string

const (
	CardIdle         CardStatus = "idle"
	CardAwaitingCard CardStatus = "awaiting_card"
	CardApproved     CardStatus = "approved"
	CardDeclined     CardStatus = "declined"
)

// Session is the financial state of one customer order while money is being
// collected. It is a single-writer value: only the payment orchestrator, on
// its owner goroutine, may mutate it. All mutation goes through the trigger
// methods below, which delegate to the tender state machine.
type Session struct {
	OrderID       string
	TotalDue      decimal.Decimal
	CashCollected decimal.Decimal
	CardStatus    CardStatus
	Paid          bool
	CardRef       string
	DeclineReason string

	cashRecorded bool
	cardRecorded bool

	state TenderState
}

// NewSession starts a fresh session in cash mode, the kiosk's default tender.
func NewSession(orderID string, totalDue decimal.Decimal) *Session {
	return &Session{
		OrderID:       orderID,
		TotalDue:      totalDue,
		CashCollected: decimal.Zero,
		CardStatus:    CardIdle,
		state:         cashActiveState{},
	}
}

func (s *Session) Phase() Phase { return s.state.Phase() }

// Mode reports which tender channel owns the hardware right now. Terminal
// phases report the channel that completed (or cash by default).
func (s *Session) Mode() Mode {
	switch s.state.Phase() {
	case PhaseCardIdle, PhaseCardAwaiting:
		return ModeCard
	}
	return ModeCash
}

// RemainingDue is the amount still owed, floored at zero.
func (s *Session) RemainingDue() decimal.Decimal {
	rem := s.TotalDue.Sub(s.CashCollected)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// Recorded reports whether a transaction has already been journaled for the
// given tender mode in this session.
func (s *Session) Recorded(mode Mode) bool {
	if mode == ModeCard {
		return s.cardRecorded
	}
	return s.cashRecorded
}

// MarkRecorded latches the at-most-once recording flag for a tender mode.
func (s *Session) MarkRecorded(mode Mode) {
	if mode == ModeCard {
		s.cardRecorded = true
		return
	}
	s.cashRecorded = true
}

func (s *Session) SelectCash() error {
	return s.apply(s.state.OnSelectCash(s))
}

func (s *Session) SelectCard() error {
	return s.apply(s.state.OnSelectCard(s))
}

func (s *Session) CardStarted() error {
	return s.apply(s.state.OnCardStarted(s))
}

func (s *Session) BillAccepted(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return s.apply(s.state.OnBillAccepted(s, amount))
}

func (s *Session) CardApprovedBy(amount decimal.Decimal, ref string) error {
	return s.apply(s.state.OnCardApproved(s, amount, ref))
}

func (s *Session) CardDeclinedBy(reason string) error {
	return s.apply(s.state.OnCardDeclined(s, reason))
}

func (s *Session) Cancel() error {
	return s.apply(s.state.OnCancel(s))
}

func (s *Session) apply(next TenderState, err error) error {
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

// addCash applies an accepted bill to the running total and latches the paid
// flag once the total covers the amount due. CashCollected only ever grows.
func (s *Session) addCash(amount decimal.Decimal) {
	s.CashCollected = s.CashCollected.Add(amount)
	if s.CashCollected.GreaterThanOrEqual(s.TotalDue) {
		s.Paid = true
	}
}
