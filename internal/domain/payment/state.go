package payment

import "github.com/shopspring/decimal"

// TenderState implements the state pattern for the tender machine. Triggers
// that are illegal commands return ErrInvalidStateTransition; late hardware
// events in terminal states are absorbed as no-ops so duplicate or straggler
// callbacks never surface as failures.
type TenderState interface {
	Phase() Phase
	OnSelectCash(s *Session) (TenderState, error)
	OnSelectCard(s *Session) (TenderState, error)
	OnCardStarted(s *Session) (TenderState, error)
	OnBillAccepted(s *Session, amount decimal.Decimal) (TenderState, error)
	OnCardApproved(s *Session, amount decimal.Decimal, ref string) (TenderState, error)
	OnCardDeclined(s *Session, reason string) (TenderState, error)
	OnCancel(s *Session) (TenderState, error)
}

// acceptBill is shared by every non-canceled state: an accepted bill always
// lands in the running total, even when it straggles in after the session is
// already paid or the UI moved to card mode.
func acceptBill(s *Session, amount decimal.Decimal, self TenderState) (TenderState, error) {
	s.addCash(amount)
	if s.Paid {
		return paidState{}, nil
	}
	return self, nil
}

// approveCard latches the approval. A completed charge is never dropped, so
// this is honored from any non-terminal state, not only while awaiting.
func approveCard(s *Session, ref string) (TenderState, error) {
	s.CardStatus = CardApproved
	s.CardRef = ref
	s.DeclineReason = ""
	s.Paid = true
	return paidState{}, nil
}

type cashActiveState struct{}

func (cashActiveState) Phase() Phase { return PhaseCashActive }

func (cashActiveState) OnSelectCash(*Session) (TenderState, error) {
	return cashActiveState{}, nil
}

func (cashActiveState) OnSelectCard(s *Session) (TenderState, error) {
	s.CardStatus = CardIdle
	s.DeclineReason = ""
	return cardIdleState{}, nil
}

func (cashActiveState) OnCardStarted(*Session) (TenderState, error) {
	return nil, ErrInvalidStateTransition
}

func (st cashActiveState) OnBillAccepted(s *Session, amount decimal.Decimal) (TenderState, error) {
	return acceptBill(s, amount, st)
}

func (cashActiveState) OnCardApproved(s *Session, _ decimal.Decimal, ref string) (TenderState, error) {
	return approveCard(s, ref)
}

func (st cashActiveState) OnCardDeclined(*Session, string) (TenderState, error) {
	return st, nil
}

func (cashActiveState) OnCancel(*Session) (TenderState, error) {
	return canceledState{}, nil
}

type cardIdleState struct{}

func (cardIdleState) Phase() Phase { return PhaseCardIdle }

func (cardIdleState) OnSelectCash(s *Session) (TenderState, error) {
	s.CardStatus = CardIdle
	return cashActiveState{}, nil
}

func (cardIdleState) OnSelectCard(*Session) (TenderState, error) {
	return cardIdleState{}, nil
}

func (cardIdleState) OnCardStarted(s *Session) (TenderState, error) {
	s.CardStatus = CardAwaitingCard
	s.DeclineReason = ""
	return cardAwaitingState{}, nil
}

func (st cardIdleState) OnBillAccepted(s *Session, amount decimal.Decimal) (TenderState, error) {
	return acceptBill(s, amount, st)
}

func (cardIdleState) OnCardApproved(s *Session, _ decimal.Decimal, ref string) (TenderState, error) {
	return approveCard(s, ref)
}

func (st cardIdleState) OnCardDeclined(s *Session, reason string) (TenderState, error) {
	s.CardStatus = CardDeclined
	s.DeclineReason = reason
	return st, nil
}

func (cardIdleState) OnCancel(*Session) (TenderState, error) {
	return canceledState{}, nil
}

type cardAwaitingState struct{}

func (cardAwaitingState) Phase() Phase { return PhaseCardAwaiting }

func (cardAwaitingState) OnSelectCash(s *Session) (TenderState, error) {
	s.CardStatus = CardIdle
	return cashActiveState{}, nil
}

func (st cardAwaitingState) OnSelectCard(*Session) (TenderState, error) {
	return st, nil
}

func (cardAwaitingState) OnCardStarted(*Session) (TenderState, error) {
	return nil, ErrInvalidStateTransition
}

func (st cardAwaitingState) OnBillAccepted(s *Session, amount decimal.Decimal) (TenderState, error) {
	return acceptBill(s, amount, st)
}

func (cardAwaitingState) OnCardApproved(s *Session, _ decimal.Decimal, ref string) (TenderState, error) {
	return approveCard(s, ref)
}

func (cardAwaitingState) OnCardDeclined(s *Session, reason string) (TenderState, error) {
	s.CardStatus = CardDeclined
	s.DeclineReason = reason
	return cardIdleState{}, nil
}

func (cardAwaitingState) OnCancel(*Session) (TenderState, error) {
	return canceledState{}, nil
}

type paidState struct{}

func (paidState) Phase() Phase { return PhasePaid }

func (paidState) OnSelectCash(*Session) (TenderState, error) {
	return paidState{}, nil
}

func (paidState) OnSelectCard(*Session) (TenderState, error) {
	return paidState{}, nil
}

func (paidState) OnCardStarted(*Session) (TenderState, error) {
	return nil, ErrInvalidStateTransition
}

func (st paidState) OnBillAccepted(s *Session, amount decimal.Decimal) (TenderState, error) {
	// Audit bookkeeping only; the paid flag is already latched so the
	// orchestrator will not re-run commit side effects.
	return acceptBill(s, amount, st)
}

func (st paidState) OnCardApproved(*Session, decimal.Decimal, string) (TenderState, error) {
	return st, nil
}

func (st paidState) OnCardDeclined(*Session, string) (TenderState, error) {
	return st, nil
}

func (st paidState) OnCancel(*Session) (TenderState, error) {
	return st, nil
}

type canceledState struct{}

func (canceledState) Phase() Phase { return PhaseCanceled }

func (canceledState) OnSelectCash(*Session) (TenderState, error) {
	return nil, ErrInvalidStateTransition
}

func (canceledState) OnSelectCard(*Session) (TenderState, error) {
	return nil, ErrInvalidStateTransition
}

func (canceledState) OnCardStarted(*Session) (TenderState, error) {
	return nil, ErrInvalidStateTransition
}

func (st canceledState) OnBillAccepted(*Session, decimal.Decimal) (TenderState, error) {
	return st, nil
}

func (st canceledState) OnCardApproved(*Session, decimal.Decimal, string) (TenderState, error) {
	return st, nil
}

func (st canceledState) OnCardDeclined(*Session, string) (TenderState, error) {
	return st, nil
}

func (st canceledState) OnCancel(*Session) (TenderState, error) {
	return st, nil
}
