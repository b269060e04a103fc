package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/snapbooth/kiosk/internal/domain/event"
	"github.com/snapbooth/kiosk/internal/domain/order"
	dompay "github.com/snapbooth/kiosk/internal/domain/payment"
	"github.com/snapbooth/kiosk/internal/infrastructure/dispatch"
	"github.com/snapbooth/kiosk/internal/pkg/sessionlog"
)

var (
	ErrNoSession             = errors.New("payment: no active session")
	ErrReaderUnavailable     = errors.New("payment: card reader unavailable")
	ErrSimulationUnavailable = errors.New("payment: card simulation not available")
	ErrNotAwaitingCard       = errors.New("payment: no card payment in progress")
)

const (
	noticeReaderUnavailable = "The card reader is unavailable. Please try again or pay with cash."
	noticeCardDeclined      = "The card was declined. Please try again or pay with cash."
	noticeSimulationFailed  = "Card simulation failed."

	recordTimeout = 5 * time.Second
)

// Orchestrator owns the payment state machine for the active order. Every
// mutation runs on the dispatch loop: public commands post a closure and
// wait for it, adapter events are queued by the loop and applied in arrival
// order. Nothing outside this type writes the session.
type Orchestrator struct {
	loop     *dispatch.Loop
	cash     CashTender
	card     CardTender
	cardSim  TestSimulation
	prices   PriceCalculator
	recorder TransactionRecorder
	flow     FlowSignal
	orders   order.Repository

	slog   *sessionlog.Log
	log    *zap.Logger
	tracer trace.Tracer
	met    *Metrics

	testMode bool

	// Owned by the dispatch goroutine.
	session    *dompay.Session
	order      *order.Order
	cardAmount decimal.Decimal
	notice     string
}

type Config struct {
	Loop     *dispatch.Loop
	Cash     CashTender
	Card     CardTender
	Prices   PriceCalculator
	Recorder TransactionRecorder
	Flow     FlowSignal
	Orders   order.Repository
	Session  *sessionlog.Log
	Logger   *zap.Logger
	Metrics  *Metrics

	// TestMode unlocks the card adapter's TestSimulation capability when the
	// adapter offers one. Never enabled on deployed kiosks.
	TestMode bool
}

func NewOrchestrator(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	slog := cfg.Session
	if slog == nil {
		slog = sessionlog.New(nil)
	}

	o := &Orchestrator{
		loop:     cfg.Loop,
		cash:     cfg.Cash,
		card:     cfg.Card,
		prices:   cfg.Prices,
		recorder: cfg.Recorder,
		flow:     cfg.Flow,
		orders:   cfg.Orders,
		slog:     slog,
		log:      logger.With(zap.String("component", "payment_orchestrator")),
		tracer:   otel.Tracer("kiosk/payment"),
		met:      cfg.Metrics,
		testMode: cfg.TestMode,
	}

	// The test-simulation capability is resolved exactly once, here, and
	// only when the kiosk runs a test configuration.
	if cfg.TestMode {
		if sim, ok := cfg.Card.(TestSimulation); ok {
			o.cardSim = sim
		}
	}
	return o
}

// Start subscribes the orchestrator's event handlers on the dispatch loop.
func (o *Orchestrator) Start() {
	o.loop.Subscribe(dompay.BillAcceptedEvent{}.EventName(), o.handleBillAccepted)
	o.loop.Subscribe(dompay.BillRejectedEvent{}.EventName(), o.handleBillRejected)
	o.loop.Subscribe(dompay.CardApprovedEvent{}.EventName(), o.handleCardApproved)
	o.loop.Subscribe(dompay.CardDeclinedEvent{}.EventName(), o.handleCardDeclined)
}

// Begin enters the payment screen for an order: computes the total due,
// starts a fresh session in cash mode, and opens the bill acceptor with the
// full amount as its ceiling.
func (o *Orchestrator) Begin(ctx context.Context, ord *order.Order) error {
	var out error
	err := o.call(ctx, "Payment.Begin", func(ctx context.Context) {
		total, err := o.prices.TotalDue(ctx, ord)
		if err != nil {
			out = err
			return
		}

		ord.BeginPayment()
		o.updateOrder(ctx, ord)

		o.order = ord
		o.session = dompay.NewSession(ord.ID, total)
		o.cardAmount = decimal.Zero
		o.notice = ""

		if err := o.cash.Connect(ctx); err != nil {
			// Cash degraded, card still possible; the first insert will be
			// rejected by the adapter with not_connected.
			o.log.Warn("cash_connect_failed", zap.Error(err))
		}
		if err := o.cash.SetAcceptLimit(ctx, total); err != nil {
			o.log.Warn("cash_set_limit_failed", zap.Error(err))
		}

		o.slog.Mode(string(dompay.ModeCash))
		o.log.Info("payment_session_started",
			zap.String("order_id", ord.ID),
			zap.String("total_due", total.StringFixed(2)),
		)
	})
	if err != nil {
		return err
	}
	return out
}

// End discards the session when the flow leaves the payment area, e.g. after
// the order finished printing or the kiosk returned home.
func (o *Orchestrator) End(ctx context.Context) error {
	return o.call(ctx, "Payment.End", func(ctx context.Context) {
		o.session = nil
		o.order = nil
		o.notice = ""
		o.cardAmount = decimal.Zero
	})
}

// SelectCash activates the cash tender: any in-flight card payment is
// canceled at the terminal before the bill acceptor is reopened.
func (o *Orchestrator) SelectCash(ctx context.Context) error {
	var out error
	err := o.call(ctx, "Payment.SelectCash", func(ctx context.Context) {
		if o.session == nil {
			out = ErrNoSession
			return
		}
		if o.session.Paid || o.session.Mode() == dompay.ModeCash {
			return
		}

		if err := o.card.Cancel(ctx); err != nil {
			o.log.Warn("card_cancel_failed", zap.Error(err))
		}
		if err := o.card.Disconnect(ctx); err != nil {
			o.log.Warn("card_disconnect_failed", zap.Error(err))
		}

		if err := o.session.SelectCash(); err != nil {
			out = err
			return
		}
		o.notice = ""

		if err := o.cash.Connect(ctx); err != nil {
			o.log.Warn("cash_connect_failed", zap.Error(err))
		}
		if err := o.cash.SetAcceptLimit(ctx, o.session.RemainingDue()); err != nil {
			o.log.Warn("cash_set_limit_failed", zap.Error(err))
		}

		o.slog.Mode(string(dompay.ModeCash))
	})
	if err != nil {
		return err
	}
	return out
}

// SelectCard activates the card tender: the bill acceptor is closed (ceiling
// zeroed, then disconnected) before the terminal is brought up.
func (o *Orchestrator) SelectCard(ctx context.Context) error {
	var out error
	err := o.call(ctx, "Payment.SelectCard", func(ctx context.Context) {
		if o.session == nil {
			out = ErrNoSession
			return
		}
		if o.session.Paid || o.session.Mode() == dompay.ModeCard {
			return
		}

		if err := o.session.SelectCard(); err != nil {
			out = err
			return
		}
		o.notice = ""

		if err := o.cash.SetAcceptLimit(ctx, decimal.Zero); err != nil {
			o.log.Warn("cash_set_limit_failed", zap.Error(err))
		}
		if err := o.cash.Disconnect(ctx); err != nil {
			o.log.Warn("cash_disconnect_failed", zap.Error(err))
		}
		if err := o.card.Connect(ctx); err != nil {
			o.log.Warn("card_connect_failed", zap.Error(err))
			o.notice = noticeReaderUnavailable
		}

		o.slog.Mode(string(dompay.ModeCard))
	})
	if err != nil {
		return err
	}
	return out
}

// InsertBill validates a bill against the session before it ever reaches the
// acceptor. Locally rejected bills return the reject code and never touch
// the hardware; forwarded bills are decided asynchronously by the adapter.
func (o *Orchestrator) InsertBill(ctx context.Context, amount int64) (dompay.RejectReason, error) {
	var (
		reason dompay.RejectReason
		out    error
	)
	err := o.call(ctx, "Payment.InsertBill", func(ctx context.Context) {
		if o.session == nil {
			out = ErrNoSession
			return
		}

		remaining := o.session.RemainingDue()
		switch {
		case o.session.Paid:
			reason = dompay.RejectAlreadyPaid
		case !remaining.IsPositive():
			reason = dompay.RejectNoBalanceDue
		case amount <= 0:
			reason = dompay.RejectInvalidAmount
		case decimal.NewFromInt(amount).GreaterThan(remaining):
			reason = dompay.RejectOverpayment
		}
		if reason != "" {
			o.notice = reason.UserText()
			o.slog.BillRejected(amount, string(reason), remaining, true)
			o.countBillRejected(reason)
			return
		}

		if err := o.cash.InsertBill(ctx, amount); err != nil {
			o.log.Warn("bill_forward_failed", zap.Int64("amount", amount), zap.Error(err))
			reason = dompay.RejectNotConnected
			o.notice = reason.UserText()
			o.slog.BillRejected(amount, string(reason), remaining, false)
			o.countBillRejected(reason)
		}
	}, attribute.Int64("bill.amount", amount))
	if err != nil {
		return "", err
	}
	return reason, out
}

// StartCardPayment asks the terminal to collect the remaining due. No-op
// when the session is paid, not in card mode, already awaiting a card, or
// nothing is owed.
func (o *Orchestrator) StartCardPayment(ctx context.Context) error {
	var out error
	err := o.call(ctx, "Payment.StartCard", func(ctx context.Context) {
		if o.session == nil {
			out = ErrNoSession
			return
		}
		if o.session.Paid ||
			o.session.Mode() != dompay.ModeCard ||
			o.session.Phase() == dompay.PhaseCardAwaiting {
			return
		}
		remaining := o.session.RemainingDue()
		if !remaining.IsPositive() {
			return
		}

		if err := o.card.Connect(ctx); err != nil {
			o.log.Warn("card_connect_failed", zap.Error(err))
			o.failCardStart(remaining, "connect_failed")
			out = ErrReaderUnavailable
			return
		}
		if err := o.card.StartPayment(ctx, remaining); err != nil {
			o.log.Warn("card_start_failed", zap.Error(err))
			o.failCardStart(remaining, "")
			out = ErrReaderUnavailable
			return
		}

		// Transition only after the terminal took the request; a sync
		// refusal above leaves the session in CardIdle for a retry.
		if err := o.session.CardStarted(); err != nil {
			out = err
			return
		}
		o.cardAmount = remaining
		o.notice = ""
		o.slog.CardStarted(remaining)
	})
	if err != nil {
		return err
	}
	return out
}

// SimulateCard submits a test card against the in-flight payment. Only
// reachable when the kiosk runs a test configuration and the adapter exposes
// the capability; otherwise it fails closed.
func (o *Orchestrator) SimulateCard(ctx context.Context, cardNumber string) error {
	var out error
	err := o.call(ctx, "Payment.SimulateCard", func(ctx context.Context) {
		if !o.testMode || o.cardSim == nil {
			out = ErrSimulationUnavailable
			return
		}
		if o.session == nil {
			out = ErrNoSession
			return
		}
		if o.session.Phase() != dompay.PhaseCardAwaiting {
			out = ErrNotAwaitingCard
			return
		}

		if err := o.cardSim.SimulatePayment(ctx, cardNumber); err != nil {
			o.log.Warn("card_simulation_failed", zap.Error(err))
			_ = o.session.CardDeclinedBy("simulation_failed")
			o.notice = noticeSimulationFailed
			o.slog.CardFailed(o.cardAmount, "simulation_failed")
			out = err
		}
	})
	if err != nil {
		return err
	}
	return out
}

// Cancel abandons the session: any in-flight card payment is canceled before
// the terminal is disconnected, the bill acceptor is closed, and the flow is
// sent back to its entry point. No-op once paid.
func (o *Orchestrator) Cancel(ctx context.Context) error {
	var out error
	err := o.call(ctx, "Payment.Cancel", func(ctx context.Context) {
		if o.session == nil {
			out = ErrNoSession
			return
		}
		if o.session.Paid {
			return
		}

		if err := o.card.Cancel(ctx); err != nil {
			o.log.Warn("card_cancel_failed", zap.Error(err))
		}
		if err := o.card.Disconnect(ctx); err != nil {
			o.log.Warn("card_disconnect_failed", zap.Error(err))
		}
		if err := o.cash.SetAcceptLimit(ctx, decimal.Zero); err != nil {
			o.log.Warn("cash_set_limit_failed", zap.Error(err))
		}
		if err := o.cash.Disconnect(ctx); err != nil {
			o.log.Warn("cash_disconnect_failed", zap.Error(err))
		}

		if err := o.session.Cancel(); err != nil {
			out = err
			return
		}

		o.slog.Canceled()
		if o.order != nil {
			o.order.MarkCanceled()
			o.updateOrder(ctx, o.order)
		}
		o.log.Info("payment_session_canceled", zap.String("order_id", o.session.OrderID))
		if o.flow != nil {
			o.flow.PaymentCanceled(o.session.OrderID)
		}
	})
	if err != nil {
		return err
	}
	return out
}

// Status is a point-in-time snapshot for display. Read on the dispatch
// goroutine like every other session access.
type Status struct {
	OrderID       string
	Phase         dompay.Phase
	Mode          dompay.Mode
	TotalDue      decimal.Decimal
	CashCollected decimal.Decimal
	RemainingDue  decimal.Decimal
	CardStatus    dompay.CardStatus
	Paid          bool
	Notice        string
	TestMode      bool
}

func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	var st Status
	err := o.loop.Call(ctx, func(context.Context) {
		st.TestMode = o.testMode
		if o.session == nil {
			return
		}
		st.OrderID = o.session.OrderID
		st.Phase = o.session.Phase()
		st.Mode = o.session.Mode()
		st.TotalDue = o.session.TotalDue
		st.CashCollected = o.session.CashCollected
		st.RemainingDue = o.session.RemainingDue()
		st.CardStatus = o.session.CardStatus
		st.Paid = o.session.Paid
		st.Notice = o.notice
	})
	return st, err
}

// RemainingDue reports the amount still owed. With no session yet it derives
// the figure from the order's current selections.
func (o *Orchestrator) RemainingDue(ctx context.Context, ord *order.Order) (decimal.Decimal, error) {
	var (
		due decimal.Decimal
		out error
	)
	err := o.loop.Call(ctx, func(ctx context.Context) {
		if o.session != nil {
			due = o.session.RemainingDue()
			return
		}
		if ord == nil {
			return
		}
		due, out = o.prices.TotalDue(ctx, ord)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return due, out
}

// --- event handlers (dispatch goroutine) ---

func (o *Orchestrator) handleBillAccepted(ctx context.Context, e event.Event) error {
	evt, ok := e.(dompay.BillAcceptedEvent)
	if !ok {
		return nil
	}
	if o.session == nil {
		o.log.Warn("bill_accepted_without_session", zap.String("amount", evt.Amount.StringFixed(2)))
		return nil
	}

	o.notice = ""
	wasPaid := o.session.Paid
	if err := o.session.BillAccepted(evt.Amount); err != nil {
		o.log.Warn("bill_accepted_not_applied", zap.Error(err))
		return nil
	}
	if o.session.Phase() == dompay.PhaseCanceled {
		// The canceled state absorbed the bill without applying it; an
		// acceptance line here would claim money the totals never saw.
		o.log.Warn("bill_accepted_after_cancel", zap.String("amount", evt.Amount.StringFixed(2)))
		return nil
	}

	if o.order != nil {
		o.order.SetCashCollected(o.session.CashCollected)
		o.updateOrder(ctx, o.order)
	}

	o.slog.BillAccepted(evt.Amount, o.session.CashCollected)
	if o.met != nil {
		o.met.BillsAccepted.Inc()
	}
	o.log.Info("bill_accepted",
		zap.String("amount", evt.Amount.StringFixed(2)),
		zap.String("total", o.session.CashCollected.StringFixed(2)),
	)

	if wasPaid {
		// Late event after completion: bookkeeping only, no second commit.
		return nil
	}
	if o.session.Paid {
		o.commitPaid(ctx)
		return nil
	}
	if err := o.cash.SetAcceptLimit(ctx, o.session.RemainingDue()); err != nil {
		o.log.Warn("cash_set_limit_failed", zap.Error(err))
	}
	return nil
}

func (o *Orchestrator) handleBillRejected(ctx context.Context, e event.Event) error {
	evt, ok := e.(dompay.BillRejectedEvent)
	if !ok {
		return nil
	}
	if o.session == nil {
		return nil
	}

	o.notice = evt.Reason.UserText()
	o.slog.BillRejected(evt.Amount, string(evt.Reason), decimal.Zero, false)
	o.countBillRejected(evt.Reason)
	o.log.Info("bill_rejected",
		zap.Int64("amount", evt.Amount),
		zap.String("reason", string(evt.Reason)),
	)
	_ = ctx
	return nil
}

func (o *Orchestrator) handleCardApproved(ctx context.Context, e event.Event) error {
	evt, ok := e.(dompay.CardApprovedEvent)
	if !ok {
		return nil
	}
	if o.session == nil {
		o.log.Warn("card_approved_without_session", zap.String("ref", evt.Ref))
		return nil
	}
	if o.session.Paid {
		// Duplicate or straggler: nothing recorded twice, no second commit.
		o.log.Warn("card_approved_after_paid", zap.String("ref", evt.Ref))
		return nil
	}
	if o.session.Phase() == dompay.PhaseCanceled {
		// The charge landed despite the cancel; journal it so the money is
		// accounted for, but the session stays canceled. The recorded latch
		// still applies: a redelivered approval must not journal twice.
		o.log.Warn("card_approved_after_cancel", zap.String("ref", evt.Ref))
		if !o.session.Recorded(dompay.ModeCard) {
			o.session.MarkRecorded(dompay.ModeCard)
			o.recordTransaction(dompay.ModeCard, evt.Amount, evt.Ref)
		}
		return nil
	}

	// Journal the partial cash leg first, then the card leg, then commit.
	if o.session.CashCollected.IsPositive() && !o.session.Recorded(dompay.ModeCash) {
		o.session.MarkRecorded(dompay.ModeCash)
		o.recordTransaction(dompay.ModeCash, o.session.CashCollected, "")
	}
	if !o.session.Recorded(dompay.ModeCard) {
		o.session.MarkRecorded(dompay.ModeCard)
		o.recordTransaction(dompay.ModeCard, evt.Amount, evt.Ref)
	}

	if err := o.session.CardApprovedBy(evt.Amount, evt.Ref); err != nil {
		o.log.Warn("card_approved_not_applied", zap.Error(err))
		return nil
	}

	o.slog.CardApproved(evt.Amount)
	if o.met != nil {
		o.met.CardPayments.WithLabelValues("approved").Inc()
		o.met.CollectedAmount.WithLabelValues(string(dompay.ModeCard)).Add(amountValue(evt.Amount))
	}
	o.log.Info("card_approved",
		zap.String("amount", evt.Amount.StringFixed(2)),
		zap.String("ref", evt.Ref),
	)

	o.commitPaid(ctx)
	return nil
}

func (o *Orchestrator) handleCardDeclined(ctx context.Context, e event.Event) error {
	evt, ok := e.(dompay.CardDeclinedEvent)
	if !ok {
		return nil
	}
	if o.session == nil || o.session.Paid {
		return nil
	}

	if err := o.session.CardDeclinedBy(evt.Reason); err != nil {
		o.log.Warn("card_declined_not_applied", zap.Error(err))
		return nil
	}

	o.notice = noticeCardDeclined
	o.slog.CardDeclined(o.cardAmount, evt.Reason)
	if o.met != nil {
		o.met.CardPayments.WithLabelValues("declined").Inc()
	}
	o.log.Info("card_declined", zap.String("reason", evt.Reason))
	_ = ctx
	return nil
}

// commitPaid is the single commit point: it runs exactly once per session,
// on the false-to-true edge of the paid flag, which every caller checks on
// the dispatch goroutine before getting here. Nothing after it may mutate
// the financial totals.
func (o *Orchestrator) commitPaid(ctx context.Context) {
	if o.session.CashCollected.IsPositive() && !o.session.Recorded(dompay.ModeCash) {
		o.session.MarkRecorded(dompay.ModeCash)
		o.recordTransaction(dompay.ModeCash, o.session.CashCollected, "")
	}

	o.slog.Completed(o.session.TotalDue)

	if err := o.cash.SetAcceptLimit(ctx, decimal.Zero); err != nil {
		o.log.Warn("cash_set_limit_failed", zap.Error(err))
	}
	if err := o.cash.Disconnect(ctx); err != nil {
		o.log.Warn("cash_disconnect_failed", zap.Error(err))
	}
	if err := o.card.Disconnect(ctx); err != nil {
		o.log.Warn("card_disconnect_failed", zap.Error(err))
	}

	if o.order != nil {
		o.order.MarkPaid()
		o.updateOrder(ctx, o.order)
	}

	if o.met != nil {
		o.met.Completed.WithLabelValues(string(o.session.Mode())).Inc()
		if o.session.CashCollected.IsPositive() {
			o.met.CollectedAmount.WithLabelValues(string(dompay.ModeCash)).Add(amountValue(o.session.CashCollected))
		}
	}
	o.log.Info("payment_completed",
		zap.String("order_id", o.session.OrderID),
		zap.String("total", o.session.TotalDue.StringFixed(2)),
	)

	if o.flow != nil {
		o.flow.PaymentCompleted(o.session.OrderID)
	}
}

// --- helpers ---

func (o *Orchestrator) failCardStart(amount decimal.Decimal, reason string) {
	o.notice = noticeReaderUnavailable
	o.slog.CardFailed(amount, reason)
	if o.met != nil {
		o.met.CardPayments.WithLabelValues("failed").Inc()
	}
}

func (o *Orchestrator) countBillRejected(reason dompay.RejectReason) {
	if o.met != nil {
		o.met.BillsRejected.WithLabelValues(string(reason)).Inc()
	}
}

// recordTransaction journals a tender leg best-effort: the write happens off
// the dispatch goroutine and a failure is only logged.
func (o *Orchestrator) recordTransaction(method dompay.Mode, amount decimal.Decimal, ref string) {
	if o.recorder == nil {
		return
	}
	tx := Transaction{
		ID:          uuid.NewString(),
		OrderID:     o.session.OrderID,
		Method:      method,
		Amount:      amount,
		ExternalRef: ref,
		CreatedAt:   time.Now().UTC(),
	}
	log := o.log
	rec := o.recorder
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := rec.Record(ctx, tx); err != nil {
			log.Error("transaction_record_failed",
				zap.String("order_id", tx.OrderID),
				zap.String("method", string(tx.Method)),
				zap.String("amount", tx.Amount.StringFixed(2)),
				zap.Error(err),
			)
		}
	}()
}

func (o *Orchestrator) updateOrder(ctx context.Context, ord *order.Order) {
	if o.orders == nil {
		return
	}
	if err := o.orders.Update(ctx, ord); err != nil {
		o.log.Warn("order_update_failed", zap.String("order_id", ord.ID), zap.Error(err))
	}
}

// call runs fn on the dispatch goroutine inside a span.
func (o *Orchestrator) call(ctx context.Context, op string, fn func(ctx context.Context), attrs ...attribute.KeyValue) error {
	return o.loop.Call(ctx, func(ctx context.Context) {
		ctx, span := o.tracer.Start(ctx, op, trace.WithAttributes(attrs...))
		defer span.End()
		fn(ctx)
	})
}

func amountValue(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
