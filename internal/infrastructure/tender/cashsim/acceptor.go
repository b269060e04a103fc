// Package cashsim is the simulated bill acceptor used on bench kiosks and in
// tests. It honors the same contract as the serial-port driver: the adapter
// alone decides acceptance, on its own goroutine, and reports the outcome
// through tender events.
package cashsim

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/snapbooth/kiosk/internal/domain/event"
	dompay "github.com/snapbooth/kiosk/internal/domain/payment"
)

var ErrNotConnected = errors.New("cashsim: acceptor not connected")

// faultCode is the injected hardware fault reported when fault injection
// fires. The shape matches the driver's raw fault codes.
const faultCode = dompay.RejectReason("fault_0x1c")

type Config struct {
	// Denominations the acceptor recognizes, by face value.
	Denominations []int64

	// EvaluateDelay is how long the simulated hardware takes to read and
	// stack a bill.
	EvaluateDelay time.Duration

	// FaultEvery injects a hardware fault on every Nth bill when positive.
	FaultEvery int

	// ManualInsert permits software-driven bill insertion. Off means every
	// InsertBill is refused with manual_insert_disabled, mirroring kiosks
	// where only the physical intake path is allowed.
	ManualInsert bool
}

type Acceptor struct {
	mu        sync.Mutex
	connected bool
	limit     decimal.Decimal
	seen      int

	cfg    Config
	denoms map[int64]struct{}
	pub    event.Publisher
	log    *zap.Logger
}

func New(cfg Config, pub event.Publisher, logger *zap.Logger) *Acceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	denoms := make(map[int64]struct{}, len(cfg.Denominations))
	for _, d := range cfg.Denominations {
		denoms[d] = struct{}{}
	}
	return &Acceptor{
		cfg:    cfg,
		denoms: denoms,
		pub:    pub,
		log:    logger.With(zap.String("component", "cashsim")),
	}
}

// Connect powers the acceptor on. Idempotent; calling it while already
// connected is a no-op.
func (a *Acceptor) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		a.connected = true
		a.log.Info("acceptor_connected")
	}
	_ = ctx
	return nil
}

func (a *Acceptor) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connected {
		a.connected = false
		a.log.Info("acceptor_disconnected")
	}
	_ = ctx
	return nil
}

// SetAcceptLimit sets the highest amount the hardware may accept. Zero
// disables intake.
func (a *Acceptor) SetAcceptLimit(ctx context.Context, limit decimal.Decimal) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.limit = limit
	a.log.Debug("accept_limit_set", zap.String("limit", limit.StringFixed(2)))
	_ = ctx
	return nil
}

// InsertBill feeds a bill for evaluation. The call returns once the bill is
// in the intake; acceptance or rejection is decided asynchronously and
// reported as a tender event.
func (a *Acceptor) InsertBill(ctx context.Context, amount int64) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return ErrNotConnected
	}
	a.seen++
	seen := a.seen
	a.mu.Unlock()

	bg := context.WithoutCancel(ctx)
	go func() {
		if a.cfg.EvaluateDelay > 0 {
			time.Sleep(a.cfg.EvaluateDelay)
		}
		a.evaluate(bg, amount, seen)
	}()
	return nil
}

func (a *Acceptor) evaluate(ctx context.Context, amount int64, seen int) {
	a.mu.Lock()
	connected := a.connected
	limit := a.limit
	a.mu.Unlock()

	reason := dompay.RejectReason("")
	switch {
	case !connected:
		reason = dompay.RejectNotConnected
	case a.cfg.FaultEvery > 0 && seen%a.cfg.FaultEvery == 0:
		reason = faultCode
	case !a.cfg.ManualInsert:
		reason = dompay.RejectManualInsertDisabled
	case amount <= 0:
		reason = dompay.RejectInvalidAmount
	default:
		if _, ok := a.denoms[amount]; !ok {
			reason = dompay.RejectUnsupportedDenom
			break
		}
		if !limit.IsPositive() {
			reason = dompay.RejectIntakeDisabled
			break
		}
		if decimal.NewFromInt(amount).GreaterThan(limit) {
			reason = dompay.RejectRejected
		}
	}

	if reason != "" {
		a.publish(ctx, dompay.BillRejectedEvent{
			Amount:     amount,
			Reason:     reason,
			OccurredAt: time.Now().UTC(),
		})
		return
	}

	a.publish(ctx, dompay.BillAcceptedEvent{
		Amount:     decimal.NewFromInt(amount),
		OccurredAt: time.Now().UTC(),
	})
}

func (a *Acceptor) publish(ctx context.Context, e event.Event) {
	if err := a.pub.Publish(ctx, e); err != nil {
		a.log.Error("tender_event_publish_failed",
			zap.String("event", e.EventName()),
			zap.Error(err),
		)
	}
}
