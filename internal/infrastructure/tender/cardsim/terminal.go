// Package cardsim is the simulated card terminal. It mimics a terminal SDK
// whose network calls can fail: the simulated gateway round trips run behind
// a circuit breaker, and authorization outcomes always arrive asynchronously
// as tender events, never as return values.
package cardsim

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/snapbooth/kiosk/internal/domain/event"
	dompay "github.com/snapbooth/kiosk/internal/domain/payment"
)

var (
	ErrNotConnected = errors.New("cardsim: terminal not connected")
	ErrBusy         = errors.New("cardsim: payment already in progress")
	ErrNoPayment    = errors.New("cardsim: no payment in progress")
	ErrUnavailable  = errors.New("cardsim: gateway unavailable")
)

// DeclineCard is the well-known test card that always declines.
const DeclineCard = "4000000000000002"

type Config struct {
	// AuthorizeDelay is the simulated time between a card presentation and
	// the gateway's verdict.
	AuthorizeDelay time.Duration

	// AutoApprove makes StartPayment authorize on its own after
	// AuthorizeDelay, as if a good card were tapped immediately. When off
	// the terminal waits for SimulatePayment, which is how bench tests
	// exercise specific cards.
	AutoApprove bool

	// DeclineCards maps test card numbers to decline reasons. DeclineCard
	// is always present.
	DeclineCards map[string]string
}

type authorization struct {
	amount   decimal.Decimal
	canceled chan struct{}
	once     sync.Once
}

func (auth *authorization) cancel() {
	auth.once.Do(func() { close(auth.canceled) })
}

type Terminal struct {
	mu        sync.Mutex
	connected bool
	inflight  *authorization
	available bool

	cfg     Config
	breaker *gobreaker.CircuitBreaker
	pub     event.Publisher
	log     *zap.Logger
}

func New(cfg Config, pub event.Publisher, logger *zap.Logger) *Terminal {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DeclineCards == nil {
		cfg.DeclineCards = map[string]string{}
	}
	if _, ok := cfg.DeclineCards[DeclineCard]; !ok {
		cfg.DeclineCards[DeclineCard] = "insufficient_funds"
	}

	t := &Terminal{
		cfg:       cfg,
		available: true,
		pub:       pub,
		log:       logger.With(zap.String("component", "cardsim")),
	}
	t.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "card-gateway",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			t.log.Warn("gateway_breaker_state_changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return t
}

// SetAvailable toggles the simulated gateway, used to exercise the
// reader-unavailable paths and the breaker.
func (t *Terminal) SetAvailable(ok bool) {
	t.mu.Lock()
	t.available = ok
	t.mu.Unlock()
}

// gatewayCall is one simulated network round trip behind the breaker.
func (t *Terminal) gatewayCall() error {
	_, err := t.breaker.Execute(func() (any, error) {
		t.mu.Lock()
		ok := t.available
		t.mu.Unlock()
		if !ok {
			return nil, ErrUnavailable
		}
		return nil, nil
	})
	return err
}

// Connect brings the terminal online. Idempotent.
func (t *Terminal) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if err := t.gatewayCall(); err != nil {
		return err
	}

	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	t.log.Info("terminal_connected")
	_ = ctx
	return nil
}

func (t *Terminal) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	auth := t.inflight
	t.inflight = nil
	was := t.connected
	t.connected = false
	t.mu.Unlock()

	if auth != nil {
		auth.cancel()
	}
	if was {
		t.log.Info("terminal_disconnected")
	}
	_ = ctx
	return nil
}

// Cancel aborts any in-flight payment. Safe to call when nothing is in
// flight.
func (t *Terminal) Cancel(ctx context.Context) error {
	t.mu.Lock()
	auth := t.inflight
	t.inflight = nil
	t.mu.Unlock()

	if auth != nil {
		auth.cancel()
		t.log.Info("payment_canceled_at_terminal")
	}
	_ = ctx
	return nil
}

// StartPayment asks the terminal to collect amount. An error here is the
// terminal refusing synchronously; the approve/decline verdict only ever
// arrives as a tender event.
func (t *Terminal) StartPayment(ctx context.Context, amount decimal.Decimal) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return ErrNotConnected
	}
	if t.inflight != nil {
		t.mu.Unlock()
		return ErrBusy
	}
	t.mu.Unlock()

	if err := t.gatewayCall(); err != nil {
		return err
	}

	auth := &authorization{amount: amount, canceled: make(chan struct{})}
	t.mu.Lock()
	t.inflight = auth
	t.mu.Unlock()
	t.log.Info("payment_started", zap.String("amount", amount.StringFixed(2)))

	if t.cfg.AutoApprove {
		go t.authorize(context.WithoutCancel(ctx), auth, "")
	}
	return nil
}

// SimulatePayment presents a test card against the in-flight payment. This
// is the TestSimulation capability; production terminal drivers do not have
// an equivalent.
func (t *Terminal) SimulatePayment(ctx context.Context, cardNumber string) error {
	t.mu.Lock()
	auth := t.inflight
	t.mu.Unlock()
	if auth == nil {
		return ErrNoPayment
	}

	if err := t.gatewayCall(); err != nil {
		return err
	}

	go t.authorize(context.WithoutCancel(ctx), auth, cardNumber)
	return nil
}

func (t *Terminal) authorize(ctx context.Context, auth *authorization, cardNumber string) {
	if t.cfg.AuthorizeDelay > 0 {
		select {
		case <-auth.canceled:
			return
		case <-time.After(t.cfg.AuthorizeDelay):
		}
	}
	select {
	case <-auth.canceled:
		return
	default:
	}

	t.mu.Lock()
	if t.inflight == auth {
		t.inflight = nil
	}
	t.mu.Unlock()

	if reason, declined := t.cfg.DeclineCards[cardNumber]; declined {
		t.publish(ctx, dompay.CardDeclinedEvent{
			Reason:     reason,
			OccurredAt: time.Now().UTC(),
		})
		return
	}

	t.publish(ctx, dompay.CardApprovedEvent{
		Amount:     auth.amount,
		Ref:        "pi_" + uuid.NewString(),
		OccurredAt: time.Now().UTC(),
	})
}

func (t *Terminal) publish(ctx context.Context, e event.Event) {
	if err := t.pub.Publish(ctx, e); err != nil {
		t.log.Error("tender_event_publish_failed",
			zap.String("event", e.EventName()),
			zap.Error(err),
		)
	}
}
