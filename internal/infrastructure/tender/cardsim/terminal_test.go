package cardsim

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapbooth/kiosk/internal/domain/event"
	dompay "github.com/snapbooth/kiosk/internal/domain/payment"
)

type capturePublisher struct {
	events chan event.Event
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{events: make(chan event.Event, 16)}
}

func (p *capturePublisher) Publish(_ context.Context, e event.Event) error {
	p.events <- e
	return nil
}

func (p *capturePublisher) next(t *testing.T) event.Event {
	t.Helper()
	select {
	case e := <-p.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no tender event published")
		return nil
	}
}

func (p *capturePublisher) expectSilence(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case e := <-p.events:
		t.Fatalf("unexpected event %s", e.EventName())
	case <-time.After(d):
	}
}

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestStartPaymentRequiresConnection(t *testing.T) {
	pub := newCapturePublisher()
	term := New(Config{}, pub, nil)

	err := term.StartPayment(context.Background(), amount("20.00"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestStartPaymentRejectsConcurrentPayment(t *testing.T) {
	pub := newCapturePublisher()
	term := New(Config{}, pub, nil)
	require.NoError(t, term.Connect(context.Background()))

	require.NoError(t, term.StartPayment(context.Background(), amount("20.00")))
	err := term.StartPayment(context.Background(), amount("20.00"))
	assert.ErrorIs(t, err, ErrBusy)
}

func TestAutoApprovePublishesApproval(t *testing.T) {
	pub := newCapturePublisher()
	term := New(Config{AutoApprove: true}, pub, nil)
	require.NoError(t, term.Connect(context.Background()))

	require.NoError(t, term.StartPayment(context.Background(), amount("20.00")))

	evt, ok := pub.next(t).(dompay.CardApprovedEvent)
	require.True(t, ok)
	assert.Equal(t, "20.00", evt.Amount.StringFixed(2))
	assert.Contains(t, evt.Ref, "pi_")
}

func TestSimulatePaymentApprovesGoodCard(t *testing.T) {
	pub := newCapturePublisher()
	term := New(Config{}, pub, nil)
	require.NoError(t, term.Connect(context.Background()))
	require.NoError(t, term.StartPayment(context.Background(), amount("15.00")))

	require.NoError(t, term.SimulatePayment(context.Background(), "4242424242424242"))

	evt, ok := pub.next(t).(dompay.CardApprovedEvent)
	require.True(t, ok)
	assert.Equal(t, "15.00", evt.Amount.StringFixed(2))
}

func TestSimulatePaymentDeclinesDeclineCard(t *testing.T) {
	pub := newCapturePublisher()
	term := New(Config{}, pub, nil)
	require.NoError(t, term.Connect(context.Background()))
	require.NoError(t, term.StartPayment(context.Background(), amount("15.00")))

	require.NoError(t, term.SimulatePayment(context.Background(), DeclineCard))

	evt, ok := pub.next(t).(dompay.CardDeclinedEvent)
	require.True(t, ok)
	assert.Equal(t, "insufficient_funds", evt.Reason)
}

func TestSimulatePaymentWithoutPaymentInFlight(t *testing.T) {
	pub := newCapturePublisher()
	term := New(Config{}, pub, nil)
	require.NoError(t, term.Connect(context.Background()))

	err := term.SimulatePayment(context.Background(), "4242424242424242")
	assert.ErrorIs(t, err, ErrNoPayment)
}

func TestCancelSuppressesVerdict(t *testing.T) {
	pub := newCapturePublisher()
	term := New(Config{AutoApprove: true, AuthorizeDelay: 100 * time.Millisecond}, pub, nil)
	require.NoError(t, term.Connect(context.Background()))
	require.NoError(t, term.StartPayment(context.Background(), amount("20.00")))

	require.NoError(t, term.Cancel(context.Background()))

	pub.expectSilence(t, 300*time.Millisecond)

	// A new payment can start after the cancel.
	require.NoError(t, term.StartPayment(context.Background(), amount("20.00")))
}

func TestDisconnectAbortsInFlightPayment(t *testing.T) {
	pub := newCapturePublisher()
	term := New(Config{AutoApprove: true, AuthorizeDelay: 100 * time.Millisecond}, pub, nil)
	require.NoError(t, term.Connect(context.Background()))
	require.NoError(t, term.StartPayment(context.Background(), amount("20.00")))

	require.NoError(t, term.Disconnect(context.Background()))

	pub.expectSilence(t, 300*time.Millisecond)
}

func TestGatewayDownRefusesSynchronously(t *testing.T) {
	pub := newCapturePublisher()
	term := New(Config{}, pub, nil)
	require.NoError(t, term.Connect(context.Background()))

	term.SetAvailable(false)
	err := term.StartPayment(context.Background(), amount("20.00"))
	assert.ErrorIs(t, err, ErrUnavailable)

	term.SetAvailable(true)
	require.NoError(t, term.StartPayment(context.Background(), amount("20.00")))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	pub := newCapturePublisher()
	term := New(Config{}, pub, nil)
	require.NoError(t, term.Connect(context.Background()))
	term.SetAvailable(false)

	for i := 0; i < 3; i++ {
		err := term.StartPayment(context.Background(), amount("20.00"))
		assert.ErrorIs(t, err, ErrUnavailable)
	}

	// Breaker is now open: the call fails fast without reaching the gateway.
	term.SetAvailable(true)
	err := term.StartPayment(context.Background(), amount("20.00"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestConnectIdempotent(t *testing.T) {
	pub := newCapturePublisher()
	term := New(Config{}, pub, nil)

	require.NoError(t, term.Connect(context.Background()))
	require.NoError(t, term.Connect(context.Background()))
	require.NoError(t, term.Disconnect(context.Background()))
	require.NoError(t, term.Disconnect(context.Background()))
	require.NoError(t, term.Cancel(context.Background()))
}
