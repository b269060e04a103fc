package kiosk

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apppay "github.com/snapbooth/kiosk/internal/application/payment"
	"github.com/snapbooth/kiosk/internal/domain/order"
)

var (
	ErrNoOrder        = errors.New("kiosk: no order in progress")
	ErrOrderMismatch  = errors.New("kiosk: order is not the active one")
	ErrAlreadyStarted = errors.New("kiosk: an order is already in progress")
)

// Screen is the kiosk's coarse position in the guided flow. The real UI has
// more steps (size, layout, category, frame); they all collapse into
// "selecting" here because only the payment screen has behavior.
type Screen string

const (
	ScreenHome      Screen = "home"
	ScreenSelecting Screen = "selecting"
	ScreenPayment   Screen = "payment"
	ScreenCapture   Screen = "capture"
)

// Service walks one customer at a time through the order flow and hands the
// payment screen to the orchestrator. It is the orchestrator's FlowSignal:
// completion moves the kiosk to capture, cancellation returns it home.
type Service struct {
	orders order.Repository
	pay    *apppay.Orchestrator
	log    *zap.Logger

	mu      sync.Mutex
	screen  Screen
	current string
}

func NewService(orders order.Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		orders: orders,
		log:    logger.With(zap.String("component", "kiosk_flow")),
		screen: ScreenHome,
	}
}

// AttachPayment wires the orchestrator in after construction; the two
// reference each other (the service is the orchestrator's flow signal).
func (s *Service) AttachPayment(pay *apppay.Orchestrator) { s.pay = pay }

// StartOrder begins a new visit from the home screen.
func (s *Service) StartOrder(ctx context.Context, template order.TemplateKind, copies int, category, frameID string) (*order.Order, error) {
	s.mu.Lock()
	if s.current != "" && s.screen != ScreenHome {
		s.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	s.mu.Unlock()

	ord, err := order.New(uuid.NewString(), template, copies)
	if err != nil {
		return nil, err
	}
	ord.Category = category
	ord.FrameID = frameID

	if err := s.orders.Save(ctx, ord); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.current = ord.ID
	s.screen = ScreenSelecting
	s.mu.Unlock()

	s.log.Info("order_started",
		zap.String("order_id", ord.ID),
		zap.String("template", string(ord.Template)),
		zap.Int("copies", ord.Copies),
	)
	return ord, nil
}

// EnterPayment moves the active order onto the payment screen and starts a
// fresh payment session for it.
func (s *Service) EnterPayment(ctx context.Context, orderID string) error {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if current == "" {
		return ErrNoOrder
	}
	if orderID != "" && orderID != current {
		return ErrOrderMismatch
	}

	ord, err := s.orders.FindByID(ctx, current)
	if err != nil {
		return err
	}
	if err := s.pay.Begin(ctx, ord); err != nil {
		return err
	}

	s.mu.Lock()
	s.screen = ScreenPayment
	s.mu.Unlock()
	return nil
}

// CancelPayment abandons the payment screen. The orchestrator signals
// PaymentCanceled back, which returns the kiosk home.
func (s *Service) CancelPayment(ctx context.Context) error {
	return s.pay.Cancel(ctx)
}

// Finish ends the visit after capture/review/print and resets for the next
// customer.
func (s *Service) Finish(ctx context.Context) error {
	if err := s.pay.End(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = ""
	s.screen = ScreenHome
	s.mu.Unlock()
	return nil
}

func (s *Service) Screen() Screen {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.screen
}

func (s *Service) CurrentOrderID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// PaymentCompleted implements apppay.FlowSignal. Runs on the dispatch
// goroutine, so it only flips the screen; it must not call back into the
// orchestrator.
func (s *Service) PaymentCompleted(orderID string) {
	s.mu.Lock()
	s.screen = ScreenCapture
	s.mu.Unlock()
	s.log.Info("flow_advanced_to_capture", zap.String("order_id", orderID))
}

// PaymentCanceled implements apppay.FlowSignal. Same constraint as
// PaymentCompleted.
func (s *Service) PaymentCanceled(orderID string) {
	s.mu.Lock()
	s.screen = ScreenHome
	s.current = ""
	s.mu.Unlock()
	s.log.Info("flow_returned_home", zap.String("order_id", orderID))
}
