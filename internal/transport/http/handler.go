package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	appkiosk "github.com/snapbooth/kiosk/internal/application/kiosk"
	apppay "github.com/snapbooth/kiosk/internal/application/payment"
	"github.com/snapbooth/kiosk/internal/domain/order"
	dompay "github.com/snapbooth/kiosk/internal/domain/payment"
	"github.com/snapbooth/kiosk/internal/pkg/logging"
)

// Handler is the kiosk's local control surface. On a deployed kiosk the
// touch UI calls these endpoints; on a bench they drive simulations.
type Handler struct {
	flow *appkiosk.Service
	pay  *apppay.Orchestrator
	log  *zap.Logger

	testMode bool
}

func NewHandler(flow *appkiosk.Service, pay *apppay.Orchestrator, logger *zap.Logger, testMode bool) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		flow:     flow,
		pay:      pay,
		log:      logger.With(zap.String("component", "http")),
		testMode: testMode,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.withLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/status", h.handleStatus)
	r.Post("/order", h.handleStartOrder)
	r.Post("/finish", h.handleFinish)

	r.Route("/payment", func(r chi.Router) {
		r.Post("/enter", h.handleEnterPayment)
		r.Post("/select", h.handleSelectMode)
		r.Post("/bill", h.handleInsertBill)
		r.Post("/cancel", h.handleCancel)
		r.Post("/card/start", h.handleStartCard)
		if h.testMode {
			r.Post("/card/simulate", h.handleSimulateCard)
		}
	})

	return r
}

func (h *Handler) withLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqLog := h.log.With(
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		ctx := logging.ContextWithLogger(r.Context(), reqLog)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type startOrderRequest struct {
	Template string `json:"template"`
	Copies   int    `json:"copies"`
	Category string `json:"category"`
	FrameID  string `json:"frame_id"`
}

type startOrderResponse struct {
	OrderID string `json:"order_id"`
}

func (h *Handler) handleStartOrder(w http.ResponseWriter, r *http.Request) {
	var req startOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ord, err := h.flow.StartOrder(r.Context(), order.TemplateKind(req.Template), req.Copies, req.Category, req.FrameID)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, startOrderResponse{OrderID: ord.ID})
}

type enterPaymentRequest struct {
	OrderID string `json:"order_id"`
}

func (h *Handler) handleEnterPayment(w http.ResponseWriter, r *http.Request) {
	var req enterPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.flow.EnterPayment(r.Context(), req.OrderID); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "payment"})
}

type selectModeRequest struct {
	Mode string `json:"mode"`
}

func (h *Handler) handleSelectMode(w http.ResponseWriter, r *http.Request) {
	var req selectModeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var err error
	switch dompay.Mode(req.Mode) {
	case dompay.ModeCash:
		err = h.pay.SelectCash(r.Context())
	case dompay.ModeCard:
		err = h.pay.SelectCard(r.Context())
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown mode %q", req.Mode))
		return
	}
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": req.Mode})
}

type insertBillRequest struct {
	Amount int64 `json:"amount"`
}

type insertBillResponse struct {
	Forwarded bool   `json:"forwarded"`
	Reason    string `json:"reason,omitempty"`
	Notice    string `json:"notice,omitempty"`
}

func (h *Handler) handleInsertBill(w http.ResponseWriter, r *http.Request) {
	var req insertBillRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	reason, err := h.pay.InsertBill(r.Context(), req.Amount)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	resp := insertBillResponse{Forwarded: reason == ""}
	if reason != "" {
		resp.Reason = string(reason)
		resp.Notice = reason.UserText()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleStartCard(w http.ResponseWriter, r *http.Request) {
	if err := h.pay.StartCardPayment(r.Context()); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "awaiting_card"})
}

type simulateCardRequest struct {
	CardNumber string `json:"card_number"`
}

func (h *Handler) handleSimulateCard(w http.ResponseWriter, r *http.Request) {
	var req simulateCardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.pay.SimulateCard(r.Context(), req.CardNumber); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "submitted"})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := h.flow.CancelPayment(r.Context()); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

func (h *Handler) handleFinish(w http.ResponseWriter, r *http.Request) {
	if err := h.flow.Finish(r.Context()); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "home"})
}

type statusResponse struct {
	Screen  string         `json:"screen"`
	OrderID string         `json:"order_id,omitempty"`
	Payment *paymentStatus `json:"payment,omitempty"`
}

type paymentStatus struct {
	Phase         string `json:"phase"`
	Mode          string `json:"mode"`
	TotalDue      string `json:"total_due"`
	CashCollected string `json:"cash_collected"`
	RemainingDue  string `json:"remaining_due"`
	CardStatus    string `json:"card_status"`
	Paid          bool   `json:"paid"`
	Notice        string `json:"notice,omitempty"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.pay.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := statusResponse{
		Screen:  string(h.flow.Screen()),
		OrderID: h.flow.CurrentOrderID(),
	}
	if st.OrderID != "" {
		resp.Payment = &paymentStatus{
			Phase:         string(st.Phase),
			Mode:          string(st.Mode),
			TotalDue:      st.TotalDue.StringFixed(2),
			CashCollected: st.CashCollected.StringFixed(2),
			RemainingDue:  st.RemainingDue.StringFixed(2),
			CardStatus:    string(st.CardStatus),
			Paid:          st.Paid,
			Notice:        st.Notice,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeJSON(r *http.Request, dst any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
		_ = r.Body.Close()
	}()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	logging.FromContext(ctx).Warn("request_failed", zap.Error(err))

	switch {
	case errors.Is(err, order.ErrNotFound), errors.Is(err, appkiosk.ErrNoOrder):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, order.ErrInvalidCopies),
		errors.Is(err, order.ErrUnknownTemplate),
		errors.Is(err, appkiosk.ErrOrderMismatch):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, appkiosk.ErrAlreadyStarted):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, apppay.ErrNoSession),
		errors.Is(err, apppay.ErrNotAwaitingCard),
		errors.Is(err, apppay.ErrSimulationUnavailable):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, apppay.ErrReaderUnavailable):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, dompay.ErrInvalidStateTransition):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
