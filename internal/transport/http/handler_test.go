package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appkiosk "github.com/snapbooth/kiosk/internal/application/kiosk"
	apppay "github.com/snapbooth/kiosk/internal/application/payment"
	"github.com/snapbooth/kiosk/internal/infrastructure/dispatch"
	"github.com/snapbooth/kiosk/internal/infrastructure/memory"
	"github.com/snapbooth/kiosk/internal/infrastructure/pricing"
	"github.com/snapbooth/kiosk/internal/infrastructure/recorder"
	"github.com/snapbooth/kiosk/internal/infrastructure/tender/cardsim"
	"github.com/snapbooth/kiosk/internal/infrastructure/tender/cashsim"
	"github.com/snapbooth/kiosk/internal/pkg/sessionlog"
)

func newServer(t *testing.T, testMode bool) (*httptest.Server, *apppay.Orchestrator) {
	t.Helper()

	loop := dispatch.NewLoop(nil)
	loop.Start(context.Background())
	t.Cleanup(func() { loop.Stop(context.Background()) })

	cash := cashsim.New(cashsim.Config{
		Denominations: []int64{5, 10, 20, 50},
		ManualInsert:  true,
	}, loop, nil)
	card := cardsim.New(cardsim.Config{}, loop, nil)

	repo := memory.NewOrderRepository()
	flow := appkiosk.NewService(repo, nil)
	pay := apppay.NewOrchestrator(apppay.Config{
		Loop:     loop,
		Cash:     cash,
		Card:     card,
		Prices:   pricing.New(pricing.DefaultTable()),
		Recorder: recorder.NewMemory(),
		Flow:     flow,
		Orders:   repo,
		Session:  sessionlog.New(nil),
		TestMode: testMode,
	})
	pay.Start()
	flow.AttachPayment(pay)

	srv := httptest.NewServer(NewHandler(flow, pay, nil, testMode).Router())
	t.Cleanup(srv.Close)
	return srv, pay
}

func post(t *testing.T, srv *httptest.Server, path, body string) *http.Response {
	t.Helper()
	resp, err := srv.Client().Post(srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func startOrder(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp := post(t, srv, "/order", `{"template":"strip","copies":2}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body struct {
		OrderID string `json:"order_id"`
	}
	decode(t, resp, &body)
	require.NotEmpty(t, body.OrderID)
	return body.OrderID
}

func enterPayment(t *testing.T, srv *httptest.Server, orderID string) {
	t.Helper()
	resp := post(t, srv, "/payment/enter", `{"order_id":"`+orderID+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthz(t *testing.T) {
	srv, _ := newServer(t, false)

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsExposed(t *testing.T) {
	srv, _ := newServer(t, false)

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOrderAndPaymentFlowOverHTTP(t *testing.T) {
	srv, pay := newServer(t, false)

	orderID := startOrder(t, srv)
	enterPayment(t, srv, orderID)

	resp := post(t, srv, "/payment/bill", `{"amount":20}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var bill struct {
		Forwarded bool   `json:"forwarded"`
		Reason    string `json:"reason"`
	}
	decode(t, resp, &bill)
	assert.True(t, bill.Forwarded)
	assert.Empty(t, bill.Reason)

	require.Eventually(t, func() bool {
		st, err := pay.Status(context.Background())
		return err == nil && st.Paid
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := srv.Client().Get(srv.URL + "/status")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status struct {
		Screen  string `json:"screen"`
		Payment *struct {
			Phase         string `json:"phase"`
			TotalDue      string `json:"total_due"`
			CashCollected string `json:"cash_collected"`
			Paid          bool   `json:"paid"`
		} `json:"payment"`
	}
	decode(t, resp, &status)
	assert.Equal(t, "capture", status.Screen)
	require.NotNil(t, status.Payment)
	assert.Equal(t, "paid", status.Payment.Phase)
	assert.Equal(t, "20.00", status.Payment.TotalDue)
	assert.True(t, status.Payment.Paid)
}

func TestLocalBillRejectionReportedInResponse(t *testing.T) {
	srv, _ := newServer(t, false)

	orderID := startOrder(t, srv)
	enterPayment(t, srv, orderID)

	resp := post(t, srv, "/payment/bill", `{"amount":50}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var bill struct {
		Forwarded bool   `json:"forwarded"`
		Reason    string `json:"reason"`
		Notice    string `json:"notice"`
	}
	decode(t, resp, &bill)
	assert.False(t, bill.Forwarded)
	assert.Equal(t, "overpayment", bill.Reason)
	assert.NotEmpty(t, bill.Notice)
}

func TestSelectModeValidation(t *testing.T) {
	srv, _ := newServer(t, false)

	orderID := startOrder(t, srv)
	enterPayment(t, srv, orderID)

	resp := post(t, srv, "/payment/select", `{"mode":"card"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = post(t, srv, "/payment/select", `{"mode":"bitcoin"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestInsertBillWithoutSessionConflicts(t *testing.T) {
	srv, _ := newServer(t, false)

	resp := post(t, srv, "/payment/bill", `{"amount":10}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestSimulateRouteAbsentInProduction(t *testing.T) {
	srv, _ := newServer(t, false)

	resp := post(t, srv, "/payment/card/simulate", `{"card_number":"4242424242424242"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestSimulateRouteInTestMode(t *testing.T) {
	srv, pay := newServer(t, true)

	orderID := startOrder(t, srv)
	enterPayment(t, srv, orderID)

	resp := post(t, srv, "/payment/select", `{"mode":"card"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = post(t, srv, "/payment/card/start", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = post(t, srv, "/payment/card/simulate", `{"card_number":"4242424242424242"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	require.Eventually(t, func() bool {
		st, err := pay.Status(context.Background())
		return err == nil && st.Paid
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUnknownJSONFieldRejected(t *testing.T) {
	srv, _ := newServer(t, false)

	resp := post(t, srv, "/order", `{"template":"strip","copies":1,"surprise":true}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestCancelReturnsHome(t *testing.T) {
	srv, _ := newServer(t, false)

	orderID := startOrder(t, srv)
	enterPayment(t, srv, orderID)

	resp := post(t, srv, "/payment/cancel", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err := srv.Client().Get(srv.URL + "/status")
	require.NoError(t, err)
	var status struct {
		Screen string `json:"screen"`
	}
	decode(t, resp, &status)
	assert.Equal(t, "home", status.Screen)
}
