package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	appkiosk "github.com/snapbooth/kiosk/internal/application/kiosk"
	apppay "github.com/snapbooth/kiosk/internal/application/payment"
	"github.com/snapbooth/kiosk/internal/config"
	"github.com/snapbooth/kiosk/internal/infrastructure/dispatch"
	"github.com/snapbooth/kiosk/internal/infrastructure/memory"
	"github.com/snapbooth/kiosk/internal/infrastructure/pricing"
	"github.com/snapbooth/kiosk/internal/infrastructure/recorder"
	"github.com/snapbooth/kiosk/internal/infrastructure/tender/cardsim"
	"github.com/snapbooth/kiosk/internal/infrastructure/tender/cashsim"
	"github.com/snapbooth/kiosk/internal/pkg/logging"
	"github.com/snapbooth/kiosk/internal/pkg/sessionlog"
	httptransport "github.com/snapbooth/kiosk/internal/transport/http"
)

func main() {
	cfg := config.Load()

	baseLogger := logging.MustNewLogger(cfg.ServiceName, cfg.Env)
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	stopTracing, err := setupTracing(cfg, baseLogger)
	if err != nil {
		baseLogger.Fatal("tracing_setup_failed", zap.Error(err))
	}
	defer stopTracing()

	slog, closeSession, err := openSessionLog(cfg.SessionLogFile)
	if err != nil {
		baseLogger.Fatal("session_log_open_failed", zap.Error(err))
	}
	defer closeSession()

	var txRecorder apppay.TransactionRecorder
	if cfg.JournalPath != "" {
		journal, err := recorder.OpenSQLite(cfg.JournalPath)
		if err != nil {
			baseLogger.Fatal("journal_open_failed", zap.Error(err))
		}
		defer func() { _ = journal.Close() }()
		txRecorder = journal
	} else {
		txRecorder = recorder.NewMemory()
	}

	loop := dispatch.NewLoop(baseLogger)
	loop.Start(context.Background())
	defer loop.Stop(context.Background())

	cash := cashsim.New(cashsim.Config{
		Denominations: cfg.Cash.Denominations,
		EvaluateDelay: cfg.Cash.EvaluateDelay,
		FaultEvery:    cfg.Cash.FaultEvery,
		ManualInsert:  true,
	}, loop, baseLogger)

	card := cardsim.New(cardsim.Config{
		AuthorizeDelay: cfg.Card.AuthorizeDelay,
		AutoApprove:    cfg.Card.AutoApprove,
	}, loop, baseLogger)

	orderRepo := memory.NewOrderRepository()
	flow := appkiosk.NewService(orderRepo, baseLogger)

	pay := apppay.NewOrchestrator(apppay.Config{
		Loop:     loop,
		Cash:     cash,
		Card:     card,
		Prices:   pricing.New(pricing.DefaultTable()),
		Recorder: txRecorder,
		Flow:     flow,
		Orders:   orderRepo,
		Session:  slog,
		Logger:   baseLogger,
		Metrics:  apppay.NewMetrics(prometheus.DefaultRegisterer),
		TestMode: cfg.TestMode,
	})
	pay.Start()
	flow.AttachPayment(pay)

	handler := httptransport.NewHandler(flow, pay, baseLogger, cfg.TestMode)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("http_server_start", zap.String("addr", server.Addr))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Error("http_server_error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("http_server_shutdown_error", zap.Error(err))
	} else {
		baseLogger.Info("http_server_stopped")
	}
}

// setupTracing installs a tracer provider when tracing is enabled. Without
// it the orchestrator's spans stay no-ops.
func setupTracing(cfg *config.Config, log *zap.Logger) (func(), error) {
	if !cfg.TraceEnabled {
		return func() {}, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("deployment.environment", cfg.Env),
		)),
	)
	otel.SetTracerProvider(provider)
	log.Info("tracing_enabled")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			log.Warn("tracer_shutdown_failed", zap.Error(err))
		}
	}, nil
}

func openSessionLog(path string) (*sessionlog.Log, func(), error) {
	if path == "" {
		return sessionlog.New(os.Stdout), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return sessionlog.New(f), func() { _ = f.Close() }, nil
}
