// Command reconcile compares failed charge attempts with the payment
// processor and prints the mismatches as JSON. It never writes.
//
// Exit status is 1 when a mismatch is found or the run is incomplete.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"go.uber.org/zap"

	"ridepay/internal/app"
	"ridepay/internal/config"
	"ridepay/internal/gateway"
	"ridepay/internal/logger"
	"ridepay/internal/repository/postgres"
	"ridepay/internal/service"
)

func main() {
	since := flag.Duration("since", 24*time.Hour, "check failed transactions created within this window")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline for the run")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	code := run(cfg, zl, *since, *timeout)
	_ = zl.Sync()
	os.Exit(code)
}

func run(cfg *config.Config, zl *zap.Logger, since, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	nrApp := app.NewNewRelic(cfg.NewRelic, zl)
	if nrApp != nil {
		defer nrApp.Shutdown(5 * time.Second)
		txn := nrApp.StartTransaction("reconcile")
		defer txn.End()
		ctx = newrelic.NewContext(ctx, txn)
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		zl.Error("database unavailable", zap.Error(err))
		return 1
	}
	defer db.Close()

	gw := gateway.NewClient(gateway.Config{
		BaseURL:         cfg.Gateway.BaseURL,
		PublicKey:       cfg.Gateway.PublicKey,
		PrivateKey:      cfg.Gateway.PrivateKey,
		IntegritySecret: cfg.Gateway.IntegritySecret,
		Currency:        cfg.Gateway.Currency,
		Timeout:         cfg.Gateway.Timeout,
	}, nil)

	reconciler := service.NewReconciler(postgres.NewTransactionRepository(db), gw, zl.Named("reconcile"))

	report, err := reconciler.Run(ctx, time.Now().Add(-since))
	if report != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(report); encErr != nil {
			zl.Error("write report", zap.Error(encErr))
			return 1
		}
		zl.Info("reconciliation finished",
			zap.Int("checked", report.Checked),
			zap.Int("mismatches", len(report.Mismatches)),
			zap.Int("failures", len(report.Failures)),
		)
	}
	if err != nil {
		zl.Error("reconciliation incomplete", zap.Error(err))
		return 1
	}
	if len(report.Mismatches) > 0 || len(report.Failures) > 0 {
		return 1
	}
	return 0
}
