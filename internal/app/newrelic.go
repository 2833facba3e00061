package app

import (
	"github.com/newrelic/go-agent/v3/newrelic"
	"go.uber.org/zap"

	"ridepay/internal/config"
)

// NewNewRelic starts the New Relic agent. It returns nil when the agent is
// disabled or cannot start; every caller treats a nil application as "off".
func NewNewRelic(cfg config.NewRelicConfig, log *zap.Logger) *newrelic.Application {
	if !cfg.Enabled || cfg.LicenseKey == "" {
		return nil
	}

	nrApp, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
	if err != nil {
		log.Warn("new relic disabled", zap.Error(err))
		return nil
	}
	log.Info("new relic enabled", zap.String("app", cfg.AppName))
	return nrApp
}
