package reporter

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/pkg/errors"

	"github.com/customeros/eventstream/interfaces"
	"github.com/customeros/eventstream/internal/logger"
)

type Config struct {
	Dsn         string `env:"SENTRY_DSN"`
	Environment string `env:"SENTRY_ENVIRONMENT" envDefault:"production"`
}

// SentryReporter ships errors to Sentry. It satisfies
// interfaces.ErrorReporter so the ingestion path never talks to the
// sentry package directly.
type SentryReporter struct {
	log logger.Logger
}

func NewSentryReporter(cfg *Config, log logger.Logger) (*SentryReporter, error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.Dsn,
		Environment:      cfg.Environment,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize sentry")
	}
	return &SentryReporter{log: log}, nil
}

func (r *SentryReporter) CaptureError(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
}

func (r *SentryReporter) Flush(timeout time.Duration) {
	sentry.Flush(timeout)
}

// NoopReporter drops everything. It backs deployments without a Sentry DSN
// and keeps tests quiet.
type NoopReporter struct{}

func (NoopReporter) CaptureError(error)  {}
func (NoopReporter) Flush(time.Duration) {}

// NewReporter picks the sentry reporter when a DSN is configured and the
// noop reporter otherwise.
func NewReporter(cfg *Config, log logger.Logger) interfaces.ErrorReporter {
	if cfg == nil || cfg.Dsn == "" {
		log.Warn("SENTRY_DSN not set, error reporting disabled")
		return NoopReporter{}
	}
	sentryReporter, err := NewSentryReporter(cfg, log)
	if err != nil {
		log.Errorf("Failed to initialize sentry, error reporting disabled: %v", err)
		return NoopReporter{}
	}
	return sentryReporter
}
