package billing

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/config"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/provider"
	"github.com/dmitrymomot/billingkit/pkg/reconcile"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
	"github.com/dmitrymomot/billingkit/pkg/webhook"
)

// Config carries the environment-driven settings of the billing module.
type Config struct {
	// Provider selects the billing provider adapter: "stripe" or "paddle".
	Provider string `env:"BILLING_PROVIDER" envDefault:"stripe"`

	// WebhookSecret signs provider webhook deliveries.
	WebhookSecret string `env:"BILLING_WEBHOOK_SECRET,required"`
	// WebhookTolerance bounds the accepted age of a webhook timestamp.
	WebhookTolerance time.Duration `env:"BILLING_WEBHOOK_TOLERANCE" envDefault:"5m"`
	// SignatureHeader names the request header carrying the webhook
	// signature.
	SignatureHeader string `env:"BILLING_WEBHOOK_SIGNATURE_HEADER" envDefault:"Stripe-Signature"`

	// ConfirmSecret signs confirm-link parameters; ConfirmURL is the
	// public URL of the confirm endpoint. Both are required only when the
	// redirect coordinator is wired in.
	ConfirmSecret string `env:"BILLING_CONFIRM_SECRET"`
	ConfirmURL    string `env:"BILLING_CONFIRM_URL"`

	// SuccessURL and ErrorURL are fallback destinations for checkouts
	// whose request did not name its own.
	SuccessURL string `env:"BILLING_SUCCESS_URL"`
	ErrorURL   string `env:"BILLING_ERROR_URL"`

	RedirectPollInterval time.Duration `env:"BILLING_REDIRECT_POLL_INTERVAL" envDefault:"250ms"`
	RedirectWaitBudget   time.Duration `env:"BILLING_REDIRECT_WAIT_BUDGET" envDefault:"10s"`

	// MaxBodyBytes caps request body reads.
	MaxBodyBytes int64 `env:"BILLING_MAX_BODY_BYTES" envDefault:"1048576"`

	// LogLevel and LogFormat shape the logger NewLogger builds:
	// debug|info|warn|error and json|text.
	LogLevel  string `env:"BILLING_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"BILLING_LOG_FORMAT" envDefault:"json"`
}

// LoadConfig reads the module configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// NewProvider constructs the billing provider adapter named by the
// configuration, reading the adapter's own settings from the environment.
func NewProvider(cfg Config) (provider.Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "stripe":
		var sc provider.StripeConfig
		if err := config.Load(&sc); err != nil {
			return nil, err
		}
		return provider.NewStripeProvider(sc)
	case "paddle":
		var pc provider.PaddleConfig
		if err := config.Load(&pc); err != nil {
			return nil, err
		}
		return provider.NewPaddleProvider(pc)
	default:
		return nil, fmt.Errorf("billing: unknown provider %q", cfg.Provider)
	}
}

// NewVerifier constructs the webhook verifier from the configuration.
func NewVerifier(cfg Config) (*webhook.Verifier, error) {
	return webhook.NewVerifier(cfg.WebhookSecret, webhook.WithTolerance(cfg.WebhookTolerance))
}

// NewLogger builds the module logger from the configuration.
func NewLogger(cfg Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	format := logger.FormatJSON
	if strings.EqualFold(cfg.LogFormat, "text") {
		format = logger.FormatText
	}

	return logger.New(
		logger.WithLevel(level),
		logger.WithFormat(format),
		logger.WithAttr(logger.Component("billing")),
	)
}

// NewCoordinator constructs the redirect coordinator from the
// configuration, watching the given store.
func NewCoordinator(cfg Config, store subscription.Store) (*reconcile.Coordinator, error) {
	return reconcile.NewCoordinator(store, cfg.ConfirmSecret, cfg.ConfirmURL,
		reconcile.WithPollInterval(cfg.RedirectPollInterval),
		reconcile.WithWaitBudget(cfg.RedirectWaitBudget),
	)
}
