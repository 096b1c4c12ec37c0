package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"tour-payments/config"
	"tour-payments/internal/gateway"
	"tour-payments/internal/store"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// NewNewRelic starts the APM agent when it is enabled. A failure only
// disables APM.
func NewNewRelic(cfg config.NewRelicConfig) *newrelic.Application {
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
		log.Printf("failed to initialize New Relic: %v", err)
		return nil
	}
	log.Printf("New Relic enabled: app=%s", cfg.AppName)
	return nrApp
}

// Gateway is the configured provider client and the budget a single create
// may take including its retries
type Gateway struct {
	Client        gateway.Client
	Fake          *gateway.Fake
	CreateTimeout time.Duration
}

// NewGateway builds the provider client. Outbound calls are reported to New
// Relic as external segments when nrApp is set.
func NewGateway(cfg config.GatewayConfig, nrApp *newrelic.Application) *Gateway {
	// A fetch by preference id is two round trips.
	policy := gateway.RetryPolicy{
		MaxAttempts:    cfg.MaxAttempts,
		BaseDelay:      cfg.BackoffBase,
		MaxDelay:       cfg.BackoffMax,
		AttemptTimeout: 2 * cfg.Timeout,
	}
	g := &Gateway{CreateTimeout: CreateTimeout(cfg)}

	if cfg.Mode == config.GatewayModeFake {
		g.Fake = gateway.NewFake()
		g.Client = gateway.NewRetrying(g.Fake, policy)
		return g
	}

	httpClient := &http.Client{}
	if nrApp != nil {
		httpClient.Transport = newrelic.NewRoundTripper(http.DefaultTransport)
	}
	mp := gateway.NewMercadoPago(gateway.MercadoPagoConfig{
		BaseURL:     cfg.BaseURL,
		AccessToken: cfg.AccessToken,
		Timeout:     cfg.Timeout,
		RateLimit:   cfg.RateLimit,
		RateBurst:   cfg.RateBurst,
	}, httpClient)
	g.Client = gateway.NewRetrying(mp, policy)
	return g
}

// CreateTimeout covers every attempt plus the longest backoff between them
func CreateTimeout(cfg config.GatewayConfig) time.Duration {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return cfg.Timeout*time.Duration(attempts) + cfg.BackoffMax*time.Duration(attempts-1)
}

// OrderStore is the configured order store and its lifecycle hooks
type OrderStore struct {
	Orders store.OrderStore
	Ping   func(ctx context.Context) error
	Close  func() error
}

// NewOrderStore opens the configured backend, applying the schema to Postgres
func NewOrderStore(ctx context.Context, cfg config.DatabaseConfig, nrApp *newrelic.Application) (*OrderStore, error) {
	if cfg.Backend != config.StoreBackendPostgres {
		return &OrderStore{
			Orders: store.NewMemory(),
			Ping:   func(context.Context) error { return nil },
			Close:  func() error { return nil },
		}, nil
	}

	db, err := store.NewStore(cfg.URL, nrApp != nil)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &OrderStore{Orders: db, Ping: db.Ping, Close: db.Close}, nil
}
