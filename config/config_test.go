package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ACCESS_TOKEN", "")
	t.Setenv("GATEWAY_TIMEOUT", "")
	t.Setenv("WEBHOOK_DEDUP_BUCKET", "")

	cfg := Load()

	assert.Equal(t, "MXN", cfg.Checkout.Currency)
	assert.Equal(t, "52", cfg.Checkout.PhoneAreaCode)
	assert.Equal(t, 12, cfg.Checkout.MaxInstallments)
	assert.Equal(t, 3, cfg.Gateway.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Gateway.BackoffBase)
	assert.Equal(t, 5*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, StoreBackendMemory, cfg.Database.Backend)
	assert.Equal(t, 10*time.Second, cfg.Webhook.DedupBucket)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GATEWAY_TIMEOUT", "2s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("REDIS_ENABLED", "true")

	cfg := Load()

	assert.Equal(t, 2*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Redis.Enabled)
}

func TestValidateRequiresAccessToken(t *testing.T) {
	t.Setenv("ACCESS_TOKEN", "")
	t.Setenv("GATEWAY_MODE", GatewayModeMercadoPago)

	cfg := Load()
	require.Error(t, cfg.Validate())

	cfg.Gateway.Mode = GatewayModeFake
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	t.Setenv("GATEWAY_MODE", GatewayModeFake)
	t.Setenv("STORE_BACKEND", "mongo")

	assert.Error(t, Load().Validate())
}

func TestResolveByReferenceFollowsGatewayMode(t *testing.T) {
	t.Setenv("RESOLVE_BY_REFERENCE", "")

	t.Setenv("GATEWAY_MODE", GatewayModeMercadoPago)
	assert.True(t, Load().Gateway.ResolveByReference)

	t.Setenv("GATEWAY_MODE", GatewayModeFake)
	assert.False(t, Load().Gateway.ResolveByReference)

	t.Setenv("RESOLVE_BY_REFERENCE", "true")
	assert.True(t, Load().Gateway.ResolveByReference)
}

func TestTracingSampleRatio(t *testing.T) {
	t.Setenv("TRACING_SAMPLE_RATIO", "")
	assert.Equal(t, 1.0, Load().Observ.TracingSampleRatio)

	t.Setenv("TRACING_SAMPLE_RATIO", "0.25")
	assert.Equal(t, 0.25, Load().Observ.TracingSampleRatio)
}
