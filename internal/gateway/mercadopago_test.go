package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tour-payments/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() *models.PaymentIntentRequest {
	return &models.PaymentIntentRequest{
		Items: []models.IntentItem{{
			Title:      "Paquete Turístico - Cancun",
			Quantity:   1,
			UnitPrice:  decimal.NewFromInt(1000),
			CurrencyID: "MXN",
		}},
		Payer: models.Payer{
			Name:  "Ana",
			Email: "ana@example.com",
			Phone: &models.Phone{AreaCode: "52", Number: "5512345678"},
		},
		BackURLs: models.RedirectURLs{
			Success: "http://localhost:8000/payment-status.html?status=success",
		},
		AutoReturn:        "approved",
		MaxInstallments:   12,
		ExternalReference: "order-1",
	}
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *MercadoPago {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewMercadoPago(MercadoPagoConfig{
		BaseURL:     srv.URL,
		AccessToken: "TEST-token",
		Timeout:     time.Second,
	}, srv.Client())
}

func TestCreateIntentSendsPreference(t *testing.T) {
	var (
		gotKey  string
		gotAuth string
		gotBody map[string]any
	)
	mp := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkout/preferences", r.URL.Path)
		gotKey = r.Header.Get("X-Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"pref-123","init_point":"https://mp/init","sandbox_init_point":"https://mp/sandbox"}`))
	})

	created, err := mp.CreateIntent(context.Background(), sampleRequest(), "idem-1")
	require.NoError(t, err)

	assert.Equal(t, "pref-123", created.IntentID)
	assert.Equal(t, "https://mp/init", created.RedirectURL)
	assert.Equal(t, "https://mp/sandbox", created.SandboxRedirectURL)
	assert.Equal(t, "idem-1", gotKey)
	assert.Equal(t, "Bearer TEST-token", gotAuth)
	assert.Equal(t, "order-1", gotBody["external_reference"])

	items := gotBody["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, float64(1000), items[0].(map[string]any)["unit_price"])
}

func TestFetchIntentMapsStatus(t *testing.T) {
	mp := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/987", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":987,"status":"in_process","transaction_amount":1000.5,"external_reference":"order-1","payer":{"email":"ana@example.com"}}`))
	})

	snap, err := mp.FetchIntentByID(context.Background(), "987")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, snap.Status)
	assert.Equal(t, "in_process", snap.RawStatus)
	assert.Equal(t, "order-1", snap.ExternalReference)
	assert.True(t, decimal.RequireFromString("1000.5").Equal(snap.TransactionAmount))
}

func TestFetchCreatedPreference(t *testing.T) {
	var searched string
	mp := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/checkout/preferences":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"123-abc","init_point":"https://mp/init"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/checkout/preferences/123-abc":
			_, _ = w.Write([]byte(`{"id":"123-abc","external_reference":"order-1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/payments/search":
			searched = r.URL.Query().Get("external_reference")
			assert.Equal(t, "desc", r.URL.Query().Get("criteria"))
			_, _ = w.Write([]byte(`{"results":[{"id":555,"status":"approved","transaction_amount":1000,"external_reference":"order-1"}]}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	created, err := mp.CreateIntent(context.Background(), sampleRequest(), "idem-1")
	require.NoError(t, err)

	snap, err := mp.FetchIntentByID(context.Background(), created.IntentID)
	require.NoError(t, err)
	assert.Equal(t, "order-1", searched)
	assert.Equal(t, created.IntentID, snap.IntentID)
	assert.Equal(t, models.PaymentStatusApproved, snap.Status)
	assert.Equal(t, "order-1", snap.ExternalReference)
}

func TestFetchUnpaidPreference(t *testing.T) {
	mp := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/checkout/preferences/123-abc" {
			_, _ = w.Write([]byte(`{"id":"123-abc","external_reference":"order-1"}`))
			return
		}
		_, _ = w.Write([]byte(`{"results":[]}`))
	})

	snap, err := mp.FetchIntentByID(context.Background(), "123-abc")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCreated, snap.Status)
	assert.Equal(t, "order-1", snap.ExternalReference)
}

func TestFetchMissingPreference(t *testing.T) {
	mp := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"preference not found"}`))
	})

	_, err := mp.FetchIntentByID(context.Background(), "123-abc")
	require.Error(t, err)
	assert.Equal(t, KindInvalidRequest, KindOf(err))
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, KindAuthenticationFailed},
		{"forbidden", http.StatusForbidden, KindAuthenticationFailed},
		{"bad request", http.StatusBadRequest, KindInvalidRequest},
		{"not found", http.StatusNotFound, KindInvalidRequest},
		{"request timeout", http.StatusRequestTimeout, KindTransientFailure},
		{"throttled", http.StatusTooManyRequests, KindTransientFailure},
		{"server error", http.StatusInternalServerError, KindTransientFailure},
		{"bad gateway", http.StatusBadGateway, KindTransientFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mp := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			})

			_, err := mp.CreateIntent(context.Background(), sampleRequest(), "k")
			require.Error(t, err)
			assert.Equal(t, tt.want, KindOf(err))

			var gwErr *Error
			require.ErrorAs(t, err, &gwErr)
			assert.Equal(t, tt.status, gwErr.StatusCode)
			assert.Equal(t, "nope", gwErr.Message)
		})
	}
}

func TestTimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	mp := NewMercadoPago(MercadoPagoConfig{
		BaseURL:     srv.URL,
		AccessToken: "t",
		Timeout:     20 * time.Millisecond,
	}, srv.Client())

	_, err := mp.FetchIntentByID(context.Background(), "1")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestUnknownProviderStatus(t *testing.T) {
	mp := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":1,"status":"teleported"}`))
	})

	_, err := mp.FetchIntentByID(context.Background(), "1")
	require.Error(t, err)
	assert.Equal(t, KindInvalidRequest, KindOf(err))
}

func TestMapProviderStatus(t *testing.T) {
	cases := map[string]models.PaymentStatus{
		"approved":     models.PaymentStatusApproved,
		"pending":      models.PaymentStatusPending,
		"in_process":   models.PaymentStatusPending,
		"in_mediation": models.PaymentStatusPending,
		"authorized":   models.PaymentStatusPending,
		"rejected":     models.PaymentStatusRejected,
		"cancelled":    models.PaymentStatusCancelled,
		"refunded":     models.PaymentStatusCancelled,
		"charged_back": models.PaymentStatusCancelled,
		" APPROVED ":   models.PaymentStatusApproved,
	}
	for raw, want := range cases {
		got, ok := MapProviderStatus(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}

	_, ok := MapProviderStatus("")
	assert.False(t, ok)
}
