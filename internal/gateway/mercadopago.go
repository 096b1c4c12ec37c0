package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tour-payments/internal/models"
	"tour-payments/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	preferencesPath    = "/checkout/preferences"
	paymentsPath       = "/v1/payments/"
	paymentsSearchPath = "/v1/payments/search"

	maxErrorBody = 64 << 10
)

// MercadoPagoConfig is injected at construction; the adapter never reads the environment
type MercadoPagoConfig struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	RateLimit   float64
	RateBurst   int
}

// MercadoPago talks to the Mercado Pago REST API: checkout preferences play
// the role of payment intents, payments carry the authoritative status.
type MercadoPago struct {
	cfg     MercadoPagoConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewMercadoPago creates the adapter. A nil httpClient uses a default client.
func NewMercadoPago(cfg MercadoPagoConfig, httpClient *http.Client) *MercadoPago {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &MercadoPago{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
		logger:  util.GetLogger(),
	}
}

type mpItem struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	CurrencyID  string  `json:"currency_id"`
}

type mpPhone struct {
	AreaCode string `json:"area_code,omitempty"`
	Number   string `json:"number,omitempty"`
}

type mpPayer struct {
	Name  string   `json:"name,omitempty"`
	Email string   `json:"email"`
	Phone *mpPhone `json:"phone,omitempty"`
}

type mpPaymentMethods struct {
	Installments int `json:"installments,omitempty"`
}

type mpPreference struct {
	Items             []mpItem            `json:"items"`
	Payer             mpPayer             `json:"payer"`
	BackURLs          models.RedirectURLs `json:"back_urls"`
	AutoReturn        string              `json:"auto_return,omitempty"`
	PaymentMethods    *mpPaymentMethods   `json:"payment_methods,omitempty"`
	ExternalReference string              `json:"external_reference"`
	NotificationURL   string              `json:"notification_url,omitempty"`
	Metadata          map[string]string   `json:"metadata,omitempty"`
}

type mpPreferenceResponse struct {
	ID                string `json:"id"`
	InitPoint         string `json:"init_point"`
	SandboxInitPoint  string `json:"sandbox_init_point"`
	ExternalReference string `json:"external_reference"`
}

type mpPaymentResponse struct {
	ID                json.Number     `json:"id"`
	Status            string          `json:"status"`
	StatusDetail      string          `json:"status_detail"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	ExternalReference string          `json:"external_reference"`
	Payer             struct {
		Email string `json:"email"`
	} `json:"payer"`
}

type mpPaymentSearchResponse struct {
	Results []mpPaymentResponse `json:"results"`
}

type mpErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func toPreference(req *models.PaymentIntentRequest) mpPreference {
	pref := mpPreference{
		Items:             make([]mpItem, 0, len(req.Items)),
		BackURLs:          req.BackURLs,
		AutoReturn:        req.AutoReturn,
		ExternalReference: req.ExternalReference,
		NotificationURL:   req.NotificationURL,
		Metadata:          req.Metadata,
		Payer: mpPayer{
			Name:  req.Payer.Name,
			Email: req.Payer.Email,
		},
	}
	for _, it := range req.Items {
		pref.Items = append(pref.Items, mpItem{
			Title:       it.Title,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.InexactFloat64(),
			CurrencyID:  it.CurrencyID,
		})
	}
	if req.Payer.Phone != nil {
		pref.Payer.Phone = &mpPhone{AreaCode: req.Payer.Phone.AreaCode, Number: req.Payer.Phone.Number}
	}
	if req.MaxInstallments > 0 {
		pref.PaymentMethods = &mpPaymentMethods{Installments: req.MaxInstallments}
	}
	return pref
}

// CreateIntent creates a checkout preference
func (m *MercadoPago) CreateIntent(ctx context.Context, req *models.PaymentIntentRequest, idempotencyKey string) (*models.CreatedIntent, error) {
	body, err := json.Marshal(toPreference(req))
	if err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Op: OpCreateIntent, Err: fmt.Errorf("failed to marshal preference: %w", err)}
	}

	var resp mpPreferenceResponse
	if err := m.do(ctx, OpCreateIntent, http.MethodPost, preferencesPath, idempotencyKey, body, &resp); err != nil {
		return nil, err
	}

	if resp.ID == "" {
		return nil, transient(OpCreateIntent, errors.New("provider returned a preference without id"))
	}

	m.logger.Info("Payment intent created",
		zap.String("intent_id", resp.ID),
		zap.String("external_reference", req.ExternalReference))

	return &models.CreatedIntent{
		IntentID:           resp.ID,
		RedirectURL:        resp.InitPoint,
		SandboxRedirectURL: resp.SandboxInitPoint,
	}, nil
}

// FetchIntentByID reads the authoritative payment status. Payment ids are
// numeric; anything else is a preference id, whose status is that of the most
// recent payment made against its external reference.
func (m *MercadoPago) FetchIntentByID(ctx context.Context, intentID string) (*models.IntentSnapshot, error) {
	if intentID == "" {
		return nil, &Error{Kind: KindInvalidRequest, Op: OpFetchIntent, Message: "empty intent id"}
	}
	if isPaymentID(intentID) {
		return m.fetchPayment(ctx, intentID)
	}
	return m.fetchPreference(ctx, intentID)
}

func (m *MercadoPago) fetchPayment(ctx context.Context, paymentID string) (*models.IntentSnapshot, error) {
	var resp mpPaymentResponse
	if err := m.do(ctx, OpFetchIntent, http.MethodGet, paymentsPath+url.PathEscape(paymentID), "", nil, &resp); err != nil {
		return nil, err
	}
	return paymentSnapshot(paymentID, &resp)
}

func (m *MercadoPago) fetchPreference(ctx context.Context, preferenceID string) (*models.IntentSnapshot, error) {
	var pref mpPreferenceResponse
	if err := m.do(ctx, OpFetchIntent, http.MethodGet, preferencesPath+"/"+url.PathEscape(preferenceID), "", nil, &pref); err != nil {
		return nil, err
	}
	if pref.ExternalReference == "" {
		return nil, &Error{Kind: KindInvalidRequest, Op: OpFetchIntent,
			Message: fmt.Sprintf("preference %s has no external reference", preferenceID)}
	}

	q := url.Values{}
	q.Set("external_reference", pref.ExternalReference)
	q.Set("sort", "date_created")
	q.Set("criteria", "desc")
	q.Set("limit", "1")

	var found mpPaymentSearchResponse
	if err := m.do(ctx, OpFetchIntent, http.MethodGet, paymentsSearchPath+"?"+q.Encode(), "", nil, &found); err != nil {
		return nil, err
	}
	if len(found.Results) == 0 {
		// Nobody has paid yet.
		return &models.IntentSnapshot{
			IntentID:          preferenceID,
			Status:            models.PaymentStatusCreated,
			ExternalReference: pref.ExternalReference,
		}, nil
	}

	snap, err := paymentSnapshot(preferenceID, &found.Results[0])
	if err != nil {
		return nil, err
	}
	if snap.ExternalReference == "" {
		snap.ExternalReference = pref.ExternalReference
	}
	return snap, nil
}

func paymentSnapshot(intentID string, resp *mpPaymentResponse) (*models.IntentSnapshot, error) {
	status, ok := MapProviderStatus(resp.Status)
	if !ok {
		return nil, &Error{Kind: KindInvalidRequest, Op: OpFetchIntent,
			Message: fmt.Sprintf("unknown provider status %q", resp.Status)}
	}
	return &models.IntentSnapshot{
		IntentID:          intentID,
		Status:            status,
		RawStatus:         resp.Status,
		TransactionAmount: resp.TransactionAmount,
		PayerEmail:        resp.Payer.Email,
		ExternalReference: resp.ExternalReference,
	}, nil
}

func isPaymentID(id string) bool {
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (m *MercadoPago) do(ctx context.Context, op, method, path, idempotencyKey string, body []byte, out any) error {
	start := time.Now()
	outcome := "success"
	defer func() {
		util.GatewayRequestLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
		util.GatewayRequestsTotal.WithLabelValues(op, outcome).Inc()
	}()

	err := m.roundTrip(ctx, op, method, path, idempotencyKey, body, out)
	if err != nil {
		outcome = string(KindOf(err))
	}
	return err
}

func (m *MercadoPago) roundTrip(ctx context.Context, op, method, path, idempotencyKey string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	if err := m.limiter.Wait(ctx); err != nil {
		return transient(op, fmt.Errorf("rate limiter: %w", err))
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.cfg.BaseURL+path, reader)
	if err != nil {
		return &Error{Kind: KindInvalidRequest, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return transient(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return transient(op, fmt.Errorf("failed to decode response: %w", err))
		}
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var apiErr mpErrorResponse
	_ = json.Unmarshal(raw, &apiErr)
	msg := apiErr.Message
	if msg == "" {
		msg = apiErr.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	return &Error{
		Kind:       classifyStatus(resp.StatusCode),
		Op:         op,
		StatusCode: resp.StatusCode,
		Message:    msg,
	}
}

func classifyStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return KindAuthenticationFailed
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return KindTransientFailure
	default:
		return KindInvalidRequest
	}
}

// MapProviderStatus converts a Mercado Pago payment status into our state machine vocabulary
func MapProviderStatus(raw string) (models.PaymentStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approved":
		return models.PaymentStatusApproved, true
	case "pending", "in_process", "in_mediation", "authorized":
		return models.PaymentStatusPending, true
	case "rejected":
		return models.PaymentStatusRejected, true
	case "cancelled", "refunded", "charged_back":
		return models.PaymentStatusCancelled, true
	}
	return "", false
}
