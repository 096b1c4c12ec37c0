package gateway

import (
	"context"
	"fmt"
	"sync"

	"tour-payments/internal/models"

	"github.com/shopspring/decimal"
)

// Fake is an in-memory Client used by tests and by GATEWAY_MODE=fake.
// Creates are idempotent per key, statuses are set by the caller.
type Fake struct {
	mu sync.Mutex

	seq      int
	byKey    map[string]*models.CreatedIntent
	requests map[string]*models.PaymentIntentRequest
	statuses map[string]string

	createCalls int
	fetchCalls  int

	createFailures []error
	fetchFailures  []error
}

var _ Client = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{
		byKey:    make(map[string]*models.CreatedIntent),
		requests: make(map[string]*models.PaymentIntentRequest),
		statuses: make(map[string]string),
	}
}

func (f *Fake) CreateIntent(ctx context.Context, req *models.PaymentIntentRequest, idempotencyKey string) (*models.CreatedIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.createCalls++
	if len(f.createFailures) > 0 {
		err := f.createFailures[0]
		f.createFailures = f.createFailures[1:]
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, transient(OpCreateIntent, err)
	}

	if existing, ok := f.byKey[idempotencyKey]; ok && idempotencyKey != "" {
		c := *existing
		return &c, nil
	}

	f.seq++
	id := fmt.Sprintf("fake-pref-%d", f.seq)
	created := &models.CreatedIntent{
		IntentID:           id,
		RedirectURL:        "https://fake.gateway/checkout?pref_id=" + id,
		SandboxRedirectURL: "https://sandbox.fake.gateway/checkout?pref_id=" + id,
	}
	if idempotencyKey != "" {
		f.byKey[idempotencyKey] = created
	}
	reqCopy := *req
	f.requests[id] = &reqCopy
	f.statuses[id] = "pending"

	c := *created
	return &c, nil
}

func (f *Fake) FetchIntentByID(ctx context.Context, intentID string) (*models.IntentSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetchCalls++
	if len(f.fetchFailures) > 0 {
		err := f.fetchFailures[0]
		f.fetchFailures = f.fetchFailures[1:]
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, transient(OpFetchIntent, err)
	}

	raw, ok := f.statuses[intentID]
	if !ok {
		return nil, &Error{Kind: KindInvalidRequest, Op: OpFetchIntent, StatusCode: 404, Message: "intent not found"}
	}
	status, ok := MapProviderStatus(raw)
	if !ok {
		return nil, &Error{Kind: KindInvalidRequest, Op: OpFetchIntent, Message: fmt.Sprintf("unknown provider status %q", raw)}
	}

	snap := &models.IntentSnapshot{
		IntentID:  intentID,
		Status:    status,
		RawStatus: raw,
	}
	if req, ok := f.requests[intentID]; ok {
		snap.ExternalReference = req.ExternalReference
		snap.PayerEmail = req.Payer.Email
		total := decimal.Zero
		for _, it := range req.Items {
			total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
		snap.TransactionAmount = total
	}
	return snap, nil
}

// SetStatus records the provider-side status (e.g. "approved", "in_process") for an intent.
// Unknown intents are registered so externally created ids can be fetched.
func (f *Fake) SetStatus(intentID, raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[intentID] = raw
}

// Pay simulates a payment made against an existing intent: it gets its own id
// and carries the intent's external reference, like a provider payment does.
func (f *Fake) Pay(intentID, raw string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	req, ok := f.requests[intentID]
	if !ok {
		return "", fmt.Errorf("unknown intent %s", intentID)
	}
	f.seq++
	paymentID := fmt.Sprintf("fake-pay-%d", f.seq)
	reqCopy := *req
	f.requests[paymentID] = &reqCopy
	f.statuses[paymentID] = raw
	return paymentID, nil
}

// FailNextCreate queues errors returned by the next create calls, in order
func (f *Fake) FailNextCreate(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createFailures = append(f.createFailures, errs...)
}

// FailNextFetch queues errors returned by the next fetch calls, in order
func (f *Fake) FailNextFetch(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchFailures = append(f.fetchFailures, errs...)
}

func (f *Fake) CreateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}

func (f *Fake) FetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

// LastRequest returns the request that produced intentID
func (f *Fake) LastRequest(intentID string) (*models.PaymentIntentRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[intentID]
	if !ok {
		return nil, false
	}
	c := *req
	return &c, true
}
