package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"tour-payments/internal/models"

	"github.com/shopspring/decimal"
)

const idempotencyKeyPrefix = "tour-payments/intent/v1:"

// BuilderConfig is injected at construction; the builder never reads the environment
type BuilderConfig struct {
	Currency        string
	PackageLabel    string
	RedirectBaseURL string
	NotificationURL string
	MaxInstallments int
}

// IntentBuilder maps a validated order onto a provider-neutral intent request
type IntentBuilder struct {
	cfg BuilderConfig
}

// NewIntentBuilder creates a new intent builder
func NewIntentBuilder(cfg BuilderConfig) *IntentBuilder {
	cfg.RedirectBaseURL = strings.TrimRight(cfg.RedirectBaseURL, "/")
	return &IntentBuilder{cfg: cfg}
}

// IdempotencyKey derives the provider idempotency key from the order id only
func IdempotencyKey(orderID string) string {
	sum := sha256.Sum256([]byte(idempotencyKeyPrefix + orderID))
	return hex.EncodeToString(sum[:])
}

// RedirectURLs returns the storefront pages the provider sends the customer back to
func (b *IntentBuilder) RedirectURLs() models.RedirectURLs {
	page := b.cfg.RedirectBaseURL + "/payment-status.html?status="
	return models.RedirectURLs{
		Success: page + "success",
		Failure: page + "failure",
		Pending: page + "pending",
	}
}

// Build produces the intent request for order. The result depends only on the
// order and the builder config, so building twice yields the same request.
func (b *IntentBuilder) Build(order *models.Order) (*models.PaymentIntentRequest, error) {
	if err := checkBuildable(order); err != nil {
		return nil, err
	}

	departure := order.DepartureDate
	if departure == "" {
		departure = "por confirmar"
	}

	req := &models.PaymentIntentRequest{
		Items: []models.IntentItem{{
			Title:       fmt.Sprintf("%s - %s", order.PackageName, b.cfg.PackageLabel),
			Description: fmt.Sprintf("Viaje para %d persona(s) - Salida: %s", order.TravelerCount, departure),
			Quantity:    order.TravelerCount,
			UnitPrice:   order.UnitPrice,
			CurrencyID:  b.cfg.Currency,
		}},
		Payer: models.Payer{
			Name:  order.CustomerName,
			Email: order.CustomerEmail,
		},
		BackURLs:          b.RedirectURLs(),
		AutoReturn:        "approved",
		MaxInstallments:   b.cfg.MaxInstallments,
		ExternalReference: order.ID,
		NotificationURL:   b.cfg.NotificationURL,
		Metadata: map[string]string{
			"order_id":       order.ID,
			"package":        order.PackageName,
			"travelers":      strconv.Itoa(order.TravelerCount),
			"departure_date": order.DepartureDate,
			"comments":       order.Comments,
		},
		IdempotencyKey: IdempotencyKey(order.ID),
	}
	if order.CustomerPhone != "" {
		req.Payer.Phone = &models.Phone{AreaCode: order.PhoneAreaCode, Number: order.CustomerPhone}
	}
	return req, nil
}

func checkBuildable(order *models.Order) error {
	fail := func(reason string) error {
		return &BuildError{Kind: buildKindInvalidOrder, Reason: reason}
	}
	switch {
	case order == nil:
		return fail("nil order")
	case order.ID == "":
		return fail("missing order id")
	case order.PackageName == "":
		return fail("missing package name")
	case order.CustomerEmail == "":
		return fail("missing customer email")
	case order.TravelerCount < 1:
		return fail("traveler count must be positive")
	case order.UnitPrice.IsNegative():
		return fail("negative unit price")
	case !order.TotalAmount.Equal(order.UnitPrice.Mul(decimal.NewFromInt(int64(order.TravelerCount)))):
		return fail("total amount does not match unit price times travelers")
	}
	return nil
}
