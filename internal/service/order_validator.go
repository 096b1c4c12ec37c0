package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"tour-payments/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	maxOrderIDLength = 64
	// amounts are stored as NUMERIC(14, 2)
	amountScale = 2
)

var maxAmount = decimal.New(1, 12)

var (
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	orderIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)
	phoneStripper  = strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "")
)

// FlexNumber holds a JSON number or a numeric string exactly as submitted.
// Storefront forms post amounts as strings, scripts post them as numbers.
type FlexNumber struct {
	raw json.RawMessage
}

// NewFlexNumber builds a FlexNumber from a literal, mostly for tests and the CLI
func NewFlexNumber(v string) FlexNumber {
	return FlexNumber{raw: json.RawMessage(v)}
}

func (n *FlexNumber) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		n.raw = nil
		return nil
	}
	n.raw = append(n.raw[:0], b...)
	return nil
}

func (n FlexNumber) MarshalJSON() ([]byte, error) {
	if n.raw == nil {
		return []byte("null"), nil
	}
	return n.raw, nil
}

// Present reports whether a non-empty value was submitted
func (n FlexNumber) Present() bool {
	return strings.TrimSpace(n.text()) != ""
}

func (n FlexNumber) text() string {
	if n.raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(n.raw, &s); err == nil {
		return s
	}
	return string(n.raw)
}

// Decimal parses the value
func (n FlexNumber) Decimal() (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(n.text()))
}

// RawOrder is the storefront submission before validation
type RawOrder struct {
	OrderID       string     `json:"orderId,omitempty"`
	Package       string     `json:"package"`
	CustomerName  string     `json:"customerName"`
	CustomerEmail string     `json:"customerEmail"`
	CustomerPhone string     `json:"customerPhone"`
	Travelers     FlexNumber `json:"travelers"`
	DepartureDate string     `json:"departureDate"`
	Comments      string     `json:"comments,omitempty"`
	UnitPrice     FlexNumber `json:"unitPrice"`
	TotalAmount   FlexNumber `json:"totalAmount"`
}

// ValidatorConfig carries the policies the validator applies
type ValidatorConfig struct {
	Currency      string
	PhoneAreaCode string
}

// OrderValidator turns raw submissions into Orders. It performs no I/O.
type OrderValidator struct {
	cfg   ValidatorConfig
	newID func() string
}

// NewOrderValidator creates a validator that assigns UUIDs to new orders
func NewOrderValidator(cfg ValidatorConfig) *OrderValidator {
	return &OrderValidator{cfg: cfg, newID: uuid.NewString}
}

// Validate checks and normalizes a submission. The returned order always has
// TotalAmount == UnitPrice × TravelerCount, whatever total was submitted.
func (v *OrderValidator) Validate(raw RawOrder) (*models.Order, error) {
	var missing []string
	if strings.TrimSpace(raw.Package) == "" {
		missing = append(missing, "package")
	}
	if strings.TrimSpace(raw.CustomerEmail) == "" {
		missing = append(missing, "customerEmail")
	}
	if !raw.TotalAmount.Present() {
		missing = append(missing, "totalAmount")
	}
	if !raw.Travelers.Present() {
		missing = append(missing, "travelers")
	}
	if !raw.UnitPrice.Present() {
		missing = append(missing, "unitPrice")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Kind: KindMissingFields, Fields: missing}
	}

	travelers, err := raw.Travelers.Decimal()
	if err != nil || !travelers.IsInteger() || travelers.LessThan(decimal.NewFromInt(1)) || travelers.GreaterThan(decimal.NewFromInt(1000)) {
		return nil, &ValidationError{Kind: KindInvalidTravelerCount, Fields: []string{"travelers"}}
	}

	unitPrice, err := raw.UnitPrice.Decimal()
	if err != nil || !validAmount(unitPrice) {
		return nil, &ValidationError{Kind: KindInvalidAmount, Fields: []string{"unitPrice"}}
	}
	submittedTotal, err := raw.TotalAmount.Decimal()
	if err != nil || !validAmount(submittedTotal) {
		return nil, &ValidationError{Kind: KindInvalidAmount, Fields: []string{"totalAmount"}}
	}

	email := strings.TrimSpace(raw.CustomerEmail)
	if !emailPattern.MatchString(email) {
		return nil, &ValidationError{Kind: KindInvalidEmail, Fields: []string{"customerEmail"}}
	}

	phone, err := NormalizePhone(raw.CustomerPhone)
	if err != nil {
		return nil, &ValidationError{Kind: KindInvalidPhone, Fields: []string{"customerPhone"}}
	}

	id := strings.TrimSpace(raw.OrderID)
	if id == "" {
		id = v.newID()
	} else if len(id) > maxOrderIDLength || !orderIDPattern.MatchString(id) {
		return nil, &ValidationError{Kind: KindInvalidOrderID, Fields: []string{"orderId"}}
	}

	count := int(travelers.IntPart())
	total := unitPrice.Mul(decimal.NewFromInt(int64(count)))
	if !validAmount(total) {
		return nil, &ValidationError{Kind: KindInvalidAmount, Fields: []string{"unitPrice", "travelers"}}
	}

	order := &models.Order{
		ID:            id,
		PackageName:   strings.TrimSpace(raw.Package),
		TravelerCount: count,
		DepartureDate: strings.TrimSpace(raw.DepartureDate),
		CustomerName:  strings.TrimSpace(raw.CustomerName),
		CustomerEmail: email,
		CustomerPhone: phone,
		Comments:      strings.TrimSpace(raw.Comments),
		UnitPrice:     unitPrice,
		TotalAmount:   total,
		Currency:      v.cfg.Currency,
		Intent:        models.PaymentIntent{Status: models.PaymentStatusCreated},
	}
	if phone != "" {
		order.PhoneAreaCode = v.cfg.PhoneAreaCode
	}
	return order, nil
}

// TotalMismatch reports whether the submitted total disagrees with the canonical one
func TotalMismatch(raw RawOrder, order *models.Order) bool {
	submitted, err := raw.TotalAmount.Decimal()
	if err != nil {
		return false
	}
	return !submitted.Equal(order.TotalAmount)
}

// NormalizePhone strips formatting characters and a leading plus sign.
// An empty input is allowed; anything left that is not a digit is an error.
func NormalizePhone(raw string) (string, error) {
	p := phoneStripper.Replace(strings.TrimSpace(raw))
	p = strings.TrimPrefix(p, "+")
	for _, r := range p {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("phone contains non-digit %q", r)
		}
	}
	return p, nil
}

// validAmount accepts non-negative amounts that survive storage unchanged:
// whole cents, below the column's range.
func validAmount(d decimal.Decimal) bool {
	return !d.IsNegative() && d.Equal(d.Round(amountScale)) && d.LessThan(maxAmount)
}
