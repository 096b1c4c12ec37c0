package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus mirrors the provider-side state of a payment intent
type PaymentStatus string

// Payment statuses
const (
	PaymentStatusCreated   PaymentStatus = "CREATED"
	PaymentStatusApproved  PaymentStatus = "APPROVED"
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusRejected  PaymentStatus = "REJECTED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

// Order represents one customer purchase attempt for a travel package
type Order struct {
	ID            string          `db:"id" json:"id"`
	PackageName   string          `db:"package_name" json:"packageName"`
	TravelerCount int             `db:"traveler_count" json:"travelerCount"`
	DepartureDate string          `db:"departure_date" json:"departureDate"`
	CustomerName  string          `db:"customer_name" json:"customerName"`
	CustomerEmail string          `db:"customer_email" json:"customerEmail"`
	CustomerPhone string          `db:"customer_phone" json:"customerPhone,omitempty"`
	PhoneAreaCode string          `db:"phone_area_code" json:"phoneAreaCode,omitempty"`
	Comments      string          `db:"comments" json:"comments,omitempty"`
	UnitPrice     decimal.Decimal `db:"unit_price" json:"unitPrice"`
	TotalAmount   decimal.Decimal `db:"total_amount" json:"totalAmount"`
	Currency      string          `db:"currency" json:"currency"`
	Intent        PaymentIntent   `json:"paymentIntent"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updatedAt"`
}

// PaymentIntent is the processor-side record owned by an Order
type PaymentIntent struct {
	ID                 string        `json:"id"`
	IdempotencyKey     string        `json:"idempotencyKey"`
	RedirectURL        string        `json:"redirectUrl"`
	SandboxRedirectURL string        `json:"sandboxRedirectUrl,omitempty"`
	RedirectURLs       RedirectURLs  `json:"redirectUrls"`
	Status             PaymentStatus `json:"status"`
	StatusUpdatedAt    time.Time     `json:"statusUpdatedAt"`
}

// RedirectURLs are the storefront pages the provider sends the customer back to
type RedirectURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

// Clone returns a copy that shares no mutable state with o
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}

// PaymentIntentRequest is the provider-neutral payload for creating an intent
type PaymentIntentRequest struct {
	Items             []IntentItem      `json:"items"`
	Payer             Payer             `json:"payer"`
	BackURLs          RedirectURLs      `json:"back_urls"`
	AutoReturn        string            `json:"auto_return,omitempty"`
	MaxInstallments   int               `json:"max_installments,omitempty"`
	ExternalReference string            `json:"external_reference"`
	NotificationURL   string            `json:"notification_url,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	IdempotencyKey    string            `json:"-"`
}

// IntentItem is a single line item of a payment intent
type IntentItem struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	CurrencyID  string          `json:"currency_id"`
}

// Payer identifies the customer towards the provider
type Payer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
	Phone *Phone `json:"phone,omitempty"`
}

// Phone is the provider phone shape: area code plus local digits
type Phone struct {
	AreaCode string `json:"area_code"`
	Number   string `json:"number"`
}

// CreatedIntent is what the provider returns after a successful create
type CreatedIntent struct {
	IntentID           string `json:"id"`
	RedirectURL        string `json:"init_point"`
	SandboxRedirectURL string `json:"sandbox_init_point"`
}

// IntentSnapshot is the authoritative view of an intent fetched from the provider
type IntentSnapshot struct {
	IntentID          string
	Status            PaymentStatus
	RawStatus         string
	TransactionAmount decimal.Decimal
	PayerEmail        string
	ExternalReference string
}
