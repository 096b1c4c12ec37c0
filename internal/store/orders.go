package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tour-payments/internal/models"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

const orderColumns = `
	id, package_name, traveler_count, departure_date, customer_name, customer_email,
	customer_phone, phone_area_code, comments, unit_price, total_amount, currency,
	intent_id, idempotency_key, redirect_url, sandbox_redirect_url,
	success_url, failure_url, pending_url, payment_status, status_updated_at,
	created_at, updated_at`

// orderRow is the flat table shape of an order and its intent
type orderRow struct {
	ID                 string          `db:"id"`
	PackageName        string          `db:"package_name"`
	TravelerCount      int             `db:"traveler_count"`
	DepartureDate      string          `db:"departure_date"`
	CustomerName       string          `db:"customer_name"`
	CustomerEmail      string          `db:"customer_email"`
	CustomerPhone      string          `db:"customer_phone"`
	PhoneAreaCode      string          `db:"phone_area_code"`
	Comments           string          `db:"comments"`
	UnitPrice          decimal.Decimal `db:"unit_price"`
	TotalAmount        decimal.Decimal `db:"total_amount"`
	Currency           string          `db:"currency"`
	IntentID           sql.NullString  `db:"intent_id"`
	IdempotencyKey     string          `db:"idempotency_key"`
	RedirectURL        string          `db:"redirect_url"`
	SandboxRedirectURL string          `db:"sandbox_redirect_url"`
	SuccessURL         string          `db:"success_url"`
	FailureURL         string          `db:"failure_url"`
	PendingURL         string          `db:"pending_url"`
	PaymentStatus      string          `db:"payment_status"`
	StatusUpdatedAt    time.Time       `db:"status_updated_at"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

func rowFromOrder(o *models.Order) orderRow {
	status := o.Intent.Status
	if status == "" {
		status = models.PaymentStatusCreated
	}
	return orderRow{
		ID:                 o.ID,
		PackageName:        o.PackageName,
		TravelerCount:      o.TravelerCount,
		DepartureDate:      o.DepartureDate,
		CustomerName:       o.CustomerName,
		CustomerEmail:      o.CustomerEmail,
		CustomerPhone:      o.CustomerPhone,
		PhoneAreaCode:      o.PhoneAreaCode,
		Comments:           o.Comments,
		UnitPrice:          o.UnitPrice,
		TotalAmount:        o.TotalAmount,
		Currency:           o.Currency,
		IntentID:           sql.NullString{String: o.Intent.ID, Valid: o.Intent.ID != ""},
		IdempotencyKey:     o.Intent.IdempotencyKey,
		RedirectURL:        o.Intent.RedirectURL,
		SandboxRedirectURL: o.Intent.SandboxRedirectURL,
		SuccessURL:         o.Intent.RedirectURLs.Success,
		FailureURL:         o.Intent.RedirectURLs.Failure,
		PendingURL:         o.Intent.RedirectURLs.Pending,
		PaymentStatus:      string(status),
	}
}

func (r *orderRow) toOrder() *models.Order {
	return &models.Order{
		ID:            r.ID,
		PackageName:   r.PackageName,
		TravelerCount: r.TravelerCount,
		DepartureDate: r.DepartureDate,
		CustomerName:  r.CustomerName,
		CustomerEmail: r.CustomerEmail,
		CustomerPhone: r.CustomerPhone,
		PhoneAreaCode: r.PhoneAreaCode,
		Comments:      r.Comments,
		UnitPrice:     r.UnitPrice,
		TotalAmount:   r.TotalAmount,
		Currency:      r.Currency,
		Intent: models.PaymentIntent{
			ID:                 r.IntentID.String,
			IdempotencyKey:     r.IdempotencyKey,
			RedirectURL:        r.RedirectURL,
			SandboxRedirectURL: r.SandboxRedirectURL,
			RedirectURLs: models.RedirectURLs{
				Success: r.SuccessURL,
				Failure: r.FailureURL,
				Pending: r.PendingURL,
			},
			Status:          models.PaymentStatus(r.PaymentStatus),
			StatusUpdatedAt: r.StatusUpdatedAt,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// Put inserts a new order with its intent
func (s *Store) Put(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (
			id, package_name, traveler_count, departure_date, customer_name, customer_email,
			customer_phone, phone_area_code, comments, unit_price, total_amount, currency,
			intent_id, idempotency_key, redirect_url, sandbox_redirect_url,
			success_url, failure_url, pending_url, payment_status)
		VALUES (
			:id, :package_name, :traveler_count, :departure_date, :customer_name, :customer_email,
			:customer_phone, :phone_area_code, :comments, :unit_price, :total_amount, :currency,
			:intent_id, :idempotency_key, :redirect_url, :sandbox_redirect_url,
			:success_url, :failure_url, :pending_url, :payment_status)`

	_, err := s.db.NamedExecContext(ctx, query, rowFromOrder(order))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrOrderExists
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// Get retrieves an order by ID
func (s *Store) Get(ctx context.Context, orderID string) (*models.Order, error) {
	return s.getOne(ctx, "SELECT"+orderColumns+" FROM orders WHERE id = $1", orderID)
}

// FindByIntentID retrieves an order by its provider intent id
func (s *Store) FindByIntentID(ctx context.Context, intentID string) (*models.Order, error) {
	return s.getOne(ctx, "SELECT"+orderColumns+" FROM orders WHERE intent_id = $1", intentID)
}

func (s *Store) getOne(ctx context.Context, query string, arg string) (*models.Order, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toOrder(), nil
}

// UpdateStatus applies a legal transition while holding the order's row lock (FOR UPDATE)
func (s *Store) UpdateStatus(ctx context.Context, orderID string, status models.PaymentStatus) (models.PaymentStatus, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var current string
	err = tx.GetContext(ctx, &current,
		"SELECT payment_status FROM orders WHERE id = $1 FOR UPDATE", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to lock order: %w", err)
	}

	previous := models.PaymentStatus(current)
	if err := checkTransition(orderID, previous, status); err != nil {
		return previous, err
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE orders SET payment_status = $1, status_updated_at = NOW(), updated_at = NOW() WHERE id = $2",
		string(status), orderID)
	if err != nil {
		return previous, fmt.Errorf("failed to update payment status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return previous, err
	}
	return previous, nil
}

// List retrieves the newest orders first
func (s *Store) List(ctx context.Context, limit int) ([]*models.Order, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []orderRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT"+orderColumns+" FROM orders ORDER BY created_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, err
	}

	orders := make([]*models.Order, 0, len(rows))
	for i := range rows {
		orders = append(orders, rows[i].toOrder())
	}
	return orders, nil
}
