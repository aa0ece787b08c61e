package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerline/be-payment-approvals/internal/database"
	"github.com/ledgerline/be-payment-approvals/internal/errors"
)

// PaymentRepository reads payments and writes their status. Status writes
// that belong to an approval decision go through ApprovalRepository instead.
type PaymentRepository struct {
	db *database.DB
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(db *database.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, invoice_id, amount, status, created_at, updated_at`

// GetByID retrieves a payment.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	payment, err := r.scanPayment(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("payment", id)
	}
	return payment, err
}

// ListByInvoiceID returns every payment linked to an invoice. The status
// calculator always works on this full set, not a single payment.
func (r *PaymentRepository) ListByInvoiceID(ctx context.Context, invoiceID string) ([]*Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE invoice_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list payments")
	}
	defer rows.Close()

	var payments []*Payment
	for rows.Next() {
		payment, err := r.scanPayment(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan payment")
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

// UpdateStatus sets the payment status.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `
		UPDATE payments
		SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, status).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("payment", id)
	}
	return err
}

// ── scan helper ──────────────────────────────────────────────────────────────

type paymentScanner interface {
	Scan(dest ...any) error
}

func (r *PaymentRepository) scanPayment(row paymentScanner) (*Payment, error) {
	payment := &Payment{}
	err := row.Scan(
		&payment.ID,
		&payment.InvoiceID,
		&payment.Amount,
		&payment.Status,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return payment, nil
}
