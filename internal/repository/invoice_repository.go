package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerline/be-payment-approvals/internal/database"
	"github.com/ledgerline/be-payment-approvals/internal/errors"
)

// InvoiceRepository reads the invoice fields the approval engine needs and
// writes recomputed statuses.
type InvoiceRepository struct {
	db *database.DB
}

// NewInvoiceRepository creates a new InvoiceRepository.
func NewInvoiceRepository(db *database.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// GetByID retrieves an invoice.
func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*Invoice, error) {
	query := `
		SELECT id, number, invoice_type_id, project_id, contractor_name,
		       amount_with_tax, status
		FROM invoices
		WHERE id = $1
	`

	invoice := &Invoice{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&invoice.ID,
		&invoice.Number,
		&invoice.InvoiceTypeID,
		&invoice.ProjectID,
		&invoice.ContractorName,
		&invoice.AmountWithTax,
		&invoice.Status,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("invoice", id)
	}
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// UpdateStatus sets the invoice status.
func (r *InvoiceRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `
		UPDATE invoices
		SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, status).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("invoice", id)
	}
	return err
}
