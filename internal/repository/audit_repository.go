package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ledgerline/be-payment-approvals/internal/database"
	"github.com/ledgerline/be-payment-approvals/internal/errors"
)

// AuditRepository appends and reads immutable approval audit log entries.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit entry. The log is append-only; no update or delete
// operation is exposed.
func (r *AuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	entry.ID = uuid.NewString()

	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO approval_audit_log
		    (id, payment_id, approval_id, step_id,
		     action, performed_by,
		     payment_status_before, payment_status_after,
		     metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING performed_at
	`

	return r.db.QueryRow(ctx, query,
		entry.ID,
		entry.PaymentID,
		entry.ApprovalID,
		entry.StepID,
		entry.Action,
		entry.PerformedBy,
		entry.PaymentStatusBefore,
		entry.PaymentStatusAfter,
		metadataJSON,
	).Scan(&entry.PerformedAt)
}

// GetByPaymentID returns the full audit trail for a payment, oldest first.
func (r *AuditRepository) GetByPaymentID(ctx context.Context, paymentID string) ([]*AuditEntry, error) {
	query := `
		SELECT id, payment_id, approval_id, step_id,
		       action, performed_by, performed_at,
		       payment_status_before, payment_status_after,
		       metadata
		FROM approval_audit_log
		WHERE payment_id = $1
		ORDER BY performed_at ASC
	`

	rows, err := r.db.Query(ctx, query, paymentID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ── scan helpers ─────────────────────────────────────────────────────────────

func (r *AuditRepository) scanRows(rows pgx.Rows) ([]*AuditEntry, error) {
	var entries []*AuditEntry
	for rows.Next() {
		entry := &AuditEntry{}
		var metadataJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.PaymentID,
			&entry.ApprovalID,
			&entry.StepID,
			&entry.Action,
			&entry.PerformedBy,
			&entry.PerformedAt,
			&entry.PaymentStatusBefore,
			&entry.PaymentStatusAfter,
			&metadataJSON,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
		}

		if metadataJSON != nil {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
