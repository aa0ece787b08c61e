package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ledgerline/be-payment-approvals/internal/database"
	"github.com/ledgerline/be-payment-approvals/internal/errors"
)

// ApprovalRepository manages approval instances and their multi-table write
// sequences. Every sequence that used to be a series of independent calls in
// the legacy system (approval + step + payment + invoice) runs in a single
// transaction here, so an approval without a current step cannot be created.
type ApprovalRepository struct {
	db *database.DB
}

// NewApprovalRepository creates a new ApprovalRepository.
func NewApprovalRepository(db *database.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

const approvalColumns = `id, payment_id, route_id, current_stage_index, status, created_at, updated_at`

const stepColumns = `id, approval_id, stage_id, stage_name, stage_index, action,
       actor_id, acted_at, comment, created_at`

// Start inserts a new approval at stage 0 together with its first step, and
// moves the payment and invoice to pending. The partial unique index on
// (payment_id) WHERE status='pending' serializes concurrent starts; a
// violation is returned as the already-in-progress conflict.
func (r *ApprovalRepository) Start(ctx context.Context, approval *PaymentApproval, firstStep *ApprovalStep, invoiceID string) error {
	approval.ID = uuid.NewString()
	firstStep.ID = uuid.NewString()
	firstStep.ApprovalID = approval.ID

	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		approvalQuery := `
			INSERT INTO payment_approvals
			    (id, payment_id, route_id, current_stage_index, status)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at, updated_at
		`
		err := tx.QueryRow(ctx, approvalQuery,
			approval.ID,
			approval.PaymentID,
			approval.RouteID,
			approval.CurrentStageIndex,
			approval.Status,
		).Scan(&approval.CreatedAt, &approval.UpdatedAt)
		if err != nil {
			return err
		}

		if err := insertStep(ctx, tx, firstStep); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1`,
			approval.PaymentID, PaymentStatusPending,
		); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update payment status")
		}

		// Explicit override: at least one payment is now under review.
		if _, err := tx.Exec(ctx,
			`UPDATE invoices SET status = $2, updated_at = NOW() WHERE id = $1 AND status <> $3`,
			invoiceID, InvoiceStatusPending, InvoiceStatusCancelled,
		); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update invoice status")
		}

		return nil
	})

	if errors.IsUniqueViolation(err, "uq_payment_approvals_pending") {
		return errors.Conflict("an approval process is already in progress for this payment")
	}
	return err
}

// DecisionUpdate carries everything ApplyDecision writes for one decision.
type DecisionUpdate struct {
	ApprovalID string
	StepID     string
	Action     string // approved | rejected
	ActorID    string
	Comment    *string

	// ApprovalStatus is the approval's status after the decision: pending
	// when advancing to another stage, approved/rejected when terminal.
	ApprovalStatus string
	// NextStep is the lazily created step for the next stage; nil when the
	// decision terminates the approval.
	NextStep       *ApprovalStep
	NextStageIndex int

	PaymentID string
	// PaymentStatus, when set, is applied to the payment (stage target
	// status or terminal default).
	PaymentStatus *string
}

// ApplyDecision records a step outcome and advances or terminates the
// approval in one transaction. The WHERE action='pending' guard makes a
// second decision on the same step fail regardless of interleaving.
func (r *ApprovalRepository) ApplyDecision(ctx context.Context, u DecisionUpdate) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		stepQuery := `
			UPDATE approval_steps
			SET action   = $2,
			    actor_id = $3,
			    acted_at = NOW(),
			    comment  = $4
			WHERE id = $1
			  AND action = 'pending'
			RETURNING id
		`
		var stepID string
		err := tx.QueryRow(ctx, stepQuery, u.StepID, u.Action, u.ActorID, u.Comment).Scan(&stepID)
		if err == pgx.ErrNoRows {
			return errors.Conflict("approval step has already been acted on")
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to record step decision")
		}

		if u.NextStep != nil {
			u.NextStep.ID = uuid.NewString()
			u.NextStep.ApprovalID = u.ApprovalID
			if err := insertStep(ctx, tx, u.NextStep); err != nil {
				return err
			}

			advanceQuery := `
				UPDATE payment_approvals
				SET current_stage_index = $2, updated_at = NOW()
				WHERE id = $1 AND status = 'pending'
				RETURNING id
			`
			var approvalID string
			err := tx.QueryRow(ctx, advanceQuery, u.ApprovalID, u.NextStageIndex).Scan(&approvalID)
			if err == pgx.ErrNoRows {
				return errors.Conflict("approval is no longer pending")
			}
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to advance approval")
			}
		} else {
			terminalQuery := `
				UPDATE payment_approvals
				SET status = $2, updated_at = NOW()
				WHERE id = $1 AND status = 'pending'
				RETURNING id
			`
			var approvalID string
			err := tx.QueryRow(ctx, terminalQuery, u.ApprovalID, u.ApprovalStatus).Scan(&approvalID)
			if err == pgx.ErrNoRows {
				return errors.Conflict("approval is no longer pending")
			}
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to close approval")
			}
		}

		if u.PaymentStatus != nil {
			if _, err := tx.Exec(ctx,
				`UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1`,
				u.PaymentID, *u.PaymentStatus,
			); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to update payment status")
			}
		}

		return nil
	})
}

func insertStep(ctx context.Context, tx pgx.Tx, step *ApprovalStep) error {
	query := `
		INSERT INTO approval_steps
		    (id, approval_id, stage_id, stage_name, stage_index, action, actor_id, acted_at, comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	err := tx.QueryRow(ctx, query,
		step.ID,
		step.ApprovalID,
		step.StageID,
		step.StageName,
		step.StageIndex,
		step.Action,
		step.ActorID,
		step.ActedAt,
		step.Comment,
	).Scan(&step.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval step")
	}
	return nil
}

// GetByID retrieves an approval by primary key.
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*PaymentApproval, error) {
	query := `SELECT ` + approvalColumns + ` FROM payment_approvals WHERE id = $1`

	approval, err := r.scanApproval(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("payment_approval", id)
	}
	return approval, err
}

// GetPendingByPaymentID returns the pending approval for a payment, or nil.
func (r *ApprovalRepository) GetPendingByPaymentID(ctx context.Context, paymentID string) (*PaymentApproval, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM payment_approvals
		WHERE payment_id = $1 AND status = 'pending'
	`

	approval, err := r.scanApproval(r.db.QueryRow(ctx, query, paymentID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return approval, err
}

// ListByPaymentID returns all approval instances for a payment, newest first.
func (r *ApprovalRepository) ListByPaymentID(ctx context.Context, paymentID string) ([]*PaymentApproval, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM payment_approvals
		WHERE payment_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, paymentID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approvals")
	}
	defer rows.Close()

	var approvals []*PaymentApproval
	for rows.Next() {
		approval, err := r.scanApproval(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval")
		}
		approvals = append(approvals, approval)
	}
	return approvals, rows.Err()
}

// FindOrphaned returns pending approvals that have no pending step at their
// current stage. Such rows could only come from the pre-transactional legacy
// data; they violate the engine's core invariant and are repaired by
// reconciliation.
func (r *ApprovalRepository) FindOrphaned(ctx context.Context) ([]*PaymentApproval, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM payment_approvals pa
		WHERE pa.status = 'pending'
		  AND NOT EXISTS (
		      SELECT 1 FROM approval_steps s
		      WHERE s.approval_id = pa.id
		        AND s.stage_index = pa.current_stage_index
		        AND s.action = 'pending'
		  )
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to find orphaned approvals")
	}
	defer rows.Close()

	var approvals []*PaymentApproval
	for rows.Next() {
		approval, err := r.scanApproval(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval")
		}
		approvals = append(approvals, approval)
	}
	return approvals, rows.Err()
}

// CreateStep inserts a step outside any larger sequence. Used by
// reconciliation to repair a missing current-stage step.
func (r *ApprovalRepository) CreateStep(ctx context.Context, step *ApprovalStep) error {
	step.ID = uuid.NewString()
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		return insertStep(ctx, tx, step)
	})
}

// LoadPendingForRole returns all pending approvals whose current stage is
// assigned to the given role, enriched with payment, invoice, project and
// current-stage data. The stage match is a SQL join on order_index, and the
// optional project scope is applied inside the query so it cannot be skipped
// by a caller.
func (r *ApprovalRepository) LoadPendingForRole(ctx context.Context, roleID string, projectIDs []string) ([]*PendingApproval, error) {
	query := `
		SELECT pa.id, pa.payment_id, pa.route_id, pa.current_stage_index, pa.status,
		       pa.created_at, pa.updated_at,
		       ws.id, ws.route_id, ws.order_index, ws.name, ws.role_id, ws.payment_status,
		       ws.can_edit_invoice, ws.can_add_files, ws.can_edit_amount,
		       p.id, p.invoice_id, p.amount, p.status,
		       i.number, i.amount_with_tax, i.status,
		       i.invoice_type_id, it.name,
		       i.project_id, pr.name,
		       i.contractor_name
		FROM payment_approvals pa
		JOIN workflow_stages ws
		  ON ws.route_id = pa.route_id
		 AND ws.order_index = pa.current_stage_index
		JOIN payments p       ON p.id = pa.payment_id
		JOIN invoices i       ON i.id = p.invoice_id
		JOIN invoice_types it ON it.id = i.invoice_type_id
		JOIN projects pr      ON pr.id = i.project_id
		WHERE pa.status = 'pending'
		  AND ws.role_id = $1
		  AND ($2::boolean OR i.project_id = ANY($3))
		ORDER BY pa.created_at ASC
	`

	unscoped := projectIDs == nil
	rows, err := r.db.Query(ctx, query, roleID, unscoped, projectIDs)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to load pending approvals")
	}
	defer rows.Close()

	var result []*PendingApproval
	for rows.Next() {
		item := &PendingApproval{
			Approval:     &PaymentApproval{},
			CurrentStage: &WorkflowStage{},
			Payment:      &PaymentInfo{},
		}
		err := rows.Scan(
			&item.Approval.ID,
			&item.Approval.PaymentID,
			&item.Approval.RouteID,
			&item.Approval.CurrentStageIndex,
			&item.Approval.Status,
			&item.Approval.CreatedAt,
			&item.Approval.UpdatedAt,
			&item.CurrentStage.ID,
			&item.CurrentStage.RouteID,
			&item.CurrentStage.OrderIndex,
			&item.CurrentStage.Name,
			&item.CurrentStage.RoleID,
			&item.CurrentStage.PaymentStatus,
			&item.CurrentStage.CanEditInvoice,
			&item.CurrentStage.CanAddFiles,
			&item.CurrentStage.CanEditAmount,
			&item.Payment.ID,
			&item.Payment.InvoiceID,
			&item.Payment.Amount,
			&item.Payment.Status,
			&item.Payment.InvoiceNumber,
			&item.Payment.InvoiceAmount,
			&item.Payment.InvoiceStatus,
			&item.Payment.InvoiceTypeID,
			&item.Payment.InvoiceTypeName,
			&item.Payment.ProjectID,
			&item.Payment.ProjectName,
			&item.Payment.ContractorName,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan pending approval")
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

// ── scan helper ──────────────────────────────────────────────────────────────

type approvalScanner interface {
	Scan(dest ...any) error
}

func (r *ApprovalRepository) scanApproval(row approvalScanner) (*PaymentApproval, error) {
	approval := &PaymentApproval{}
	err := row.Scan(
		&approval.ID,
		&approval.PaymentID,
		&approval.RouteID,
		&approval.CurrentStageIndex,
		&approval.Status,
		&approval.CreatedAt,
		&approval.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return approval, nil
}
