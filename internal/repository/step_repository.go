package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerline/be-payment-approvals/internal/database"
	"github.com/ledgerline/be-payment-approvals/internal/errors"
)

// StepRepository handles reads on approval steps. Step creation and decision
// writes belong to ApprovalRepository so they stay transactional with the
// approval row.
type StepRepository struct {
	db *database.DB
}

// NewStepRepository creates a new StepRepository.
func NewStepRepository(db *database.DB) *StepRepository {
	return &StepRepository{db: db}
}

// GetCurrentStep returns the pending step at the approval's given stage
// index, or nil when no such step exists.
func (r *StepRepository) GetCurrentStep(ctx context.Context, approvalID string, stageIndex int) (*ApprovalStep, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM approval_steps
		WHERE approval_id = $1 AND stage_index = $2
	`

	step := &ApprovalStep{}
	err := r.db.QueryRow(ctx, query, approvalID, stageIndex).Scan(
		&step.ID,
		&step.ApprovalID,
		&step.StageID,
		&step.StageName,
		&step.StageIndex,
		&step.Action,
		&step.ActorID,
		&step.ActedAt,
		&step.Comment,
		&step.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get current step")
	}
	return step, nil
}

// GetInfosByApprovalIDs returns display-ready steps (stage + actor resolved)
// for a set of approvals, keyed by approval id and ordered by stage index.
func (r *StepRepository) GetInfosByApprovalIDs(ctx context.Context, approvalIDs []string) (map[string][]*StepInfo, error) {
	result := make(map[string][]*StepInfo, len(approvalIDs))
	if len(approvalIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT s.approval_id, s.id, s.stage_index, s.stage_name, s.action,
		       s.actor_id, u.full_name, s.acted_at, s.comment
		FROM approval_steps s
		LEFT JOIN user_profiles u ON u.id = s.actor_id
		WHERE s.approval_id = ANY($1)
		ORDER BY s.approval_id, s.stage_index ASC
	`

	rows, err := r.db.Query(ctx, query, approvalIDs)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval steps")
	}
	defer rows.Close()

	for rows.Next() {
		var approvalID string
		info := &StepInfo{}
		err := rows.Scan(
			&approvalID,
			&info.ID,
			&info.StageIndex,
			&info.StageName,
			&info.Action,
			&info.ActorID,
			&info.ActorName,
			&info.ActedAt,
			&info.Comment,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval step")
		}
		result[approvalID] = append(result[approvalID], info)
	}
	return result, rows.Err()
}
