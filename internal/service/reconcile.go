package service

import (
	"context"

	"github.com/ledgerline/be-payment-approvals/internal/metrics"
	"github.com/ledgerline/be-payment-approvals/internal/repository"
)

// ReconcileApprovals finds pending approvals that have no pending step at
// their current stage and repairs them by creating the missing step. Such
// rows cannot be produced by this engine's transactional writes; they exist
// only in data migrated from the legacy system, where the approval insert and
// the step insert were separate network calls.
//
// Returns the number of approvals repaired. Approvals whose stage index no
// longer fits the route's stage list cannot be repaired automatically and are
// logged for manual review.
func (s *ApprovalService) ReconcileApprovals(ctx context.Context) (int, error) {
	orphans, err := s.approvals.FindOrphaned(ctx)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, approval := range orphans {
		route, err := s.routes.GetByID(ctx, approval.RouteID)
		if err != nil {
			s.log.Warn().Err(err).
				Str("approval_id", approval.ID).
				Str("route_id", approval.RouteID).
				Msg("Reconciliation: failed to load route for orphaned approval")
			continue
		}
		if approval.CurrentStageIndex >= len(route.Stages) {
			s.log.Error().
				Str("approval_id", approval.ID).
				Int("stage_index", approval.CurrentStageIndex).
				Int("stage_count", len(route.Stages)).
				Msg("Reconciliation: approval stage index is outside the route's stage list; manual repair required")
			continue
		}

		stage := route.Stages[approval.CurrentStageIndex]
		step := &repository.ApprovalStep{
			ApprovalID: approval.ID,
			StageID:    stage.ID,
			StageName:  stage.Name,
			StageIndex: stage.OrderIndex,
			Action:     repository.StepActionPending,
		}
		if err := s.approvals.CreateStep(ctx, step); err != nil {
			s.log.Warn().Err(err).
				Str("approval_id", approval.ID).
				Msg("Reconciliation: failed to create missing step")
			continue
		}

		s.appendAudit(ctx, &repository.AuditEntry{
			PaymentID:   approval.PaymentID,
			ApprovalID:  &approval.ID,
			StepID:      &step.ID,
			Action:      "repaired",
			PerformedBy: "system",
			Metadata: map[string]interface{}{
				"stage_index": approval.CurrentStageIndex,
				"stage_name":  stage.Name,
			},
		})

		s.log.Info().
			Str("approval_id", approval.ID).
			Str("payment_id", approval.PaymentID).
			Int("stage_index", approval.CurrentStageIndex).
			Msg("Reconciliation: recreated missing current-stage step")
		metrics.ReconcileRepairsTotal.Inc()
		repaired++
	}

	return repaired, nil
}
