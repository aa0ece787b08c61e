package service

import (
	"context"

	"github.com/ledgerline/be-payment-approvals/internal/repository"
)

// Read side of the approval engine. Queries favor availability: any backend
// failure is logged and the caller gets an empty (or safe default) result
// instead of an error.

// LoadApprovalsForRole returns the pending approvals whose current stage is
// assigned to roleID, scoped to the acting user's projects when the role has
// own_projects_only set. A scoped user with zero assigned projects sees
// nothing, not everything.
func (s *ApprovalService) LoadApprovalsForRole(ctx context.Context, roleID, userID string) []*repository.PendingApproval {
	empty := make([]*repository.PendingApproval, 0)

	role, err := s.users.GetRole(ctx, roleID)
	if err != nil {
		s.log.Warn().Err(err).Str("role_id", roleID).Msg("Failed to load role for approvals queue")
		return empty
	}

	var projectIDs []string
	if role.OwnProjectsOnly {
		projectIDs, err = s.users.GetUserProjectIDs(ctx, userID)
		if err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to load user projects for approvals queue")
			return empty
		}
		if len(projectIDs) == 0 {
			return empty
		}
	}

	items, err := s.approvals.LoadPendingForRole(ctx, roleID, projectIDs)
	if err != nil {
		s.log.Warn().Err(err).Str("role_id", roleID).Msg("Failed to load pending approvals")
		return empty
	}
	if items == nil {
		return empty
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.Approval.ID)
	}
	steps, err := s.steps.GetInfosByApprovalIDs(ctx, ids)
	if err != nil {
		// Queue rows are still useful without their step history.
		s.log.Warn().Err(err).Msg("Failed to load steps for approvals queue")
		return items
	}
	for _, item := range items {
		item.Steps = steps[item.Approval.ID]
	}
	return items
}

// LoadApprovalHistory returns all approval instances for a payment, newest
// first, each with its steps resolved for display.
func (s *ApprovalService) LoadApprovalHistory(ctx context.Context, paymentID string) []*repository.ApprovalHistory {
	empty := make([]*repository.ApprovalHistory, 0)

	approvals, err := s.approvals.ListByPaymentID(ctx, paymentID)
	if err != nil {
		s.log.Warn().Err(err).Str("payment_id", paymentID).Msg("Failed to load approval history")
		return empty
	}

	ids := make([]string, 0, len(approvals))
	for _, a := range approvals {
		ids = append(ids, a.ID)
	}
	steps, err := s.steps.GetInfosByApprovalIDs(ctx, ids)
	if err != nil {
		s.log.Warn().Err(err).Str("payment_id", paymentID).Msg("Failed to load steps for approval history")
		steps = map[string][]*repository.StepInfo{}
	}

	history := make([]*repository.ApprovalHistory, 0, len(approvals))
	for _, a := range approvals {
		history = append(history, &repository.ApprovalHistory{
			Approval: a,
			Steps:    steps[a.ID],
		})
	}
	return history
}

// CheckPaymentApprovalStatus reports whether a pending approval exists for
// the payment. Used to gate UI actions; errors degrade to the safe default.
func (s *ApprovalService) CheckPaymentApprovalStatus(ctx context.Context, paymentID string) repository.ApprovalStatusCheck {
	approval, err := s.approvals.GetPendingByPaymentID(ctx, paymentID)
	if err != nil {
		s.log.Warn().Err(err).Str("payment_id", paymentID).Msg("Failed to check approval status")
		return repository.ApprovalStatusCheck{}
	}
	if approval == nil {
		return repository.ApprovalStatusCheck{}
	}
	return repository.ApprovalStatusCheck{
		InApproval:        true,
		ApprovalID:        &approval.ID,
		CurrentStageIndex: approval.CurrentStageIndex,
	}
}

// CheckApprovalRoute returns the active route for an invoice type, or nil
// when none is configured (or on error). Callers use a nil result to hide the
// "send for approval" action. Results are served from the route cache when
// one is wired.
func (s *ApprovalService) CheckApprovalRoute(ctx context.Context, invoiceTypeID string) *repository.ApprovalRoute {
	if s.cache != nil {
		if route, ok := s.cache.Get(ctx, invoiceTypeID); ok {
			return route
		}
	}

	route, err := s.routes.GetActiveByInvoiceType(ctx, invoiceTypeID)
	if err != nil {
		s.log.Warn().Err(err).Str("invoice_type_id", invoiceTypeID).Msg("Failed to look up approval route")
		return nil
	}
	if route != nil && s.cache != nil {
		s.cache.Set(ctx, route)
	}
	return route
}

// LoadAuditTrail returns the audit log for a payment, oldest first.
func (s *ApprovalService) LoadAuditTrail(ctx context.Context, paymentID string) []*repository.AuditEntry {
	entries, err := s.audit.GetByPaymentID(ctx, paymentID)
	if err != nil {
		s.log.Warn().Err(err).Str("payment_id", paymentID).Msg("Failed to load audit trail")
		return make([]*repository.AuditEntry, 0)
	}
	if entries == nil {
		return make([]*repository.AuditEntry, 0)
	}
	return entries
}
