package service

import (
	"context"

	"github.com/ledgerline/be-payment-approvals/internal/errors"
	"github.com/ledgerline/be-payment-approvals/internal/logger"
	"github.com/ledgerline/be-payment-approvals/internal/metrics"
	"github.com/ledgerline/be-payment-approvals/internal/repository"
)

// Notification event types published on terminal and intermediate outcomes.
const (
	EventApprovalStarted   = "approval_started"
	EventStepApproved      = "step_approved"
	EventApprovalCompleted = "approval_completed"
	EventApprovalRejected  = "approval_rejected"
)

// ApprovalService runs the multi-stage payment approval workflow: it starts
// approval instances against a route, applies approve/reject decisions at the
// current stage, and keeps payment and invoice statuses consistent with the
// approval history.
type ApprovalService struct {
	routes    RouteStore
	approvals ApprovalStore
	steps     StepStore
	payments  PaymentStore
	invoices  InvoiceStore
	users     UserStore
	audit     AuditStore
	notifier  Notifier
	cache     RouteCache
	log       *logger.Logger
}

// NewApprovalService creates a new ApprovalService. notifier and cache may be
// nil; both are optional collaborators.
func NewApprovalService(
	routes RouteStore,
	approvals ApprovalStore,
	steps StepStore,
	payments PaymentStore,
	invoices InvoiceStore,
	users UserStore,
	audit AuditStore,
	notifier Notifier,
	cache RouteCache,
	log *logger.Logger,
) *ApprovalService {
	return &ApprovalService{
		routes:    routes,
		approvals: approvals,
		steps:     steps,
		payments:  payments,
		invoices:  invoices,
		users:     users,
		audit:     audit,
		notifier:  notifier,
		cache:     cache,
		log:       log,
	}
}

// ── Process start ────────────────────────────────────────────────────────────

// StartApprovalProcess creates a new approval instance for a payment against
// a route and seeds the first stage. A payment whose previous approval was
// rejected gets a brand-new instance; the rejected one stays as history.
func (s *ApprovalService) StartApprovalProcess(ctx context.Context, paymentID, routeID, startedBy string) (*repository.PaymentApproval, error) {
	route, err := s.routes.GetByID(ctx, routeID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeNotFound, "approval route not found")
	}
	if !route.IsActive {
		return nil, errors.Conflict("approval route is inactive")
	}

	existing, err := s.approvals.GetPendingByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errors.Conflict("an approval process is already in progress for this payment")
	}

	if len(route.Stages) == 0 {
		return nil, errors.InvalidInput("route", "approval route has no stages")
	}

	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	statusBefore := payment.Status

	first := route.Stages[0]
	approval := &repository.PaymentApproval{
		PaymentID:         paymentID,
		RouteID:           routeID,
		CurrentStageIndex: 0,
		Status:            repository.ApprovalStatusPending,
	}
	firstStep := &repository.ApprovalStep{
		StageID:    first.ID,
		StageName:  first.Name,
		StageIndex: 0,
		Action:     repository.StepActionPending,
	}

	// The insert sequence (approval + step + payment + invoice) is one
	// transaction; the partial unique index turns a lost start-start race
	// into the same already-in-progress conflict as the pre-check above.
	if err := s.approvals.Start(ctx, approval, firstStep, payment.InvoiceID); err != nil {
		return nil, err
	}

	// The transactional write pinned the invoice to pending; recompute from
	// the full payment set in case other payments push it further.
	s.recomputeInvoiceStatus(ctx, payment.InvoiceID)

	statusAfter := repository.PaymentStatusPending
	s.appendAudit(ctx, &repository.AuditEntry{
		PaymentID:           paymentID,
		ApprovalID:          &approval.ID,
		StepID:              &firstStep.ID,
		Action:              "started",
		PerformedBy:         startedBy,
		PaymentStatusBefore: &statusBefore,
		PaymentStatusAfter:  &statusAfter,
		Metadata: map[string]interface{}{
			"route_id":    routeID,
			"route_name":  route.Name,
			"stage_count": len(route.Stages),
		},
	})
	s.notify(ctx, EventApprovalStarted, paymentID, approval.ID, startedBy, map[string]interface{}{
		"first_stage": first.Name,
	})
	metrics.ApprovalsStarted.Inc()

	s.log.Info().
		Str("payment_id", paymentID).
		Str("approval_id", approval.ID).
		Str("route_id", routeID).
		Int("stage_count", len(route.Stages)).
		Msg("Approval process started")

	return approval, nil
}

// ── Decisions ────────────────────────────────────────────────────────────────

// Approve applies an approve decision at the current stage of a pending
// approval: the step is marked approved, and the approval either advances to
// the next stage (creating its step lazily) or terminates fully approved.
func (s *ApprovalService) Approve(ctx context.Context, approvalID, actorID string, comment *string) error {
	approval, route, step, err := s.loadDecisionState(ctx, approvalID)
	if err != nil {
		return err
	}
	stage := route.Stages[approval.CurrentStageIndex]

	payment, err := s.payments.GetByID(ctx, approval.PaymentID)
	if err != nil {
		return err
	}
	statusBefore := payment.Status

	update := repository.DecisionUpdate{
		ApprovalID: approvalID,
		StepID:     step.ID,
		Action:     repository.StepActionApproved,
		ActorID:    actorID,
		Comment:    comment,
		PaymentID:  approval.PaymentID,
	}

	lastStage := approval.CurrentStageIndex+1 >= len(route.Stages)
	if lastStage {
		update.ApprovalStatus = repository.ApprovalStatusApproved
		// Stage target status wins over the generic default.
		target := repository.PaymentStatusApproved
		if stage.PaymentStatus != nil {
			target = *stage.PaymentStatus
		}
		update.PaymentStatus = &target
	} else {
		next := route.Stages[approval.CurrentStageIndex+1]
		update.ApprovalStatus = repository.ApprovalStatusPending
		update.NextStageIndex = approval.CurrentStageIndex + 1
		update.NextStep = &repository.ApprovalStep{
			StageID:    next.ID,
			StageName:  next.Name,
			StageIndex: next.OrderIndex,
			Action:     repository.StepActionPending,
		}
		// An intermediate stage may still carry a target payment status.
		update.PaymentStatus = stage.PaymentStatus
	}

	if err := s.approvals.ApplyDecision(ctx, update); err != nil {
		return err
	}

	s.recomputeInvoiceStatus(ctx, payment.InvoiceID)

	event := EventStepApproved
	auditAfter := statusBefore
	if update.PaymentStatus != nil {
		auditAfter = *update.PaymentStatus
	}
	if lastStage {
		event = EventApprovalCompleted
	}
	s.appendAudit(ctx, &repository.AuditEntry{
		PaymentID:           approval.PaymentID,
		ApprovalID:          &approvalID,
		StepID:              &step.ID,
		Action:              "approved",
		PerformedBy:         actorID,
		PaymentStatusBefore: &statusBefore,
		PaymentStatusAfter:  &auditAfter,
		Metadata: map[string]interface{}{
			"stage_index": approval.CurrentStageIndex,
			"stage_name":  stage.Name,
			"final":       lastStage,
		},
	})
	s.notify(ctx, event, approval.PaymentID, approvalID, actorID, map[string]interface{}{
		"stage_name": stage.Name,
	})
	metrics.DecisionsTotal.WithLabelValues("approved").Inc()

	s.log.Info().
		Str("approval_id", approvalID).
		Str("payment_id", approval.PaymentID).
		Int("stage_index", approval.CurrentStageIndex).
		Bool("completed", lastStage).
		Msg("Approval step approved")

	return nil
}

// Reject applies a reject decision at the current stage. Rejection is final
// for the approval instance; retrying requires starting a new process.
func (s *ApprovalService) Reject(ctx context.Context, approvalID, actorID string, comment *string) error {
	if comment == nil || *comment == "" {
		return errors.InvalidInput("comment", "rejection comment is required")
	}

	approval, route, step, err := s.loadDecisionState(ctx, approvalID)
	if err != nil {
		return err
	}
	stage := route.Stages[approval.CurrentStageIndex]

	payment, err := s.payments.GetByID(ctx, approval.PaymentID)
	if err != nil {
		return err
	}
	statusBefore := payment.Status
	rejected := repository.PaymentStatusRejected

	update := repository.DecisionUpdate{
		ApprovalID:     approvalID,
		StepID:         step.ID,
		Action:         repository.StepActionRejected,
		ActorID:        actorID,
		Comment:        comment,
		ApprovalStatus: repository.ApprovalStatusRejected,
		PaymentID:      approval.PaymentID,
		PaymentStatus:  &rejected,
	}

	if err := s.approvals.ApplyDecision(ctx, update); err != nil {
		return err
	}

	s.recomputeInvoiceStatus(ctx, payment.InvoiceID)

	s.appendAudit(ctx, &repository.AuditEntry{
		PaymentID:           approval.PaymentID,
		ApprovalID:          &approvalID,
		StepID:              &step.ID,
		Action:              "rejected",
		PerformedBy:         actorID,
		PaymentStatusBefore: &statusBefore,
		PaymentStatusAfter:  &rejected,
		Metadata: map[string]interface{}{
			"stage_index": approval.CurrentStageIndex,
			"stage_name":  stage.Name,
			"comment":     *comment,
		},
	})
	s.notify(ctx, EventApprovalRejected, approval.PaymentID, approvalID, actorID, map[string]interface{}{
		"stage_name": stage.Name,
		"comment":    *comment,
	})
	metrics.DecisionsTotal.WithLabelValues("rejected").Inc()

	s.log.Info().
		Str("approval_id", approvalID).
		Str("payment_id", approval.PaymentID).
		Int("stage_index", approval.CurrentStageIndex).
		Msg("Approval rejected")

	return nil
}

// loadDecisionState loads and validates everything a decision needs: a
// pending approval, its route with stages, and the pending step at the
// current stage.
func (s *ApprovalService) loadDecisionState(ctx context.Context, approvalID string) (*repository.PaymentApproval, *repository.ApprovalRoute, *repository.ApprovalStep, error) {
	approval, err := s.approvals.GetByID(ctx, approvalID)
	if err != nil {
		return nil, nil, nil, err
	}
	if approval.Status != repository.ApprovalStatusPending {
		return nil, nil, nil, errors.Newf(errors.ErrCodeConflict,
			"approval is not pending (status: %s)", approval.Status)
	}

	route, err := s.routes.GetByID(ctx, approval.RouteID)
	if err != nil {
		return nil, nil, nil, err
	}
	if approval.CurrentStageIndex >= len(route.Stages) {
		return nil, nil, nil, errors.Newf(errors.ErrCodeConflict,
			"approval stage index %d is outside the route's stage list", approval.CurrentStageIndex)
	}

	step, err := s.steps.GetCurrentStep(ctx, approvalID, approval.CurrentStageIndex)
	if err != nil {
		return nil, nil, nil, err
	}
	if step == nil {
		return nil, nil, nil, errors.Conflict("approval has no pending step at its current stage; run reconciliation")
	}
	if step.Action != repository.StepActionPending {
		return nil, nil, nil, errors.Newf(errors.ErrCodeConflict,
			"current step has already been acted on (action: %s)", step.Action)
	}

	return approval, route, step, nil
}

// ── Invoice status reconciliation ────────────────────────────────────────────

// recomputeInvoiceStatus recalculates the invoice status from its full
// payment set and persists it when the update guard allows. The decision has
// already committed when this runs, and the computation is idempotent, so
// failures are logged rather than propagated; the next decision or a
// reconciliation pass produces the same result.
func (s *ApprovalService) recomputeInvoiceStatus(ctx context.Context, invoiceID string) {
	invoice, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		s.log.Warn().Err(err).Str("invoice_id", invoiceID).Msg("Failed to load invoice for status recomputation")
		return
	}

	payments, err := s.payments.ListByInvoiceID(ctx, invoiceID)
	if err != nil {
		s.log.Warn().Err(err).Str("invoice_id", invoiceID).Msg("Failed to load payments for status recomputation")
		return
	}

	amounts := make([]PaymentAmount, 0, len(payments))
	for _, p := range payments {
		amounts = append(amounts, PaymentAmount{Status: p.Status, Amount: p.Amount})
	}

	computed := CalculateInvoiceStatus(invoice.AmountWithTax, invoice.Status, amounts)
	if !ShouldUpdateInvoiceStatus(invoice.Status, computed) {
		return
	}

	if err := s.invoices.UpdateStatus(ctx, invoiceID, computed); err != nil {
		s.log.Warn().Err(err).Str("invoice_id", invoiceID).Str("status", computed).Msg("Failed to persist recomputed invoice status")
		return
	}

	s.log.Debug().
		Str("invoice_id", invoiceID).
		Str("from", invoice.Status).
		Str("to", computed).
		Msg("Invoice status recomputed")
}

// ── Internal helpers ─────────────────────────────────────────────────────────

// appendAudit writes an audit entry; failures are logged and never propagate.
func (s *ApprovalService) appendAudit(ctx context.Context, entry *repository.AuditEntry) {
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("payment_id", entry.PaymentID).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}

func (s *ApprovalService) notify(ctx context.Context, eventType, paymentID, approvalID, actorID string, payload map[string]interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.PublishApprovalEvent(ctx, eventType, paymentID, approvalID, actorID, payload)
}
