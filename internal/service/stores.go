package service

import (
	"context"

	"github.com/ledgerline/be-payment-approvals/internal/repository"
)

// The service layer depends on narrow store interfaces implemented by the
// pgx repositories, so the engine can be exercised against in-memory fakes.

// RouteStore reads approval routes with their stages.
type RouteStore interface {
	GetByID(ctx context.Context, id string) (*repository.ApprovalRoute, error)
	GetActiveByInvoiceType(ctx context.Context, invoiceTypeID string) (*repository.ApprovalRoute, error)
}

// ApprovalStore owns approval instances and their transactional write sequences.
type ApprovalStore interface {
	Start(ctx context.Context, approval *repository.PaymentApproval, firstStep *repository.ApprovalStep, invoiceID string) error
	ApplyDecision(ctx context.Context, u repository.DecisionUpdate) error
	GetByID(ctx context.Context, id string) (*repository.PaymentApproval, error)
	GetPendingByPaymentID(ctx context.Context, paymentID string) (*repository.PaymentApproval, error)
	ListByPaymentID(ctx context.Context, paymentID string) ([]*repository.PaymentApproval, error)
	LoadPendingForRole(ctx context.Context, roleID string, projectIDs []string) ([]*repository.PendingApproval, error)
	FindOrphaned(ctx context.Context) ([]*repository.PaymentApproval, error)
	CreateStep(ctx context.Context, step *repository.ApprovalStep) error
}

// StepStore reads approval steps.
type StepStore interface {
	GetCurrentStep(ctx context.Context, approvalID string, stageIndex int) (*repository.ApprovalStep, error)
	GetInfosByApprovalIDs(ctx context.Context, approvalIDs []string) (map[string][]*repository.StepInfo, error)
}

// PaymentStore reads payments.
type PaymentStore interface {
	GetByID(ctx context.Context, id string) (*repository.Payment, error)
	ListByInvoiceID(ctx context.Context, invoiceID string) ([]*repository.Payment, error)
}

// InvoiceStore reads invoices and persists recomputed statuses.
type InvoiceStore interface {
	GetByID(ctx context.Context, id string) (*repository.Invoice, error)
	UpdateStatus(ctx context.Context, id, status string) error
}

// UserStore reads role configuration and project assignments.
type UserStore interface {
	GetRole(ctx context.Context, roleID string) (*repository.RoleConfig, error)
	GetUserProjectIDs(ctx context.Context, userID string) ([]string, error)
}

// AuditStore appends and reads the approval audit log.
type AuditStore interface {
	Append(ctx context.Context, entry *repository.AuditEntry) error
	GetByPaymentID(ctx context.Context, paymentID string) ([]*repository.AuditEntry, error)
}

// Notifier publishes user-facing approval events. Implementations must never
// fail the calling operation.
type Notifier interface {
	PublishApprovalEvent(ctx context.Context, eventType, paymentID, approvalID, actorID string, payload map[string]interface{})
}

// RouteCache caches the active route per invoice type.
type RouteCache interface {
	Get(ctx context.Context, invoiceTypeID string) (*repository.ApprovalRoute, bool)
	Set(ctx context.Context, route *repository.ApprovalRoute)
	Invalidate(ctx context.Context, invoiceTypeID string)
}
