package repository

import "time"

// ── Status codes ─────────────────────────────────────────────────────────────

// Invoice statuses. Cancelled is terminal and never auto-overridden.
const (
	InvoiceStatusDraft         = "draft"
	InvoiceStatusPending       = "pending"
	InvoiceStatusPartiallyPaid = "partially_paid"
	InvoiceStatusPaid          = "paid"
	InvoiceStatusCancelled     = "cancelled"
)

// Payment statuses.
const (
	PaymentStatusCreated   = "created"
	PaymentStatusPending   = "pending"
	PaymentStatusApproved  = "approved"
	PaymentStatusInPayment = "in_payment"
	PaymentStatusRejected  = "rejected"
	PaymentStatusPaid      = "paid"
)

// Approval instance statuses.
const (
	ApprovalStatusPending  = "pending"
	ApprovalStatusApproved = "approved"
	ApprovalStatusRejected = "rejected"
)

// Step actions.
const (
	StepActionPending  = "pending"
	StepActionApproved = "approved"
	StepActionRejected = "rejected"
)

// ── Domain types ─────────────────────────────────────────────────────────────

// ApprovalRoute is the approval policy for one invoice type. At most one
// active route may exist per invoice type.
type ApprovalRoute struct {
	ID            string
	InvoiceTypeID string
	Name          string
	IsActive      bool
	Stages        []*WorkflowStage
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// WorkflowStage is one ordered step within a route. OrderIndex values within
// a route form a dense 0..N-1 sequence.
type WorkflowStage struct {
	ID             string
	RouteID        string
	OrderIndex     int
	Name           string
	RoleID         string
	PaymentStatus  *string // target payment status applied when this stage completes
	CanEditInvoice bool
	CanAddFiles    bool
	CanEditAmount  bool
}

// PaymentApproval is one run of a route against one payment. At most one
// pending approval exists per payment (partial unique index).
type PaymentApproval struct {
	ID                string
	PaymentID         string
	RouteID           string
	CurrentStageIndex int
	Status            string // pending | approved | rejected
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ApprovalStep records the decision (or pending decision) at one stage of one
// approval instance. Steps are created lazily: only reached stages have rows.
type ApprovalStep struct {
	ID         string
	ApprovalID string
	StageID    string
	StageName  string
	StageIndex int
	Action     string // pending | approved | rejected
	ActorID    *string
	ActedAt    *time.Time
	Comment    *string
	CreatedAt  time.Time
}

// Payment is the slice of the payments table this engine reads and writes.
type Payment struct {
	ID        string
	InvoiceID string
	Amount    int64 // minor units
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Invoice is the slice of the invoices table this engine reads and writes.
type Invoice struct {
	ID             string
	Number         string
	InvoiceTypeID  string
	ProjectID      string
	ContractorName string
	AmountWithTax  int64 // minor units
	Status         string
}

// RoleConfig is the role-level configuration relevant to queue scoping.
type RoleConfig struct {
	ID              string
	Name            string
	OwnProjectsOnly bool
}

// ── Query-layer views ────────────────────────────────────────────────────────

// PaymentInfo is a payment with its invoice relation flattened on, as the
// pending queue and history expose it.
type PaymentInfo struct {
	ID              string
	InvoiceID       string
	Amount          int64
	Status          string
	InvoiceNumber   string
	InvoiceAmount   int64
	InvoiceStatus   string
	InvoiceTypeID   string
	InvoiceTypeName string
	ProjectID       string
	ProjectName     string
	ContractorName  string
}

// StepInfo is a step with its stage and actor resolved for display.
type StepInfo struct {
	ID         string
	StageIndex int
	StageName  string
	Action     string
	ActorID    *string
	ActorName  *string
	ActedAt    *time.Time
	Comment    *string
}

// PendingApproval is one row of a role's work queue.
type PendingApproval struct {
	Approval     *PaymentApproval
	Payment      *PaymentInfo
	CurrentStage *WorkflowStage
	Steps        []*StepInfo
}

// ApprovalHistory is one approval instance with its resolved steps.
type ApprovalHistory struct {
	Approval *PaymentApproval
	Steps    []*StepInfo
}

// ApprovalStatusCheck is the lightweight existence probe used to gate UI actions.
type ApprovalStatusCheck struct {
	InApproval        bool    `json:"isInApproval"`
	ApprovalID        *string `json:"approvalId"`
	CurrentStageIndex int     `json:"current_stage_index"`
}

// AuditEntry is one immutable record in the approval audit log.
type AuditEntry struct {
	ID                  string
	PaymentID           string
	ApprovalID          *string
	StepID              *string
	Action              string // started | approved | rejected | repaired
	PerformedBy         string
	PerformedAt         time.Time
	PaymentStatusBefore *string
	PaymentStatusAfter  *string
	Metadata            map[string]interface{}
}
