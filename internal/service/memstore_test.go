package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ledgerline/be-payment-approvals/internal/errors"
	"github.com/ledgerline/be-payment-approvals/internal/logger"
	"github.com/ledgerline/be-payment-approvals/internal/repository"
)

// memStore is the shared in-memory state behind the per-interface fakes. The
// write sequences mimic the repository transactions: Start and ApplyDecision
// mutate approvals, steps, payments and invoices together, and enforce the
// same uniqueness and pending guards the database constraints do.
type memStore struct {
	routes    map[string]*repository.ApprovalRoute
	approvals map[string]*repository.PaymentApproval
	steps     []*repository.ApprovalStep
	payments  map[string]*repository.Payment
	invoices  map[string]*repository.Invoice
	roles     map[string]*repository.RoleConfig
	projects  map[string][]string
	audit     []*repository.AuditEntry

	queue          []*repository.PendingApproval
	lastRoleID     string
	lastProjectIDs []string

	invoiceUpdates []string

	routeErr    error
	startErr    error
	decisionErr error
	roleErr     error
	projectsErr error
	pendingErr  error
	queueErr    error
	auditErr    error

	seq int
}

func newMemStore() *memStore {
	return &memStore{
		routes:    map[string]*repository.ApprovalRoute{},
		approvals: map[string]*repository.PaymentApproval{},
		payments:  map[string]*repository.Payment{},
		invoices:  map[string]*repository.Invoice{},
		roles:     map[string]*repository.RoleConfig{},
		projects:  map[string][]string{},
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) findStep(id string) *repository.ApprovalStep {
	for _, s := range m.steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// ── RouteStore / RouteAdminStore ─────────────────────────────────────────────

type memRouteStore struct{ m *memStore }

func (r memRouteStore) GetByID(_ context.Context, id string) (*repository.ApprovalRoute, error) {
	if r.m.routeErr != nil {
		return nil, r.m.routeErr
	}
	route, ok := r.m.routes[id]
	if !ok {
		return nil, errors.NotFound("approval route", id)
	}
	return route, nil
}

func (r memRouteStore) GetActiveByInvoiceType(_ context.Context, invoiceTypeID string) (*repository.ApprovalRoute, error) {
	if r.m.routeErr != nil {
		return nil, r.m.routeErr
	}
	for _, route := range r.m.routes {
		if route.InvoiceTypeID == invoiceTypeID && route.IsActive {
			return route, nil
		}
	}
	return nil, nil
}

func (r memRouteStore) Create(_ context.Context, route *repository.ApprovalRoute) error {
	if route.IsActive {
		for _, existing := range r.m.routes {
			if existing.InvoiceTypeID == route.InvoiceTypeID && existing.IsActive {
				return errors.Conflict("an active approval route already exists for this invoice type")
			}
		}
	}
	route.ID = r.m.nextID("route")
	for _, stage := range route.Stages {
		stage.ID = r.m.nextID("stage")
		stage.RouteID = route.ID
	}
	r.m.routes[route.ID] = route
	return nil
}

func (r memRouteStore) Update(_ context.Context, route *repository.ApprovalRoute) error {
	if _, ok := r.m.routes[route.ID]; !ok {
		return errors.NotFound("approval route", route.ID)
	}
	for _, stage := range route.Stages {
		stage.ID = r.m.nextID("stage")
		stage.RouteID = route.ID
	}
	r.m.routes[route.ID] = route
	return nil
}

func (r memRouteStore) List(_ context.Context, activeOnly bool) ([]*repository.ApprovalRoute, error) {
	var out []*repository.ApprovalRoute
	for _, route := range r.m.routes {
		if activeOnly && !route.IsActive {
			continue
		}
		out = append(out, route)
	}
	return out, nil
}

func (r memRouteStore) SetActive(_ context.Context, id string, active bool) error {
	route, ok := r.m.routes[id]
	if !ok {
		return errors.NotFound("approval route", id)
	}
	route.IsActive = active
	return nil
}

// ── ApprovalStore ────────────────────────────────────────────────────────────

type memApprovalStore struct{ m *memStore }

func (a memApprovalStore) Start(_ context.Context, approval *repository.PaymentApproval, firstStep *repository.ApprovalStep, invoiceID string) error {
	if a.m.startErr != nil {
		return a.m.startErr
	}
	for _, existing := range a.m.approvals {
		if existing.PaymentID == approval.PaymentID && existing.Status == repository.ApprovalStatusPending {
			return errors.Conflict("an approval process is already in progress for this payment")
		}
	}

	approval.ID = a.m.nextID("ap")
	approval.CreatedAt = time.Now()
	a.m.approvals[approval.ID] = approval

	firstStep.ID = a.m.nextID("step")
	firstStep.ApprovalID = approval.ID
	a.m.steps = append(a.m.steps, firstStep)

	if p, ok := a.m.payments[approval.PaymentID]; ok {
		p.Status = repository.PaymentStatusPending
	}
	if inv, ok := a.m.invoices[invoiceID]; ok && inv.Status != repository.InvoiceStatusCancelled {
		inv.Status = repository.InvoiceStatusPending
	}
	return nil
}

func (a memApprovalStore) ApplyDecision(_ context.Context, u repository.DecisionUpdate) error {
	if a.m.decisionErr != nil {
		return a.m.decisionErr
	}

	step := a.m.findStep(u.StepID)
	if step == nil || step.Action != repository.StepActionPending {
		return errors.Conflict("approval step has already been processed")
	}
	now := time.Now()
	step.Action = u.Action
	step.ActorID = &u.ActorID
	step.ActedAt = &now
	step.Comment = u.Comment

	approval, ok := a.m.approvals[u.ApprovalID]
	if !ok || approval.Status != repository.ApprovalStatusPending {
		return errors.Conflict("approval is no longer pending")
	}
	approval.Status = u.ApprovalStatus
	if u.NextStep != nil {
		approval.CurrentStageIndex = u.NextStageIndex
		u.NextStep.ID = a.m.nextID("step")
		u.NextStep.ApprovalID = u.ApprovalID
		a.m.steps = append(a.m.steps, u.NextStep)
	}

	if u.PaymentStatus != nil {
		if p, ok := a.m.payments[u.PaymentID]; ok {
			p.Status = *u.PaymentStatus
		}
	}
	return nil
}

func (a memApprovalStore) GetByID(_ context.Context, id string) (*repository.PaymentApproval, error) {
	approval, ok := a.m.approvals[id]
	if !ok {
		return nil, errors.NotFound("approval", id)
	}
	return approval, nil
}

func (a memApprovalStore) GetPendingByPaymentID(_ context.Context, paymentID string) (*repository.PaymentApproval, error) {
	if a.m.pendingErr != nil {
		return nil, a.m.pendingErr
	}
	for _, appr := range a.m.approvals {
		if appr.PaymentID == paymentID && appr.Status == repository.ApprovalStatusPending {
			return appr, nil
		}
	}
	return nil, nil
}

func (a memApprovalStore) ListByPaymentID(_ context.Context, paymentID string) ([]*repository.PaymentApproval, error) {
	var out []*repository.PaymentApproval
	for _, appr := range a.m.approvals {
		if appr.PaymentID == paymentID {
			out = append(out, appr)
		}
	}
	return out, nil
}

func (a memApprovalStore) LoadPendingForRole(_ context.Context, roleID string, projectIDs []string) ([]*repository.PendingApproval, error) {
	a.m.lastRoleID = roleID
	a.m.lastProjectIDs = projectIDs
	if a.m.queueErr != nil {
		return nil, a.m.queueErr
	}
	return a.m.queue, nil
}

func (a memApprovalStore) FindOrphaned(_ context.Context) ([]*repository.PaymentApproval, error) {
	var out []*repository.PaymentApproval
	for _, appr := range a.m.approvals {
		if appr.Status != repository.ApprovalStatusPending {
			continue
		}
		found := false
		for _, s := range a.m.steps {
			if s.ApprovalID == appr.ID && s.StageIndex == appr.CurrentStageIndex && s.Action == repository.StepActionPending {
				found = true
				break
			}
		}
		if !found {
			out = append(out, appr)
		}
	}
	return out, nil
}

func (a memApprovalStore) CreateStep(_ context.Context, step *repository.ApprovalStep) error {
	step.ID = a.m.nextID("step")
	a.m.steps = append(a.m.steps, step)
	return nil
}

// ── StepStore ────────────────────────────────────────────────────────────────

type memStepStore struct{ m *memStore }

func (s memStepStore) GetCurrentStep(_ context.Context, approvalID string, stageIndex int) (*repository.ApprovalStep, error) {
	for _, step := range s.m.steps {
		if step.ApprovalID == approvalID && step.StageIndex == stageIndex {
			return step, nil
		}
	}
	return nil, nil
}

func (s memStepStore) GetInfosByApprovalIDs(_ context.Context, approvalIDs []string) (map[string][]*repository.StepInfo, error) {
	out := make(map[string][]*repository.StepInfo, len(approvalIDs))
	for _, id := range approvalIDs {
		for _, step := range s.m.steps {
			if step.ApprovalID != id {
				continue
			}
			out[id] = append(out[id], &repository.StepInfo{
				ID:         step.ID,
				StageIndex: step.StageIndex,
				StageName:  step.StageName,
				Action:     step.Action,
				ActorID:    step.ActorID,
				ActedAt:    step.ActedAt,
				Comment:    step.Comment,
			})
		}
	}
	return out, nil
}

// ── PaymentStore / InvoiceStore ──────────────────────────────────────────────

type memPaymentStore struct{ m *memStore }

func (p memPaymentStore) GetByID(_ context.Context, id string) (*repository.Payment, error) {
	payment, ok := p.m.payments[id]
	if !ok {
		return nil, errors.NotFound("payment", id)
	}
	return payment, nil
}

func (p memPaymentStore) ListByInvoiceID(_ context.Context, invoiceID string) ([]*repository.Payment, error) {
	var out []*repository.Payment
	for _, payment := range p.m.payments {
		if payment.InvoiceID == invoiceID {
			out = append(out, payment)
		}
	}
	return out, nil
}

type memInvoiceStore struct{ m *memStore }

func (i memInvoiceStore) GetByID(_ context.Context, id string) (*repository.Invoice, error) {
	inv, ok := i.m.invoices[id]
	if !ok {
		return nil, errors.NotFound("invoice", id)
	}
	return inv, nil
}

func (i memInvoiceStore) UpdateStatus(_ context.Context, id, status string) error {
	inv, ok := i.m.invoices[id]
	if !ok {
		return errors.NotFound("invoice", id)
	}
	inv.Status = status
	i.m.invoiceUpdates = append(i.m.invoiceUpdates, id+":"+status)
	return nil
}

// ── UserStore ────────────────────────────────────────────────────────────────

type memUserStore struct{ m *memStore }

func (u memUserStore) GetRole(_ context.Context, roleID string) (*repository.RoleConfig, error) {
	if u.m.roleErr != nil {
		return nil, u.m.roleErr
	}
	role, ok := u.m.roles[roleID]
	if !ok {
		return nil, errors.NotFound("role", roleID)
	}
	return role, nil
}

func (u memUserStore) GetUserProjectIDs(_ context.Context, userID string) ([]string, error) {
	if u.m.projectsErr != nil {
		return nil, u.m.projectsErr
	}
	ids := u.m.projects[userID]
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// ── AuditStore ───────────────────────────────────────────────────────────────

type memAuditStore struct{ m *memStore }

func (a memAuditStore) Append(_ context.Context, entry *repository.AuditEntry) error {
	if a.m.auditErr != nil {
		return a.m.auditErr
	}
	entry.ID = a.m.nextID("audit")
	entry.PerformedAt = time.Now()
	a.m.audit = append(a.m.audit, entry)
	return nil
}

func (a memAuditStore) GetByPaymentID(_ context.Context, paymentID string) ([]*repository.AuditEntry, error) {
	var out []*repository.AuditEntry
	for _, e := range a.m.audit {
		if e.PaymentID == paymentID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ── Fake collaborators ───────────────────────────────────────────────────────

type publishedEvent struct {
	eventType  string
	paymentID  string
	approvalID string
	actorID    string
}

type fakeNotifier struct {
	events []publishedEvent
}

func (f *fakeNotifier) PublishApprovalEvent(_ context.Context, eventType, paymentID, approvalID, actorID string, _ map[string]interface{}) {
	f.events = append(f.events, publishedEvent{eventType, paymentID, approvalID, actorID})
}

type fakeRouteCache struct {
	entries     map[string]*repository.ApprovalRoute
	gets        int
	sets        int
	invalidated []string
}

func newFakeRouteCache() *fakeRouteCache {
	return &fakeRouteCache{entries: map[string]*repository.ApprovalRoute{}}
}

func (f *fakeRouteCache) Get(_ context.Context, invoiceTypeID string) (*repository.ApprovalRoute, bool) {
	f.gets++
	route, ok := f.entries[invoiceTypeID]
	return route, ok
}

func (f *fakeRouteCache) Set(_ context.Context, route *repository.ApprovalRoute) {
	f.sets++
	f.entries[route.InvoiceTypeID] = route
}

func (f *fakeRouteCache) Invalidate(_ context.Context, invoiceTypeID string) {
	f.invalidated = append(f.invalidated, invoiceTypeID)
	delete(f.entries, invoiceTypeID)
}

// ── Test harness ─────────────────────────────────────────────────────────────

func testLogger() *logger.Logger {
	return &logger.Logger{Logger: zerolog.Nop()}
}

func newTestService(store *memStore, notifier Notifier, cache RouteCache) *ApprovalService {
	return NewApprovalService(
		memRouteStore{store},
		memApprovalStore{store},
		memStepStore{store},
		memPaymentStore{store},
		memInvoiceStore{store},
		memUserStore{store},
		memAuditStore{store},
		notifier,
		cache,
		testLogger(),
	)
}

func strPtr(s string) *string { return &s }

// seedRoute stores an active route, assigning dense stage indices.
func seedRoute(store *memStore, invoiceTypeID string, stages ...*repository.WorkflowStage) *repository.ApprovalRoute {
	route := &repository.ApprovalRoute{
		ID:            store.nextID("route"),
		InvoiceTypeID: invoiceTypeID,
		Name:          "Standard approval",
		IsActive:      true,
		Stages:        stages,
	}
	for i, stage := range stages {
		stage.ID = store.nextID("stage")
		stage.RouteID = route.ID
		stage.OrderIndex = i
	}
	store.routes[route.ID] = route
	return route
}

func seedInvoiceWithPayment(store *memStore, invoiceID, paymentID string, amount int64) (*repository.Invoice, *repository.Payment) {
	inv := &repository.Invoice{
		ID:            invoiceID,
		Number:        "INV-001",
		InvoiceTypeID: "type-1",
		ProjectID:     "proj-1",
		AmountWithTax: amount,
		Status:        repository.InvoiceStatusDraft,
	}
	store.invoices[invoiceID] = inv

	p := &repository.Payment{
		ID:        paymentID,
		InvoiceID: invoiceID,
		Amount:    amount,
		Status:    repository.PaymentStatusCreated,
	}
	store.payments[paymentID] = p
	return inv, p
}
