package service

import (
	"context"
	"testing"

	"github.com/ledgerline/be-payment-approvals/internal/errors"
	"github.com/ledgerline/be-payment-approvals/internal/repository"
)

func queueRow(approvalID, paymentID string) *repository.PendingApproval {
	return &repository.PendingApproval{
		Approval: &repository.PaymentApproval{
			ID:        approvalID,
			PaymentID: paymentID,
			Status:    repository.ApprovalStatusPending,
		},
		Payment: &repository.PaymentInfo{ID: paymentID},
	}
}

func TestLoadApprovalsForRoleUnscoped(t *testing.T) {
	store := newMemStore()
	store.roles["role-finance"] = &repository.RoleConfig{ID: "role-finance", OwnProjectsOnly: false}
	store.queue = []*repository.PendingApproval{queueRow("ap-1", "pay-1")}
	store.steps = []*repository.ApprovalStep{
		{ID: "step-1", ApprovalID: "ap-1", StageIndex: 0, StageName: "Finance review", Action: repository.StepActionPending},
	}
	svc := newTestService(store, nil, nil)

	items := svc.LoadApprovalsForRole(context.Background(), "role-finance", "user-1")
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if store.lastRoleID != "role-finance" {
		t.Fatalf("queried role = %q", store.lastRoleID)
	}
	// Unscoped roles see every project.
	if store.lastProjectIDs != nil {
		t.Fatalf("project scope = %v, want none", store.lastProjectIDs)
	}
	if len(items[0].Steps) != 1 || items[0].Steps[0].StageName != "Finance review" {
		t.Fatalf("steps = %+v, want the resolved step attached", items[0].Steps)
	}
}

func TestLoadApprovalsForRoleScopedToUserProjects(t *testing.T) {
	store := newMemStore()
	store.roles["role-pm"] = &repository.RoleConfig{ID: "role-pm", OwnProjectsOnly: true}
	store.projects["user-1"] = []string{"proj-1", "proj-2"}
	store.queue = []*repository.PendingApproval{queueRow("ap-1", "pay-1")}
	svc := newTestService(store, nil, nil)

	items := svc.LoadApprovalsForRole(context.Background(), "role-pm", "user-1")
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if len(store.lastProjectIDs) != 2 {
		t.Fatalf("project scope = %v, want the user's two projects", store.lastProjectIDs)
	}
}

func TestLoadApprovalsForRoleScopedUserWithoutProjectsSeesNothing(t *testing.T) {
	store := newMemStore()
	store.roles["role-pm"] = &repository.RoleConfig{ID: "role-pm", OwnProjectsOnly: true}
	store.queue = []*repository.PendingApproval{queueRow("ap-1", "pay-1")}
	svc := newTestService(store, nil, nil)

	items := svc.LoadApprovalsForRole(context.Background(), "role-pm", "user-without-projects")
	if len(items) != 0 {
		t.Fatalf("got %d items, want 0", len(items))
	}
	// The queue query must not even run for a scoped user with no projects.
	if store.lastRoleID != "" {
		t.Fatal("queue was queried for a user with zero projects")
	}
}

func TestLoadApprovalsForRoleDegradesToEmpty(t *testing.T) {
	store := newMemStore()
	store.roles["role-finance"] = &repository.RoleConfig{ID: "role-finance"}
	store.queueErr = errors.New(errors.ErrCodeInternal, "db down")
	svc := newTestService(store, nil, nil)

	items := svc.LoadApprovalsForRole(context.Background(), "role-finance", "user-1")
	if items == nil || len(items) != 0 {
		t.Fatalf("items = %v, want empty non-nil slice", items)
	}

	// Unknown role degrades the same way.
	items = svc.LoadApprovalsForRole(context.Background(), "no-such-role", "user-1")
	if items == nil || len(items) != 0 {
		t.Fatalf("items = %v, want empty non-nil slice", items)
	}
}

func TestLoadApprovalHistory(t *testing.T) {
	store := newMemStore()
	store.approvals["ap-1"] = &repository.PaymentApproval{ID: "ap-1", PaymentID: "pay-1", Status: repository.ApprovalStatusRejected}
	store.approvals["ap-2"] = &repository.PaymentApproval{ID: "ap-2", PaymentID: "pay-1", Status: repository.ApprovalStatusPending}
	store.approvals["ap-other"] = &repository.PaymentApproval{ID: "ap-other", PaymentID: "pay-9", Status: repository.ApprovalStatusPending}
	store.steps = []*repository.ApprovalStep{
		{ID: "step-1", ApprovalID: "ap-1", StageIndex: 0, Action: repository.StepActionRejected},
		{ID: "step-2", ApprovalID: "ap-2", StageIndex: 0, Action: repository.StepActionPending},
	}
	svc := newTestService(store, nil, nil)

	history := svc.LoadApprovalHistory(context.Background(), "pay-1")
	if len(history) != 2 {
		t.Fatalf("got %d history entries, want 2", len(history))
	}
	for _, h := range history {
		if len(h.Steps) != 1 {
			t.Fatalf("entry %s has %d steps, want 1", h.Approval.ID, len(h.Steps))
		}
	}
}

func TestCheckPaymentApprovalStatus(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil, nil)

	check := svc.CheckPaymentApprovalStatus(context.Background(), "pay-1")
	if check.InApproval || check.ApprovalID != nil {
		t.Fatalf("check = %+v, want the zero value", check)
	}

	store.approvals["ap-1"] = &repository.PaymentApproval{
		ID:                "ap-1",
		PaymentID:         "pay-1",
		Status:            repository.ApprovalStatusPending,
		CurrentStageIndex: 1,
	}
	check = svc.CheckPaymentApprovalStatus(context.Background(), "pay-1")
	if !check.InApproval || check.ApprovalID == nil || *check.ApprovalID != "ap-1" || check.CurrentStageIndex != 1 {
		t.Fatalf("check = %+v, want pending ap-1 at stage 1", check)
	}

	// Errors degrade to the safe default instead of blocking the UI.
	store.pendingErr = errors.New(errors.ErrCodeInternal, "db down")
	check = svc.CheckPaymentApprovalStatus(context.Background(), "pay-1")
	if check.InApproval {
		t.Fatalf("check = %+v, want the zero value on error", check)
	}
}

func TestCheckApprovalRouteUsesCache(t *testing.T) {
	store := newMemStore()
	route := twoStageRoute(store)
	cache := newFakeRouteCache()
	svc := newTestService(store, nil, cache)

	got := svc.CheckApprovalRoute(context.Background(), "type-1")
	if got == nil || got.ID != route.ID {
		t.Fatalf("route = %+v, want %s", got, route.ID)
	}
	if cache.sets != 1 {
		t.Fatalf("cache sets = %d, want 1", cache.sets)
	}

	// Second lookup is served from the cache even if the store breaks.
	store.routeErr = errors.New(errors.ErrCodeInternal, "db down")
	got = svc.CheckApprovalRoute(context.Background(), "type-1")
	if got == nil || got.ID != route.ID {
		t.Fatalf("cached route = %+v, want %s", got, route.ID)
	}
}

func TestCheckApprovalRouteMissingOrFailing(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil, nil)

	if got := svc.CheckApprovalRoute(context.Background(), "type-without-route"); got != nil {
		t.Fatalf("route = %+v, want nil when none is configured", got)
	}

	store.routeErr = errors.New(errors.ErrCodeInternal, "db down")
	if got := svc.CheckApprovalRoute(context.Background(), "type-1"); got != nil {
		t.Fatalf("route = %+v, want nil on error", got)
	}
}

func TestLoadAuditTrail(t *testing.T) {
	store := newMemStore()
	store.audit = []*repository.AuditEntry{
		{ID: "a-1", PaymentID: "pay-1", Action: "started", PerformedBy: "user-1"},
		{ID: "a-2", PaymentID: "pay-1", Action: "approved", PerformedBy: "manager-1"},
		{ID: "a-3", PaymentID: "pay-9", Action: "started", PerformedBy: "user-2"},
	}
	svc := newTestService(store, nil, nil)

	entries := svc.LoadAuditTrail(context.Background(), "pay-1")
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	if entries := svc.LoadAuditTrail(context.Background(), "pay-unknown"); entries == nil || len(entries) != 0 {
		t.Fatalf("entries = %v, want empty non-nil slice", entries)
	}
}
