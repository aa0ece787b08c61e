package service

import (
	"testing"

	"github.com/ledgerline/be-payment-approvals/internal/repository"
)

func TestCalculateInvoiceStatus(t *testing.T) {
	tests := []struct {
		name     string
		amount   int64
		current  string
		payments []PaymentAmount
		want     string
	}{
		{
			name:    "no payments stays draft",
			amount:  10000,
			current: repository.InvoiceStatusDraft,
			want:    repository.InvoiceStatusDraft,
		},
		{
			name:    "cancelled is never overridden",
			amount:  10000,
			current: repository.InvoiceStatusCancelled,
			payments: []PaymentAmount{
				{Status: repository.PaymentStatusPaid, Amount: 10000},
			},
			want: repository.InvoiceStatusCancelled,
		},
		{
			name:    "exact paid total",
			amount:  10000,
			current: repository.InvoiceStatusPending,
			payments: []PaymentAmount{
				{Status: repository.PaymentStatusPaid, Amount: 10000},
			},
			want: repository.InvoiceStatusPaid,
		},
		{
			name:    "paid total within epsilon counts as paid",
			amount:  10000,
			current: repository.InvoiceStatusPartiallyPaid,
			payments: []PaymentAmount{
				{Status: repository.PaymentStatusPaid, Amount: 9995},
			},
			want: repository.InvoiceStatusPaid,
		},
		{
			name:    "paid total just under epsilon boundary is partial",
			amount:  10000,
			current: repository.InvoiceStatusPending,
			payments: []PaymentAmount{
				{Status: repository.PaymentStatusPaid, Amount: 9985},
			},
			want: repository.InvoiceStatusPartiallyPaid,
		},
		{
			name:    "overpayment is still paid",
			amount:  10000,
			current: repository.InvoiceStatusPending,
			payments: []PaymentAmount{
				{Status: repository.PaymentStatusPaid, Amount: 10500},
			},
			want: repository.InvoiceStatusPaid,
		},
		{
			name:    "paid sums across multiple payments",
			amount:  10000,
			current: repository.InvoiceStatusPending,
			payments: []PaymentAmount{
				{Status: repository.PaymentStatusPaid, Amount: 4000},
				{Status: repository.PaymentStatusPaid, Amount: 6000},
			},
			want: repository.InvoiceStatusPaid,
		},
		{
			name:    "partial payment beats pending payments",
			amount:  10000,
			current: repository.InvoiceStatusDraft,
			payments: []PaymentAmount{
				{Status: repository.PaymentStatusPaid, Amount: 3000},
				{Status: repository.PaymentStatusPending, Amount: 7000},
			},
			want: repository.InvoiceStatusPartiallyPaid,
		},
		{
			name:    "pending payment moves draft to pending",
			amount:  10000,
			current: repository.InvoiceStatusDraft,
			payments: []PaymentAmount{
				{Status: repository.PaymentStatusPending, Amount: 10000},
			},
			want: repository.InvoiceStatusPending,
		},
		{
			name:    "approved payment also counts as active",
			amount:  10000,
			current: repository.InvoiceStatusDraft,
			payments: []PaymentAmount{
				{Status: repository.PaymentStatusApproved, Amount: 10000},
			},
			want: repository.InvoiceStatusPending,
		},
		{
			name:    "rejected and created payments contribute nothing",
			amount:  10000,
			current: repository.InvoiceStatusPending,
			payments: []PaymentAmount{
				{Status: repository.PaymentStatusRejected, Amount: 10000},
				{Status: repository.PaymentStatusCreated, Amount: 5000},
			},
			want: repository.InvoiceStatusDraft,
		},
		{
			name:    "tiny paid amount below epsilon is ignored",
			amount:  10000,
			current: repository.InvoiceStatusDraft,
			payments: []PaymentAmount{
				{Status: repository.PaymentStatusPaid, Amount: 10},
			},
			want: repository.InvoiceStatusDraft,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateInvoiceStatus(tt.amount, tt.current, tt.payments)
			if got != tt.want {
				t.Fatalf("CalculateInvoiceStatus() = %q, want %q", got, tt.want)
			}

			// Pure function: the same snapshot always yields the same result.
			again := CalculateInvoiceStatus(tt.amount, tt.current, tt.payments)
			if again != got {
				t.Fatalf("CalculateInvoiceStatus() not deterministic: %q then %q", got, again)
			}
		})
	}
}

func TestShouldUpdateInvoiceStatus(t *testing.T) {
	tests := []struct {
		name     string
		current  string
		computed string
		want     bool
	}{
		{"change is persisted", repository.InvoiceStatusDraft, repository.InvoiceStatusPending, true},
		{"no change is skipped", repository.InvoiceStatusPending, repository.InvoiceStatusPending, false},
		{"cancelled is frozen", repository.InvoiceStatusCancelled, repository.InvoiceStatusPaid, false},
		{"downgrade is still a change", repository.InvoiceStatusPaid, repository.InvoiceStatusPartiallyPaid, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldUpdateInvoiceStatus(tt.current, tt.computed); got != tt.want {
				t.Fatalf("ShouldUpdateInvoiceStatus(%q, %q) = %v, want %v", tt.current, tt.computed, got, tt.want)
			}
		})
	}
}
