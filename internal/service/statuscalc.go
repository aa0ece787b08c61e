package service

import "github.com/ledgerline/be-payment-approvals/internal/repository"

// StatusEpsilon is the tolerance, in currency minor units, used when
// comparing the paid total against the invoice amount.
const StatusEpsilon = 10

// PaymentAmount is the slice of a payment the status calculator looks at.
type PaymentAmount struct {
	Status string
	Amount int64 // minor units
}

// CalculateInvoiceStatus derives an invoice status from its total (with tax),
// its current status and the full set of payments linked to it. Pure and
// deterministic: calling it twice with the same snapshot yields the same
// result.
//
// Decision order, first match wins:
//  1. cancelled invoices stay cancelled;
//  2. paid total within epsilon of the invoice amount, or over it → paid;
//  3. paid total above epsilon but short of the amount → partially paid;
//  4. any pending or approved payment → pending;
//  5. otherwise draft.
func CalculateInvoiceStatus(amountWithTax int64, currentStatus string, payments []PaymentAmount) string {
	if currentStatus == repository.InvoiceStatusCancelled {
		return repository.InvoiceStatusCancelled
	}

	var paidTotal int64
	hasActive := false
	for _, p := range payments {
		switch p.Status {
		case repository.PaymentStatusPaid:
			paidTotal += p.Amount
		case repository.PaymentStatusPending, repository.PaymentStatusApproved:
			hasActive = true
		}
	}

	// Within epsilon of the full amount, or overpaid.
	if paidTotal >= amountWithTax-StatusEpsilon {
		return repository.InvoiceStatusPaid
	}

	if paidTotal > StatusEpsilon {
		return repository.InvoiceStatusPartiallyPaid
	}

	if hasActive {
		return repository.InvoiceStatusPending
	}

	return repository.InvoiceStatusDraft
}

// ShouldUpdateInvoiceStatus reports whether the computed status should be
// persisted. Cancelled invoices are frozen; otherwise only actual changes are
// written.
func ShouldUpdateInvoiceStatus(current, computed string) bool {
	if current == repository.InvoiceStatusCancelled {
		return false
	}
	return current != computed
}
