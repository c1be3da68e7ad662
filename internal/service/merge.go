package service

import (
	"github.com/studentlink/portalsync/internal/models"
)

// installmentKey identifies an installment row across scrapes.
type installmentKey struct {
	description string
	dueDate     string
}

// MergeFinancials reconciles a freshly scraped snapshot with the previously
// persisted one. The portal page is a rolling window, not a full history:
// mutable fields (totals, installment amounts) take the newest scraped value,
// while payment and adjustment history is additive and never dropped.
func MergeFinancials(prev, scraped *models.FinancialSnapshot) *models.FinancialSnapshot {
	if scraped == nil {
		return prev
	}
	if prev == nil {
		return scraped
	}

	merged := &models.FinancialSnapshot{
		Total:    scraped.Total,
		Balance:  scraped.Balance,
		DueToday: scraped.DueToday,
	}

	// Installments: scraped rows in portal order, then persisted rows whose
	// (description, dueDate) key the portal no longer emits. A key present in
	// both yields exactly one row carrying the scraped amounts.
	seen := make(map[installmentKey]bool, len(scraped.Installments))
	for _, inst := range scraped.Installments {
		seen[installmentKey{inst.Description, inst.DueDate}] = true
		merged.Installments = append(merged.Installments, inst)
	}
	for _, inst := range prev.Installments {
		if !seen[installmentKey{inst.Description, inst.DueDate}] {
			merged.Installments = append(merged.Installments, inst)
		}
	}

	merged.Payments = append(merged.Payments, prev.Payments...)
	for _, p := range scraped.Payments {
		if !containsPayment(merged.Payments, p) {
			merged.Payments = append(merged.Payments, p)
		}
	}

	merged.Adjustments = append(merged.Adjustments, prev.Adjustments...)
	for _, a := range scraped.Adjustments {
		if !containsAdjustment(merged.Adjustments, a) {
			merged.Adjustments = append(merged.Adjustments, a)
		}
	}

	return merged
}

// containsPayment checks content equality, not key equality: two payments on
// the same day with the same amount but different receipts are both kept.
func containsPayment(list []models.PaymentRecord, p models.PaymentRecord) bool {
	for _, have := range list {
		if have == p {
			return true
		}
	}
	return false
}

func containsAdjustment(list []models.AdjustmentRecord, a models.AdjustmentRecord) bool {
	for _, have := range list {
		if have == a {
			return true
		}
	}
	return false
}
