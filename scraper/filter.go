package scraper

import (
	"strings"

	"philgeps-scraper/models"
)

// ApplyFilters keeps the records matching every active dimension of the
// spec. An empty spec passes everything through untouched.
func ApplyFilters(records []models.BidRecord, spec models.FilterSpec) []models.BidRecord {
	if spec.Empty() {
		return records
	}
	filtered := make([]models.BidRecord, 0, len(records))
	for _, r := range records {
		if matchesFilter(r, spec) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func matchesFilter(r models.BidRecord, spec models.FilterSpec) bool {
	// The date window constrains when the bid closes, not when it was
	// published. Records without a closing date never match an active bound.
	if !spec.DateFrom.IsZero() {
		if r.ClosingDate.IsZero() || r.ClosingDate.Before(spec.DateFrom) {
			return false
		}
	}
	if !spec.DateTo.IsZero() {
		if r.ClosingDate.IsZero() || r.ClosingDate.After(spec.DateTo) {
			return false
		}
	}

	if len(spec.Classifications) > 0 {
		matched := false
		for _, want := range spec.Classifications {
			if strings.EqualFold(strings.TrimSpace(want), r.Classification) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	// Budget bounds require a budget; records without one never match.
	if spec.BudgetMin != nil {
		if r.ApprovedBudget == nil || *r.ApprovedBudget < *spec.BudgetMin {
			return false
		}
	}
	if spec.BudgetMax != nil {
		if r.ApprovedBudget == nil || *r.ApprovedBudget > *spec.BudgetMax {
			return false
		}
	}

	if len(spec.Keywords) > 0 {
		haystack := strings.ToLower(r.Title)
		matched := false
		for _, kw := range spec.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(haystack, kw) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	return true
}
