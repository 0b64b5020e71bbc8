// Package models defines data structures for the scraper.
package models

import "time"

// BidSummary is one row of the bid-listing table (phase 1). The approved
// budget is never present here; it only exists on detail pages.
type BidSummary struct {
	ReferenceNumber string    `json:"reference_number"`
	Title           string    `json:"title,omitempty"`
	ProcurementMode string    `json:"procurement_mode,omitempty"`
	Classification  string    `json:"classification,omitempty"`
	AgencyName      string    `json:"agency_name,omitempty"`
	PublishDate     time.Time `json:"publish_date,omitempty"`
	ClosingDate     time.Time `json:"closing_date,omitempty"`
	Status          string    `json:"status,omitempty"`
	DetailURL       string    `json:"detail_url,omitempty"`
	SourceURL       string    `json:"source_url"`
	ScrapedAt       time.Time `json:"scraped_at"`
}

// BidDetail holds the extended field set from a bid's detail page (phase 2).
type BidDetail struct {
	ReferenceNumber   string     `json:"reference_number"`
	ApprovedBudget    *float64   `json:"approved_budget,omitempty"`
	DeliveryPeriod    string     `json:"delivery_period,omitempty"`
	DeliveryLocation  string     `json:"delivery_location,omitempty"`
	ContactPerson     string     `json:"contact_person,omitempty"`
	BusinessCategory  string     `json:"business_category,omitempty"`
	FundingSource     string     `json:"funding_source,omitempty"`
	ControlNumber     string     `json:"control_number,omitempty"`
	LotType           string     `json:"lot_type,omitempty"`
	BidValidityPeriod string     `json:"bid_validity_period,omitempty"`
	ClientAgency      string     `json:"client_agency,omitempty"`
	Description       string     `json:"description,omitempty"`
	DateCreated       time.Time  `json:"date_created,omitempty"`
	DateLastUpdated   time.Time  `json:"date_last_updated,omitempty"`
	LineItems         []LineItem `json:"line_items,omitempty"`
}

// LineItem is one row of a bid's itemized table. Its lifecycle is tied to
// the parent record: persistence always replaces the full set.
type LineItem struct {
	ItemNo         string `json:"item_no,omitempty"`
	UNSPSC         string `json:"unspsc,omitempty"`
	LotName        string `json:"lot_name,omitempty"`
	LotDescription string `json:"lot_description,omitempty"`
	Quantity       string `json:"quantity,omitempty"`
	UnitOfMeasure  string `json:"unit_of_measure,omitempty"`
}

// BidRecord is the merged, persisted entity: summary fields plus detail
// fields, with detail values winning on overlap.
type BidRecord struct {
	BidSummary
	ApprovedBudget    *float64   `json:"approved_budget,omitempty"`
	DeliveryPeriod    string     `json:"delivery_period,omitempty"`
	DeliveryLocation  string     `json:"delivery_location,omitempty"`
	ContactPerson     string     `json:"contact_person,omitempty"`
	BusinessCategory  string     `json:"business_category,omitempty"`
	FundingSource     string     `json:"funding_source,omitempty"`
	ControlNumber     string     `json:"control_number,omitempty"`
	LotType           string     `json:"lot_type,omitempty"`
	BidValidityPeriod string     `json:"bid_validity_period,omitempty"`
	ClientAgency      string     `json:"client_agency,omitempty"`
	Description       string     `json:"description,omitempty"`
	DateCreated       time.Time  `json:"date_created,omitempty"`
	DateLastUpdated   time.Time  `json:"date_last_updated,omitempty"`
	LineItems         []LineItem `json:"line_items,omitempty"`
	HasDetail         bool       `json:"has_detail"`
}

// NewBidRecord promotes a summary into a record carrying no detail fields.
func NewBidRecord(s BidSummary) BidRecord {
	return BidRecord{BidSummary: s}
}

// MergeDetail copies detail fields into the record. Detail values override
// summary values when both are present; empty detail fields leave the
// summary intact.
func (r *BidRecord) MergeDetail(d BidDetail) {
	r.HasDetail = true
	r.ApprovedBudget = d.ApprovedBudget
	if d.DeliveryPeriod != "" {
		r.DeliveryPeriod = d.DeliveryPeriod
	}
	if d.DeliveryLocation != "" {
		r.DeliveryLocation = d.DeliveryLocation
	}
	if d.ContactPerson != "" {
		r.ContactPerson = d.ContactPerson
	}
	if d.BusinessCategory != "" {
		r.BusinessCategory = d.BusinessCategory
	}
	if d.FundingSource != "" {
		r.FundingSource = d.FundingSource
	}
	if d.ControlNumber != "" {
		r.ControlNumber = d.ControlNumber
	}
	if d.LotType != "" {
		r.LotType = d.LotType
	}
	if d.BidValidityPeriod != "" {
		r.BidValidityPeriod = d.BidValidityPeriod
	}
	if d.ClientAgency != "" {
		r.ClientAgency = d.ClientAgency
	}
	if d.Description != "" {
		r.Description = d.Description
	}
	r.DateCreated = d.DateCreated
	r.DateLastUpdated = d.DateLastUpdated
	if !d.DateCreated.IsZero() && r.PublishDate.IsZero() {
		r.PublishDate = d.DateCreated
	}
	r.LineItems = d.LineItems
}

// RecordOutcome classifies what persistence did with one record.
type RecordOutcome string

const (
	OutcomeNew     RecordOutcome = "new"
	OutcomeUpdated RecordOutcome = "updated"
	OutcomeSkipped RecordOutcome = "skipped"
	OutcomeFailed  RecordOutcome = "failed"
)

// RecordStatus pairs a persisted bid with its outcome, for reporting.
type RecordStatus struct {
	ReferenceNumber string        `json:"reference_number"`
	Title           string        `json:"title,omitempty"`
	Classification  string        `json:"classification,omitempty"`
	ApprovedBudget  *float64      `json:"approved_budget,omitempty"`
	ClosingDate     time.Time     `json:"closing_date,omitempty"`
	AgencyName      string        `json:"agency_name,omitempty"`
	Outcome         RecordOutcome `json:"status"`
}

// ErrorSummary aggregates occurrences of one error category+message.
type ErrorSummary struct {
	Type            string    `json:"error_type"`
	Message         string    `json:"error_message"`
	Count           int       `json:"count"`
	FirstOccurrence time.Time `json:"first_occurrence"`
	LastOccurrence  time.Time `json:"last_occurrence"`
}

// FilterSpec declares the optional predicate filters applied between the
// listing and persistence phases. All active dimensions are conjunctive.
type FilterSpec struct {
	DateFrom        time.Time `json:"date_from,omitempty" yaml:"dateFrom"`
	DateTo          time.Time `json:"date_to,omitempty" yaml:"dateTo"`
	Classifications []string  `json:"classifications,omitempty" yaml:"classifications"`
	BudgetMin       *float64  `json:"budget_min,omitempty" yaml:"budgetMin"`
	BudgetMax       *float64  `json:"budget_max,omitempty" yaml:"budgetMax"`
	Keywords        []string  `json:"keywords,omitempty" yaml:"keywords"`
}

// Empty reports whether no dimension is constrained.
func (f FilterSpec) Empty() bool {
	return f.DateFrom.IsZero() && f.DateTo.IsZero() &&
		len(f.Classifications) == 0 &&
		f.BudgetMin == nil && f.BudgetMax == nil &&
		len(f.Keywords) == 0
}

// NeedsBudget reports whether the filter constrains on the detail-only
// approved budget field.
func (f FilterSpec) NeedsBudget() bool {
	return f.BudgetMin != nil || f.BudgetMax != nil
}

// ScrapeStats accumulates counters during one orchestration run.
type ScrapeStats struct {
	StartTime    time.Time
	EndTime      time.Time
	PagesScraped int
	BidsFound    int
	DetailedBids int
	NewCount     int
	UpdatedCount int
	SkippedCount int
	FailedCount  int
	ErrorCount   int
	ErrorsByType map[string]int
}

// NewScrapeStats returns zeroed stats stamped with the start time.
func NewScrapeStats(start time.Time) *ScrapeStats {
	return &ScrapeStats{
		StartTime:    start,
		ErrorsByType: make(map[string]int),
	}
}

// AddError tallies one error under its category label.
func (s *ScrapeStats) AddError(category string) {
	s.ErrorCount++
	s.ErrorsByType[category]++
}

// SuccessRate derives the percentage of error-free operations over the
// found bids. Zero operations yields 0, not a division error.
func (s *ScrapeStats) SuccessRate() float64 {
	if s.BidsFound == 0 {
		return 0
	}
	return float64(s.BidsFound-s.ErrorCount) / float64(s.BidsFound) * 100
}

// ScrapeResult is the single value the orchestrator returns to its callers
// (CLI, HTTP trigger, scheduler, report renderers).
type ScrapeResult struct {
	Success         bool           `json:"success"`
	Error           string         `json:"error,omitempty"`
	TotalBids       int            `json:"total_bids"`
	DetailedBids    int            `json:"detailed_bids"`
	NewCount        int            `json:"new_count"`
	UpdatedCount    int            `json:"updated_count"`
	SkippedCount    int            `json:"skipped_count"`
	FailedCount     int            `json:"failed_count"`
	PagesScraped    int            `json:"pages_scraped"`
	DurationSeconds float64        `json:"duration_seconds"`
	SuccessRate     float64        `json:"success_rate"`
	ErrorsByType    map[string]int `json:"errors_by_type,omitempty"`
	Errors          []ErrorSummary `json:"errors,omitempty"`
	Records         []RecordStatus `json:"records,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}
