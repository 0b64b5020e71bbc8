package store

import (
	"context"
	"testing"
	"time"

	"philgeps-scraper/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleRecord(ref string) models.BidRecord {
	budget := 500000.0
	r := models.NewBidRecord(models.BidSummary{
		ReferenceNumber: ref,
		Title:           "Supply of goods",
		Classification:  "Goods",
		AgencyName:      "Department of Testing",
		Status:          "Open",
		PublishDate:     time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		ClosingDate:     time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		ScrapedAt:       time.Now().UTC(),
	})
	r.MergeDetail(models.BidDetail{
		ReferenceNumber: ref,
		ApprovedBudget:  &budget,
		ContactPerson:   "Maria Santos",
		LineItems: []models.LineItem{
			{ItemNo: "1", LotName: "Lot A"},
			{ItemNo: "2", LotName: "Lot B"},
			{ItemNo: "3", LotName: "Lot C"},
		},
	})
	return r
}

func TestUpsertIdempotent(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	record := sampleRecord("REF-001")

	outcome, err := st.Upsert(ctx, record)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if outcome != models.OutcomeNew {
		t.Fatalf("first outcome = %q, want new", outcome)
	}

	outcome, err = st.Upsert(ctx, record)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if outcome != models.OutcomeUpdated {
		t.Fatalf("second outcome = %q, want updated", outcome)
	}

	count, err := st.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1 row after replay", count)
	}
}

func TestUpsertReplacesLineItems(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	record := sampleRecord("REF-002")
	if _, err := st.Upsert(ctx, record); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}
	items, err := st.LineItems(ctx, "REF-002")
	if err != nil {
		t.Fatalf("line items: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("seeded items = %d, want 3", len(items))
	}

	record.LineItems = []models.LineItem{{ItemNo: "1", LotName: "Only lot"}}
	if _, err := st.Upsert(ctx, record); err != nil {
		t.Fatalf("replace upsert: %v", err)
	}

	items, err = st.LineItems(ctx, "REF-002")
	if err != nil {
		t.Fatalf("line items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1 after replacement", len(items))
	}
	if items[0].LotName != "Only lot" {
		t.Fatalf("lot = %q", items[0].LotName)
	}
}

func TestUpsertWithoutDetailPreservesEnrichment(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if _, err := st.Upsert(ctx, sampleRecord("REF-003")); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}

	// A later summary-only pass must not wipe detail columns or items.
	summaryOnly := models.NewBidRecord(models.BidSummary{
		ReferenceNumber: "REF-003",
		Title:           "Supply of goods (retitled)",
		Status:          "Closed",
		ScrapedAt:       time.Now().UTC(),
	})
	outcome, err := st.Upsert(ctx, summaryOnly)
	if err != nil {
		t.Fatalf("summary upsert: %v", err)
	}
	if outcome != models.OutcomeUpdated {
		t.Fatalf("outcome = %q, want updated", outcome)
	}

	var title, status string
	var budget *float64
	var contact *string
	err = st.DB().QueryRowContext(ctx,
		"SELECT title, status, approved_budget, contact_person FROM bid_opportunities WHERE reference_number = ?",
		"REF-003",
	).Scan(&title, &status, &budget, &contact)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if title != "Supply of goods (retitled)" || status != "Closed" {
		t.Fatalf("summary fields not updated: %q/%q", title, status)
	}
	if budget == nil || *budget != 500000 {
		t.Fatalf("budget lost on summary-only update: %v", budget)
	}
	if contact == nil || *contact != "Maria Santos" {
		t.Fatalf("contact lost on summary-only update: %v", contact)
	}

	items, err := st.LineItems(ctx, "REF-003")
	if err != nil {
		t.Fatalf("line items: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("items = %d, want 3 preserved", len(items))
	}
}

func TestUpsertRejectsMissingReference(t *testing.T) {
	st := openTestStore(t)
	outcome, err := st.Upsert(context.Background(), models.BidRecord{})
	if err == nil {
		t.Fatal("expected error for missing reference")
	}
	if outcome != models.OutcomeFailed {
		t.Fatalf("outcome = %q, want failed", outcome)
	}
}

func TestReferences(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	for _, ref := range []string{"REF-001", "REF-002"} {
		if _, err := st.Upsert(ctx, sampleRecord(ref)); err != nil {
			t.Fatalf("upsert %s: %v", ref, err)
		}
	}

	refs, err := st.References(ctx)
	if err != nil {
		t.Fatalf("references: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("refs = %d, want 2", len(refs))
	}
	if _, ok := refs["REF-001"]; !ok {
		t.Fatal("REF-001 missing from reference set")
	}
}
