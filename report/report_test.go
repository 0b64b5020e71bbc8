package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"philgeps-scraper/models"
)

func sampleResult() *models.ScrapeResult {
	budget := 500000.0
	return &models.ScrapeResult{
		Success:         true,
		TotalBids:       2,
		DetailedBids:    1,
		NewCount:        1,
		UpdatedCount:    1,
		PagesScraped:    1,
		DurationSeconds: 12.5,
		SuccessRate:     100,
		Timestamp:       time.Date(2026, 8, 15, 2, 0, 0, 0, time.UTC),
		Records: []models.RecordStatus{
			{
				ReferenceNumber: "REF-001",
				Title:           "Supply of goods",
				Classification:  "Goods",
				ApprovedBudget:  &budget,
				ClosingDate:     time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
				AgencyName:      "DOH",
				Outcome:         models.OutcomeNew,
			},
			{
				ReferenceNumber: "REF-002",
				Title:           "Road works",
				Classification:  "Civil Works",
				AgencyName:      "DPWH",
				Outcome:         models.OutcomeUpdated,
			},
		},
		Errors: []models.ErrorSummary{
			{Type: "detail_fetch", Message: "detail_fetch REF-003: timeout", Count: 2},
		},
	}
}

func TestWriteAll(t *testing.T) {
	dir := t.TempDir()
	gen := NewGenerator(dir)

	paths, err := gen.WriteAll(sampleResult())
	if err != nil {
		t.Fatalf("write all: %v", err)
	}

	for name, path := range map[string]string{"json": paths.JSON, "csv": paths.CSV, "html": paths.HTML} {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("%s report missing: %v", name, err)
		}
		if info.Size() == 0 {
			t.Fatalf("%s report is empty", name)
		}
		if !strings.Contains(path, "scrape_report_20260815_020000") {
			t.Fatalf("%s report path %q lacks timestamped name", name, path)
		}
	}
}

func TestJSONReportRoundTrips(t *testing.T) {
	dir := t.TempDir()
	gen := NewGenerator(dir)

	paths, err := gen.WriteAll(sampleResult())
	if err != nil {
		t.Fatalf("write all: %v", err)
	}

	data, err := os.ReadFile(paths.JSON)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var decoded models.ScrapeResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if decoded.TotalBids != 2 || !decoded.Success {
		t.Fatalf("decoded = %+v", decoded)
	}
	if len(decoded.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(decoded.Records))
	}
}

func TestCSVReportRows(t *testing.T) {
	dir := t.TempDir()
	gen := NewGenerator(dir)

	paths, err := gen.WriteAll(sampleResult())
	if err != nil {
		t.Fatalf("write all: %v", err)
	}

	file, err := os.Open(paths.CSV)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "reference_number" {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[1][3] != "500000.00" {
		t.Fatalf("budget cell = %q", rows[1][3])
	}
	if rows[2][3] != "" {
		t.Fatalf("missing budget should render empty, got %q", rows[2][3])
	}
}

func TestHTMLReportContent(t *testing.T) {
	dir := t.TempDir()
	gen := NewGenerator(dir)

	paths, err := gen.WriteAll(sampleResult())
	if err != nil {
		t.Fatalf("write all: %v", err)
	}

	data, err := os.ReadFile(paths.HTML)
	if err != nil {
		t.Fatalf("read html: %v", err)
	}
	html := string(data)
	for _, want := range []string{"REF-001", "detail_fetch", "Run succeeded"} {
		if !strings.Contains(html, want) {
			t.Fatalf("html report missing %q", want)
		}
	}
}
