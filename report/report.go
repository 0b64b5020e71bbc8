// Package report renders scrape run results to JSON, CSV and HTML files.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"philgeps-scraper/models"
)

// Generator writes one report per format into subdirectories of its
// output directory, named scrape_report_<timestamp>.<ext>.
type Generator struct {
	outputDir string
}

// NewGenerator builds a generator rooted at outputDir.
func NewGenerator(outputDir string) *Generator {
	return &Generator{outputDir: outputDir}
}

// Paths lists the files produced by one WriteAll call.
type Paths struct {
	JSON string `json:"json"`
	CSV  string `json:"csv"`
	HTML string `json:"html"`
}

// WriteAll renders the result in every format. Each file lands in its
// own format subdirectory.
func (g *Generator) WriteAll(result *models.ScrapeResult) (Paths, error) {
	stamp := result.Timestamp
	if stamp.IsZero() {
		stamp = time.Now()
	}
	base := "scrape_report_" + stamp.Format("20060102_150405")

	var paths Paths
	var err error
	if paths.JSON, err = g.writeJSON(result, base); err != nil {
		return paths, err
	}
	if paths.CSV, err = g.writeCSV(result, base); err != nil {
		return paths, err
	}
	if paths.HTML, err = g.writeHTML(result, base); err != nil {
		return paths, err
	}
	return paths, nil
}

func (g *Generator) writeJSON(result *models.ScrapeResult, base string) (string, error) {
	path := filepath.Join(g.outputDir, "json", base+".json")
	if err := ensureDir(path); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode json report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write json report: %w", err)
	}
	return path, nil
}

func (g *Generator) writeCSV(result *models.ScrapeResult, base string) (string, error) {
	path := filepath.Join(g.outputDir, "csv", base+".csv")
	if err := ensureDir(path); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create csv report: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	header := []string{"reference_number", "title", "classification", "approved_budget", "closing_date", "agency_name", "status"}
	if err := writer.Write(header); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}
	for _, record := range result.Records {
		budget := ""
		if record.ApprovedBudget != nil {
			budget = strconv.FormatFloat(*record.ApprovedBudget, 'f', 2, 64)
		}
		closing := ""
		if !record.ClosingDate.IsZero() {
			closing = record.ClosingDate.Format("2006-01-02")
		}
		row := []string{
			record.ReferenceNumber,
			record.Title,
			record.Classification,
			budget,
			closing,
			record.AgencyName,
			string(record.Outcome),
		}
		if err := writer.Write(row); err != nil {
			return "", fmt.Errorf("write csv record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("flush csv report: %w", err)
	}
	return path, nil
}

var htmlReport = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Scrape Report {{.Timestamp.Format "2006-01-02 15:04"}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; margin-top: 1em; }
th, td { border: 1px solid #ccc; padding: 4px 10px; text-align: left; }
th { background: #f0f0f0; }
.ok { color: #2e7d32; }
.fail { color: #c62828; }
</style>
</head>
<body>
<h1>Bid Scrape Report</h1>
<p class="{{if .Success}}ok{{else}}fail{{end}}">
{{if .Success}}Run succeeded{{else}}Run failed{{if .Error}}: {{.Error}}{{end}}{{end}}
</p>
<table>
<tr><th>Total bids</th><td>{{.TotalBids}}</td></tr>
<tr><th>Detailed</th><td>{{.DetailedBids}}</td></tr>
<tr><th>New</th><td>{{.NewCount}}</td></tr>
<tr><th>Updated</th><td>{{.UpdatedCount}}</td></tr>
<tr><th>Skipped</th><td>{{.SkippedCount}}</td></tr>
<tr><th>Failed</th><td>{{.FailedCount}}</td></tr>
<tr><th>Pages scraped</th><td>{{.PagesScraped}}</td></tr>
<tr><th>Success rate</th><td>{{printf "%.1f" .SuccessRate}}%</td></tr>
<tr><th>Duration</th><td>{{printf "%.1f" .DurationSeconds}}s</td></tr>
</table>
{{if .Errors}}
<h2>Errors</h2>
<table>
<tr><th>Type</th><th>Message</th><th>Count</th></tr>
{{range .Errors}}<tr><td>{{.Type}}</td><td>{{.Message}}</td><td>{{.Count}}</td></tr>
{{end}}</table>
{{end}}
{{if .Records}}
<h2>Records</h2>
<table>
<tr><th>Reference</th><th>Title</th><th>Classification</th><th>Agency</th><th>Status</th></tr>
{{range .Records}}<tr><td>{{.ReferenceNumber}}</td><td>{{.Title}}</td><td>{{.Classification}}</td><td>{{.AgencyName}}</td><td>{{.Outcome}}</td></tr>
{{end}}</table>
{{end}}
</body>
</html>
`))

func (g *Generator) writeHTML(result *models.ScrapeResult, base string) (string, error) {
	path := filepath.Join(g.outputDir, "html", base+".html")
	if err := ensureDir(path); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create html report: %w", err)
	}
	defer f.Close()

	if err := htmlReport.Execute(f, result); err != nil {
		return "", fmt.Errorf("render html report: %w", err)
	}
	return path, nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
