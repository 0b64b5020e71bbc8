package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"

	"philgeps-scraper/config"
	"philgeps-scraper/models"
	"philgeps-scraper/session"
)

const seenCacheSize = 4096

// Indexer walks the paginated bid listing and extracts one summary per
// table row. Rows without a reference number are dropped; duplicate
// references across page boundaries are collapsed.
type Indexer struct {
	cfg     *config.Config
	sess    *session.Session
	log     *slog.Logger
	metrics *Metrics
	seen    *lru.Cache[string, struct{}]
}

// NewIndexer builds an indexer over an authenticated session.
func NewIndexer(cfg *config.Config, sess *session.Session, logger *slog.Logger, metrics *Metrics) (*Indexer, error) {
	seen, err := lru.New[string, struct{}](seenCacheSize)
	if err != nil {
		return nil, err
	}
	return &Indexer{cfg: cfg, sess: sess, log: logger, metrics: metrics, seen: seen}, nil
}

var totalCountRe = regexp.MustCompile(`out of (\d+) total`)

// Collect fetches listing pages until an empty page, a missing next
// affordance, or the page cap. It returns the summaries gathered, the
// number of pages scraped, and the first page-level error encountered.
// A mid-run page failure stops pagination but keeps earlier results.
func (ix *Indexer) Collect(ctx context.Context, maxPages int) ([]models.BidSummary, int, error) {
	// Dedup is scoped to one run; a later run must see every bid again.
	ix.seen.Purge()

	var summaries []models.BidSummary
	pages := 0

	for page := 1; page <= maxPages; page++ {
		pageURL := ix.cfg.ListingURL(page)
		start := time.Now()
		p, err := ix.sess.Fetch(ctx, pageURL)
		ix.metrics.IncRequest("listing")
		ix.metrics.ObserveDuration(time.Since(start))
		if err != nil {
			ix.log.Error("listing page fetch failed",
				slog.Int("page", page), slog.Any("error", err))
			return summaries, pages, fmt.Errorf("listing page %d: %w", page, err)
		}

		rows := p.Doc.Find("table.dataTable tbody tr")
		if rows.Length() == 0 {
			ix.log.Info("empty listing page, stopping", slog.Int("page", page))
			break
		}

		pages++
		ix.metrics.IncPage()

		extracted := 0
		rows.Each(func(_ int, row *goquery.Selection) {
			summary, err := ix.extractRow(row, p.URL)
			if err != nil {
				ix.log.Debug("skipping listing row", slog.Int("page", page), slog.Any("error", err))
				return
			}
			if _, dup := ix.seen.Get(summary.ReferenceNumber); dup {
				return
			}
			ix.seen.Add(summary.ReferenceNumber, struct{}{})
			summaries = append(summaries, summary)
			extracted++
		})
		ix.metrics.AddBids(extracted)

		if total, ok := listingTotal(p.Doc); ok {
			ix.log.Debug("listing progress",
				slog.Int("page", page),
				slog.Int("collected", len(summaries)),
				slog.Int("total_advertised", total))
		}

		if !hasNextPage(p.Doc) {
			ix.log.Info("no next page affordance, stopping", slog.Int("page", page))
			break
		}
	}

	ix.log.Info("listing phase complete",
		slog.Int("pages", pages), slog.Int("bids", len(summaries)))
	return summaries, pages, nil
}

// extractRow maps one listing table row to a summary. The reference
// number is mandatory; every other field is best effort.
func (ix *Indexer) extractRow(row *goquery.Selection, sourceURL string) (models.BidSummary, error) {
	refLink := row.Find(`td[data-label="Bid Notice Reference Number"] a`)
	reference := cleanText(refLink.Text())
	if reference == "" {
		return models.BidSummary{}, fmt.Errorf("row has no reference number")
	}

	summary := models.BidSummary{
		ReferenceNumber: reference,
		DetailURL:       absoluteURL(ix.cfg.BaseURL, refLink.AttrOr("href", "")),
		SourceURL:       sourceURL,
		ScrapedAt:       time.Now().UTC(),
	}

	titleCell := row.Find(`td[data-label="Notice Title"]`)
	summary.Title = cleanText(titleCell.Find(".wrapped-long-string").Text())
	if summary.Title == "" {
		summary.Title = cleanText(titleCell.Text())
	}

	summary.ProcurementMode = cellText(row, "Mode of Procurement")
	summary.Classification = cellText(row, "Classification")
	summary.Status = cellText(row, "Status")

	summary.AgencyName = cellText(row, "Agency Name")
	if summary.AgencyName == "" {
		summary.AgencyName = cellText(row, "Procuring Entity Name")
	}

	summary.PublishDate = ix.cellDate(row, reference, "Publish Date", "Published Date")
	summary.ClosingDate = ix.cellDate(row, reference, "Due Date", "Closing Date")

	return summary, nil
}

func cellText(row *goquery.Selection, label string) string {
	return cleanText(row.Find(`td[data-label="` + label + `"]`).Text())
}

func (ix *Indexer) cellDate(row *goquery.Selection, reference string, labels ...string) time.Time {
	for _, label := range labels {
		raw := cellText(row, label)
		if raw == "" {
			continue
		}
		if t, ok := parseDate(raw); ok {
			return t
		}
		ix.log.Warn("unparseable date dropped",
			slog.String("reference", reference),
			slog.String("label", label),
			slog.String("value", raw))
	}
	return time.Time{}
}

func listingTotal(doc *goquery.Document) (int, bool) {
	caption := doc.Find(".paginator p").Text()
	groups := totalCountRe.FindStringSubmatch(caption)
	if len(groups) < 2 {
		return 0, false
	}
	total, err := strconv.Atoi(groups[1])
	if err != nil {
		return 0, false
	}
	return total, true
}

func hasNextPage(doc *goquery.Document) bool {
	return doc.Find(".pagination li.next:not(.disabled)").Length() > 0
}
