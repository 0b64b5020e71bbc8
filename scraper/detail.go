package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"philgeps-scraper/config"
	"philgeps-scraper/models"
	"philgeps-scraper/session"
)

// DetailFetcher retrieves and parses individual bid detail pages.
type DetailFetcher struct {
	cfg     *config.Config
	sess    *session.Session
	log     *slog.Logger
	metrics *Metrics
}

// NewDetailFetcher builds a detail fetcher over an authenticated session.
func NewDetailFetcher(cfg *config.Config, sess *session.Session, logger *slog.Logger, metrics *Metrics) *DetailFetcher {
	return &DetailFetcher{cfg: cfg, sess: sess, log: logger, metrics: metrics}
}

// Fetch loads a bid's detail page and extracts the extended field set.
// Every field is best effort; the error return only covers failures to
// retrieve or parse the page itself.
func (d *DetailFetcher) Fetch(ctx context.Context, summary models.BidSummary) (models.BidDetail, error) {
	detail := models.BidDetail{ReferenceNumber: summary.ReferenceNumber}

	if summary.DetailURL == "" {
		return detail, ErrDetailFetch{Reference: summary.ReferenceNumber, Err: fmt.Errorf("no detail URL")}
	}

	start := time.Now()
	p, err := d.sess.Fetch(ctx, summary.DetailURL)
	d.metrics.IncRequest("detail")
	d.metrics.ObserveDuration(time.Since(start))
	if err != nil {
		return detail, ErrDetailFetch{Reference: summary.ReferenceNumber, Err: err}
	}

	doc := p.Doc
	if budget, ok := labelValue(doc, "Approved Budget of the Contract"); ok {
		detail.ApprovedBudget = parseBudget(budget)
	}
	detail.DeliveryPeriod, _ = labelValue(doc, "Delivery Period")
	detail.ContactPerson, _ = labelValue(doc, "Contact Person")
	detail.BusinessCategory, _ = labelValue(doc, "Business Category")
	detail.FundingSource, _ = labelValue(doc, "Funding Source")
	detail.ControlNumber, _ = labelValue(doc, "Control Number")
	detail.LotType, _ = labelValue(doc, "Lot Type")
	detail.BidValidityPeriod, _ = labelValue(doc, "Bid Validity Period")
	detail.ClientAgency, _ = labelValue(doc, "Client Agency")

	detail.DeliveryLocation, _ = labelValue(doc, "Delivery/Project Location")
	if detail.DeliveryLocation == "" {
		detail.DeliveryLocation, _ = labelValue(doc, "Place of Delivery")
	}

	detail.DateCreated = d.labelDate(doc, summary.ReferenceNumber, "Date created")
	detail.DateLastUpdated = d.labelDate(doc, summary.ReferenceNumber, "Date Last updated")

	detail.Description = cleanText(doc.Find(".wrapped-long-string1").First().Text())
	detail.LineItems = extractLineItems(doc)

	return detail, nil
}

func (d *DetailFetcher) labelDate(doc *goquery.Document, reference, token string) time.Time {
	raw, ok := labelValue(doc, token)
	if !ok {
		return time.Time{}
	}
	t, parsed := parseDate(raw)
	if !parsed {
		d.log.Warn("unparseable date dropped",
			slog.String("reference", reference),
			slog.String("label", token),
			slog.String("value", raw))
		return time.Time{}
	}
	return t
}

// labelValue finds a form label containing token and returns the text
// that follows it within the label's parent element. A missing label or
// an empty value both report false.
func labelValue(doc *goquery.Document, token string) (string, bool) {
	lowerToken := strings.ToLower(token)
	value, found := "", false

	doc.Find("label").EachWithBreak(func(_ int, label *goquery.Selection) bool {
		labelText := label.Text()
		if !strings.Contains(strings.ToLower(labelText), lowerToken) {
			return true
		}
		found = true

		parentText := label.Parent().Text()
		_, after, ok := strings.Cut(parentText, labelText)
		if !ok {
			return false
		}
		// Served pages often put the value on the line after its label;
		// trim before truncating so the value's own line is kept.
		after = strings.TrimSpace(after)
		if line, _, hasNewline := strings.Cut(after, "\n"); hasNewline {
			after = line
		}
		value = cleanText(after)
		return false
	})

	if !found || value == "" {
		return "", false
	}
	return value, true
}

// extractLineItems reads the itemized lot table. Rows with fewer than
// six cells are layout artifacts and are ignored.
func extractLineItems(doc *goquery.Document) []models.LineItem {
	var items []models.LineItem
	doc.Find("table.table-bordered tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 6 {
			return
		}
		items = append(items, models.LineItem{
			ItemNo:         cleanText(cells.Eq(0).Text()),
			UNSPSC:         cleanText(cells.Eq(1).Text()),
			LotName:        cleanText(cells.Eq(2).Text()),
			LotDescription: cleanText(cells.Eq(3).Text()),
			Quantity:       cleanText(cells.Eq(4).Text()),
			UnitOfMeasure:  cleanText(cells.Eq(5).Text()),
		})
	})
	return items
}
