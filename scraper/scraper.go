// Package scraper implements the two-phase bid scrape: a paginated
// listing index followed by per-bid detail enrichment, with filtering
// and idempotent persistence in between.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"philgeps-scraper/config"
	"philgeps-scraper/models"
	"philgeps-scraper/session"
)

// Store is the persistence surface a scrape run depends on.
type Store interface {
	Upsert(ctx context.Context, r models.BidRecord) (models.RecordOutcome, error)
	References(ctx context.Context) (map[string]struct{}, error)
}

// Scraper orchestrates a full scrape run against the portal.
type Scraper struct {
	cfg     *config.Config
	log     *slog.Logger
	sess    *session.Session
	indexer *Indexer
	detail  *DetailFetcher
	store   Store

	Metrics *Metrics
}

// New wires a scraper over a fresh session and the given store.
func New(cfg *config.Config, st Store, logger *slog.Logger) (*Scraper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	sess, err := session.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	metrics := NewMetrics()
	indexer, err := NewIndexer(cfg, sess, logger, metrics)
	if err != nil {
		return nil, err
	}

	return &Scraper{
		cfg:     cfg,
		log:     logger,
		sess:    sess,
		indexer: indexer,
		detail:  NewDetailFetcher(cfg, sess, logger, metrics),
		store:   st,
		Metrics: metrics,
	}, nil
}

// Session exposes the underlying session, primarily for tests.
func (s *Scraper) Session() *session.Session { return s.sess }

// Run executes one complete scrape: login, listing index, optional
// filtering and detail enrichment, persistence, and result assembly.
// The returned result is always populated; the error return is non-nil
// only when the run failed outright.
func (s *Scraper) Run(ctx context.Context) (*models.ScrapeResult, error) {
	stats := models.NewScrapeStats(time.Now())
	errs := newErrorCollector()

	result, err := s.run(ctx, stats, errs)

	stats.EndTime = time.Now()
	result.DurationSeconds = stats.EndTime.Sub(stats.StartTime).Seconds()
	result.Timestamp = stats.EndTime
	result.SuccessRate = stats.SuccessRate()
	result.ErrorsByType = stats.ErrorsByType
	result.Errors = errs.summaries()
	s.Metrics.ObserveRun(result.Success, stats.EndTime.Sub(stats.StartTime))

	s.log.Info("scrape run finished",
		slog.Bool("success", result.Success),
		slog.Int("total_bids", result.TotalBids),
		slog.Int("new", result.NewCount),
		slog.Int("updated", result.UpdatedCount),
		slog.Int("errors", stats.ErrorCount),
		slog.Float64("duration_seconds", result.DurationSeconds))

	return result, err
}

func (s *Scraper) run(ctx context.Context, stats *models.ScrapeStats, errs *errorCollector) (*models.ScrapeResult, error) {
	result := &models.ScrapeResult{}

	fail := func(err error) (*models.ScrapeResult, error) {
		s.recordError(err, stats, errs)
		result.Success = false
		result.Error = err.Error()
		return result, err
	}

	if err := s.sess.Login(ctx); err != nil {
		return fail(err)
	}

	summaries, pages, indexErr := s.indexer.Collect(ctx, s.cfg.MaxPages)
	stats.PagesScraped = pages
	result.PagesScraped = pages
	if indexErr != nil && len(summaries) == 0 {
		return fail(indexErr)
	}
	if indexErr != nil {
		// Partial listing: keep what we have and record the page failure.
		s.recordError(indexErr, stats, errs)
	}

	if len(summaries) == 0 {
		result.Success = false
		result.Error = "no bids found"
		return result, nil
	}

	stats.BidsFound = len(summaries)
	result.TotalBids = len(summaries)

	if s.cfg.Incremental {
		summaries = s.skipKnown(ctx, summaries, stats)
	}

	records := make([]models.BidRecord, 0, len(summaries))
	for _, summary := range summaries {
		records = append(records, models.NewBidRecord(summary))
	}

	// Dimensions that only need listing fields are applied before the
	// detail phase so filtered-out bids cost no extra requests. Budget
	// bounds read the detail-only approved budget, so they wait for the
	// post-enrichment pass.
	preDetail := s.cfg.Filters
	preDetail.BudgetMin = nil
	preDetail.BudgetMax = nil
	records = ApplyFilters(records, preDetail)

	if s.cfg.FetchDetails {
		records = s.enrich(ctx, records, stats, errs)
	}

	records = ApplyFilters(records, s.cfg.Filters)

	for _, record := range records {
		outcome, err := s.store.Upsert(ctx, record)
		if err != nil {
			s.recordError(err, stats, errs)
			s.log.Error("record persistence failed",
				slog.String("reference", record.ReferenceNumber),
				slog.Any("error", err))
		}
		s.Metrics.IncRecord(string(outcome))
		switch outcome {
		case models.OutcomeNew:
			stats.NewCount++
		case models.OutcomeUpdated:
			stats.UpdatedCount++
		case models.OutcomeFailed:
			stats.FailedCount++
		}
		result.Records = append(result.Records, models.RecordStatus{
			ReferenceNumber: record.ReferenceNumber,
			Title:           record.Title,
			Classification:  record.Classification,
			ApprovedBudget:  record.ApprovedBudget,
			ClosingDate:     record.ClosingDate,
			AgencyName:      record.AgencyName,
			Outcome:         outcome,
		})
	}

	result.Success = true
	result.DetailedBids = stats.DetailedBids
	result.NewCount = stats.NewCount
	result.UpdatedCount = stats.UpdatedCount
	result.SkippedCount = stats.SkippedCount
	result.FailedCount = stats.FailedCount
	return result, nil
}

func (s *Scraper) recordError(err error, stats *models.ScrapeStats, errs *errorCollector) {
	category := ErrorCategory(err)
	stats.AddError(category)
	errs.add(category, err)
	s.Metrics.IncError(category)
}

// skipKnown drops summaries whose reference is already stored.
func (s *Scraper) skipKnown(ctx context.Context, summaries []models.BidSummary, stats *models.ScrapeStats) []models.BidSummary {
	known, err := s.store.References(ctx)
	if err != nil {
		s.log.Warn("incremental lookup failed, processing all bids", slog.Any("error", err))
		return summaries
	}
	kept := summaries[:0]
	for _, summary := range summaries {
		if _, ok := known[summary.ReferenceNumber]; ok {
			stats.SkippedCount++
			continue
		}
		kept = append(kept, summary)
	}
	s.log.Info("incremental mode",
		slog.Int("skipped", stats.SkippedCount), slog.Int("remaining", len(kept)))
	return kept
}

// enrich runs the detail phase. A failed detail fetch keeps the record
// with its listing fields only.
func (s *Scraper) enrich(ctx context.Context, records []models.BidRecord, stats *models.ScrapeStats, errs *errorCollector) []models.BidRecord {
	for i := range records {
		detail, err := s.detail.Fetch(ctx, records[i].BidSummary)
		if err != nil {
			s.recordError(err, stats, errs)
			s.log.Warn("detail fetch failed, keeping listing fields",
				slog.String("reference", records[i].ReferenceNumber),
				slog.Any("error", err))
			continue
		}
		records[i].MergeDetail(detail)
		stats.DetailedBids++
	}
	return records
}

// errorCollector aggregates run errors by category and message so the
// report can show counts with first and last occurrence times.
type errorCollector struct {
	order []string
	byKey map[string]*models.ErrorSummary
}

func newErrorCollector() *errorCollector {
	return &errorCollector{byKey: make(map[string]*models.ErrorSummary)}
}

func (c *errorCollector) add(category string, err error) {
	now := time.Now()
	key := category + "|" + err.Error()
	if existing, ok := c.byKey[key]; ok {
		existing.Count++
		existing.LastOccurrence = now
		return
	}
	c.byKey[key] = &models.ErrorSummary{
		Type:            category,
		Message:         err.Error(),
		Count:           1,
		FirstOccurrence: now,
		LastOccurrence:  now,
	}
	c.order = append(c.order, key)
}

func (c *errorCollector) summaries() []models.ErrorSummary {
	if len(c.order) == 0 {
		return nil
	}
	out := make([]models.ErrorSummary, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, *c.byKey[key])
	}
	return out
}
