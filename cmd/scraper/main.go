package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"philgeps-scraper/api"
	"philgeps-scraper/config"
	"philgeps-scraper/models"
	"philgeps-scraper/report"
	"philgeps-scraper/scraper"
	"philgeps-scraper/sched"
	"philgeps-scraper/store"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	pages := flag.Int("pages", 0, "Maximum listing pages to scrape (overrides config)")
	noDetails := flag.Bool("no-details", false, "Skip the detail enrichment phase")
	incremental := flag.Bool("incremental", false, "Skip bids already present in the database")
	serve := flag.Bool("serve", false, "Run the HTTP API and cron scheduler instead of a one-shot scrape")
	addr := flag.String("addr", "", "HTTP API listen address (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	reportsDir := flag.String("reports", "", "Reports output directory (overrides config)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		os.Exit(1)
	}
	if *pages > 0 {
		cfg.MaxPages = *pages
	}
	if *noDetails {
		cfg.FetchDetails = false
	}
	if *incremental {
		cfg.Incremental = true
	}
	if *addr != "" {
		cfg.ServerAddr = *addr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	if *reportsDir != "" {
		cfg.ReportsDir = *reportsDir
	}
	if *verbose {
		cfg.Verbose = true
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	if err := ensureDir(cfg.DatabasePath); err != nil {
		slog.Error("preparing database directory", slog.Any("error", err))
		os.Exit(1)
	}
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		slog.Error("opening database", slog.Any("error", err))
		os.Exit(1)
	}
	defer st.Close()

	s, err := scraper.New(cfg, st, logger)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		os.Exit(1)
	}

	reports := report.NewGenerator(cfg.ReportsDir)
	runner := func(ctx context.Context) (*models.ScrapeResult, error) {
		result, runErr := s.Run(ctx)
		if result != nil {
			if paths, err := reports.WriteAll(result); err != nil {
				slog.Error("writing reports", slog.Any("error", err))
			} else {
				slog.Info("reports written",
					slog.String("json", paths.JSON),
					slog.String("csv", paths.CSV),
					slog.String("html", paths.HTML))
			}
		}
		return result, runErr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	exitCode := 0
	if *serve {
		exitCode = runServer(ctx, cfg, runner, logger)
	} else {
		exitCode = runOnce(ctx, runner)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	os.Exit(exitCode)
}

func runOnce(ctx context.Context, runner func(context.Context) (*models.ScrapeResult, error)) int {
	result, err := runner(ctx)
	if err != nil {
		slog.Error("scrape failed", slog.Any("error", err))
	}
	if result == nil {
		return 1
	}

	printSummary(result)
	if !result.Success {
		return 1
	}
	return 0
}

func runServer(ctx context.Context, cfg *config.Config, runner sched.RunFunc, logger *slog.Logger) int {
	server := api.NewServer(cfg, api.Runner(runner), logger)
	httpServer := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: server.Router(),
	}

	scheduler, err := sched.New(cfg, runner, logger)
	if err != nil {
		slog.Error("initialising scheduler", slog.Any("error", err))
		return 1
	}
	scheduler.Start()
	defer scheduler.Stop()

	go func() {
		slog.Info("api server listening", slog.String("addr", cfg.ServerAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api server failed", slog.Any("error", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("api server shutdown failed", slog.Any("error", err))
		return 1
	}
	return 0
}

func printSummary(result *models.ScrapeResult) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")

	fmt.Printf("  Total bids:    %d\n", result.TotalBids)
	fmt.Printf("  Detailed:      %d\n", result.DetailedBids)
	fmt.Printf("  New:           %d\n", result.NewCount)
	fmt.Printf("  Updated:       %d\n", result.UpdatedCount)
	fmt.Printf("  Skipped:       %d\n", result.SkippedCount)
	fmt.Printf("  Failed:        %d\n", result.FailedCount)
	fmt.Printf("  Pages:         %d\n", result.PagesScraped)
	fmt.Printf("  Success rate:  %.2f%%\n", result.SuccessRate)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	fmt.Printf("  Duration:      %.1fs\n", result.DurationSeconds)
	if !result.Success && result.Error != "" {
		fmt.Printf("  Error:         %s\n", result.Error)
	}
	fmt.Println(separator)
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
