// Command customer-sync runs the customer export pipeline once:
// fetch all pages from the customer API, score and deduplicate the
// records, enrich them, and write the JSON export.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"customersync/pkg/client"
	"customersync/pkg/config"
	"customersync/pkg/exporter"
	"customersync/pkg/logging"
	"customersync/pkg/processor"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("customer-sync", flag.ContinueOnError)
	var (
		configPath  = fs.String("config", "", "path to YAML config file")
		baseURL     = fs.String("base-url", "", "customer API base URL")
		apiKey      = fs.String("api-key", "", "API key (optional)")
		resource    = fs.String("resource", "", "collection path under the base URL")
		output      = fs.String("output", "", "export file path")
		timeout     = fs.Duration("timeout", 0, "per-request timeout")
		maxAttempts = fs.Int("max-attempts", 0, "attempts per page request")
		backoff     = fs.Duration("backoff", 0, "base backoff between attempts")
		rateLimit   = fs.Float64("rate-limit", 0, "max requests per second (0 = unlimited)")
		metricsAddr = fs.String("metrics-addr", "", "serve /metrics on this address during the run")
		logLevel    = fs.String("log-level", "", "log level: debug, info, warn, error")
		pretty      = fs.Bool("pretty", false, "human-readable log output")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Flags set on the command line override file and environment.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "base-url":
			cfg.BaseURL = *baseURL
		case "api-key":
			cfg.APIKey = *apiKey
		case "resource":
			cfg.Resource = *resource
		case "output":
			cfg.OutputFile = *output
		case "timeout":
			cfg.Timeout = *timeout
		case "max-attempts":
			cfg.MaxAttempts = *maxAttempts
		case "backoff":
			cfg.BackoffBase = *backoff
		case "rate-limit":
			cfg.RateLimitRPS = *rateLimit
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		case "log-level":
			cfg.LogLevel = *logLevel
		case "pretty":
			cfg.LogPretty = *pretty
		}
	})

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})

	runID := uuid.NewString()
	logger := logging.NewLogger("pipeline").With().Str("run_id", runID).Logger()

	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("Invalid configuration")
		return 1
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	if err := runPipeline(context.Background(), cfg, logger); err != nil {
		var fetchErr *client.FetchError
		if errors.As(err, &fetchErr) {
			logger.Error().
				Str("url", fetchErr.URL).
				Int("status", fetchErr.StatusCode).
				Int("retries", fetchErr.Retries).
				Err(err).
				Msg("Pipeline failed")
		} else {
			logger.Error().Err(err).Msg("Pipeline failed")
		}
		return 1
	}

	return 0
}

// runPipeline performs one fetch -> process -> export run.
func runPipeline(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	start := time.Now()

	apiClient, err := client.New(client.Config{
		BaseURL:      cfg.BaseURL,
		Resource:     cfg.Resource,
		APIKey:       cfg.APIKey,
		Timeout:      cfg.Timeout,
		MaxAttempts:  cfg.MaxAttempts,
		BackoffBase:  cfg.BackoffBase,
		RateLimitRPS: cfg.RateLimitRPS,
	})
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	raw, err := apiClient.FetchAll(ctx)
	if err != nil {
		return err
	}
	logger.Info().Int("records", len(raw)).Msg("Fetched raw customers")

	processed := processor.New().Process(raw)
	logger.Info().Int("records", len(processed)).Msg("Processed customers")

	exp := exporter.New()
	if err := exp.Export(processed, cfg.OutputFile); err != nil {
		return err
	}

	report := exp.SummaryReport(processed)
	logger.Info().
		Int("total_customers", report.TotalCustomers).
		Int("high_quality", report.DataQualitySummary.HighQuality).
		Int("medium_quality", report.DataQualitySummary.MediumQuality).
		Int("low_quality", report.DataQualitySummary.LowQuality).
		Str("output", cfg.OutputFile).
		Dur("duration", time.Since(start)).
		Msg("Pipeline complete")

	return nil
}

// serveMetrics exposes Prometheus metrics and a health probe for the
// duration of the run.
func serveMetrics(addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})

	logger.Info().Str("addr", addr).Msg("Serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn().Err(err).Msg("Metrics server stopped")
	}
}
