// Package exporter writes the processed customer set to a JSON document
// with summary metadata.
package exporter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"customersync/pkg/processor"
)

// Quality bucket thresholds: high >= 90, medium >= 70, low below.
const (
	highQualityThreshold   = 90
	mediumQualityThreshold = 70
)

// ExportError wraps any failure to produce the output document.
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export to %s failed: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// QualitySummary counts customers per quality bucket.
type QualitySummary struct {
	HighQuality   int `json:"high_quality"`
	MediumQuality int `json:"medium_quality"`
	LowQuality    int `json:"low_quality"`
}

// Report is the metadata block of the export document.
type Report struct {
	TotalCustomers     int            `json:"total_customers"`
	ExportTimestamp    string         `json:"export_timestamp"`
	DataQualitySummary QualitySummary `json:"data_quality_summary"`
}

// document is the full export payload.
type document struct {
	Metadata  Report                        `json:"metadata"`
	Customers []processor.ProcessedCustomer `json:"customers"`
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithClock overrides the timestamp source (for testing).
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// WithLogger overrides the exporter logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Exporter) { e.logger = logger }
}

// Exporter renders and writes export documents.
type Exporter struct {
	now    func() time.Time
	logger zerolog.Logger
}

// New creates an Exporter using the real clock.
func New(opts ...Option) *Exporter {
	e := &Exporter{
		now:    time.Now,
		logger: log.With().Str("component", "exporter").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SummaryReport builds the metadata block for a customer set. The
// bucket counts always sum to the total.
func (e *Exporter) SummaryReport(customers []processor.ProcessedCustomer) Report {
	var summary QualitySummary
	for _, c := range customers {
		switch {
		case c.QualityScore >= highQualityThreshold:
			summary.HighQuality++
		case c.QualityScore >= mediumQualityThreshold:
			summary.MediumQuality++
		default:
			summary.LowQuality++
		}
	}

	return Report{
		TotalCustomers:     len(customers),
		ExportTimestamp:    e.now().UTC().Format(time.RFC3339),
		DataQualitySummary: summary,
	}
}

// Export writes the document to path: customers sorted by full name
// ascending (case-insensitive, stable, empty names first) plus summary
// metadata. The file is written via a temp file and rename so a failed
// export never leaves a partial document behind.
func (e *Exporter) Export(customers []processor.ProcessedCustomer, path string) error {
	sorted := make([]processor.ProcessedCustomer, len(customers))
	copy(sorted, customers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].FullName) < strings.ToLower(sorted[j].FullName)
	})

	payload := document{
		Metadata:  e.SummaryReport(sorted),
		Customers: sorted,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return &ExportError{Path: path, Err: err}
	}
	data = append(data, '\n')

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &ExportError{Path: path, Err: err}
		}
	}

	if err := writeAtomic(path, data); err != nil {
		e.logger.Error().Err(err).Str("path", path).Msg("Export failed")
		return &ExportError{Path: path, Err: err}
	}

	e.logger.Info().
		Int("customers", len(sorted)).
		Str("path", path).
		Msg("Export complete")

	return nil
}

// writeAtomic writes data to a temp file in the target directory and
// renames it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
