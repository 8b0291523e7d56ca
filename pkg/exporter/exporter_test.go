package exporter_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"customersync/pkg/exporter"
	"customersync/pkg/processor"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func customer(id int, name string, score int) processor.ProcessedCustomer {
	return processor.ProcessedCustomer{
		CustomerID:         id,
		FullName:           name,
		Email:              "x@example.com",
		EmailDomain:        "example.com",
		EngagementLevel:    "high",
		ActivityStatus:     "active",
		AcquisitionChannel: "website",
		MarketSegment:      "US-West",
		CustomerTier:       "basic",
		QualityScore:       score,
	}
}

func readDocument(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestSummaryReport_Buckets(t *testing.T) {
	e := exporter.New()

	report := e.SummaryReport([]processor.ProcessedCustomer{
		customer(1, "A", 100), // high
		customer(2, "B", 90),  // high (boundary)
		customer(3, "C", 89),  // medium
		customer(4, "D", 70),  // medium (boundary)
		customer(5, "E", 69),  // low
		customer(6, "F", 0),   // low
	})

	assert.Equal(t, 6, report.TotalCustomers)
	assert.Equal(t, 2, report.DataQualitySummary.HighQuality)
	assert.Equal(t, 2, report.DataQualitySummary.MediumQuality)
	assert.Equal(t, 2, report.DataQualitySummary.LowQuality)

	sum := report.DataQualitySummary.HighQuality +
		report.DataQualitySummary.MediumQuality +
		report.DataQualitySummary.LowQuality
	assert.Equal(t, report.TotalCustomers, sum)
}

func TestSummaryReport_TimestampIsUTCWithZ(t *testing.T) {
	at := time.Date(2026, 8, 30, 12, 34, 56, 0, time.FixedZone("CEST", 2*3600))
	e := exporter.New(exporter.WithClock(fixedClock(at)))

	report := e.SummaryReport(nil)

	assert.Equal(t, "2026-08-30T10:34:56Z", report.ExportTimestamp)
}

func TestExport_SortsByNameCaseInsensitiveEmptyFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	e := exporter.New()

	err := e.Export([]processor.ProcessedCustomer{
		customer(1, "zara Quinn", 100),
		customer(2, "Adam Lowe", 100),
		customer(3, "", 80),
		customer(4, "adam lowe", 90),
	}, path)
	require.NoError(t, err)

	doc := readDocument(t, path)
	customers := doc["customers"].([]any)
	require.Len(t, customers, 4)

	names := make([]string, len(customers))
	ids := make([]float64, len(customers))
	for i, c := range customers {
		m := c.(map[string]any)
		names[i] = m["full_name"].(string)
		ids[i] = m["customer_id"].(float64)
	}

	assert.Equal(t, []string{"", "Adam Lowe", "adam lowe", "zara Quinn"}, names)
	// Stable: equal names keep input order.
	assert.Equal(t, float64(2), ids[1])
	assert.Equal(t, float64(4), ids[2])
}

func TestExport_PayloadShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	at := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	e := exporter.New(exporter.WithClock(fixedClock(at)))

	require.NoError(t, e.Export([]processor.ProcessedCustomer{customer(1, "A", 95)}, path))

	doc := readDocument(t, path)

	meta := doc["metadata"].(map[string]any)
	assert.Equal(t, float64(1), meta["total_customers"])
	assert.Equal(t, "2026-08-30T09:00:00Z", meta["export_timestamp"])

	summary := meta["data_quality_summary"].(map[string]any)
	assert.Equal(t, float64(1), summary["high_quality"])
	assert.Equal(t, float64(0), summary["medium_quality"])
	assert.Equal(t, float64(0), summary["low_quality"])

	c := doc["customers"].([]any)[0].(map[string]any)
	for _, key := range []string{
		"customer_id", "full_name", "email", "email_domain",
		"engagement_level", "activity_status", "acquisition_channel",
		"market_segment", "customer_tier", "data_quality_score",
	} {
		assert.Contains(t, c, key)
	}
}

func TestExport_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "out.json")
	e := exporter.New()

	require.NoError(t, e.Export([]processor.ProcessedCustomer{customer(1, "A", 100)}, path))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestExport_FailureLeavesNoPartialFile(t *testing.T) {
	dir := t.TempDir()
	// A directory at the target path makes the final rename fail.
	path := filepath.Join(dir, "occupied")
	require.NoError(t, os.Mkdir(path, 0o755))

	e := exporter.New()
	err := e.Export([]processor.ProcessedCustomer{customer(1, "A", 100)}, path)

	var exportErr *exporter.ExportError
	require.ErrorAs(t, err, &exportErr)
	assert.Equal(t, path, exportErr.Path)

	// No temp file debris.
	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Len(t, entries, 1, "only the pre-existing directory should remain")
}

func TestExport_EmptyCustomerSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	e := exporter.New()

	require.NoError(t, e.Export(nil, path))

	doc := readDocument(t, path)
	meta := doc["metadata"].(map[string]any)
	assert.Equal(t, float64(0), meta["total_customers"])
}
