// Package processor converts raw customer records into the canonical,
// deduplicated, enriched form used by the export.
package processor

import (
	"math/rand"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"customersync/pkg/client"
)

// Enrichment enumerations. Values match the analytics consumer's schema.
var (
	EngagementLevels    = []string{"high", "medium", "low"}
	ActivityStatuses    = []string{"active", "inactive"}
	AcquisitionChannels = []string{"website", "mobile_app", "email_campaign"}
	MarketSegments      = []string{"US-West", "US-East", "EU-Central", "APAC"}
	CustomerTiers       = []string{"basic", "premium", "enterprise"}
)

// UnknownDomain is the sentinel for emails without an extractable domain.
const UnknownDomain = "unknown"

// emailDomainPattern requires a plausible top-level domain. Anything it
// rejects gets the unknown sentinel.
var emailDomainPattern = regexp.MustCompile(`^[^@\s]+@([A-Za-z0-9.-]+\.[A-Za-z]{2,})$`)

// ProcessedCustomer is the canonical output unit of the pipeline.
type ProcessedCustomer struct {
	CustomerID         int    `json:"customer_id"`
	FullName           string `json:"full_name"`
	Email              string `json:"email"`
	EmailDomain        string `json:"email_domain"`
	EngagementLevel    string `json:"engagement_level"`
	ActivityStatus     string `json:"activity_status"`
	AcquisitionChannel string `json:"acquisition_channel"`
	MarketSegment      string `json:"market_segment"`
	CustomerTier       string `json:"customer_tier"`
	QualityScore       int    `json:"data_quality_score"`
}

// Picker selects an index in [0,n). Production uses a uniform random
// picker; tests substitute a deterministic one.
type Picker func(n int) int

// Option configures a Processor.
type Option func(*Processor)

// WithPicker overrides the enrichment selection function.
func WithPicker(pick Picker) Option {
	return func(p *Processor) { p.pick = pick }
}

// WithLogger overrides the processor logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

// Processor transforms raw records. Safe to reuse across batches; it
// keeps no state between Process calls.
type Processor struct {
	pick   Picker
	logger zerolog.Logger
}

// New creates a Processor with uniform random enrichment.
func New(opts ...Option) *Processor {
	p := &Processor{
		pick:   rand.Intn,
		logger: log.With().Str("component", "processor").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process scores, deduplicates and enriches the raw record set.
// Duplicate identifiers collapse to the highest-scoring record, first
// seen winning ties. Records without a usable integer identifier are
// dropped with a warning. Output preserves first-seen order of the
// surviving identifiers.
func (p *Processor) Process(raw []client.RawRecord) []ProcessedCustomer {
	best := make(map[int]ProcessedCustomer)
	order := make([]int, 0, len(raw))

	for _, record := range raw {
		id, ok := recordID(record)
		if !ok {
			p.logger.Warn().
				Str("full_name", fullName(record)).
				Str("email", stringField(record, "email")).
				Msg("Dropping record without usable identifier")
			continue
		}

		customer := p.transform(id, record)

		current, seen := best[id]
		if !seen {
			best[id] = customer
			order = append(order, id)
			continue
		}
		// Strictly higher score replaces; ties keep the first seen.
		if customer.QualityScore > current.QualityScore {
			p.logger.Debug().
				Int("customer_id", id).
				Int("score", customer.QualityScore).
				Msg("Duplicate with higher quality score, replacing")
			best[id] = customer
		}
	}

	processed := make([]ProcessedCustomer, 0, len(order))
	for _, id := range order {
		processed = append(processed, best[id])
	}

	p.logger.Info().
		Int("raw", len(raw)).
		Int("processed", len(processed)).
		Msg("Processing complete")

	return processed
}

// transform builds one ProcessedCustomer from a raw record.
func (p *Processor) transform(id int, record client.RawRecord) ProcessedCustomer {
	name := fullName(record)
	email := stringField(record, "email")

	return ProcessedCustomer{
		CustomerID:         id,
		FullName:           name,
		Email:              email,
		EmailDomain:        ExtractDomain(email),
		EngagementLevel:    p.choose(EngagementLevels),
		ActivityStatus:     p.choose(ActivityStatuses),
		AcquisitionChannel: p.choose(AcquisitionChannels),
		MarketSegment:      p.choose(MarketSegments),
		CustomerTier:       p.choose(CustomerTiers),
		QualityScore:       Score(name, email),
	}
}

// Score computes the quality score: 100 minus 10 for each of a missing
// name and a missing email. Depends only on presence of those fields;
// a malformed but present email still counts as present.
func Score(name, email string) int {
	score := 100
	if strings.TrimSpace(name) == "" {
		score -= 10
	}
	if strings.TrimSpace(email) == "" {
		score -= 10
	}
	return score
}

// ExtractDomain returns the lowercased email domain, or UnknownDomain
// when the email does not match the conservative pattern.
func ExtractDomain(email string) string {
	m := emailDomainPattern.FindStringSubmatch(email)
	if m == nil {
		return UnknownDomain
	}
	return strings.ToLower(m[1])
}

// choose picks one value from a non-empty enumeration.
func (p *Processor) choose(values []string) string {
	return values[p.pick(len(values))]
}

// recordID extracts an integer identifier from a raw record. JSON
// numbers arrive as float64; digit strings are accepted too.
func recordID(record client.RawRecord) (int, bool) {
	switch v := record["id"].(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case int:
		return v, true
	case string:
		id, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return id, true
	default:
		return 0, false
	}
}

// fullName joins the trimmed name parts; empty when both are missing.
func fullName(record client.RawRecord) string {
	first := strings.TrimSpace(stringField(record, "first_name"))
	last := strings.TrimSpace(stringField(record, "last_name"))
	return strings.TrimSpace(first + " " + last)
}

// stringField reads a string field, tolerating absence and non-strings.
func stringField(record client.RawRecord, key string) string {
	s, _ := record[key].(string)
	return s
}
