package model

import "math"

// TokenBreakdown holds per-category token counters for a message or an
// aggregate. All arithmetic on breakdowns saturates instead of wrapping.
type TokenBreakdown struct {
	Input      int64 `json:"input"`
	Output     int64 `json:"output"`
	CacheRead  int64 `json:"cache_read"`
	CacheWrite int64 `json:"cache_write"`
	Reasoning  int64 `json:"reasoning"`
}

// SaturatingAdd adds two counters, clamping at MaxInt64 and MinInt64
// instead of wrapping. Counters are normally non-negative, but the guard
// must stay correct when a negative value reaches the arithmetic anyway.
func SaturatingAdd(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	if b < 0 && a < math.MinInt64-b {
		return math.MinInt64
	}
	return a + b
}

// Add folds another breakdown into t using saturating arithmetic.
func (t *TokenBreakdown) Add(o TokenBreakdown) {
	t.Input = SaturatingAdd(t.Input, o.Input)
	t.Output = SaturatingAdd(t.Output, o.Output)
	t.CacheRead = SaturatingAdd(t.CacheRead, o.CacheRead)
	t.CacheWrite = SaturatingAdd(t.CacheWrite, o.CacheWrite)
	t.Reasoning = SaturatingAdd(t.Reasoning, o.Reasoning)
}

// Total returns the saturating sum of all token categories.
func (t TokenBreakdown) Total() int64 {
	total := t.Input
	total = SaturatingAdd(total, t.Output)
	total = SaturatingAdd(total, t.CacheRead)
	total = SaturatingAdd(total, t.CacheWrite)
	total = SaturatingAdd(total, t.Reasoning)
	return total
}

// UnifiedMessage is one usage event from any integration (Claude Code,
// Cursor, a gateway, ...). Cost is pre-computed by the pricing catalog when
// the message is built; the aggregation engine never mutates messages.
type UnifiedMessage struct {
	Source     string         `json:"source"`
	ModelID    string         `json:"model_id"`
	ProviderID string         `json:"provider_id"`
	SessionID  string         `json:"session_id"`
	Timestamp  int64          `json:"timestamp"` // epoch milliseconds, UTC
	Date       string         `json:"date"`      // YYYY-MM-DD, derived from Timestamp
	Tokens     TokenBreakdown `json:"tokens"`
	Cost       float64        `json:"cost"`
}

// ModelPricing contains per-token rates for a model (per token, not per million).
type ModelPricing struct {
	InputCostPerToken         float64 `json:"input_cost_per_token"`
	OutputCostPerToken        float64 `json:"output_cost_per_token"`
	CacheReadCostPerToken     float64 `json:"cache_read_input_token_cost"`
	CacheCreationCostPerToken float64 `json:"cache_creation_input_token_cost"`
}

// SourceContribution aggregates usage for one (source, model) pair within a
// day. ProviderID is carried from the first message seen for the pair.
type SourceContribution struct {
	Source     string         `json:"source"`
	ModelID    string         `json:"model_id"`
	ProviderID string         `json:"provider_id"`
	Tokens     TokenBreakdown `json:"tokens"`
	Cost       float64        `json:"cost"`
	Messages   int64          `json:"messages"`
}

// DailyTotals are the flat totals for a calendar day.
type DailyTotals struct {
	Tokens   int64   `json:"tokens"`
	Cost     float64 `json:"cost"`
	Messages int64   `json:"messages"`
}

// DailyContribution is one calendar day of aggregated usage. Intensity is an
// ordinal 0-4 classification of the day's cost relative to the most expensive
// day in the set.
type DailyContribution struct {
	Date           string               `json:"date"`
	Totals         DailyTotals          `json:"totals"`
	Intensity      int                  `json:"intensity"`
	TokenBreakdown TokenBreakdown       `json:"token_breakdown"`
	Sources        []SourceContribution `json:"sources"`
}

// RateStats reports tokens-per-minute statistics for an interval bucket.
type RateStats struct {
	AvgTokensPerMin float64 `json:"avg_tokens_per_min"`
	MaxTokensPerMin float64 `json:"max_tokens_per_min"`
	MinTokensPerMin float64 `json:"min_tokens_per_min"`
}

// IntervalBucket is one fixed-width time window. CostMicros is the bucket cost
// in millionths of a dollar so the value survives a JSON round trip exactly.
// RateStats is nil for buckets with no messages.
type IntervalBucket struct {
	StartMs        int64          `json:"start_ms"`
	EndMs          int64          `json:"end_ms"`
	TokenBreakdown TokenBreakdown `json:"token_breakdown"`
	Messages       int            `json:"messages"`
	CostMicros     int64          `json:"cost_micros"`
	RateStats      *RateStats     `json:"rate_stats,omitempty"`
}

// DataSummary is the global rollup over all daily contributions.
type DataSummary struct {
	TotalTokens        int64    `json:"total_tokens"`
	TotalCost          float64  `json:"total_cost"`
	TotalDays          int      `json:"total_days"`
	ActiveDays         int      `json:"active_days"`
	AveragePerDay      float64  `json:"average_per_day"`
	MaxCostInSingleDay float64  `json:"max_cost_in_single_day"`
	Sources            []string `json:"sources"`
	Models             []string `json:"models"`
}

// YearSummary rolls up one calendar year of contributions.
type YearSummary struct {
	Year        string  `json:"year"`
	TotalTokens int64   `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
	RangeStart  string  `json:"range_start"`
	RangeEnd    string  `json:"range_end"`
}

// GraphMeta describes how and when a GraphResult was produced.
type GraphMeta struct {
	GeneratedAt      string `json:"generated_at"`
	Version          string `json:"version"`
	DateRangeStart   string `json:"date_range_start"`
	DateRangeEnd     string `json:"date_range_end"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
}

// GraphResult is the complete envelope returned to callers.
type GraphResult struct {
	Meta          GraphMeta           `json:"meta"`
	Summary       DataSummary         `json:"summary"`
	Years         []YearSummary       `json:"years"`
	Contributions []DailyContribution `json:"contributions"`
}
