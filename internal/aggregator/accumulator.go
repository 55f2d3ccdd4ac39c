package aggregator

import (
	"sort"

	"github.com/tomhv/usagegraph/internal/model"
)

// dayAccumulator folds messages for one calendar day. addMessage and merge
// form a commutative monoid so partial accumulators built by independent
// workers can be combined in any order.
type dayAccumulator struct {
	totals    model.DailyTotals
	breakdown model.TokenBreakdown
	sources   map[string]*model.SourceContribution
}

func newDayAccumulator() *dayAccumulator {
	return &dayAccumulator{
		sources: make(map[string]*model.SourceContribution, 8),
	}
}

func (a *dayAccumulator) addMessage(msg *model.UnifiedMessage) {
	a.totals.Tokens = model.SaturatingAdd(a.totals.Tokens, msg.Tokens.Total())
	a.totals.Cost += msg.Cost
	a.totals.Messages = model.SaturatingAdd(a.totals.Messages, 1)
	a.breakdown.Add(msg.Tokens)

	key := msg.Source + ":" + msg.ModelID
	src, ok := a.sources[key]
	if !ok {
		src = &model.SourceContribution{
			Source:     msg.Source,
			ModelID:    msg.ModelID,
			ProviderID: msg.ProviderID,
		}
		a.sources[key] = src
	}
	src.Tokens.Add(msg.Tokens)
	src.Cost += msg.Cost
	src.Messages = model.SaturatingAdd(src.Messages, 1)
}

func (a *dayAccumulator) merge(other *dayAccumulator) {
	a.totals.Tokens = model.SaturatingAdd(a.totals.Tokens, other.totals.Tokens)
	a.totals.Cost += other.totals.Cost
	a.totals.Messages = model.SaturatingAdd(a.totals.Messages, other.totals.Messages)
	a.breakdown.Add(other.breakdown)

	for key, src := range other.sources {
		dst, ok := a.sources[key]
		if !ok {
			dst = &model.SourceContribution{
				Source:     src.Source,
				ModelID:    src.ModelID,
				ProviderID: src.ProviderID,
			}
			a.sources[key] = dst
		}
		dst.Tokens.Add(src.Tokens)
		dst.Cost += src.Cost
		dst.Messages = model.SaturatingAdd(dst.Messages, src.Messages)
	}
}

// intoContribution finalizes the accumulator. Intensity is filled in later
// once the maximum daily cost across the whole set is known. Sources are
// sorted by key for stable output.
func (a *dayAccumulator) intoContribution(date string) model.DailyContribution {
	keys := make([]string, 0, len(a.sources))
	for key := range a.sources {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	sources := make([]model.SourceContribution, 0, len(keys))
	for _, key := range keys {
		sources = append(sources, *a.sources[key])
	}

	return model.DailyContribution{
		Date:           date,
		Totals:         a.totals,
		TokenBreakdown: a.breakdown,
		Sources:        sources,
	}
}

// messagePoint is the per-message state an interval bucket keeps past
// immediate folding, used only for rate statistics at finalization.
type messagePoint struct {
	timestamp int64
	tokens    int64
}

// intervalAccumulator folds messages for one fixed-width time bucket.
type intervalAccumulator struct {
	breakdown model.TokenBreakdown
	messages  int
	cost      float64
	points    []messagePoint
}

func newIntervalAccumulator() *intervalAccumulator {
	return &intervalAccumulator{}
}

func (a *intervalAccumulator) addMessage(msg *model.UnifiedMessage) {
	a.breakdown.Add(msg.Tokens)
	a.cost += msg.Cost
	a.messages++
	a.points = append(a.points, messagePoint{timestamp: msg.Timestamp, tokens: msg.Tokens.Total()})
}

func (a *intervalAccumulator) merge(other *intervalAccumulator) {
	a.breakdown.Add(other.breakdown)
	a.cost += other.cost
	a.messages += other.messages
	a.points = append(a.points, other.points...)
}

func (a *intervalAccumulator) intoBucket(startMs, intervalMs int64) model.IntervalBucket {
	return model.IntervalBucket{
		StartMs:        startMs,
		EndMs:          startMs + intervalMs,
		TokenBreakdown: a.breakdown,
		Messages:       a.messages,
		CostMicros:     int64(a.cost * 1_000_000.0),
		RateStats:      a.rateStats(intervalMs),
	}
}

// Clamp bounds for the elapsed time between consecutive messages. The floor
// keeps burst pairs from producing absurd peak rates, the ceiling keeps long
// idle gaps from dragging the minimum toward zero.
const (
	minDtMs = 5_000
	maxDtMs = 1_800_000
)

// rateStats derives tokens-per-minute statistics from the retained
// (timestamp, tokens) points. Returns nil for an empty bucket.
func (a *intervalAccumulator) rateStats(intervalMs int64) *model.RateStats {
	if len(a.points) == 0 {
		return nil
	}

	intervalMinutes := float64(intervalMs) / 60_000.0
	avg := float64(a.breakdown.Total()) / intervalMinutes

	if len(a.points) == 1 {
		return &model.RateStats{AvgTokensPerMin: avg, MaxTokensPerMin: avg, MinTokensPerMin: avg}
	}

	sorted := make([]messagePoint, len(a.points))
	copy(sorted, a.points)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].timestamp < sorted[j].timestamp
	})

	maxRate := 0.0
	minRate := 0.0
	haveMin := false

	for i := 0; i < len(sorted)-1; i++ {
		dt := sorted[i+1].timestamp - sorted[i].timestamp
		if dt < minDtMs {
			dt = minDtMs
		} else if dt > maxDtMs {
			dt = maxDtMs
		}
		rate := float64(sorted[i+1].tokens) / (float64(dt) / 60_000.0)

		if rate > maxRate {
			maxRate = rate
		}
		if !haveMin || rate < minRate {
			minRate = rate
			haveMin = true
		}
	}

	if maxRate < avg {
		maxRate = avg
	}
	if minRate > avg {
		minRate = avg
	}

	return &model.RateStats{
		AvgTokensPerMin: avg,
		MaxTokensPerMin: maxRate,
		MinTokensPerMin: minRate,
	}
}
