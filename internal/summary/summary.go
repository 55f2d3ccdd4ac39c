// Package summary derives global rollups and the result envelope from a
// finished sequence of daily contributions. Everything here is rebuilt from
// scratch on each call; nothing has independent lifecycle or state.
package summary

import (
	"sort"
	"time"

	"github.com/tomhv/usagegraph/internal/model"
)

// Version tags generated envelopes so consumers can detect format drift.
const Version = "1.0.0"

// Calculate computes the global summary across all daily contributions.
func Calculate(contributions []model.DailyContribution) model.DataSummary {
	var totalTokens int64
	var totalCost, maxCost float64
	activeDays := 0

	sourcesSet := make(map[string]struct{}, 5)
	modelsSet := make(map[string]struct{}, 20)

	for i := range contributions {
		c := &contributions[i]
		totalTokens = model.SaturatingAdd(totalTokens, c.Totals.Tokens)
		totalCost += c.Totals.Cost
		if c.Totals.Cost > 0 {
			activeDays++
		}
		if c.Totals.Cost > maxCost {
			maxCost = c.Totals.Cost
		}
		for _, s := range c.Sources {
			sourcesSet[s.Source] = struct{}{}
			modelsSet[s.ModelID] = struct{}{}
		}
	}

	averagePerDay := 0.0
	if activeDays > 0 {
		averagePerDay = totalCost / float64(activeDays)
	}

	return model.DataSummary{
		TotalTokens:        totalTokens,
		TotalCost:          totalCost,
		TotalDays:          len(contributions),
		ActiveDays:         activeDays,
		AveragePerDay:      averagePerDay,
		MaxCostInSingleDay: maxCost,
		Sources:            sortedKeys(sourcesSet),
		Models:             sortedKeys(modelsSet),
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type yearAccumulator struct {
	tokens int64
	cost   float64
	start  string
	end    string
}

// Years groups contributions by calendar year (the first 4 characters of the
// date), tracking the covered date range per year, sorted ascending by year.
func Years(contributions []model.DailyContribution) []model.YearSummary {
	yearsMap := make(map[string]*yearAccumulator, 5)

	for i := range contributions {
		c := &contributions[i]
		year := c.Date
		if len(year) > 4 {
			year = year[:4]
		}

		acc, ok := yearsMap[year]
		if !ok {
			acc = &yearAccumulator{}
			yearsMap[year] = acc
		}
		acc.tokens = model.SaturatingAdd(acc.tokens, c.Totals.Tokens)
		acc.cost += c.Totals.Cost

		if acc.start == "" || c.Date < acc.start {
			acc.start = c.Date
		}
		if acc.end == "" || c.Date > acc.end {
			acc.end = c.Date
		}
	}

	years := make([]model.YearSummary, 0, len(yearsMap))
	for year, acc := range yearsMap {
		years = append(years, model.YearSummary{
			Year:        year,
			TotalTokens: acc.tokens,
			TotalCost:   acc.cost,
			RangeStart:  acc.start,
			RangeEnd:    acc.end,
		})
	}

	sort.Slice(years, func(i, j int) bool { return years[i].Year < years[j].Year })
	return years
}

// BuildGraphResult assembles the complete envelope from sorted daily
// contributions. processingTimeMs is measured by the caller since it usually
// spans parsing and aggregation, not just this assembly step.
func BuildGraphResult(contributions []model.DailyContribution, processingTimeMs int64) model.GraphResult {
	var rangeStart, rangeEnd string
	if len(contributions) > 0 {
		rangeStart = contributions[0].Date
		rangeEnd = contributions[len(contributions)-1].Date
	}

	return model.GraphResult{
		Meta: model.GraphMeta{
			GeneratedAt:      time.Now().UTC().Format(time.RFC3339),
			Version:          Version,
			DateRangeStart:   rangeStart,
			DateRangeEnd:     rangeEnd,
			ProcessingTimeMs: processingTimeMs,
		},
		Summary:       Calculate(contributions),
		Years:         Years(contributions),
		Contributions: contributions,
	}
}
