package output

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tomhv/usagegraph/internal/model"
)

const (
	compactThreshold = 100 // Terminal width below which compact mode kicks in
	defaultWidth     = 120
)

// TableOptions controls table display behavior
type TableOptions struct {
	ForceCompact bool
}

// shouldUseCompact determines if compact mode should be used
func shouldUseCompact(opts TableOptions) bool {
	if opts.ForceCompact {
		return true
	}
	return getTerminalWidth() < compactThreshold
}

// FormatNumber formats a number with thousand separators
func FormatNumber(n int64) string {
	if n == 0 {
		return "0"
	}

	str := fmt.Sprintf("%d", n)
	negative := n < 0
	if negative {
		str = str[1:]
	}

	var result strings.Builder
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result.WriteRune(',')
		}
		result.WriteRune(c)
	}

	if negative {
		return "-" + result.String()
	}
	return result.String()
}

// FormatCost formats a cost value as currency
func FormatCost(cost float64) string {
	return fmt.Sprintf("$%.2f", cost)
}

// intensityGlyphs maps the 0-4 intensity ordinal to a heatmap-style cell.
var intensityGlyphs = [5]string{"·", "░", "▒", "▓", "█"}

// PrintDaily prints daily contributions as a formatted table with a summary
// footer.
func PrintDaily(days []model.DailyContribution, s model.DataSummary, opts TableOptions) {
	if len(days) == 0 {
		fmt.Println("No usage data found.")
		return
	}

	compact := shouldUseCompact(opts)
	fmt.Println()

	if compact {
		fmt.Printf("%-10s  %s  %14s  %8s  %10s\n", "Date", "•", "Tokens", "Msgs", "Cost")
		fmt.Println(strings.Repeat("─", 10+3+2+14+2+8+2+10))
		for _, d := range days {
			fmt.Printf("%-10s  %s  %14s  %8s  %10s\n",
				d.Date,
				intensityGlyphs[clampIntensity(d.Intensity)],
				FormatNumber(d.Totals.Tokens),
				FormatNumber(d.Totals.Messages),
				FormatCost(d.Totals.Cost))
		}
	} else {
		fmt.Printf("%-10s  %s  %12s  %12s  %14s  %14s  %8s  %10s\n",
			"Date", "•", "Input", "Output", "Cache Read", "Cache Write", "Msgs", "Cost")
		fmt.Println(strings.Repeat("─", 10+3+2+12+2+12+2+14+2+14+2+8+2+10))
		for _, d := range days {
			fmt.Printf("%-10s  %s  %12s  %12s  %14s  %14s  %8s  %10s\n",
				d.Date,
				intensityGlyphs[clampIntensity(d.Intensity)],
				FormatNumber(d.TokenBreakdown.Input),
				FormatNumber(d.TokenBreakdown.Output),
				FormatNumber(d.TokenBreakdown.CacheRead),
				FormatNumber(d.TokenBreakdown.CacheWrite),
				FormatNumber(d.Totals.Messages),
				FormatCost(d.Totals.Cost))
		}
	}

	fmt.Println()
	fmt.Printf("Total: %s tokens, %s across %d days (%d active)\n",
		FormatNumber(s.TotalTokens), FormatCost(s.TotalCost), s.TotalDays, s.ActiveDays)
	fmt.Printf("Average per active day: %s, most expensive day: %s\n",
		FormatCost(s.AveragePerDay), FormatCost(s.MaxCostInSingleDay))
	if len(s.Models) > 0 {
		fmt.Printf("Models: %s\n", strings.Join(s.Models, ", "))
	}
	if len(s.Sources) > 0 {
		fmt.Printf("Sources: %s\n", strings.Join(s.Sources, ", "))
	}
	fmt.Println()
}

func clampIntensity(n int) int {
	if n < 0 {
		return 0
	}
	if n > 4 {
		return 4
	}
	return n
}

// PrintIntervals prints interval buckets as a formatted table.
func PrintIntervals(buckets []model.IntervalBucket, opts TableOptions) {
	if len(buckets) == 0 {
		fmt.Println("No usage data found.")
		return
	}

	compact := shouldUseCompact(opts)
	fmt.Println()

	if compact {
		fmt.Printf("%-16s  %14s  %8s  %10s\n", "Start (UTC)", "Tokens", "Msgs", "Cost")
		fmt.Println(strings.Repeat("─", 16+2+14+2+8+2+10))
		for _, b := range buckets {
			fmt.Printf("%-16s  %14s  %8s  %10s\n",
				formatBucketStart(b.StartMs),
				FormatNumber(b.TokenBreakdown.Total()),
				FormatNumber(int64(b.Messages)),
				FormatCost(float64(b.CostMicros)/1_000_000.0))
		}
	} else {
		fmt.Printf("%-16s  %14s  %8s  %12s  %12s  %12s  %10s\n",
			"Start (UTC)", "Tokens", "Msgs", "Avg tok/min", "Max tok/min", "Min tok/min", "Cost")
		fmt.Println(strings.Repeat("─", 16+2+14+2+8+2+12+2+12+2+12+2+10))
		for _, b := range buckets {
			avg, maxRate, minRate := "-", "-", "-"
			if b.RateStats != nil {
				avg = fmt.Sprintf("%.1f", b.RateStats.AvgTokensPerMin)
				maxRate = fmt.Sprintf("%.1f", b.RateStats.MaxTokensPerMin)
				minRate = fmt.Sprintf("%.1f", b.RateStats.MinTokensPerMin)
			}
			fmt.Printf("%-16s  %14s  %8s  %12s  %12s  %12s  %10s\n",
				formatBucketStart(b.StartMs),
				FormatNumber(b.TokenBreakdown.Total()),
				FormatNumber(int64(b.Messages)),
				avg, maxRate, minRate,
				FormatCost(float64(b.CostMicros)/1_000_000.0))
		}
	}
	fmt.Println()
}

func formatBucketStart(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04")
}

// PrintJSON writes any value as indented JSON to stdout.
func PrintJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
