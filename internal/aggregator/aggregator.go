// Package aggregator folds usage messages into time-bucketed and calendar-day
// aggregates using a parallel fold-then-reduce over disjoint partitions of the
// input. Accumulator merge is commutative and associative, so the result is
// identical for any partition count, partition boundaries, or reduction order.
package aggregator

import (
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/tomhv/usagegraph/internal/model"
)

// Below this many messages a single sequential fold beats spinning up workers.
const parallelThreshold = 4096

func workerCount(n int) int {
	if n < parallelThreshold {
		return 1
	}
	workers := runtime.NumCPU()
	if workers > n/1024 {
		workers = n / 1024
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// foldParallel partitions messages across workers, folds each partition into a
// worker-local map, and merges the partial maps pairwise. Accumulators are
// partition-local until the merge step, which owns both operands, so no locks
// are needed.
func foldParallel[K comparable, A any](
	messages []model.UnifiedMessage,
	bucketKey func(*model.UnifiedMessage) K,
	newAcc func() A,
	add func(A, *model.UnifiedMessage),
	merge func(A, A),
) map[K]A {
	workers := workerCount(len(messages))

	fold := func(lo, hi int) map[K]A {
		local := make(map[K]A)
		for i := lo; i < hi; i++ {
			msg := &messages[i]
			k := bucketKey(msg)
			acc, ok := local[k]
			if !ok {
				acc = newAcc()
				local[k] = acc
			}
			add(acc, msg)
		}
		return local
	}

	if workers == 1 {
		return fold(0, len(messages))
	}

	partials := make([]map[K]A, workers)
	chunk := (len(messages) + workers - 1) / workers

	var wg sync.WaitGroup
	for w := range workers {
		lo := w * chunk
		hi := min(lo+chunk, len(messages))
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			partials[w] = fold(lo, hi)
		}(w, lo, hi)
	}
	wg.Wait()

	result := partials[0]
	for _, partial := range partials[1:] {
		for k, acc := range partial {
			if dst, ok := result[k]; ok {
				merge(dst, acc)
			} else {
				result[k] = acc
			}
		}
	}
	return result
}

// timestampBounds returns the minimum and maximum message timestamps via an
// associative min/max reduction across partitions.
func timestampBounds(messages []model.UnifiedMessage) (int64, int64) {
	workers := workerCount(len(messages))

	scan := func(lo, hi int) (int64, int64) {
		minTs, maxTs := int64(math.MaxInt64), int64(math.MinInt64)
		for i := lo; i < hi; i++ {
			ts := messages[i].Timestamp
			if ts < minTs {
				minTs = ts
			}
			if ts > maxTs {
				maxTs = ts
			}
		}
		return minTs, maxTs
	}

	if workers == 1 {
		return scan(0, len(messages))
	}

	mins := make([]int64, workers)
	maxs := make([]int64, workers)
	chunk := (len(messages) + workers - 1) / workers

	var wg sync.WaitGroup
	for w := range workers {
		lo := w * chunk
		hi := min(lo+chunk, len(messages))
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			mins[w], maxs[w] = scan(lo, hi)
		}(w, lo, hi)
	}
	wg.Wait()

	minTs, maxTs := mins[0], maxs[0]
	for w := 1; w < workers; w++ {
		if mins[w] < minTs {
			minTs = mins[w]
		}
		if maxs[w] > maxTs {
			maxTs = maxs[w]
		}
	}
	return minTs, maxTs
}

// ByInterval aggregates messages into fixed-width time buckets aligned to
// multiples of intervalMs from the epoch. The returned series is contiguous:
// every bucket between the first and last populated one is present, with empty
// buckets carrying a zero breakdown and no rate stats.
func ByInterval(messages []model.UnifiedMessage, intervalMs int64) []model.IntervalBucket {
	if len(messages) == 0 || intervalMs <= 0 {
		return nil
	}

	minTs, maxTs := timestampBounds(messages)
	firstBucket := (minTs / intervalMs) * intervalMs
	lastBucket := (maxTs / intervalMs) * intervalMs
	bucketCount := int((lastBucket-firstBucket)/intervalMs + 1)

	bucketMap := foldParallel(
		messages,
		func(msg *model.UnifiedMessage) int64 { return (msg.Timestamp / intervalMs) * intervalMs },
		newIntervalAccumulator,
		(*intervalAccumulator).addMessage,
		(*intervalAccumulator).merge,
	)

	buckets := make([]model.IntervalBucket, 0, bucketCount)
	for current := firstBucket; current <= lastBucket; current += intervalMs {
		if acc, ok := bucketMap[current]; ok {
			buckets = append(buckets, acc.intoBucket(current, intervalMs))
		} else {
			buckets = append(buckets, model.IntervalBucket{
				StartMs: current,
				EndMs:   current + intervalMs,
			})
		}
	}
	return buckets
}

// ByDate aggregates messages into per-day contributions keyed on the message's
// pre-supplied date string, sorted ascending by date, with intensities derived
// from each day's cost relative to the most expensive day.
func ByDate(messages []model.UnifiedMessage) []model.DailyContribution {
	if len(messages) == 0 {
		return nil
	}

	dailyMap := foldParallel(
		messages,
		func(msg *model.UnifiedMessage) string { return msg.Date },
		newDayAccumulator,
		(*dayAccumulator).addMessage,
		(*dayAccumulator).merge,
	)

	contributions := make([]model.DailyContribution, 0, len(dailyMap))
	for date, acc := range dailyMap {
		contributions = append(contributions, acc.intoContribution(date))
	}

	// Lexical order is chronological for fixed-width YYYY-MM-DD dates.
	sort.Slice(contributions, func(i, j int) bool {
		return contributions[i].Date < contributions[j].Date
	})

	calculateIntensities(contributions)
	return contributions
}

// calculateIntensities assigns each day an ordinal 0-4 based on its share of
// the maximum daily cost. All-zero days stay at 0.
func calculateIntensities(contributions []model.DailyContribution) {
	maxCost := 0.0
	for i := range contributions {
		if contributions[i].Totals.Cost > maxCost {
			maxCost = contributions[i].Totals.Cost
		}
	}
	if maxCost == 0 {
		return
	}

	for i := range contributions {
		ratio := contributions[i].Totals.Cost / maxCost
		switch {
		case ratio >= 0.75:
			contributions[i].Intensity = 4
		case ratio >= 0.5:
			contributions[i].Intensity = 3
		case ratio >= 0.25:
			contributions[i].Intensity = 2
		case ratio > 0:
			contributions[i].Intensity = 1
		default:
			contributions[i].Intensity = 0
		}
	}
}
