package pricing

import (
	"strings"

	"github.com/tomhv/usagegraph/internal/model"
)

// providerPrefixes are tried in order when a bare model id has no exact entry.
var providerPrefixes = [...]string{"anthropic/", "openai/", "google/", "bedrock/"}

// Catalog is an immutable snapshot of model pricing keyed by canonical model
// name. Build a new Catalog when pricing data changes instead of mutating an
// existing one; resolution calls may run concurrently against a shared snapshot.
type Catalog struct {
	models map[string]model.ModelPricing
}

// New builds a catalog from a name -> pricing table. The map is copied so the
// caller can keep mutating its own copy.
func New(models map[string]model.ModelPricing) *Catalog {
	m := make(map[string]model.ModelPricing, len(models))
	for name, p := range models {
		m[name] = p
	}
	return &Catalog{models: m}
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.models)
}

// Resolve maps a free-form model id to its pricing entry. Match stages, first
// hit wins:
//
//  1. exact key
//  2. exact key after prepending each provider prefix
//  3. alias normalization ("claude-4-sonnet" -> "sonnet-4"), then 1-2 again
//  4. case-insensitive substring match against every key
//
// The fuzzy stage picks the longest matching key, ties broken lexicographically,
// so resolution is deterministic even when several keys match.
func (c *Catalog) Resolve(modelID string) (model.ModelPricing, bool) {
	if p, ok := c.lookupWithPrefixes(modelID); ok {
		return p, true
	}

	normalized := normalizeModelName(modelID)
	if normalized != "" {
		if p, ok := c.lookupWithPrefixes(normalized); ok {
			return p, true
		}
	}

	return c.fuzzyMatch(modelID, normalized)
}

func (c *Catalog) lookupWithPrefixes(name string) (model.ModelPricing, bool) {
	if p, ok := c.models[name]; ok {
		return p, true
	}
	for _, prefix := range providerPrefixes {
		if p, ok := c.models[prefix+name]; ok {
			return p, true
		}
	}
	return model.ModelPricing{}, false
}

// fuzzyMatch accepts any key where the lower-cased id (or its normalized form)
// is a substring of the key or vice versa.
func (c *Catalog) fuzzyMatch(modelID, normalized string) (model.ModelPricing, bool) {
	lowerID := strings.ToLower(modelID)
	lowerNorm := strings.ToLower(normalized)

	var bestKey string
	found := false
	for key := range c.models {
		lowerKey := strings.ToLower(key)
		match := strings.Contains(lowerKey, lowerID) || strings.Contains(lowerID, lowerKey)
		if !match && lowerNorm != "" {
			match = strings.Contains(lowerKey, lowerNorm) || strings.Contains(lowerNorm, lowerKey)
		}
		if !match {
			continue
		}
		if !found || len(key) > len(bestKey) || (len(key) == len(bestKey) && key < bestKey) {
			bestKey = key
			found = true
		}
	}

	if !found {
		return model.ModelPricing{}, false
	}
	return c.models[bestKey], true
}

// normalizeModelName rewrites vendor-specific aliases (Cursor-style names like
// "claude-4-sonnet" or "4.5-opus-thinking") into the canonical "{family}-{version}"
// form. Returns "" when the id matches no known pattern.
func normalizeModelName(modelID string) string {
	lower := strings.ToLower(modelID)

	if strings.Contains(lower, "opus") {
		switch {
		case strings.Contains(lower, "4.5") || strings.Contains(lower, "4-5"):
			return "opus-4-5"
		case strings.Contains(lower, "4"):
			return "opus-4"
		}
	}
	if strings.Contains(lower, "sonnet") {
		switch {
		case strings.Contains(lower, "4.5") || strings.Contains(lower, "4-5"):
			return "sonnet-4-5"
		case strings.Contains(lower, "4"):
			return "sonnet-4"
		case strings.Contains(lower, "3.7") || strings.Contains(lower, "3-7"):
			return "sonnet-3-7"
		case strings.Contains(lower, "3.5") || strings.Contains(lower, "3-5"):
			return "sonnet-3-5"
		}
	}
	if strings.Contains(lower, "haiku") {
		if strings.Contains(lower, "4.5") || strings.Contains(lower, "4-5") {
			return "haiku-4-5"
		}
	}

	if lower == "o3" {
		return "o3"
	}
	if strings.HasPrefix(lower, "gpt-4o") {
		return "gpt-4o"
	}
	if strings.Contains(lower, "gpt-4.1") {
		return "gpt-4.1"
	}

	if strings.Contains(lower, "gemini-2.5-pro") {
		return "gemini-2.5-pro"
	}
	if strings.Contains(lower, "gemini-2.5-flash") {
		return "gemini-2.5-flash"
	}

	return ""
}

// CalculateCost computes the dollar cost of a token breakdown for a model.
// Reasoning tokens are billed at the output rate. Returns 0 when the model id
// cannot be resolved so unknown models never abort an aggregation run.
func (c *Catalog) CalculateCost(modelID string, tokens model.TokenBreakdown) float64 {
	p, ok := c.Resolve(modelID)
	if !ok {
		return 0.0
	}

	cost := float64(tokens.Input) * p.InputCostPerToken
	cost += float64(tokens.Output+tokens.Reasoning) * p.OutputCostPerToken
	cost += float64(tokens.CacheRead) * p.CacheReadCostPerToken
	cost += float64(tokens.CacheWrite) * p.CacheCreationCostPerToken
	return cost
}
