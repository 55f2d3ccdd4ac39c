package pricing

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/tomhv/usagegraph/internal/model"
)

const liteLLMPricingURL = "https://raw.githubusercontent.com/BerriAI/litellm/main/model_prices_and_context_window.json"

// liteLLMModel represents the pricing structure from LiteLLM
type liteLLMModel struct {
	InputCostPerToken  float64 `json:"input_cost_per_token"`
	OutputCostPerToken float64 `json:"output_cost_per_token"`
	CacheCreationCost  float64 `json:"cache_creation_input_token_cost"`
	CacheReadCost      float64 `json:"cache_read_input_token_cost"`
	LiteLLMProvider    string  `json:"litellm_provider"`
}

// providers whose entries are kept from the LiteLLM feed
var allowedProviders = map[string]bool{
	"anthropic": true,
	"openai":    true,
	"gemini":    true,
	"vertex_ai": true,
	"bedrock":   true,
}

var (
	cacheMu       sync.Mutex
	catalogCache  *Catalog
	cacheTime     time.Time
	cacheDuration = 1 * time.Hour
)

// FetchCatalog fetches pricing data from LiteLLM and builds a fresh catalog.
// Any failure falls back to the embedded table so callers always get a usable
// catalog. Results are cached in memory for an hour.
func FetchCatalog() *Catalog {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if catalogCache != nil && time.Since(cacheTime) < cacheDuration {
		return catalogCache
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(liteLLMPricingURL)
	if err != nil {
		return EmbeddedCatalog()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return EmbeddedCatalog()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return EmbeddedCatalog()
	}

	var rawPricing map[string]liteLLMModel
	if err := json.Unmarshal(body, &rawPricing); err != nil {
		return EmbeddedCatalog()
	}

	models := make(map[string]model.ModelPricing, len(rawPricing))
	for name, data := range rawPricing {
		if !allowedProviders[data.LiteLLMProvider] {
			continue
		}
		models[name] = model.ModelPricing{
			InputCostPerToken:         data.InputCostPerToken,
			OutputCostPerToken:        data.OutputCostPerToken,
			CacheReadCostPerToken:     data.CacheReadCost,
			CacheCreationCostPerToken: data.CacheCreationCost,
		}
	}

	if len(models) == 0 {
		return EmbeddedCatalog()
	}

	catalogCache = New(models)
	cacheTime = time.Now()
	return catalogCache
}

// Load returns a pricing catalog, using the embedded table when offline is set
// and the LiteLLM feed (with embedded fallback) otherwise.
func Load(offline bool) *Catalog {
	if offline {
		return EmbeddedCatalog()
	}
	return FetchCatalog()
}

// EmbeddedCatalog returns the fallback pricing table compiled into the binary.
func EmbeddedCatalog() *Catalog {
	return New(map[string]model.ModelPricing{
		// Opus 4.5
		"claude-opus-4-5-20251101": {
			InputCostPerToken:         5e-06,
			OutputCostPerToken:        2.5e-05,
			CacheCreationCostPerToken: 6.25e-06,
			CacheReadCostPerToken:     5e-07,
		},
		"claude-opus-4-5": {
			InputCostPerToken:         5e-06,
			OutputCostPerToken:        2.5e-05,
			CacheCreationCostPerToken: 6.25e-06,
			CacheReadCostPerToken:     5e-07,
		},
		// Opus 4.1
		"claude-opus-4-1-20250805": {
			InputCostPerToken:         1.5e-05,
			OutputCostPerToken:        7.5e-05,
			CacheCreationCostPerToken: 1.875e-05,
			CacheReadCostPerToken:     1.5e-06,
		},
		// Opus 4
		"opus-4": {
			InputCostPerToken:         1.5e-05,
			OutputCostPerToken:        7.5e-05,
			CacheCreationCostPerToken: 1.875e-05,
			CacheReadCostPerToken:     1.5e-06,
		},
		"claude-opus-4-20250514": {
			InputCostPerToken:         1.5e-05,
			OutputCostPerToken:        7.5e-05,
			CacheCreationCostPerToken: 1.875e-05,
			CacheReadCostPerToken:     1.5e-06,
		},
		// Sonnet 4.5
		"claude-sonnet-4-5-20250929": {
			InputCostPerToken:         3e-06,
			OutputCostPerToken:        1.5e-05,
			CacheCreationCostPerToken: 3.75e-06,
			CacheReadCostPerToken:     3e-07,
		},
		"sonnet-4-5": {
			InputCostPerToken:         3e-06,
			OutputCostPerToken:        1.5e-05,
			CacheCreationCostPerToken: 3.75e-06,
			CacheReadCostPerToken:     3e-07,
		},
		// Sonnet 4
		"sonnet-4": {
			InputCostPerToken:         3e-06,
			OutputCostPerToken:        1.5e-05,
			CacheCreationCostPerToken: 3.75e-06,
			CacheReadCostPerToken:     3e-07,
		},
		"claude-sonnet-4-20250514": {
			InputCostPerToken:         3e-06,
			OutputCostPerToken:        1.5e-05,
			CacheCreationCostPerToken: 3.75e-06,
			CacheReadCostPerToken:     3e-07,
		},
		// Sonnet 3.7
		"claude-3-7-sonnet-20250219": {
			InputCostPerToken:         3e-06,
			OutputCostPerToken:        1.5e-05,
			CacheCreationCostPerToken: 3.75e-06,
			CacheReadCostPerToken:     3e-07,
		},
		// Sonnet 3.5
		"claude-3-5-sonnet-20241022": {
			InputCostPerToken:         3e-06,
			OutputCostPerToken:        1.5e-05,
			CacheCreationCostPerToken: 3.75e-06,
			CacheReadCostPerToken:     3e-07,
		},
		// Haiku 4.5
		"claude-haiku-4-5-20251001": {
			InputCostPerToken:         1e-06,
			OutputCostPerToken:        5e-06,
			CacheCreationCostPerToken: 1.25e-06,
			CacheReadCostPerToken:     1e-07,
		},
		"haiku-4-5": {
			InputCostPerToken:         1e-06,
			OutputCostPerToken:        5e-06,
			CacheCreationCostPerToken: 1.25e-06,
			CacheReadCostPerToken:     1e-07,
		},
		// Haiku 3.5
		"claude-3-5-haiku-20241022": {
			InputCostPerToken:         8e-07,
			OutputCostPerToken:        4e-06,
			CacheCreationCostPerToken: 1e-06,
			CacheReadCostPerToken:     8e-08,
		},
		// GPT
		"gpt-4o": {
			InputCostPerToken:  2.5e-06,
			OutputCostPerToken: 1e-05,
		},
		"gpt-4.1": {
			InputCostPerToken:  2e-06,
			OutputCostPerToken: 8e-06,
		},
		"o3": {
			InputCostPerToken:  2e-06,
			OutputCostPerToken: 8e-06,
		},
		// Gemini
		"gemini-2.5-pro": {
			InputCostPerToken:  1.25e-06,
			OutputCostPerToken: 1e-05,
		},
		"gemini-2.5-flash": {
			InputCostPerToken:  3e-07,
			OutputCostPerToken: 2.5e-06,
		},
	})
}
