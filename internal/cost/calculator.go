// Package cost estimates the spend of inference and search calls and
// publishes it as metrics.
package cost

import "github.com/sells-group/propstatus/internal/metrics"

// Rates holds per-model and per-search-provider pricing.
type Rates struct {
	// Models is keyed by model ID; prices are USD per million tokens.
	Models map[string]ModelRate
	// SearchPerQuery is the flat USD price of one lookup, keyed by provider.
	SearchPerQuery map[string]float64
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64
	Output float64
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Default prices calls made by the provider and search packages.
var Default = NewCalculator(DefaultRates())

// Tokens computes the cost of one completion. ok is false for unpriced
// models.
func (c *Calculator) Tokens(model string, input, output int64) (usd float64, ok bool) {
	rate, ok := c.rates.Models[model]
	if !ok {
		return 0, false
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output, true
}

// SearchQuery returns the flat cost of one lookup against provider.
func (c *Calculator) SearchQuery(provider string) float64 {
	return c.rates.SearchPerQuery[provider]
}

// RecordTokens counts token usage for a completion and adds its estimated
// spend. Token counts are recorded even when the model is unpriced.
func (c *Calculator) RecordTokens(provider, model string, input, output int64) float64 {
	if input > 0 {
		metrics.ProviderTokensTotal.WithLabelValues(provider, model, "input").Add(float64(input))
	}
	if output > 0 {
		metrics.ProviderTokensTotal.WithLabelValues(provider, model, "output").Add(float64(output))
	}
	usd, ok := c.Tokens(model, input, output)
	if ok && usd > 0 {
		metrics.EstimatedSpendUSD.WithLabelValues(provider).Add(usd)
	}
	return usd
}

// RecordSearch adds the spend of one lookup.
func (c *Calculator) RecordSearch(provider string) float64 {
	usd := c.SearchQuery(provider)
	if usd > 0 {
		metrics.EstimatedSpendUSD.WithLabelValues(provider).Add(usd)
	}
	return usd
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"llama-3.3-70b-versatile":    {Input: 0.59, Output: 0.79},
			"llama-3.1-8b-instant":       {Input: 0.05, Output: 0.08},
			"claude-haiku-4-5-20251001":  {Input: 1.00, Output: 5.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
		SearchPerQuery: map[string]float64{
			"tavily":     0.008,
			"perplexity": 0.005,
		},
	}
}
