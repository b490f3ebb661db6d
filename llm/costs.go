// Cost estimation per provider model.
//
// Prices are USD per million tokens. The table is an estimate for run
// accounting, not a billing source of truth.
package llm

import (
	"github.com/armon/go-radix"
)

type modelPricing struct {
	inputPerMTok  float64
	outputPerMTok float64
}

// pricingTable maps model name prefixes to prices. Longest prefix wins,
// so dated model names ("claude-sonnet-4-20250514") resolve to their
// family entry.
var pricingTable = map[string]modelPricing{
	"gpt-5.2":        {1.25, 10.00},
	"gpt-5":          {1.25, 10.00},
	"gpt-4o-mini":    {0.15, 0.60},
	"gpt-4o":         {2.50, 10.00},
	"o3-mini":        {1.10, 4.40},
	"o1":             {15.00, 60.00},
	"claude-opus":    {15.00, 75.00},
	"claude-sonnet":  {3.00, 15.00},
	"claude-haiku":   {0.80, 4.00},
	"deepseek":       {0.27, 1.10},
	"gemini-3-pro":   {1.25, 10.00},
	"gemini-3-flash": {0.10, 0.40},
	"gemini-2.0":     {0.10, 0.40},
}

// pricingTree indexes the table for longest-prefix lookup.
var pricingTree = buildPricingTree()

func buildPricingTree() *radix.Tree {
	tree := radix.New()
	for prefix, price := range pricingTable {
		tree.Insert(prefix, price)
	}
	return tree
}

// EstimateCostUSD estimates the cost of a call from its token usage.
// Unknown models cost zero rather than guessing.
func EstimateCostUSD(model string, usage *TokenUsage) float64 {
	if usage == nil {
		return 0
	}
	_, val, found := pricingTree.LongestPrefix(model)
	if !found {
		return 0
	}
	p, ok := val.(modelPricing)
	if !ok {
		return 0
	}
	in := float64(usage.PromptTokens) / 1_000_000 * p.inputPerMTok
	out := float64(usage.CompletionTokens) / 1_000_000 * p.outputPerMTok
	return in + out
}
