package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/minescope/backend/pkg/common"
)

// CostItem is one cost-bearing node inside a rollup.
type CostItem struct {
	NodeKey string  `json:"node_key"`
	Name    string  `json:"name"`
	Type    string  `json:"type"`
	Cost    float64 `json:"cost"`
}

// CostRollup sums the cost properties of matched nodes per currency.
// Nodes without a parseable cost are skipped, never guessed.
type CostRollup struct {
	Currency string     `json:"currency"`
	Total    float64    `json:"total"`
	Items    []CostItem `json:"items"`
}

const defaultCurrency = "USD"

// RollupCosts derives per-currency cost totals from the cost-bearing nodes
// of a subgraph. Currencies are never mixed into one total.
func RollupCosts(nodes []common.Node) []CostRollup {
	byCurrency := make(map[string]*CostRollup)

	for _, node := range nodes {
		raw, ok := node.Properties["cost"]
		if !ok {
			continue
		}
		cost, ok := parseCost(raw)
		if !ok {
			continue
		}

		currency := defaultCurrency
		if c, ok := node.Properties["currency"].(string); ok && strings.TrimSpace(c) != "" {
			currency = strings.ToUpper(strings.TrimSpace(c))
		}

		rollup := byCurrency[currency]
		if rollup == nil {
			rollup = &CostRollup{Currency: currency}
			byCurrency[currency] = rollup
		}
		rollup.Total += cost
		rollup.Items = append(rollup.Items, CostItem{
			NodeKey: node.Key,
			Name:    node.Name,
			Type:    node.Type,
			Cost:    cost,
		})
	}

	currencies := make([]string, 0, len(byCurrency))
	for c := range byCurrency {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)

	out := make([]CostRollup, 0, len(currencies))
	for _, c := range currencies {
		rollup := byCurrency[c]
		sort.Slice(rollup.Items, func(i, j int) bool {
			return rollup.Items[i].NodeKey < rollup.Items[j].NodeKey
		})
		out = append(out, *rollup)
	}
	return out
}

// parseCost accepts numeric property values and common string renderings
// like "1,200,000", "$500000", or "2.5M".
func parseCost(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		return parseCostString(v)
	case fmt.Stringer:
		return parseCostString(v.String())
	}
	return 0, false
}

func parseCostString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "$€£ ")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	multiplier := 1.0
	switch {
	case strings.HasSuffix(s, "M") || strings.HasSuffix(s, "m"):
		multiplier = 1e6
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "K") || strings.HasSuffix(s, "k"):
		multiplier = 1e3
		s = s[:len(s)-1]
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return value * multiplier, true
}
