package discovery

import (
	"fmt"
	"sort"
	"strings"
)

// Explanations are rendered purely from the matched features and the shared
// tag values behind them. No feature, no sentence.

var dimLabelsEN = map[string]string{
	DimTheme:       "themes",
	DimCatalyst:    "catalysts",
	DimGeography:   "geography",
	DimSupplyChain: "supply chain role",
}

var dimLabelsCN = map[string]string{
	DimTheme:       "主题",
	DimCatalyst:    "催化剂",
	DimGeography:   "地域",
	DimSupplyChain: "供应链角色",
}

// dimOrder keeps explanation sentences in a stable order across runs.
var dimOrder = []string{DimTheme, DimCatalyst, DimGeography, DimSupplyChain}

func explainEN(features map[string]float64, matches map[string]dimMatch) string {
	var parts []string
	if contrib, ok := features[DimText]; ok {
		parts = append(parts, fmt.Sprintf("thesis text similarity %.2f", contrib))
	}
	for _, dim := range dimOrder {
		m, ok := matches[dim]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("shared %s: %s", dimLabelsEN[dim], strings.Join(m.shared, ", ")))
	}
	if len(parts) == 0 {
		return ""
	}
	return "Matched because of " + strings.Join(parts, "; ")
}

func explainCN(features map[string]float64, matches map[string]dimMatch) string {
	var parts []string
	if contrib, ok := features[DimText]; ok {
		parts = append(parts, fmt.Sprintf("论点文本相似度 %.2f", contrib))
	}
	for _, dim := range dimOrder {
		m, ok := matches[dim]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("共同%s：%s", dimLabelsCN[dim], strings.Join(m.shared, "、")))
	}
	if len(parts) == 0 {
		return ""
	}
	return "匹配因为" + strings.Join(parts, "；")
}

// FeatureBreakdown renders the matched features as sorted "name=value" pairs,
// used by logs.
func FeatureBreakdown(features map[string]float64) string {
	keys := make([]string, 0, len(features))
	for k := range features {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.3f", k, features[k]))
	}
	return strings.Join(parts, " ")
}
