// Package discovery ranks universe instruments against a card's thesis by
// combining text embedding similarity with structured tag overlap. Results
// are explainable: every score decomposes into named feature contributions.
package discovery

import (
	"sort"

	"github.com/aristath/playbook/internal/config"
	"github.com/aristath/playbook/internal/domain"
	"github.com/aristath/playbook/internal/modules/universe"
)

// Tag dimensions contributing to the feature overlap term.
const (
	DimText        = "text_similarity"
	DimTheme       = "theme_overlap"
	DimCatalyst    = "catalyst_overlap"
	DimGeography   = "geography_overlap"
	DimSupplyChain = "supply_chain_overlap"
)

// QueryFeatures is the card side of a similarity query: the thesis text plus
// the tag union over the card's instruments found in the snapshot.
type QueryFeatures struct {
	Text       string
	Themes     []string
	Catalysts  []string
	Geography  []string
	Roles      []string
	Embedding  []float64
	OwnSymbols map[string]bool
}

// BuildQueryFeatures derives the query features for a card against a
// snapshot. Symbols the snapshot does not know contribute no tags but still
// count as "own" for exclusion.
func BuildQueryFeatures(card *domain.Card, snap *universe.Snapshot) QueryFeatures {
	q := QueryFeatures{
		Text:       card.QueryText(),
		OwnSymbols: make(map[string]bool, len(card.Instruments)),
	}

	themes := make(map[string]bool)
	catalysts := make(map[string]bool)
	geos := make(map[string]bool)
	roles := make(map[string]bool)

	for _, ref := range card.Instruments {
		q.OwnSymbols[ref.Symbol] = true

		inst := snap.Get(ref.Symbol)
		if inst == nil {
			continue
		}
		for _, t := range inst.Tags.Themes {
			themes[t] = true
		}
		for _, c := range inst.Tags.Catalysts {
			catalysts[c] = true
		}
		for _, g := range inst.Tags.Geography {
			geos[g] = true
		}
		if inst.Tags.SupplyChainRole != "" {
			roles[inst.Tags.SupplyChainRole] = true
		}
	}

	q.Themes = sortedKeys(themes)
	q.Catalysts = sortedKeys(catalysts)
	q.Geography = sortedKeys(geos)
	q.Roles = sortedKeys(roles)
	return q
}

// dimMatch is the weighted overlap of one tag dimension: its contribution to
// the feature overlap term plus the shared tag values behind it.
type dimMatch struct {
	weighted float64
	shared   []string
}

// featureOverlap computes the weighted mean of the per-dimension Jaccard
// overlaps between the query and an instrument. Dimensions empty on either
// side contribute zero; the result is already in [0, 1]. The returned map
// holds only nonzero dimensions, each with its share of the total.
func featureOverlap(q QueryFeatures, inst *universe.Instrument, w config.ScoringWeights) (float64, map[string]dimMatch) {
	role := []string{}
	if inst.Tags.SupplyChainRole != "" {
		role = []string{inst.Tags.SupplyChainRole}
	}

	weightSum := w.Theme + w.Catalyst + w.Geography + w.SupplyChain
	if weightSum == 0 {
		return 0, nil
	}

	type dim struct {
		weight float64
		a, b   []string
	}
	dims := map[string]dim{
		DimTheme:       {w.Theme, q.Themes, inst.Tags.Themes},
		DimCatalyst:    {w.Catalyst, q.Catalysts, inst.Tags.Catalysts},
		DimGeography:   {w.Geography, q.Geography, inst.Tags.Geography},
		DimSupplyChain: {w.SupplyChain, q.Roles, role},
	}

	total := 0.0
	matches := make(map[string]dimMatch)
	for name, d := range dims {
		j, shared := jaccard(d.a, d.b)
		if j == 0 {
			continue
		}
		weighted := d.weight / weightSum * j
		total += weighted
		matches[name] = dimMatch{weighted: weighted, shared: shared}
	}

	return total, matches
}

// jaccard is |a∩b| / |a∪b| with the shared set alongside. Two empty sets have
// no overlap evidence, so the result is zero rather than one.
func jaccard(a, b []string) (float64, []string) {
	if len(a) == 0 || len(b) == 0 {
		return 0, nil
	}

	inA := make(map[string]bool, len(a))
	for _, x := range a {
		inA[x] = true
	}

	var shared []string
	union := make(map[string]bool, len(a)+len(b))
	for _, x := range a {
		union[x] = true
	}
	for _, x := range b {
		if inA[x] && !contains(shared, x) {
			shared = append(shared, x)
		}
		union[x] = true
	}
	sort.Strings(shared)

	return float64(len(shared)) / float64(len(union)), shared
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
