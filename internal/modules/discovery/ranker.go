package discovery

import (
	"sort"

	"github.com/aristath/playbook/internal/config"
	"github.com/aristath/playbook/internal/modules/universe"
	"github.com/aristath/playbook/pkg/formulas"
)

// Rank scores every snapshot instrument against the query features and
// returns the top candidates. The card's own symbols are excluded. Ordering
// is deterministic: score descending, then symbol ascending, so one snapshot
// version always yields identical results.
func Rank(q QueryFeatures, snap *universe.Snapshot, w config.ScoringWeights, topK int, minScore float64) []Candidate {
	candidates := make([]Candidate, 0, snap.Size())

	for i := range snap.Instruments {
		inst := &snap.Instruments[i]
		if q.OwnSymbols[inst.Symbol] {
			continue
		}

		// Both terms clamped to [0, 1] before combination so a degenerate
		// vector cannot push the score out of range.
		textSim := formulas.Clamp01(formulas.CosineSimilarity(q.Embedding, inst.Embedding))
		overlap, matches := featureOverlap(q, inst, w)
		overlap = formulas.Clamp01(overlap)

		score := w.Text*textSim + w.Feature*overlap
		if score < minScore || score <= 0 {
			continue
		}

		features := make(map[string]float64, len(matches)+1)
		if textSim > 0 {
			features[DimText] = w.Text * textSim
		}
		for name, m := range matches {
			features[name] = w.Feature * m.weighted
		}

		candidates = append(candidates, Candidate{
			Symbol:          inst.Symbol,
			Venue:           inst.Venue,
			Score:           score,
			MatchedFeatures: features,
			ExplanationEN:   explainEN(features, matches),
			ExplanationCN:   explainCN(features, matches),
			CurrentPrice:    inst.LatestPrice,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Symbol < candidates[j].Symbol
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates
}

// ClampTopK bounds top_k to [1, 10], defaulting to 5.
func ClampTopK(topK int) int {
	switch {
	case topK == 0:
		return 5
	case topK < 1:
		return 1
	case topK > 10:
		return 10
	}
	return topK
}

// ClampMinScore bounds min_score to [0, 1].
func ClampMinScore(minScore float64) float64 {
	return formulas.Clamp01(minScore)
}
