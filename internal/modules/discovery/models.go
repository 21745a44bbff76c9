package discovery

// Candidate is one ranked similarity result. MatchedFeatures holds every
// nonzero contribution already multiplied by its weight, so the values sum to
// Score; explanations are rendered from it and nothing else.
type Candidate struct {
	Symbol          string             `json:"symbol"`
	Venue           string             `json:"venue,omitempty"`
	Score           float64            `json:"score"`
	MatchedFeatures map[string]float64 `json:"matched_features"`
	ExplanationEN   string             `json:"explanation_en"`
	ExplanationCN   string             `json:"explanation_cn"`
	CurrentPrice    *float64           `json:"current_price,omitempty"`
}

// Result is a similarity response: the candidates plus the snapshot version
// they were scored against.
type Result struct {
	CardID          string      `json:"card_id"`
	SnapshotVersion string      `json:"snapshot_version"`
	Candidates      []Candidate `json:"candidates"`
}
