// Package universe manages the instrument catalogue used by the discovery
// engine: structured tags, precomputed embeddings and immutable, versioned
// snapshots of the whole set.
package universe

import (
	"strings"
)

// Geography values. Stored as plain strings in the catalogue; these constants
// cover the regions the seeding pipeline assigns.
const (
	GeoUS     = "US"
	GeoCN     = "CN"
	GeoHK     = "HK"
	GeoEU     = "EU"
	GeoJP     = "JP"
	GeoGlobal = "GLOBAL"
)

// Supply chain role values.
const (
	RoleUpstream   = "upstream"
	RoleMidstream  = "midstream"
	RoleDownstream = "downstream"
)

// Tags is the structured feature set attached to an instrument. Themes,
// catalysts and geography are open sets (a multinational carries several
// regions); the supply chain role is single-valued.
type Tags struct {
	Themes          []string `json:"themes,omitempty"`
	Catalysts       []string `json:"catalysts,omitempty"`
	Geography       []string `json:"geography,omitempty"`
	SupplyChainRole string   `json:"supply_chain_role,omitempty"`
}

// Instrument is a candidate ticker in the discovery universe. Instruments are
// immutable within a snapshot; a rebuild replaces the whole set.
type Instrument struct {
	Symbol      string    `json:"symbol"`
	Venue       string    `json:"venue"`
	NameEN      string    `json:"name_en,omitempty"`
	NameCN      string    `json:"name_cn,omitempty"`
	Tags        Tags      `json:"tags"`
	Embedding   []float64 `json:"-"`
	LatestPrice *float64  `json:"latest_price,omitempty"`
}

// EmbedText is the text representation embedded for the instrument: both
// display names plus all structured tags, so the vector reflects everything
// the catalogue knows about it.
func (i *Instrument) EmbedText() string {
	parts := make([]string, 0, 3+len(i.Tags.Themes)+len(i.Tags.Catalysts)+len(i.Tags.Geography))
	if i.NameEN != "" {
		parts = append(parts, i.NameEN)
	}
	if i.NameCN != "" {
		parts = append(parts, i.NameCN)
	}
	parts = append(parts, i.Tags.Themes...)
	parts = append(parts, i.Tags.Catalysts...)
	parts = append(parts, i.Tags.Geography...)
	if i.Tags.SupplyChainRole != "" {
		parts = append(parts, i.Tags.SupplyChainRole)
	}
	return strings.Join(parts, " ")
}
