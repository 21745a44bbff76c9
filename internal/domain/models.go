// Package domain holds the shared domain types consumed by the trigger and
// discovery engines: trade direction, daily price bars and playbook cards.
package domain

import "time"

// DateLayout is the canonical calendar-day format used throughout the system
// (rule cooldowns, alert dedup keys, price history keys).
const DateLayout = "2006-01-02"

// Direction is the trade direction carried by a card. It determines which way
// the comparison operators of its trigger rules point.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionAvoid Direction = "avoid"
)

// Valid reports whether the direction is one of the known values.
func (d Direction) Valid() bool {
	switch d {
	case DirectionLong, DirectionShort, DirectionAvoid:
		return true
	}
	return false
}

// OHLC is a single end-of-day price bar.
type OHLC struct {
	Symbol string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// InstrumentRef is an instrument reference carried by a card.
type InstrumentRef struct {
	Symbol string `json:"symbol"`
	Venue  string `json:"venue"`
	Role   string `json:"role"` // primary, proxy, hedge
}

// Card is a structured trade thesis. Cards are produced upstream and consumed
// read-only here: the engines use the direction, instruments and summary text,
// plus the alerting preferences toggled via the alerts API.
type Card struct {
	ID          string          `json:"id"`
	AsOf        string          `json:"asof"` // calendar day, DateLayout
	Direction   Direction       `json:"direction"`
	Horizon     string          `json:"horizon"` // 1w, 1m, 3m, 6m
	SummaryEN   string          `json:"summary_en,omitempty"`
	SummaryCN   string          `json:"summary_cn,omitempty"`
	Instruments []InstrumentRef `json:"instruments"`
	Catalysts   []string        `json:"catalysts,omitempty"`
	Risks       []string        `json:"risks,omitempty"`
	Confidence  float64         `json:"confidence"`

	// Alerting preferences, set by the enable-alerts toggle.
	AlertsEnabled bool     `json:"alerts_enabled"`
	Channels      []string `json:"channels,omitempty"` // email, webhook, bot
	AutoEntry     bool     `json:"auto_entry"`
	AutoEntryQty  float64  `json:"auto_entry_qty,omitempty"`
}

// Symbols returns the card's instrument symbols in declaration order.
func (c *Card) Symbols() []string {
	out := make([]string, 0, len(c.Instruments))
	for _, ref := range c.Instruments {
		out = append(out, ref.Symbol)
	}
	return out
}

// HasSymbol reports whether the card references the given symbol.
func (c *Card) HasSymbol(symbol string) bool {
	for _, ref := range c.Instruments {
		if ref.Symbol == symbol {
			return true
		}
	}
	return false
}

// QueryText is the free text used as the discovery query source for the card.
// Both language summaries contribute so the multilingual embedding sees the
// full thesis.
func (c *Card) QueryText() string {
	switch {
	case c.SummaryEN != "" && c.SummaryCN != "":
		return c.SummaryEN + " " + c.SummaryCN
	case c.SummaryEN != "":
		return c.SummaryEN
	default:
		return c.SummaryCN
	}
}
