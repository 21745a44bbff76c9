package triggers

import (
	"time"

	"github.com/aristath/playbook/internal/domain"
)

// Rule is an armed or disarmed trigger/invalidator rule. Direction comes from
// the owning card and decides which way the comparisons point.
type Rule struct {
	ID            string           `json:"id"`
	CardID        string           `json:"card_id"`
	Symbol        string           `json:"symbol"`
	Invalidator   bool             `json:"invalidator"`
	Spec          Spec             `json:"-"`
	Kind          string           `json:"kind"`
	Direction     domain.Direction `json:"direction"`
	Enabled       bool             `json:"enabled"`
	ArmedSince    string           `json:"armed_since,omitempty"`     // calendar day
	LastFiredDate string           `json:"last_fired_date,omitempty"` // calendar day
}

// Decision is the outcome of evaluating one rule for one day.
type Decision struct {
	Rule     Rule
	Fired    bool
	Skipped  bool // data unavailable, retried next run
	Price    float64
	ReasonEN string
	ReasonCN string
}

// RunResult summarises one daily evaluation run.
type RunResult struct {
	Date       string    `json:"date"`
	Evaluated  int       `json:"evaluated"`
	Fired      int       `json:"fired"`
	Dispatched int       `json:"dispatched"`
	Skipped    int       `json:"skipped"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
