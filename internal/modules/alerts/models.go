// Package alerts stores fired alert events and fans them out to notification
// channels. The event table is the system of record for "did this trigger
// already fire today".
package alerts

// Delivery statuses per (alert, channel).
const (
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusRetrying = "retrying"
)

// Event is a persisted alert. One per (trigger, calendar day) at most.
type Event struct {
	ID          string  `json:"id"`
	TriggerID   string  `json:"trigger_id"`
	CardID      string  `json:"card_id"`
	Symbol      string  `json:"symbol"`
	FiredAt     string  `json:"fired_at"`   // RFC3339
	FiredDate   string  `json:"fired_date"` // calendar day
	Price       float64 `json:"price"`
	ReasonEN    string  `json:"reason_en"`
	ReasonCN    string  `json:"reason_cn"`
	Invalidator bool    `json:"invalidator"`

	Deliveries map[string]Delivery `json:"deliveries,omitempty"`
}

// Delivery is the send status of one channel for one alert.
type Delivery struct {
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}
