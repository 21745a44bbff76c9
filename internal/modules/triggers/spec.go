// Package triggers implements trigger and invalidator rules: tagged-variant
// rule specs, a pure evaluator and the daily run orchestration.
package triggers

import (
	"encoding/json"
	"fmt"

	"github.com/aristath/playbook/internal/domain"
)

// Rule kinds. Each kind maps to exactly one Spec variant.
const (
	KindPriceLevel  = "price_level"
	KindDrawdownPct = "drawdown_pct"
	KindMACross     = "ma_cross"
	KindTimeStop    = "time_stop"
	KindManualEvent = "manual_event"
)

// Spec is the kind-specific parameter set of a rule. The set of
// implementations is closed; unknown kinds are rejected at parse time.
type Spec interface {
	Kind() string
	Validate() error

	sealed()
}

// PriceLevelSpec fires when the close crosses a fixed level. Long cards fire
// at close >= level, short cards at close <= level.
type PriceLevelSpec struct {
	Level float64 `json:"level"`
}

func (s PriceLevelSpec) Kind() string { return KindPriceLevel }
func (s PriceLevelSpec) sealed()      {}

func (s PriceLevelSpec) Validate() error {
	if s.Level <= 0 {
		return fmt.Errorf("%w: price_level requires a positive level, got %v", domain.ErrInvalidRule, s.Level)
	}
	return nil
}

// DrawdownSpec fires when the close drops Pct percent or more below the
// highest close of the trailing window (current day included).
type DrawdownSpec struct {
	Pct        float64 `json:"pct"`
	WindowDays int     `json:"window_days"`
}

func (s DrawdownSpec) Kind() string { return KindDrawdownPct }
func (s DrawdownSpec) sealed()      {}

func (s DrawdownSpec) Validate() error {
	if s.Pct <= 0 || s.Pct >= 100 {
		return fmt.Errorf("%w: drawdown_pct requires pct in (0, 100), got %v", domain.ErrInvalidRule, s.Pct)
	}
	if s.WindowDays < 2 {
		return fmt.Errorf("%w: drawdown_pct requires window_days >= 2, got %d", domain.ErrInvalidRule, s.WindowDays)
	}
	return nil
}

// MACrossSpec fires on the day the short moving average crosses the long one,
// in the direction implied by the card.
type MACrossSpec struct {
	ShortWindow int `json:"short_window"`
	LongWindow  int `json:"long_window"`
}

func (s MACrossSpec) Kind() string { return KindMACross }
func (s MACrossSpec) sealed()      {}

func (s MACrossSpec) Validate() error {
	if s.ShortWindow < 1 {
		return fmt.Errorf("%w: ma_cross requires short_window >= 1, got %d", domain.ErrInvalidRule, s.ShortWindow)
	}
	if s.LongWindow <= s.ShortWindow {
		return fmt.Errorf("%w: ma_cross requires long_window > short_window, got %d <= %d",
			domain.ErrInvalidRule, s.LongWindow, s.ShortWindow)
	}
	return nil
}

// TimeStopSpec fires once the rule has been armed for Days trading days.
type TimeStopSpec struct {
	Days int `json:"days"`
}

func (s TimeStopSpec) Kind() string { return KindTimeStop }
func (s TimeStopSpec) sealed()      {}

func (s TimeStopSpec) Validate() error {
	if s.Days < 1 {
		return fmt.Errorf("%w: time_stop requires days >= 1, got %d", domain.ErrInvalidRule, s.Days)
	}
	return nil
}

// ManualEventSpec fires only through the events endpoint, never from prices.
type ManualEventSpec struct {
	EventType string `json:"event_type"`
}

func (s ManualEventSpec) Kind() string { return KindManualEvent }
func (s ManualEventSpec) sealed()      {}

func (s ManualEventSpec) Validate() error {
	if s.EventType == "" {
		return fmt.Errorf("%w: manual_event requires an event_type", domain.ErrInvalidRule)
	}
	return nil
}

// ParseSpec decodes the stored params JSON into the variant for the kind and
// validates it.
func ParseSpec(kind string, params []byte) (Spec, error) {
	var spec Spec
	switch kind {
	case KindPriceLevel:
		var s PriceLevelSpec
		if err := json.Unmarshal(params, &s); err != nil {
			return nil, fmt.Errorf("%w: bad price_level params: %v", domain.ErrInvalidRule, err)
		}
		spec = s
	case KindDrawdownPct:
		var s DrawdownSpec
		if err := json.Unmarshal(params, &s); err != nil {
			return nil, fmt.Errorf("%w: bad drawdown_pct params: %v", domain.ErrInvalidRule, err)
		}
		spec = s
	case KindMACross:
		var s MACrossSpec
		if err := json.Unmarshal(params, &s); err != nil {
			return nil, fmt.Errorf("%w: bad ma_cross params: %v", domain.ErrInvalidRule, err)
		}
		spec = s
	case KindTimeStop:
		var s TimeStopSpec
		if err := json.Unmarshal(params, &s); err != nil {
			return nil, fmt.Errorf("%w: bad time_stop params: %v", domain.ErrInvalidRule, err)
		}
		spec = s
	case KindManualEvent:
		var s ManualEventSpec
		if err := json.Unmarshal(params, &s); err != nil {
			return nil, fmt.Errorf("%w: bad manual_event params: %v", domain.ErrInvalidRule, err)
		}
		spec = s
	default:
		return nil, fmt.Errorf("%w: unknown rule kind %q", domain.ErrInvalidRule, kind)
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// MarshalSpec encodes a spec back to its params JSON.
func MarshalSpec(spec Spec) ([]byte, error) {
	data, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s params: %w", spec.Kind(), err)
	}
	return data, nil
}
