package triggers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/playbook/internal/domain"
	"github.com/aristath/playbook/pkg/formulas"
)

// PriceSource supplies end-of-day closes. Implemented by the prices service;
// a fixture map stands in for it in tests.
type PriceSource interface {
	Close(ctx context.Context, symbol string, date time.Time) (float64, error)
	CloseSeries(ctx context.Context, symbol string, end time.Time, days int) ([]float64, error)
}

// Evaluator applies rule semantics to prices for one calendar day. It never
// mutates rules or writes alerts; the run service commits its decisions.
type Evaluator struct {
	prices  PriceSource
	workers int
	log     zerolog.Logger
}

// NewEvaluator creates an evaluator with a bounded worker pool.
func NewEvaluator(prices PriceSource, workers int, log zerolog.Logger) *Evaluator {
	if workers < 1 {
		workers = 1
	}
	return &Evaluator{
		prices:  prices,
		workers: workers,
		log:     log.With().Str("component", "trigger_evaluator").Logger(),
	}
}

// Evaluate runs every rule against the given day's prices. Rules fan out over
// the worker pool; each decision is independent. Input order is preserved.
func (e *Evaluator) Evaluate(ctx context.Context, date time.Time, rules []Rule) []Decision {
	decisions := make([]Decision, len(rules))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				decisions[i] = e.evaluateOne(ctx, date, rules[i])
			}
		}()
	}

	for i := range rules {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return decisions
}

func (e *Evaluator) evaluateOne(ctx context.Context, date time.Time, rule Rule) Decision {
	d := Decision{Rule: rule}

	// One fire per rule per calendar day.
	if rule.LastFiredDate == date.Format(domain.DateLayout) {
		return d
	}

	var err error
	switch spec := rule.Spec.(type) {
	case PriceLevelSpec:
		d, err = e.evalPriceLevel(ctx, date, rule, spec)
	case DrawdownSpec:
		d, err = e.evalDrawdown(ctx, date, rule, spec)
	case MACrossSpec:
		d, err = e.evalMACross(ctx, date, rule, spec)
	case TimeStopSpec:
		d = evalTimeStop(date, rule, spec)
	case ManualEventSpec:
		// Never price-driven; fired only through the events endpoint.
		return d
	default:
		e.log.Error().Str("rule_id", rule.ID).Str("kind", rule.Kind).Msg("Unknown rule kind")
		return d
	}

	if errors.Is(err, domain.ErrDataUnavailable) {
		e.log.Warn().Str("rule_id", rule.ID).Str("symbol", rule.Symbol).
			Str("date", date.Format(domain.DateLayout)).
			Msg("Price data unavailable, rule skipped until next run")
		return Decision{Rule: rule, Skipped: true}
	}
	if err != nil {
		e.log.Error().Err(err).Str("rule_id", rule.ID).Str("symbol", rule.Symbol).
			Msg("Rule evaluation failed")
		return Decision{Rule: rule, Skipped: true}
	}

	return d
}

func (e *Evaluator) evalPriceLevel(ctx context.Context, date time.Time, rule Rule, spec PriceLevelSpec) (Decision, error) {
	d := Decision{Rule: rule}

	close, err := e.prices.Close(ctx, rule.Symbol, date)
	if err != nil {
		return d, err
	}

	fired := false
	if rule.Direction == domain.DirectionShort {
		fired = close <= spec.Level
	} else {
		fired = close >= spec.Level
	}
	if !fired {
		return d, nil
	}

	d.Fired = true
	d.Price = close
	d.ReasonEN, d.ReasonCN = priceLevelReason(rule.Direction, close, spec.Level)
	return d, nil
}

func (e *Evaluator) evalDrawdown(ctx context.Context, date time.Time, rule Rule, spec DrawdownSpec) (Decision, error) {
	d := Decision{Rule: rule}

	closes, err := e.prices.CloseSeries(ctx, rule.Symbol, date, spec.WindowDays)
	if err != nil {
		return d, err
	}

	high := formulas.WindowHigh(closes, spec.WindowDays)
	if high == nil {
		return d, fmt.Errorf("%w: %s has %d closes, need %d", domain.ErrDataUnavailable,
			rule.Symbol, len(closes), spec.WindowDays)
	}

	current := closes[len(closes)-1]
	threshold := *high * (1 - spec.Pct/100)
	if current > threshold {
		return d, nil
	}

	d.Fired = true
	d.Price = current
	d.ReasonEN, d.ReasonCN = drawdownReason(formulas.DrawdownPct(*high, current), spec.Pct, *high, current)
	return d, nil
}

func (e *Evaluator) evalMACross(ctx context.Context, date time.Time, rule Rule, spec MACrossSpec) (Decision, error) {
	d := Decision{Rule: rule}

	// One extra close so the prior day also has a full long window.
	closes, err := e.prices.CloseSeries(ctx, rule.Symbol, date, spec.LongWindow+1)
	if err != nil {
		return d, err
	}
	if len(closes) < spec.LongWindow+1 {
		return d, fmt.Errorf("%w: %s has %d closes, need %d", domain.ErrDataUnavailable,
			rule.Symbol, len(closes), spec.LongWindow+1)
	}

	cur := formulas.MADiff(closes, spec.ShortWindow, spec.LongWindow)
	prev := formulas.MADiff(closes[:len(closes)-1], spec.ShortWindow, spec.LongWindow)
	if cur == nil || prev == nil {
		return d, fmt.Errorf("%w: %s moving averages incomplete", domain.ErrDataUnavailable, rule.Symbol)
	}

	// A cross needs the prior sign strictly on the other side: touching zero
	// and staying there is not a cross.
	crossUp := (*cur > 0 && *prev <= 0) || (*cur == 0 && *prev < 0)
	crossDown := (*cur < 0 && *prev >= 0) || (*cur == 0 && *prev > 0)

	fired := false
	if rule.Direction == domain.DirectionShort {
		fired = crossDown
	} else {
		fired = crossUp
	}
	if !fired {
		return d, nil
	}

	d.Fired = true
	d.Price = closes[len(closes)-1]
	d.ReasonEN, d.ReasonCN = maCrossReason(rule.Direction, spec.ShortWindow, spec.LongWindow)
	return d, nil
}

func evalTimeStop(date time.Time, rule Rule, spec TimeStopSpec) Decision {
	d := Decision{Rule: rule}

	if rule.ArmedSince == "" {
		return d
	}
	armed, err := time.Parse(domain.DateLayout, rule.ArmedSince)
	if err != nil || date.Before(armed) {
		return d
	}

	if tradingDaysBetween(armed, date) < spec.Days {
		return d
	}

	d.Fired = true
	d.ReasonEN, d.ReasonCN = timeStopReason(spec.Days, rule.ArmedSince)
	return d
}

// tradingDaysBetween counts weekdays in (from, to]. Exchange holidays are not
// modelled; weekdays approximate trading days.
func tradingDaysBetween(from, to time.Time) int {
	days := 0
	for d := from.AddDate(0, 0, 1); !d.After(to); d = d.AddDate(0, 0, 1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
		default:
			days++
		}
	}
	return days
}
