// Package formulas provides the numeric building blocks shared by the trigger
// and discovery engines: moving averages, drawdowns and vector similarity.
package formulas

import (
	"github.com/markcheno/go-talib"
)

// SMA calculates the simple moving average over the last `length` closes.
//
// Returns nil if there is not enough data.
func SMA(closes []float64, length int) *float64 {
	if length <= 0 || len(closes) < length {
		return nil
	}

	sma := talib.Sma(closes, length)

	if len(sma) > 0 && !isNaN(sma[len(sma)-1]) {
		result := sma[len(sma)-1]
		return &result
	}

	return nil
}

// MADiff returns SMA(short) - SMA(long) over the given closes, or nil when the
// series is too short for the long window.
func MADiff(closes []float64, short, long int) *float64 {
	shortMA := SMA(closes, short)
	longMA := SMA(closes, long)
	if shortMA == nil || longMA == nil {
		return nil
	}
	diff := *shortMA - *longMA
	return &diff
}

// isNaN checks if a float64 is NaN
func isNaN(f float64) bool {
	return f != f
}
