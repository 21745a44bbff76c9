package formulas

// WindowHigh returns the highest close over the last `window` entries of the
// series. A series shorter than the window cannot answer the question and
// returns nil.
func WindowHigh(closes []float64, window int) *float64 {
	if window <= 0 || len(closes) < window {
		return nil
	}

	start := len(closes) - window

	high := closes[start]
	for _, price := range closes[start+1:] {
		if price > high {
			high = price
		}
	}

	return &high
}

// DrawdownPct returns the percentage decline of current from high, as a
// positive number (e.g. 10 means 10% below the high). A non-positive high
// yields 0.
func DrawdownPct(high, current float64) float64 {
	if high <= 0 {
		return 0
	}
	return (high - current) / high * 100
}
