package strategy

import "math"

const (
	// trendMinLag and trendMaxLag bound the lag sweep (maxLag exclusive).
	trendMinLag = 2
	trendMaxLag = 100

	// MinTrendWindow is the shortest price history the estimator accepts.
	// The largest lag (99) must leave at least two differences, otherwise its
	// deviation is zero and log10(tau) is undefined.
	MinTrendWindow = trendMaxLag + 1
)

// TrendPersistence computes the Hurst-like exponent used to gate entries.
//
// For each lag in [2, 100) it takes the population standard deviation of
// price[t+lag]-price[t] over the whole series, uses its square root as
// tau(lag), fits log10(tau) against log10(lag) by least squares and returns
// twice the slope. Values above 0.5 are read as trending, below as
// mean-reverting.
//
// ok is false when the history is shorter than MinTrendWindow or when the
// fit is undefined (for example a flat series where every tau is zero).
func TrendPersistence(prices []float64) (h float64, ok bool) {
	if len(prices) < MinTrendWindow {
		return 0, false
	}

	n := trendMaxLag - trendMinLag
	logLag := make([]float64, 0, n)
	logTau := make([]float64, 0, n)
	diffs := make([]float64, 0, len(prices))

	for lag := trendMinLag; lag < trendMaxLag; lag++ {
		diffs = diffs[:0]
		for t := 0; t+lag < len(prices); t++ {
			diffs = append(diffs, prices[t+lag]-prices[t])
		}
		tau := math.Sqrt(populationStdDev(diffs))
		logLag = append(logLag, math.Log10(float64(lag)))
		logTau = append(logTau, math.Log10(tau))
	}

	slope, ok := leastSquaresSlope(logLag, logTau)
	if !ok {
		return 0, false
	}
	h = 2 * slope
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return 0, false
	}
	return h, true
}

// populationStdDev is the ddof=0 standard deviation. Empty input yields 0.
func populationStdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}

// leastSquaresSlope returns the slope of the degree-1 least-squares fit of y
// on x. ok is false when x has no spread or any input is not finite.
func leastSquaresSlope(x, y []float64) (float64, bool) {
	if len(x) != len(y) || len(x) < 2 {
		return 0, false
	}
	var sx, sy float64
	for i := range x {
		if math.IsInf(y[i], 0) || math.IsNaN(y[i]) {
			return 0, false
		}
		sx += x[i]
		sy += y[i]
	}
	mx := sx / float64(len(x))
	my := sy / float64(len(y))

	var sxy, sxx float64
	for i := range x {
		dx := x[i] - mx
		sxy += dx * (y[i] - my)
		sxx += dx * dx
	}
	if sxx == 0 {
		return 0, false
	}
	return sxy / sxx, true
}
