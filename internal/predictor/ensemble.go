package predictor

import (
	"math"

	"github.com/shawkridge/athena-sub007/internal/types"
)

// arimaOrder is the simplified ARIMA (p,d,q) order, pinned at the spec's
// default (1,1,1): one AR term, first differencing, one MA-like residual
// term folded into the confidence width (spec §4.9).
type arimaOrder struct{ p, d, q int }

var defaultOrder = arimaOrder{p: 1, d: 1, q: 1}

// arimaForecast fits a simplified AR(1)-on-differenced-series model and
// forecasts horizon steps ahead, widening the confidence interval by
// sqrt(horizon) per step to reflect compounding uncertainty.
func arimaForecast(data []float64, horizon int) (points []float64, widths []float64) {
	if len(data) < 3 {
		last := 0.0
		if len(data) > 0 {
			last = data[len(data)-1]
		}
		return repeat(last, horizon), repeat(1.0, horizon)
	}

	diffed := difference(data, defaultOrder.d)
	phi := arCoefficient(diffed)

	residuals := residualsFor(diffed, phi)
	sigma := stddevOf(residuals)

	points = make([]float64, horizon)
	widths = make([]float64, horizon)

	lastLevel := data[len(data)-1]
	lastDiff := diffed[len(diffed)-1]
	for h := 0; h < horizon; h++ {
		lastDiff = phi * lastDiff
		lastLevel += lastDiff
		points[h] = lastLevel
		widths[h] = sigma * math.Sqrt(float64(h+1))
	}
	return points, widths
}

// exponentialSmoothingForecast implements Holt-style level+trend smoothing
// with an optional seasonal factor per bucket, per spec §4.9.
func exponentialSmoothingForecast(data []float64, horizon int, seasonalPeriod int) (points []float64, widths []float64) {
	if len(data) == 0 {
		return repeat(0, horizon), repeat(1.0, horizon)
	}
	const alpha, beta = 0.3, 0.1

	level := data[0]
	trend := 0.0
	if len(data) > 1 {
		trend = data[1] - data[0]
	}
	for i := 1; i < len(data); i++ {
		prevLevel := level
		level = alpha*data[i] + (1-alpha)*(level+trend)
		trend = beta*(level-prevLevel) + (1-beta)*trend
	}

	seasonal := seasonalFactors(data, seasonalPeriod)

	points = make([]float64, horizon)
	widths = make([]float64, horizon)
	residualSigma := stddevOf(residualsFromLevelTrend(data, alpha, beta))
	for h := 0; h < horizon; h++ {
		factor := 1.0
		if seasonalPeriod > 0 && len(seasonal) > 0 {
			factor = seasonal[(len(data)+h)%len(seasonal)]
		}
		points[h] = (level + float64(h+1)*trend) * factor
		widths[h] = residualSigma * math.Sqrt(float64(h+1))
	}
	return points, widths
}

// EnsembleForecast averages the ARIMA and exponential-smoothing point
// forecasts and confidence widths (spec §4.9). The point is floored at zero,
// so lower <= point <= upper holds for the non-negative interval.
func EnsembleForecast(data []float64, horizon int, seasonalPeriod int) types.DurationPrediction {
	arimaPoints, arimaWidths := arimaForecast(data, horizon)
	esPoints, esWidths := exponentialSmoothingForecast(data, horizon, seasonalPeriod)

	point := math.Max(0, (arimaPoints[0]+esPoints[0])/2)
	width := (arimaWidths[0] + esWidths[0]) / 2

	return types.DurationPrediction{
		Interval: types.ConfidenceInterval{
			Lower: math.Max(0, point-width),
			Point: point,
			Upper: point + width,
			Level: 0.9,
		},
	}
}

func difference(data []float64, order int) []float64 {
	out := append([]float64(nil), data...)
	for i := 0; i < order; i++ {
		if len(out) < 2 {
			return out
		}
		next := make([]float64, len(out)-1)
		for j := 1; j < len(out); j++ {
			next[j-1] = out[j] - out[j-1]
		}
		out = next
	}
	return out
}

// arCoefficient approximates the AR(1) coefficient as lag-1 autocorrelation,
// the same correlation-based approximation the spec calls for.
func arCoefficient(diffed []float64) float64 {
	if len(diffed) < 2 {
		return 0
	}
	var num, den float64
	mean := meanOf(diffed)
	for i := 1; i < len(diffed); i++ {
		num += (diffed[i] - mean) * (diffed[i-1] - mean)
	}
	for _, v := range diffed {
		den += (v - mean) * (v - mean)
	}
	if den == 0 {
		return 0
	}
	phi := num / den
	if phi > 0.99 {
		phi = 0.99
	}
	if phi < -0.99 {
		phi = -0.99
	}
	return phi
}

func residualsFor(diffed []float64, phi float64) []float64 {
	if len(diffed) < 2 {
		return []float64{0}
	}
	out := make([]float64, 0, len(diffed)-1)
	for i := 1; i < len(diffed); i++ {
		predicted := phi * diffed[i-1]
		out = append(out, diffed[i]-predicted)
	}
	return out
}

func residualsFromLevelTrend(data []float64, alpha, beta float64) []float64 {
	if len(data) < 2 {
		return []float64{0}
	}
	level := data[0]
	trend := data[1] - data[0]
	out := make([]float64, 0, len(data)-1)
	for i := 1; i < len(data); i++ {
		forecast := level + trend
		out = append(out, data[i]-forecast)
		prevLevel := level
		level = alpha*data[i] + (1-alpha)*(level+trend)
		trend = beta*(level-prevLevel) + (1-beta)*trend
	}
	return out
}

// seasonalFactors derives a crude multiplicative seasonal index per bucket
// position by averaging ratios of each observation to the series mean.
func seasonalFactors(data []float64, period int) []float64 {
	if period <= 0 || period > len(data) {
		return nil
	}
	mean := meanOf(data)
	if mean == 0 {
		return nil
	}
	sums := make([]float64, period)
	counts := make([]int, period)
	for i, v := range data {
		bucket := i % period
		sums[bucket] += v / mean
		counts[bucket]++
	}
	out := make([]float64, period)
	for i := range out {
		if counts[i] == 0 {
			out[i] = 1.0
			continue
		}
		out[i] = sums[i] / float64(counts[i])
	}
	return out
}

func meanOf(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

func stddevOf(data []float64) float64 {
	if len(data) < 2 {
		return 1.0
	}
	mean := meanOf(data)
	var sumSq float64
	for _, v := range data {
		sumSq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sumSq / float64(len(data)-1))
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
