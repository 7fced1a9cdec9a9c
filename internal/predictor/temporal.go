// Package predictor implements the Predictor subsystem (spec §4.9): the
// temporal reasoner, bottleneck detector, and a simplified time-series
// ensemble, composed into per-task PredictionResults.
package predictor

import (
	"math"
	"strconv"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// maxObservations bounds each named metric stream's history (spec §4.9).
const maxObservations = 500

// candidatePeriods are the sample counts the temporal reasoner checks for
// cyclicality (spec §4.9: "24/168/720 samples" — daily/weekly/monthly
// cycles of hourly samples expressed in sample counts).
var candidatePeriods = []int{24, 168, 720}

// defaultPatternStrengthFloor is the minimum strength a detected pattern
// must exceed to be reported (spec §4.9 default 0.6).
const defaultPatternStrengthFloor = 0.6

// TemporalPattern is one detected regularity in a metric stream.
type TemporalPattern struct {
	Metric      string
	Kind        string // stationary | trend | cyclic | anomaly
	Strength    float64
	Description string
}

// TemporalReasoner keeps a rolling window per named metric stream and
// detects stationarity, trend, cyclicality, and anomalies (spec §4.9).
type TemporalReasoner struct {
	strengthFloor float64

	mu      sync.Mutex
	streams map[string][]float64
}

// ReasonerOption configures a TemporalReasoner.
type ReasonerOption func(*TemporalReasoner)

// WithStrengthFloor overrides the default 0.6 pattern-strength floor.
func WithStrengthFloor(floor float64) ReasonerOption {
	return func(r *TemporalReasoner) { r.strengthFloor = floor }
}

// NewTemporalReasoner constructs an empty TemporalReasoner.
func NewTemporalReasoner(opts ...ReasonerOption) *TemporalReasoner {
	r := &TemporalReasoner{
		strengthFloor: defaultPatternStrengthFloor,
		streams:       make(map[string][]float64),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Observe appends value to metric's rolling window, evicting the oldest
// observation once maxObservations is exceeded.
func (r *TemporalReasoner) Observe(metric string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := append(r.streams[metric], value)
	if len(s) > maxObservations {
		s = s[len(s)-maxObservations:]
	}
	r.streams[metric] = s
}

// Snapshot returns a copy of metric's current window.
func (r *TemporalReasoner) Snapshot(metric string) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.streams[metric]...)
}

// Analyze runs every detector over metric's window and returns the patterns
// whose strength meets the floor.
func (r *TemporalReasoner) Analyze(metric string) []TemporalPattern {
	data := r.Snapshot(metric)
	if len(data) < 4 {
		return nil
	}

	var patterns []TemporalPattern
	if p, ok := r.stationarity(metric, data); ok {
		patterns = append(patterns, p)
	}
	if p, ok := r.trend(metric, data); ok {
		patterns = append(patterns, p)
	}
	patterns = append(patterns, r.cyclicality(metric, data)...)
	if p, ok := r.anomalies(metric, data); ok {
		patterns = append(patterns, p)
	}

	out := patterns[:0]
	for _, p := range patterns {
		if p.Strength >= r.strengthFloor {
			out = append(out, p)
		}
	}
	return out
}

// stationarity runs a variance-ratio test on the two halves of data: a
// stable ratio close to 1 indicates stationarity. Strength is
// 1 - |log(ratio)| clamped to [0,1].
func (r *TemporalReasoner) stationarity(metric string, data []float64) (TemporalPattern, bool) {
	mid := len(data) / 2
	if mid < 2 {
		return TemporalPattern{}, false
	}
	first, second := data[:mid], data[mid:]
	varFirst := stat.Variance(first, nil)
	varSecond := stat.Variance(second, nil)
	if varFirst == 0 && varSecond == 0 {
		return TemporalPattern{Metric: metric, Kind: "stationary", Strength: 1.0, Description: "zero variance in both halves"}, true
	}
	if varFirst == 0 || varSecond == 0 {
		return TemporalPattern{Metric: metric, Kind: "stationary", Strength: 0, Description: "variance collapsed in one half"}, false
	}
	ratio := varSecond / varFirst
	logRatio := logAbs(ratio)
	strength := 1 - logRatio
	if strength < 0 {
		strength = 0
	}
	return TemporalPattern{
		Metric:      metric,
		Kind:        "stationary",
		Strength:    strength,
		Description: "variance-ratio test across halves",
	}, true
}

// trend fits a linear regression over the index sequence and reports its
// strength as the fit's R^2, signed by slope direction in the description.
func (r *TemporalReasoner) trend(metric string, data []float64) (TemporalPattern, bool) {
	xs := indices(len(data))
	alpha, beta := stat.LinearRegression(xs, data, nil, false)
	r2 := stat.RSquared(xs, data, nil, alpha, beta)
	direction := "flat"
	if beta > 0 {
		direction = "increasing"
	} else if beta < 0 {
		direction = "decreasing"
	}
	return TemporalPattern{
		Metric:      metric,
		Kind:        "trend",
		Strength:    clamp01(r2),
		Description: "linear trend " + direction,
	}, true
}

// cyclicality checks autocorrelation at each candidate period, reporting
// one pattern per period whose window fits inside the available data.
func (r *TemporalReasoner) cyclicality(metric string, data []float64) []TemporalPattern {
	var out []TemporalPattern
	for _, period := range candidatePeriods {
		if len(data) <= period+1 {
			continue
		}
		lag0 := data[:len(data)-period]
		lagP := data[period:]
		corr := stat.Correlation(lag0, lagP, nil)
		out = append(out, TemporalPattern{
			Metric:      metric,
			Kind:        "cyclic",
			Strength:    clamp01(absf(corr)),
			Description: "autocorrelation at period " + strconv.Itoa(period),
		})
	}
	return out
}

// anomalies reports the fraction of points whose z-score exceeds 2 as the
// pattern's strength (rate of anomalies, not just presence).
func (r *TemporalReasoner) anomalies(metric string, data []float64) (TemporalPattern, bool) {
	mean := stat.Mean(data, nil)
	sd := stat.StdDev(data, nil)
	if sd == 0 {
		return TemporalPattern{}, false
	}
	count := 0
	for _, v := range data {
		z := (v - mean) / sd
		if absf(z) > 2 {
			count++
		}
	}
	rate := float64(count) / float64(len(data))
	return TemporalPattern{
		Metric:      metric,
		Kind:        "anomaly",
		Strength:    clamp01(rate * 5), // scale so even a handful of outliers registers
		Description: "z-score>2 rate",
	}, rate > 0
}

func indices(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func logAbs(ratio float64) float64 {
	return absf(math.Log(ratio))
}
