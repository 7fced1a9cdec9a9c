package predictor

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/shawkridge/athena-sub007/internal/types"
)

// Default thresholds and window, per spec §4.9 and §6.
const (
	defaultSaturationThreshold = 0.85
	defaultCriticalThreshold   = 0.95
	defaultAlertHorizon        = 4 * time.Hour
	utilizationWindow          = 50
)

// resourceKinds is the closed set of resource types the detector tracks.
var resourceKinds = []string{"cpu", "memory", "io", "network", "disk"}

// mitigationCatalog is the fixed per-resource mitigation catalog (spec
// §4.9). Kept here rather than data-driven: the catalog is a closed,
// hand-curated set, not something the runtime learns.
var mitigationCatalog = map[string][]string{
	"cpu":     {"scale out additional workers", "shed low-priority tasks", "reduce concurrency limit"},
	"memory":  {"trigger memory offload checkpoint", "reduce batch sizes", "restart high-footprint agents"},
	"io":      {"batch writes", "move to async I/O path", "add read replicas"},
	"network": {"enable request coalescing", "add retry backoff", "shift to a closer region"},
	"disk":    {"rotate/compact logs", "move cold data to cheaper tier", "expand volume"},
}

// BottleneckDetector tracks a rolling utilization window per resource type
// and emits saturation alerts (spec §4.9).
type BottleneckDetector struct {
	saturationThreshold float64
	criticalThreshold   float64
	alertHorizon        time.Duration

	mu      sync.Mutex
	windows map[string][]float64
}

// DetectorOption configures a BottleneckDetector.
type DetectorOption func(*BottleneckDetector)

func WithThresholds(saturation, critical float64) DetectorOption {
	return func(d *BottleneckDetector) {
		d.saturationThreshold = saturation
		d.criticalThreshold = critical
	}
}

func WithAlertHorizon(horizon time.Duration) DetectorOption {
	return func(d *BottleneckDetector) { d.alertHorizon = horizon }
}

// NewBottleneckDetector constructs a BottleneckDetector with the spec's
// default thresholds (0.85/0.95, 4h horizon).
func NewBottleneckDetector(opts ...DetectorOption) *BottleneckDetector {
	d := &BottleneckDetector{
		saturationThreshold: defaultSaturationThreshold,
		criticalThreshold:   defaultCriticalThreshold,
		alertHorizon:        defaultAlertHorizon,
		windows:             make(map[string][]float64),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Record appends a utilization reading in [0,1] for resource.
func (d *BottleneckDetector) Record(resource string, utilization float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w := append(d.windows[resource], utilization)
	if len(w) > utilizationWindow {
		w = w[len(w)-utilizationWindow:]
	}
	d.windows[resource] = w
}

// Check computes the current severity for resource and, if it is trending
// toward saturation within the alert horizon, returns an alert.
func (d *BottleneckDetector) Check(resource string) (types.BottleneckAlert, bool) {
	d.mu.Lock()
	window := append([]float64(nil), d.windows[resource]...)
	d.mu.Unlock()

	if len(window) == 0 {
		return types.BottleneckAlert{}, false
	}
	current := window[len(window)-1]

	severity := severityFor(current, d.saturationThreshold, d.criticalThreshold)
	if severity == "" && len(window) < 2 {
		return types.BottleneckAlert{}, false
	}

	var predictedIn time.Duration
	var trendingUp bool
	if len(window) >= 2 {
		slope := d.slope(window)
		if slope > 0 {
			trendingUp = true
			stepsToThreshold := (d.saturationThreshold - current) / slope
			if stepsToThreshold < 0 {
				stepsToThreshold = 0
			}
			predictedIn = time.Duration(stepsToThreshold * float64(time.Minute)) // one sample assumed per minute tick
		}
	}

	if severity == "" {
		if !trendingUp || predictedIn > d.alertHorizon {
			return types.BottleneckAlert{}, false
		}
		severity = "high"
	}

	return types.BottleneckAlert{
		Resource:              resource,
		Severity:               types.RiskLevel(severity),
		CurrentUtilization:     current,
		PredictedSaturationIn: predictedIn,
		Mitigations:            mitigationCatalog[resource],
	}, true
}

func (d *BottleneckDetector) slope(window []float64) float64 {
	xs := indices(len(window))
	_, beta := stat.LinearRegression(xs, window, nil, false)
	return beta
}

func severityFor(current, saturation, critical float64) string {
	switch {
	case current >= critical:
		return "critical"
	case current >= saturation:
		return "high"
	default:
		return ""
	}
}

// AllResourceKinds returns the closed set of resource types the detector
// tracks by default.
func AllResourceKinds() []string {
	return append([]string(nil), resourceKinds...)
}
