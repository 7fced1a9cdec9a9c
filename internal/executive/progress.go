package executive

import (
	"fmt"
	"sync"
	"time"

	"github.com/shawkridge/athena-sub007/internal/telemetry"
	"github.com/shawkridge/athena-sub007/internal/types"
)

// Milestone is one checkpoint on the way to a goal's completion.
type Milestone struct {
	Label     string
	Threshold float64 // cumulative progress fraction at which this milestone completes
	Reached   bool
	ReachedAt time.Time
}

// milestoneTemplates maps complexity class to an ordered set of milestone
// labels, spread evenly over [0,1] progress (spec §4.7: "3-5 milestones by
// complexity class").
var milestoneTemplates = map[string][]string{
	"simple":  {"started", "implemented", "done"},
	"medium":  {"started", "core implemented", "tested", "done"},
	"complex": {"scoped", "core implemented", "integrated", "validated", "done"},
}

// ComplexityClassFor buckets a goal's estimated hours into the same
// simple/medium/complex classes the planner uses for step counts, so the
// progress monitor's milestone count tracks actual goal size.
func ComplexityClassFor(estimatedHours float64) string {
	switch {
	case estimatedHours <= 2:
		return "simple"
	case estimatedHours <= 10:
		return "medium"
	default:
		return "complex"
	}
}

// GenerateMilestones builds the milestone set for a goal of the given
// complexity class.
func GenerateMilestones(class string) []Milestone {
	labels, ok := milestoneTemplates[class]
	if !ok {
		labels = milestoneTemplates["medium"]
	}
	out := make([]Milestone, len(labels))
	for i, label := range labels {
		out[i] = Milestone{Label: label, Threshold: float64(i+1) / float64(len(labels))}
	}
	return out
}

// stallThreshold is how long a goal can go without progress before it is
// flagged as a high-severity blocker (spec §4.7).
const stallThreshold = 2 * time.Hour

// goalTrack is the monitor's per-goal bookkeeping.
type goalTrack struct {
	milestones     []Milestone
	lastProgress   float64
	lastProgressAt time.Time
	startedAt      time.Time
	startEstimate  float64 // original EstimatedHours, for forecast-disagreement dampening
}

// Blocker is a detected obstruction to a goal's progress.
type Blocker struct {
	GoalID    string
	Severity  types.RiskLevel
	Reason    string
	DetectedAt time.Time
}

// Forecast is the monitor's completion projection for a goal.
type Forecast struct {
	GoalID           string
	ProjectedHours   float64
	Confidence       float64
	VelocityPerHour  float64
}

// ProgressMonitor tracks milestones, stalls, and completion forecasts for
// goals (spec §4.7).
type ProgressMonitor struct {
	logger telemetry.Logger
	now    func() time.Time

	mu     sync.Mutex
	tracks map[string]*goalTrack
}

// MonitorOption configures a ProgressMonitor.
type MonitorOption func(*ProgressMonitor)

func WithMonitorLogger(l telemetry.Logger) MonitorOption {
	return func(m *ProgressMonitor) { m.logger = l }
}

func WithMonitorClock(fn func() time.Time) MonitorOption {
	return func(m *ProgressMonitor) { m.now = fn }
}

// NewProgressMonitor constructs an empty ProgressMonitor.
func NewProgressMonitor(opts ...MonitorOption) *ProgressMonitor {
	m := &ProgressMonitor{
		logger: telemetry.NewNoopLogger(),
		now:    func() time.Time { return time.Now().UTC() },
		tracks: make(map[string]*goalTrack),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Track registers g for progress monitoring, generating its milestone set
// from its complexity class. Safe to call more than once; subsequent calls
// are a no-op if g is already tracked.
func (m *ProgressMonitor) Track(g *types.Goal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tracks[g.ID]; ok {
		return
	}
	now := m.now()
	m.tracks[g.ID] = &goalTrack{
		milestones:     GenerateMilestones(ComplexityClassFor(g.EstimatedHours)),
		lastProgress:   g.Progress,
		lastProgressAt: now,
		startedAt:      now,
		startEstimate:  g.EstimatedHours,
	}
}

// Milestones returns the current milestone set for a tracked goal.
func (m *ProgressMonitor) Milestones(goalID string) []Milestone {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tracks[goalID]
	if !ok {
		return nil
	}
	return append([]Milestone(nil), t.milestones...)
}

// Update records a new progress reading for goalID, marking any newly
// crossed milestone reached.
func (m *ProgressMonitor) Update(goalID string, progress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tracks[goalID]
	if !ok {
		return
	}
	now := m.now()
	if progress > t.lastProgress {
		t.lastProgress = progress
		t.lastProgressAt = now
		for i := range t.milestones {
			if !t.milestones[i].Reached && progress >= t.milestones[i].Threshold {
				t.milestones[i].Reached = true
				t.milestones[i].ReachedAt = now
			}
		}
	}
}

// DetectBlocker flags goalID as blocked with RiskLevelHigh if it has gone
// longer than stallThreshold without a progress update (spec §4.7 adaptive
// blocker detection). Returns nil if the goal isn't stalled or isn't tracked.
func (m *ProgressMonitor) DetectBlocker(goalID string) *Blocker {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tracks[goalID]
	if !ok {
		return nil
	}
	now := m.now()
	idle := now.Sub(t.lastProgressAt)
	if idle <= stallThreshold {
		return nil
	}
	return &Blocker{
		GoalID:     goalID,
		Severity:   types.RiskLevelHigh,
		Reason:     fmt.Sprintf("no progress recorded for %s (threshold %s)", idle.Round(time.Minute), stallThreshold),
		DetectedAt: now,
	}
}

// Forecast projects goalID's completion from its velocity (progress over
// elapsed hours). Confidence is halved when the projection disagrees with
// the goal's original estimate by more than 2x or less than 0.5x (spec
// §4.7).
func (m *ProgressMonitor) Forecast(goalID string) (Forecast, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tracks[goalID]
	if !ok {
		return Forecast{}, false
	}

	elapsedHours := m.now().Sub(t.startedAt).Hours()
	if elapsedHours <= 0 || t.lastProgress <= 0 {
		return Forecast{GoalID: goalID, ProjectedHours: t.startEstimate, Confidence: 0.5}, true
	}

	velocity := t.lastProgress / elapsedHours
	var projected float64
	if velocity > 0 {
		projected = (1.0 / velocity)
	} else {
		projected = t.startEstimate
	}

	confidence := 0.8
	if t.startEstimate > 0 {
		ratio := projected / t.startEstimate
		if ratio > 2.0 || ratio < 0.5 {
			confidence /= 2
		}
	}

	return Forecast{
		GoalID:          goalID,
		ProjectedHours:  projected,
		Confidence:      confidence,
		VelocityPerHour: velocity,
	}, true
}
