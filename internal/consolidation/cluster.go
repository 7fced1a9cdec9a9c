package consolidation

import (
	"sort"
	"strings"
	"time"

	"github.com/shawkridge/athena-sub007/internal/types"
)

// Default clustering parameters (spec §4.8, §6).
const (
	defaultSurpriseThreshold = 3.5
	defaultMaxTimeGap        = 60 * time.Minute
)

// Cluster is a group of events the extraction step treats as one unit.
type Cluster struct {
	Session string
	Events  []*types.EpisodicEvent

	// Quality metrics, computed for observability (spec §4.8 step 2).
	TemporalSpan    time.Duration
	SpatialCohesion float64
	HasCausalChain  bool
}

// ClusterStrategy selects between context clustering and surprise
// clustering (spec §4.8 step 2).
type ClusterStrategy string

const (
	ClusterStrategyContext  ClusterStrategy = "context"
	ClusterStrategySurprise ClusterStrategy = "surprise"
)

// Clusterer groups a window of episodic events into Clusters.
type Clusterer struct {
	surpriseThreshold float64
	maxTimeGap        time.Duration
}

// ClustererOption configures a Clusterer.
type ClustererOption func(*Clusterer)

func WithSurpriseThreshold(t float64) ClustererOption {
	return func(c *Clusterer) { c.surpriseThreshold = t }
}

func WithMaxTimeGap(d time.Duration) ClustererOption {
	return func(c *Clusterer) { c.maxTimeGap = d }
}

// NewClusterer constructs a Clusterer with the spec's default threshold
// (3.5) and max time gap (60 min).
func NewClusterer(opts ...ClustererOption) *Clusterer {
	c := &Clusterer{
		surpriseThreshold: defaultSurpriseThreshold,
		maxTimeGap:        defaultMaxTimeGap,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Cluster groups events using strategy, falling back to context clustering
// when surprise clustering finds no surprise signal (spec §4.8 step 2).
func (c *Clusterer) Cluster(events []*types.EpisodicEvent, strategy ClusterStrategy) []Cluster {
	if strategy == ClusterStrategySurprise {
		if clusters, ok := c.surpriseCluster(events); ok {
			return clusters
		}
	}
	return c.contextCluster(events)
}

// contextCluster groups by session, sub-clusters by spatial similarity,
// then merges temporally adjacent sub-clusters within maxTimeGap.
func (c *Clusterer) contextCluster(events []*types.EpisodicEvent) []Cluster {
	bySession := make(map[string][]*types.EpisodicEvent)
	var sessionOrder []string
	for _, e := range events {
		if _, ok := bySession[e.Session]; !ok {
			sessionOrder = append(sessionOrder, e.Session)
		}
		bySession[e.Session] = append(bySession[e.Session], e)
	}

	var out []Cluster
	for _, session := range sessionOrder {
		sessionEvents := bySession[session]
		sort.SliceStable(sessionEvents, func(i, j int) bool {
			return sessionEvents[i].Timestamp.Before(sessionEvents[j].Timestamp)
		})

		subClusters := spatialSubCluster(sessionEvents)
		merged := mergeTemporallyAdjacent(subClusters, c.maxTimeGap)
		for _, m := range merged {
			out = append(out, buildCluster(session, m))
		}
	}
	return out
}

// spatialSubCluster greedily groups consecutive (time-ordered) events into
// the same sub-cluster while the spatial similarity to the cluster's last
// event stays at or above 0.5.
func spatialSubCluster(events []*types.EpisodicEvent) [][]*types.EpisodicEvent {
	if len(events) == 0 {
		return nil
	}
	var out [][]*types.EpisodicEvent
	current := []*types.EpisodicEvent{events[0]}
	for i := 1; i < len(events); i++ {
		if spatialSimilarity(current[len(current)-1], events[i]) >= 0.5 {
			current = append(current, events[i])
		} else {
			out = append(out, current)
			current = []*types.EpisodicEvent{events[i]}
		}
	}
	out = append(out, current)
	return out
}

// spatialSimilarity blends shared-cwd-depth (0.5), file-set Jaccard (0.3),
// and shared task/phase (0.2), normalized by the weights that apply (spec
// §4.8 step 2).
func spatialSimilarity(a, b *types.EpisodicEvent) float64 {
	var weightSum, score float64

	const cwdWeight, filesWeight, taskWeight = 0.5, 0.3, 0.2

	if a.CWD != "" || b.CWD != "" {
		weightSum += cwdWeight
		score += cwdWeight * cwdDepthSimilarity(a.CWD, b.CWD)
	}
	if len(a.Files) > 0 || len(b.Files) > 0 {
		weightSum += filesWeight
		score += filesWeight * jaccard(a.Files, b.Files)
	}
	if a.Task != "" || a.Phase != "" || b.Task != "" || b.Phase != "" {
		weightSum += taskWeight
		match := 0.0
		if a.Task == b.Task && a.Task != "" {
			match += 0.5
		}
		if a.Phase == b.Phase && a.Phase != "" {
			match += 0.5
		}
		score += taskWeight * match
	}

	if weightSum == 0 {
		return 0
	}
	return score / weightSum
}

// cwdDepthSimilarity scores how much of the shorter path's directory
// segments are a shared prefix of the longer path.
func cwdDepthSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	as := strings.Split(strings.Trim(a, "/"), "/")
	bs := strings.Split(strings.Trim(b, "/"), "/")
	shared := 0
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] != bs[i] {
			break
		}
		shared++
	}
	shortest := len(as)
	if len(bs) < shortest {
		shortest = len(bs)
	}
	if shortest == 0 {
		return 0
	}
	return float64(shared) / float64(shortest)
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, f := range a {
		setA[f] = true
	}
	setB := make(map[string]bool, len(b))
	for _, f := range b {
		setB[f] = true
	}
	intersection := 0
	for f := range setA {
		if setB[f] {
			intersection++
		}
	}
	union := len(setA)
	for f := range setB {
		if !setA[f] {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// mergeTemporallyAdjacent merges consecutive sub-clusters whose time gap
// (last event of one to first event of next) is within maxGap.
func mergeTemporallyAdjacent(subClusters [][]*types.EpisodicEvent, maxGap time.Duration) [][]*types.EpisodicEvent {
	if len(subClusters) == 0 {
		return nil
	}
	out := [][]*types.EpisodicEvent{subClusters[0]}
	for i := 1; i < len(subClusters); i++ {
		prev := out[len(out)-1]
		gap := subClusters[i][0].Timestamp.Sub(prev[len(prev)-1].Timestamp)
		if gap <= maxGap {
			out[len(out)-1] = append(prev, subClusters[i]...)
		} else {
			out = append(out, subClusters[i])
		}
	}
	return out
}

// surpriseCluster picks events with surprise >= threshold as centers, then
// assigns every other event to its temporally nearest center. Returns
// ok=false when no event carries a surprise score at or above threshold, so the
// caller falls back to context clustering.
func (c *Clusterer) surpriseCluster(events []*types.EpisodicEvent) ([]Cluster, bool) {
	var centers []*types.EpisodicEvent
	for _, e := range events {
		if e.Surprise != nil && *e.Surprise >= c.surpriseThreshold {
			centers = append(centers, e)
		}
	}
	if len(centers) == 0 {
		return nil, false
	}

	bySession := make(map[string][]*types.EpisodicEvent)
	centerBySession := make(map[string][]*types.EpisodicEvent)
	for _, e := range events {
		bySession[e.Session] = append(bySession[e.Session], e)
	}
	for _, ce := range centers {
		centerBySession[ce.Session] = append(centerBySession[ce.Session], ce)
	}

	groups := make(map[*types.EpisodicEvent][]*types.EpisodicEvent)
	for session, sessionEvents := range bySession {
		sessionCenters := centerBySession[session]
		if len(sessionCenters) == 0 {
			sessionCenters = centers
		}
		for _, e := range sessionEvents {
			nearest := nearestCenter(e, sessionCenters)
			groups[nearest] = append(groups[nearest], e)
		}
	}

	var out []Cluster
	for center, members := range groups {
		sort.SliceStable(members, func(i, j int) bool { return members[i].Timestamp.Before(members[j].Timestamp) })
		out = append(out, buildCluster(center.Session, members))
	}
	return out, true
}

func nearestCenter(e *types.EpisodicEvent, centers []*types.EpisodicEvent) *types.EpisodicEvent {
	best := centers[0]
	bestDist := absDuration(e.Timestamp.Sub(best.Timestamp))
	for _, c := range centers[1:] {
		d := absDuration(e.Timestamp.Sub(c.Timestamp))
		if d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// causalChainShapes are the hard-coded event-type sequences the cluster
// quality metric treats as a causal chain (spec §4.8 step 2, and spec §9
// open question: kept heuristic rather than learned).
var causalChainShapes = [][2]types.EventType{
	{types.EventTypeError, types.EventTypeAction},
	{types.EventTypeTestRun, types.EventTypeFileChange},
}

func buildCluster(session string, events []*types.EpisodicEvent) Cluster {
	cl := Cluster{Session: session, Events: events}
	if len(events) == 0 {
		return cl
	}
	cl.TemporalSpan = events[len(events)-1].Timestamp.Sub(events[0].Timestamp)

	var sumSimilarity float64
	var pairs int
	for i := 1; i < len(events); i++ {
		sumSimilarity += spatialSimilarity(events[i-1], events[i])
		pairs++
	}
	if pairs > 0 {
		cl.SpatialCohesion = sumSimilarity / float64(pairs)
	} else {
		cl.SpatialCohesion = 1.0
	}

	for i := 1; i < len(events); i++ {
		for _, shape := range causalChainShapes {
			if events[i-1].Type == shape[0] && events[i].Type == shape[1] {
				cl.HasCausalChain = true
			}
		}
		if events[i-1].Type == types.EventTypeTestRun && events[i-1].Outcome == types.EventOutcomeFailure &&
			events[i].Outcome == types.EventOutcomeSuccess {
			cl.HasCausalChain = true
		}
	}
	return cl
}
