package consolidation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shawkridge/athena-sub007/internal/consolidation"
	"github.com/shawkridge/athena-sub007/internal/types"
)

func surprise(v float64) *float64 { return &v }

func TestContextClusterGroupsBySessionAndMergesAdjacent(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	events := []*types.EpisodicEvent{
		{ID: "e1", Session: "s1", Timestamp: base, CWD: "/repo/pkg", Task: "tdd"},
		{ID: "e2", Session: "s1", Timestamp: base.Add(5 * time.Minute), CWD: "/repo/pkg", Task: "tdd"},
		{ID: "e3", Session: "s2", Timestamp: base, CWD: "/other"},
	}

	c := consolidation.NewClusterer()
	clusters := c.Cluster(events, consolidation.ClusterStrategyContext)

	var sessions []string
	for _, cl := range clusters {
		sessions = append(sessions, cl.Session)
	}
	assert.Contains(t, sessions, "s1")
	assert.Contains(t, sessions, "s2")
}

func TestSurpriseClusterFallsBackToContextWhenNoSurpriseSignal(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	events := []*types.EpisodicEvent{
		{ID: "e1", Session: "s1", Timestamp: base},
		{ID: "e2", Session: "s1", Timestamp: base.Add(time.Minute)},
	}

	c := consolidation.NewClusterer()
	clusters := c.Cluster(events, consolidation.ClusterStrategySurprise)
	require.Len(t, clusters, 1, "with no event over the surprise threshold, clustering falls back to context grouping")
}

func TestSurpriseClusterAssignsEventsToNearestCenter(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	events := []*types.EpisodicEvent{
		{ID: "center1", Session: "s1", Timestamp: base, Surprise: surprise(4.0)},
		{ID: "near1", Session: "s1", Timestamp: base.Add(time.Minute)},
		{ID: "center2", Session: "s1", Timestamp: base.Add(time.Hour), Surprise: surprise(5.0)},
		{ID: "near2", Session: "s1", Timestamp: base.Add(time.Hour + time.Minute)},
	}

	c := consolidation.NewClusterer(consolidation.WithSurpriseThreshold(3.5))
	clusters := c.Cluster(events, consolidation.ClusterStrategySurprise)
	require.Len(t, clusters, 2)

	totalEvents := 0
	for _, cl := range clusters {
		totalEvents += len(cl.Events)
	}
	assert.Equal(t, 4, totalEvents)
}

func TestMergeTemporallyAdjacentKeepsClustersApartBeyondMaxGap(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	events := []*types.EpisodicEvent{
		{ID: "e1", Session: "s1", Timestamp: base, CWD: "/a"},
		{ID: "e2", Session: "s1", Timestamp: base.Add(90 * time.Minute), CWD: "/b/unrelated"}, // far apart, low spatial similarity and time gap
	}

	c := consolidation.NewClusterer(consolidation.WithMaxTimeGap(60 * time.Minute))
	clusters := c.Cluster(events, consolidation.ClusterStrategyContext)
	assert.Len(t, clusters, 2, "a gap beyond maxTimeGap keeps sub-clusters separate")
}

func TestBuildClusterDetectsCausalChainShape(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	events := []*types.EpisodicEvent{
		{ID: "e1", Session: "s1", Timestamp: base, Type: types.EventTypeError},
		{ID: "e2", Session: "s1", Timestamp: base.Add(time.Minute), Type: types.EventTypeAction},
	}

	c := consolidation.NewClusterer()
	clusters := c.Cluster(events, consolidation.ClusterStrategyContext)
	require.Len(t, clusters, 1)
	assert.True(t, clusters[0].HasCausalChain)
}

func TestBuildClusterSingleEventHasFullCohesionAndZeroSpan(t *testing.T) {
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	events := []*types.EpisodicEvent{
		{ID: "e1", Session: "s1", Timestamp: base},
	}

	c := consolidation.NewClusterer()
	clusters := c.Cluster(events, consolidation.ClusterStrategyContext)
	require.Len(t, clusters, 1)
	assert.Equal(t, time.Duration(0), clusters[0].TemporalSpan)
	assert.Equal(t, 1.0, clusters[0].SpatialCohesion)
}
