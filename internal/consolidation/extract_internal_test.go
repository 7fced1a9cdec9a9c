package consolidation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shawkridge/athena-sub007/internal/types"
)

func TestDetectTDDRequiresFailPassAndChange(t *testing.T) {
	base := time.Now().UTC()
	c := Cluster{Events: []*types.EpisodicEvent{
		{ID: "e1", Timestamp: base, Type: types.EventTypeTestRun, Outcome: types.EventOutcomeFailure, Content: "test fails"},
		{ID: "e2", Timestamp: base, Type: types.EventTypeFileChange, Content: "fixed the bug"},
		{ID: "e3", Timestamp: base, Type: types.EventTypeTestRun, Outcome: types.EventOutcomeSuccess, Content: "test passes"},
	}}

	p, ok := detectTDD(c)
	require.True(t, ok)
	assert.Equal(t, types.PatternTypeWorkflow, p.Type)
	assert.Contains(t, p.Tags, "tdd")
}

func TestDetectTDDMissingElementDoesNotFire(t *testing.T) {
	c := Cluster{Events: []*types.EpisodicEvent{
		{ID: "e1", Type: types.EventTypeTestRun, Outcome: types.EventOutcomeFailure},
	}}
	_, ok := detectTDD(c)
	assert.False(t, ok)
}

func TestDetectRefactoringNeedsCohesionAndVolume(t *testing.T) {
	c := Cluster{
		SpatialCohesion: 0.8,
		Events: []*types.EpisodicEvent{
			{Type: types.EventTypeFileChange},
			{Type: types.EventTypeFileChange},
			{Type: types.EventTypeFileChange},
		},
	}
	_, ok := detectRefactoring(c)
	assert.True(t, ok)

	lowCohesion := c
	lowCohesion.SpatialCohesion = 0.1
	_, ok = detectRefactoring(lowCohesion)
	assert.False(t, ok)
}

func TestRunSystem1FiresEveryMatchingDetector(t *testing.T) {
	base := time.Now().UTC()
	c := Cluster{
		SpatialCohesion: 0.9,
		Events: []*types.EpisodicEvent{
			{ID: "e1", Timestamp: base, Type: types.EventTypeTestRun, Outcome: types.EventOutcomeFailure, Content: "fails"},
			{ID: "e2", Timestamp: base, Type: types.EventTypeFileChange, Content: "change 1"},
			{ID: "e3", Timestamp: base, Type: types.EventTypeFileChange, Content: "change 2"},
			{ID: "e4", Timestamp: base, Type: types.EventTypeTestRun, Outcome: types.EventOutcomeSuccess, Content: "passes"},
		},
	}
	candidates := runSystem1(c)
	assert.GreaterOrEqual(t, len(candidates), 1)
	for _, cand := range candidates {
		assert.Equal(t, "system1", cand.system)
		assert.NotEmpty(t, cand.SourceEventIDs)
	}
}

func TestNeedsSystem2SkipsForConfidentSimpleCluster(t *testing.T) {
	c := Cluster{Events: make([]*types.EpisodicEvent, 2)}
	confident := []candidatePattern{{SemanticPattern: types.SemanticPattern{Confidence: 0.9}}}
	assert.False(t, needsSystem2(c, confident))
}

func TestNeedsSystem2RequiredWhenNoSystem1Output(t *testing.T) {
	c := Cluster{Events: make([]*types.EpisodicEvent, 2)}
	assert.True(t, needsSystem2(c, nil))
}

func TestNeedsSystem2RequiredForLargeClusterEvenIfConfident(t *testing.T) {
	c := Cluster{Events: make([]*types.EpisodicEvent, simpleClusterMaxEvents+1)}
	confident := []candidatePattern{{SemanticPattern: types.SemanticPattern{Confidence: 0.9}}}
	assert.True(t, needsSystem2(c, confident))
}

func TestRunSystem2NilProviderYieldsNoCandidates(t *testing.T) {
	out, err := runSystem2(nil, nil, Cluster{}, nil, 5)
	assert.NoError(t, err)
	assert.Nil(t, out)
}

func TestParseSystem2ReplyRespectsMaxPatterns(t *testing.T) {
	text := "pattern one\npattern two\npattern three\n"
	patterns := parseSystem2Reply(text, 2)
	assert.Len(t, patterns, 2)
}

func TestFlagUncertainListsNonFiringDetectors(t *testing.T) {
	c := Cluster{Events: []*types.EpisodicEvent{{ID: "e1"}}}
	uncertain := flagUncertain(c, nil)
	assert.Len(t, uncertain, len(system1Detectors))
}
