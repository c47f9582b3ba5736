package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageForScoreBands(t *testing.T) {
	tests := []struct {
		score int
		want  Stage
	}{
		{0, StageCold},
		{2, StageCold},
		{4, StageCold},
		{5, StageWarm},
		{7, StageWarm},
		{8, StageHot},
		{10, StageHot},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StageForScore(tt.score), "score %d", tt.score)
	}
}

func TestRouteFirstTurnAdoptsBandWithoutCounting(t *testing.T) {
	routing := Route(6, RoutingState{}, DefaultRoutingCeiling)

	assert.Equal(t, StageWarm, routing.Current)
	assert.Equal(t, StageWarm, routing.Next)
	assert.Equal(t, 0, routing.Attempts)
	assert.False(t, routing.NeedsReroute)
}

func TestRouteSameBandIsNoOp(t *testing.T) {
	prior := RoutingState{Current: StageWarm, Next: StageWarm, Attempts: 1}

	routing := Route(6, prior, DefaultRoutingCeiling)

	assert.Equal(t, prior.Attempts, routing.Attempts)
	assert.Equal(t, StageWarm, routing.Next)
	assert.False(t, routing.NeedsReroute)
}

func TestRouteBandChangeCountsAnAttempt(t *testing.T) {
	prior := RoutingState{Current: StageCold, Next: StageCold}

	routing := Route(8, prior, DefaultRoutingCeiling)

	assert.Equal(t, StageCold, routing.Current)
	assert.Equal(t, StageHot, routing.Next)
	assert.Equal(t, 1, routing.Attempts)
	assert.True(t, routing.NeedsReroute)
	assert.Empty(t, routing.EscalationReason)
}

func TestRouteCeilingPinsAndEscalates(t *testing.T) {
	prior := RoutingState{Current: StageWarm, Next: StageWarm, Attempts: DefaultRoutingCeiling}

	routing := Route(9, prior, DefaultRoutingCeiling)

	assert.Equal(t, StageWarm, routing.Next, "routing must pin to the current stage")
	assert.Equal(t, DefaultRoutingCeiling, routing.Attempts)
	assert.False(t, routing.NeedsReroute)
	assert.Equal(t, EscalationRoutingCeiling, routing.EscalationReason)
}

func TestRouteOscillationStabilizes(t *testing.T) {
	// A lead whose score flaps across the warm/hot boundary every turn.
	scores := []int{6, 8, 6, 8, 6, 8, 6}

	routing := RoutingState{}
	for _, score := range scores {
		routing = Route(score, routing, DefaultRoutingCeiling)
		routing = routing.settle()
	}

	assert.Equal(t, EscalationRoutingCeiling, routing.EscalationReason)
	assert.Equal(t, DefaultRoutingCeiling, routing.Attempts)
	// Pinned: the stage stops flapping no matter what the score does.
	pinned := routing.Current
	routing = Route(2, routing, DefaultRoutingCeiling).settle()
	assert.Equal(t, pinned, routing.Current)
}

func TestRouteCarriesShouldEndThrough(t *testing.T) {
	prior := RoutingState{Current: StageHot, Next: StageHot, ShouldEnd: true}

	routing := Route(9, prior, DefaultRoutingCeiling)

	assert.True(t, routing.ShouldEnd, "ShouldEnd comes from explicit signals, never the score")
}

func TestRouteZeroCeilingUsesDefault(t *testing.T) {
	routing := RoutingState{Current: StageCold, Next: StageCold}
	for i := 0; i < 10; i++ {
		score := 8
		if i%2 == 1 {
			score = 2
		}
		routing = Route(score, routing, 0).settle()
	}
	assert.Equal(t, DefaultRoutingCeiling, routing.Attempts)
}
