package conversation

// Score bands. Contiguous and non-overlapping: the band for any score in
// [0, 10] is exactly one stage.
const (
	coldUpperBound = 4 // 0–4 cold
	warmUpperBound = 7 // 5–7 warm, 8–10 hot
)

// DefaultRoutingCeiling bounds how many times a conversation may be rerouted
// between stages before routing is pinned and escalated.
const DefaultRoutingCeiling = 3

// EscalationRoutingCeiling is the reason recorded when the ceiling trips.
const EscalationRoutingCeiling = "routing ceiling reached"

// StageForScore maps a qualification score to its responder stage.
func StageForScore(score int) Stage {
	switch {
	case score <= coldUpperBound:
		return StageCold
	case score <= warmUpperBound:
		return StageWarm
	default:
		return StageHot
	}
}

// Route computes the next routing state from the score and the prior state.
// Pure function: no hidden state, no clock, no randomness.
//
// Attempts increment only when the band actually changes. Once attempts reach
// the ceiling, the next responder is pinned to the current one and an
// escalation reason is recorded instead of looping. ShouldEnd is never derived
// from the score; it is carried through from explicit signals only.
func Route(score int, prior RoutingState, ceiling int) RoutingState {
	if ceiling <= 0 {
		ceiling = DefaultRoutingCeiling
	}
	band := StageForScore(score)

	next := RoutingState{
		Current:          prior.Current,
		Next:             prior.Current,
		Attempts:         prior.Attempts,
		ShouldEnd:        prior.ShouldEnd,
		EscalationReason: prior.EscalationReason,
	}

	// First turn for this conversation: adopt the band without counting it
	// as a reroute.
	if prior.Current == "" {
		next.Current = band
		next.Next = band
		return next
	}

	if band == prior.Current {
		return next
	}

	if prior.Attempts >= ceiling {
		next.EscalationReason = EscalationRoutingCeiling
		return next
	}

	next.Next = band
	next.Attempts = prior.Attempts + 1
	next.NeedsReroute = true
	return next
}

// settle moves the routing state forward after a turn was handled by the Next
// responder: the handoff is complete, so Next becomes Current.
func (r RoutingState) settle() RoutingState {
	r.Current = r.Next
	r.NeedsReroute = false
	return r
}
