package entities

import "fmt"

// DrainState is the per-source coordinator state.
type DrainState string

const (
	DrainStateIdle       DrainState = "idle"
	DrainStateEstimating DrainState = "estimating"
	DrainStateSubmitting DrainState = "submitting"
)

// ValidDrainTransitions defines allowed state transitions. Both busy states
// fall back to idle on success and on failure.
var ValidDrainTransitions = map[DrainState][]DrainState{
	DrainStateIdle:       {DrainStateEstimating},
	DrainStateEstimating: {DrainStateSubmitting, DrainStateIdle},
	DrainStateSubmitting: {DrainStateIdle},
}

func (s DrainState) IsBusy() bool {
	return s == DrainStateEstimating || s == DrainStateSubmitting
}

func (s DrainState) CanTransitionTo(next DrainState) bool {
	for _, allowed := range ValidDrainTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s DrainState) ValidateTransition(next DrainState) error {
	if !s.CanTransitionTo(next) {
		return fmt.Errorf("invalid drain transition from %s to %s", s, next)
	}
	return nil
}

// DrainOutcome is how a trigger evaluation ended.
type DrainOutcome string

const (
	OutcomeUnknownSource       DrainOutcome = "unknown_source"
	OutcomeCoalesced           DrainOutcome = "coalesced"
	OutcomeBalanceUnavailable  DrainOutcome = "balance_unavailable"
	OutcomeNotTriggered        DrainOutcome = "not_triggered"
	OutcomeSequenceUnavailable DrainOutcome = "sequence_unavailable"
	OutcomeNothingToDrain      DrainOutcome = "nothing_to_drain"
	OutcomeSubmitted           DrainOutcome = "submitted"
	OutcomeSubmitFailed        DrainOutcome = "submit_failed"
)

// Drained reports whether the outcome passed trigger evaluation and ran the drain pipeline.
func (o DrainOutcome) Drained() bool {
	switch o {
	case OutcomeSequenceUnavailable, OutcomeNothingToDrain, OutcomeSubmitted, OutcomeSubmitFailed:
		return true
	}
	return false
}
