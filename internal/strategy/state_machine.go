package strategy

import "sync"

// StateMachine tracks the refresh cycle phase. Unknown transitions leave the
// phase unchanged; shutdown is honored from every phase and never left.
type StateMachine struct {
	mu    sync.Mutex
	Phase Phase
}

func NewStateMachine() *StateMachine {
	return &StateMachine{Phase: PhaseIdle}
}

func (s *StateMachine) Apply(event Event) Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Phase = nextPhase(s.Phase, event)
	return s.Phase
}

func (s *StateMachine) Current() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Phase
}

func nextPhase(current Phase, event Event) Phase {
	if current == PhaseShuttingDown {
		return current
	}
	if event == EventShutdown {
		return PhaseShuttingDown
	}
	if event == EventAbort {
		return PhaseIdle
	}
	switch current {
	case PhaseIdle:
		if event == EventTick {
			return PhaseFetchingPrice
		}
	case PhaseFetchingPrice:
		// A failed price fetch still reconciles so venue-reported exposure
		// can be flattened; quoting is skipped by the caller.
		if event == EventPriceOK || event == EventPriceFailed {
			return PhaseReconciling
		}
	case PhaseReconciling:
		if event == EventExposed {
			return PhaseNeutralizing
		}
		if event == EventFlat {
			return PhaseCancelling
		}
	case PhaseNeutralizing:
		if event == EventNeutralized {
			return PhaseCancelling
		}
	case PhaseCancelling:
		if event == EventCancelled {
			return PhasePlacing
		}
	case PhasePlacing:
		if event == EventPlaced {
			return PhaseIdle
		}
	}
	return current
}
