package asset

import "strings"

// State represents the lifecycle of a pending asset moving through the
// ingestion pipeline.
type State string

const (
	StateIdle             State = "idle"
	StateFingerprinting   State = "fingerprinting"
	StateDedupCheck       State = "dedup_check"
	StateAwaitingDecision State = "awaiting_decision"
	StateCompressing      State = "compressing"
	StateUploading        State = "uploading"
	StatePersisted        State = "persisted"
	StateFailed           State = "failed"
	StateCancelled        State = "cancelled"
)

var allStates = []State{
	StateIdle,
	StateFingerprinting,
	StateDedupCheck,
	StateAwaitingDecision,
	StateCompressing,
	StateUploading,
	StatePersisted,
	StateFailed,
	StateCancelled,
}

var terminalStates = map[State]struct{}{
	StatePersisted: {},
	StateFailed:    {},
	StateCancelled: {},
}

// legalTransitions enumerates every forward edge of the pipeline state
// machine. Failed and cancelled are reachable from every non-terminal state
// and are handled in CanTransition rather than listed per-state.
var legalTransitions = map[State][]State{
	StateIdle:             {StateFingerprinting},
	StateFingerprinting:   {StateDedupCheck},
	StateDedupCheck:       {StateAwaitingDecision, StateCompressing, StateUploading},
	StateAwaitingDecision: {StatePersisted, StateCompressing, StateUploading},
	StateCompressing:      {StateUploading},
	StateUploading:        {StatePersisted},
}

// AllStates returns the ordered list of known states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	for _, s := range allStates {
		if s == normalized {
			return normalized, true
		}
	}
	return "", false
}

// IsTerminal reports whether the state ends the pipeline for this asset.
func (s State) IsTerminal() bool {
	_, ok := terminalStates[s]
	return ok
}

// CanTransition reports whether moving from s to next is a legal edge.
func (s State) CanTransition(next State) bool {
	if s == next {
		return false
	}
	if s.IsTerminal() {
		return false
	}
	if next == StateFailed || next == StateCancelled {
		return true
	}
	for _, candidate := range legalTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}
