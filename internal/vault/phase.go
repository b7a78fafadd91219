package vault

// Phase is a step of a run. Runs move through the phases in declaration
// order and can fail from any of them.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseLoadRemoteIndex
	PhaseBuildLocalSnapshot
	PhaseDiff
	PhaseRemove
	PhaseUpdate
	PhasePersistIndex
	PhaseRestore
	PhaseDone
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseInit:               "init",
	PhaseLoadRemoteIndex:    "load-remote-index",
	PhaseBuildLocalSnapshot: "build-local-snapshot",
	PhaseDiff:               "diff",
	PhaseRemove:             "remove",
	PhaseUpdate:             "update",
	PhasePersistIndex:       "persist-index",
	PhaseRestore:            "restore",
	PhaseDone:               "done",
	PhaseFailed:             "failed",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// PhaseError records the phase a run failed in.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return e.Phase.String() + ": " + e.Err.Error()
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}
