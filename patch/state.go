package patch

import "fmt"

// State is a stage of the injection compiler.
type State uint8

const (
	StateParse State = iota
	StateReanalyze
	StateGenerateIR
	StateRewireEntry
	StateMerge
	StateClosureResolve
	StateAssemble
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateParse:          "parse",
	StateReanalyze:      "reanalyze",
	StateGenerateIR:     "generate_ir",
	StateRewireEntry:    "rewire_entry",
	StateMerge:          "merge",
	StateClosureResolve: "closure_resolve",
	StateAssemble:       "assemble",
	StateDone:           "done",
	StateFailed:         "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", s)
}

// Failed is returned when a patch stops in a stage. It wraps the cause, so
// errors.Is on the toolchain's error sentinels still matches.
type Failed struct {
	State State
	Err   error
}

func (f *Failed) Error() string {
	return "patch failed in " + f.State.String() + ": " + f.Err.Error()
}

func (f *Failed) Unwrap() error { return f.Err }
