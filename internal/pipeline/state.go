package pipeline

// State is the position of a source file in the pipeline.
type State int

// States in processing order. Failed is terminal and reachable from any
// non-terminal state.
const (
	Pending State = iota
	Skipped
	Sizing
	Planning
	Downloading
	Reassembling
	Expanding
	Uploading
	CleaningUp
	Done
	Failed
)

var stateNames = [...]string{
	Pending:      "pending",
	Skipped:      "skipped",
	Sizing:       "sizing",
	Planning:     "planning",
	Downloading:  "downloading",
	Reassembling: "reassembling",
	Expanding:    "expanding",
	Uploading:    "uploading",
	CleaningUp:   "cleaning-up",
	Done:         "done",
	Failed:       "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s == Skipped || s == Done || s == Failed
}

// next lists the legal forward transitions. Failed is always legal from a
// non-terminal state and is not listed.
var next = map[State][]State{
	Pending:      {Skipped, Sizing, Planning},
	Sizing:       {Planning},
	Planning:     {Downloading},
	Downloading:  {Reassembling, Expanding},
	Reassembling: {Expanding},
	Expanding:    {Uploading},
	Uploading:    {CleaningUp},
	CleaningUp:   {Done},
}

// canTransition reports whether a file may move from s to t.
func (s State) canTransition(t State) bool {
	if s.Terminal() {
		return false
	}
	if t == Failed {
		return true
	}
	for _, n := range next[s] {
		if n == t {
			return true
		}
	}
	return false
}
