package pipeline

// State is a step of a button press run.
type State int

const (
	StateIdle State = iota
	StatePressed
	StateCapturing
	StateDetecting
	StateUploading
	StatePublishing
	StateResult
)

var stateNames = map[State]string{
	StateIdle:       "idle",
	StatePressed:    "pressed",
	StateCapturing:  "capturing",
	StateDetecting:  "detecting",
	StateUploading:  "uploading",
	StatePublishing: "publishing",
	StateResult:     "result",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Observer is notified on every state transition.
type Observer interface {
	StateChanged(runID string, state State)
}
