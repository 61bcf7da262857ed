package dto

// Event types pushed to monitor viewers.
const (
	EventDisplay = "display"
	EventState   = "state"
)

// Event is one monitor message: a display line write or a pipeline state
// transition.
type Event struct {
	Type  string `json:"type"`
	Line  int    `json:"line,omitempty"`
	Text  string `json:"text,omitempty"`
	Run   string `json:"run,omitempty"`
	State string `json:"state,omitempty"`
}

// Status is the snapshot served by /api/status.
type Status struct {
	Lines [2]string `json:"lines"`
	State string    `json:"state"`
}
