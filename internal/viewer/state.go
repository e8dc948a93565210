package viewer

// State is the viewer's connection state.
type State int

// Viewer states.
const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Controls is what a front end should show for a given state.
type Controls struct {
	SelectEnabled bool   `json:"select_enabled" doc:"Whether the URL selector accepts input"`
	ButtonEnabled bool   `json:"button_enabled" doc:"Whether the open/close button accepts input"`
	ButtonLabel   string `json:"button_label" example:"Open" doc:"Open/close button label"`
	RecordEnabled bool   `json:"record_enabled" doc:"Whether recording can be toggled"`
	RecordLabel   string `json:"record_label" example:"Record" doc:"Record button label"`
}

// ControlsFor maps a state and the recording flag to control affordances.
func ControlsFor(s State, recording bool) Controls {
	c := Controls{ButtonEnabled: true, RecordLabel: "Record"}
	switch s {
	case StateOpen:
		c.ButtonLabel = "Close"
		c.RecordEnabled = true
		if recording {
			c.RecordLabel = "Stop recording"
		}
	case StateConnecting:
		c.ButtonLabel = "Connecting..."
	default:
		c.SelectEnabled = true
		c.ButtonLabel = "Open"
	}
	return c
}
