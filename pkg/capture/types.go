package capture

import "time"

// Op is a control command verb.
type Op int

const (
	// OpStart begins streaming from a source.
	OpStart Op = iota
	// OpStop ends the current stream.
	OpStop
	// OpSwitch changes the active source without stopping.
	OpSwitch
)

func (o Op) String() string {
	switch o {
	case OpStart:
		return "start"
	case OpStop:
		return "stop"
	case OpSwitch:
		return "switch"
	default:
		return "unknown"
	}
}

// Command is one message on the loop's control inbox.
type Command struct {
	Op     Op
	Source string
}

// Record is an accepted plate sighting handed to the sink.
type Record struct {
	Code       string    `json:"plate"`
	Source     string    `json:"camera"`
	Confidence float32   `json:"confidence"`
	Time       time.Time `json:"timestamp"`
	ImageRef   string    `json:"image_ref,omitempty"`
}

// Status describes the loop's run state, emitted on every transition.
type Status struct {
	Running bool   `json:"running"`
	Source  string `json:"source,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Sink receives loop output. All calls are fire-and-forget: the loop never
// blocks on or reacts to sink outcomes beyond logging.
type Sink interface {
	// OnRecord delivers one accepted sighting. The return value reports
	// whether the sink kept it; the loop only logs a false.
	OnRecord(rec Record) bool
	// OnFrame delivers one annotated JPEG frame for live display.
	OnFrame(jpeg []byte)
	// OnStatus delivers a run-state transition.
	OnStatus(st Status)
}
