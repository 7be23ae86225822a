package bus

// Payload shapes published by the engine. Optional fields are pointers or
// use omitempty so JSON consumers see exactly the documented keys.

// Severity of a console-log line.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Source of a console-log line.
type Source string

const (
	SourceSimulation Source = "simulation"
	SourceHardware   Source = "hardware"
)

type PinChange struct {
	Pin        int      `json:"pin"`
	Alias      string   `json:"alias,omitempty"`
	Mode       string   `json:"mode"`
	Value      int      `json:"value"`
	PWMValue   *int     `json:"pwmValue,omitempty"`
	Brightness *float64 `json:"brightness,omitempty"`
}

type PWMChange struct {
	Pin        int     `json:"pin"`
	Alias      string  `json:"alias,omitempty"`
	Value      int     `json:"value"`
	Brightness float64 `json:"brightness"`
}

type ConsoleLog struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Source   Source   `json:"source,omitempty"`
}

type EngineState struct {
	State string `json:"state"`
}

type ComponentRegistered struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Pin   int    `json:"pin"`
	Alias string `json:"alias,omitempty"`
}

type ComponentUnregistered struct {
	ID string `json:"id"`
}

type GPIOReset struct{}

type EngineReset struct{}

// Log publishes a console-log line from the simulation.
func (b *Bus) Log(sev Severity, msg string) {
	b.Publish(TopicConsoleLog, ConsoleLog{Message: msg, Severity: sev, Source: SourceSimulation})
}
