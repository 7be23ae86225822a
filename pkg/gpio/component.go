package gpio

// PinEvent is what attached components are told after a write to their pin.
type PinEvent struct {
	Pin        int
	Value      Level
	Duty       int
	Brightness float64
	PWM        bool
}

// Listener is implemented by components that want to observe writes to the
// pin they are attached to.
type Listener interface {
	PinChanged(PinEvent)
}

// Component describes something wired to a pin (an LED, a button, ...).
// Components outlive pin resets; only explicit unregistration removes them.
type Component struct {
	ID     string         `json:"id"`
	Kind   string         `json:"kind"`
	Pin    int            `json:"pin"`
	Config map[string]any `json:"config,omitempty"`

	listener Listener
}

// Descriptor is the registration request for a component. Pin accepts any
// identifier form understood by the board registry.
type Descriptor struct {
	ID       string
	Kind     string
	Pin      any
	Config   map[string]any
	Listener Listener
}
