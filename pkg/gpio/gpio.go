// Package gpio is the pin state machine: it owns the canonical state of every
// valid pin and of the components attached to them, validates each operation
// the way permissive real hardware does, and announces every change on the bus.
//
// Every operation resolves its pin through the board registry first and fails
// with *InvalidPinError for unknown identifiers. State mutation happens under a
// lock; notifications are published after the lock is released but before the
// operation returns, so a caller that sees an operation return knows all current
// subscribers have already observed the new state.
package gpio

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"gpiosim/pkg/board"
	"gpiosim/pkg/bus"
	"gpiosim/pkg/mathx"
)

// Controller is safe for concurrent use.
type Controller struct {
	reg *board.Registry
	bus *bus.Bus
	log *slog.Logger

	mu      sync.Mutex
	pins    map[int]*PinState
	comps   []*Component
	compSeq int
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a state entry for every pin of reg, all at defaults.
func New(reg *board.Registry, b *bus.Bus, opts ...Option) *Controller {
	c := &Controller{
		reg:  reg,
		bus:  b,
		log:  slog.Default(),
		pins: make(map[int]*PinState),
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, id := range reg.Pins() {
		c.pins[id] = &PinState{Pin: id, Alias: reg.Alias(id)}
	}
	return c
}

// Registry returns the board registry backing the controller.
func (c *Controller) Registry() *board.Registry { return c.reg }

// Bus returns the bus the controller publishes on.
func (c *Controller) Bus() *bus.Bus { return c.bus }

func (c *Controller) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.log.Warn(msg)
	c.bus.Log(bus.SeverityWarn, msg)
}

func (c *Controller) label(id int) string {
	if a := c.reg.Alias(id); a != "" {
		return fmt.Sprintf("%d (%s)", id, a)
	}
	return fmt.Sprintf("%d", id)
}

// lookup resolves pin and returns its state. Caller must hold c.mu.
func (c *Controller) lookup(pin any) (*PinState, error) {
	id, err := c.reg.Resolve(pin)
	if err != nil {
		return nil, err
	}
	return c.pins[id], nil
}

func pinChange(s PinState) bus.PinChange {
	return bus.PinChange{Pin: s.Pin, Alias: s.Alias, Mode: s.Mode.String(), Value: int(s.Value)}
}

// SetMode configures pin. INPUT_PULLUP idles High.
func (c *Controller) SetMode(pin any, mode Mode) error {
	if mode < ModeInput || mode > ModeInputPullUp {
		return fmt.Errorf("invalid pin mode %v", mode)
	}
	c.mu.Lock()
	s, err := c.lookup(pin)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	s.Mode = mode
	if mode == ModeInputPullUp {
		s.Value = High
	}
	snap := *s
	c.mu.Unlock()

	c.bus.Publish(bus.TopicPinChange, pinChange(snap))
	return nil
}

// WriteDigital drives pin to value. Writing to a pin that is not an OUTPUT is
// allowed but warned about.
func (c *Controller) WriteDigital(pin any, value Level) error {
	value = LevelOf(int(value))
	c.mu.Lock()
	s, err := c.lookup(pin)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	mode := s.Mode
	s.Value = value
	s.PWMActive = false
	if value == High {
		s.Duty = MaxDuty
	} else {
		s.Duty = 0
	}
	snap := *s
	listeners := c.listenersLocked(s.Pin)
	c.mu.Unlock()

	if mode != ModeOutput {
		c.warn("digitalWrite on pin %s which is not configured as OUTPUT (mode %s)", c.label(snap.Pin), mode)
	}
	c.bus.Publish(bus.TopicPWMChange, bus.PWMChange{
		Pin: snap.Pin, Alias: snap.Alias, Value: snap.Duty, Brightness: snap.Brightness(),
	})
	c.bus.Publish(bus.TopicPinChange, pinChange(snap))
	c.notify(listeners, snap)
	return nil
}

// ReadDigital returns pin's current value. An unset mode is warned about but
// never an error.
func (c *Controller) ReadDigital(pin any) (Level, error) {
	c.mu.Lock()
	s, err := c.lookup(pin)
	if err != nil {
		c.mu.Unlock()
		return Low, err
	}
	snap := *s
	c.mu.Unlock()

	if snap.Mode == ModeUnset {
		c.warn("digitalRead on pin %s before pinMode", c.label(snap.Pin))
	}
	return snap.Value, nil
}

// ReadAnalog returns the stored level of the analog-input pin.
func (c *Controller) ReadAnalog() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pins[c.reg.AnalogPin()].Analog
}

// WriteAnalog sets a PWM duty cycle on pin. Out-of-range duties are clamped,
// writes to non-OUTPUT pins and to pins without hardware PWM are warned about
// but still simulated.
func (c *Controller) WriteAnalog(pin any, duty int) error {
	clamped := mathx.Clamp(duty, 0, MaxDuty)

	c.mu.Lock()
	s, err := c.lookup(pin)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	mode := s.Mode
	s.PWMActive = true
	s.Duty = clamped
	s.Value = LevelOf(clamped)
	snap := *s
	listeners := c.listenersLocked(s.Pin)
	c.mu.Unlock()

	if clamped != duty {
		c.warn("analogWrite value %d on pin %s out of range 0..%d, clamped to %d", duty, c.label(snap.Pin), MaxDuty, clamped)
	}
	if mode != ModeUnset && mode != ModeOutput {
		c.warn("analogWrite on pin %s which is configured as %s, not OUTPUT", c.label(snap.Pin), mode)
	}
	if !c.reg.HasPWM(snap.Pin) {
		c.warn("pin %s has no hardware PWM, simulating software PWM", c.label(snap.Pin))
	}

	brightness := snap.Brightness()
	c.bus.Publish(bus.TopicPWMChange, bus.PWMChange{
		Pin: snap.Pin, Alias: snap.Alias, Value: snap.Duty, Brightness: brightness,
	})
	ev := pinChange(snap)
	ev.PWMValue = &snap.Duty
	ev.Brightness = &brightness
	c.bus.Publish(bus.TopicPinChange, ev)
	c.notify(listeners, snap)
	return nil
}

// SetExternalValue drives an input from outside the program (a simulated
// button, a jumper). The pin mode is deliberately not checked.
func (c *Controller) SetExternalValue(pin any, value Level) error {
	c.mu.Lock()
	s, err := c.lookup(pin)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	s.Value = LevelOf(int(value))
	snap := *s
	c.mu.Unlock()

	c.bus.Publish(bus.TopicPinChange, pinChange(snap))
	return nil
}

// SetExternalAnalog sets the level the analog-input pin reads, clamped to
// 0..MaxDuty.
func (c *Controller) SetExternalAnalog(level int) {
	c.mu.Lock()
	s := c.pins[c.reg.AnalogPin()]
	s.Analog = mathx.Clamp(level, 0, MaxDuty)
	snap := *s
	c.mu.Unlock()

	ev := pinChange(snap)
	ev.PWMValue = &snap.Analog
	c.bus.Publish(bus.TopicPinChange, ev)
}

// State returns a copy of pin's state.
func (c *Controller) State(pin any) (PinState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.lookup(pin)
	if err != nil {
		return PinState{}, err
	}
	return *s, nil
}

// States returns a copy of every pin's state ordered by pin id.
func (c *Controller) States() []PinState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PinState, 0, len(c.pins))
	for _, s := range c.pins {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pin < out[j].Pin })
	return out
}

// Reset returns every pin to defaults. Attached components are kept.
func (c *Controller) Reset() {
	c.mu.Lock()
	for _, s := range c.pins {
		s.reset()
	}
	c.mu.Unlock()
	c.bus.Publish(bus.TopicGPIOReset, bus.GPIOReset{})
}

// RegisterComponent attaches a component and returns its id. An empty
// Descriptor.ID is replaced by "<kind>-<n>".
func (c *Controller) RegisterComponent(d Descriptor) (string, error) {
	if d.Kind == "" {
		return "", fmt.Errorf("component kind is required")
	}
	c.mu.Lock()
	s, err := c.lookup(d.Pin)
	if err != nil {
		c.mu.Unlock()
		return "", err
	}
	c.compSeq++
	id := d.ID
	if id == "" {
		id = fmt.Sprintf("%s-%d", d.Kind, c.compSeq)
	}
	for _, existing := range c.comps {
		if existing.ID == id {
			c.mu.Unlock()
			return "", fmt.Errorf("component %q already registered", id)
		}
	}
	comp := &Component{ID: id, Kind: d.Kind, Pin: s.Pin, Config: d.Config, listener: d.Listener}
	c.comps = append(c.comps, comp)
	alias := s.Alias
	c.mu.Unlock()

	c.bus.Publish(bus.TopicComponentRegistered, bus.ComponentRegistered{
		ID: id, Kind: comp.Kind, Pin: comp.Pin, Alias: alias,
	})
	return id, nil
}

// UnregisterComponent detaches the component with the given id.
func (c *Controller) UnregisterComponent(id string) error {
	c.mu.Lock()
	idx := -1
	for i, comp := range c.comps {
		if comp.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return fmt.Errorf("component %q not registered", id)
	}
	c.comps = append(c.comps[:idx:idx], c.comps[idx+1:]...)
	c.mu.Unlock()

	c.bus.Publish(bus.TopicComponentUnregistered, bus.ComponentUnregistered{ID: id})
	return nil
}

// Components returns the attached components in registration order.
func (c *Controller) Components() []Component {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Component, len(c.comps))
	for i, comp := range c.comps {
		out[i] = *comp
	}
	return out
}

// listenersLocked collects listeners attached to pin. Caller holds c.mu.
func (c *Controller) listenersLocked(pin int) []Listener {
	var ls []Listener
	for _, comp := range c.comps {
		if comp.Pin == pin && comp.listener != nil {
			ls = append(ls, comp.listener)
		}
	}
	return ls
}

func (c *Controller) notify(ls []Listener, s PinState) {
	ev := PinEvent{Pin: s.Pin, Value: s.Value, Duty: s.Duty, Brightness: s.Brightness(), PWM: s.PWMActive}
	for _, l := range ls {
		l.PinChanged(ev)
	}
}
