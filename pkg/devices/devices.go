// Package devices implements the parts a sketch can be wired to: LEDs that
// follow their pin, push buttons and a potentiometer that drive inputs from
// outside the program.
package devices

import (
	"fmt"
	"strings"

	"gpiosim/pkg/gpio"
)

// Kinds understood by Attach.
const (
	KindLED    = "led"
	KindButton = "button"
	KindPot    = "potentiometer"
)

// Device is anything Attach can return.
type Device interface {
	ID() string
	Kind() string
	Pin() int
	Detach() error
}

// Attach creates and registers a device of the given kind on pin. Config
// keys: "pullUp" (bool) for buttons.
func Attach(ctrl *gpio.Controller, kind string, pin any, cfg map[string]any) (Device, error) {
	switch strings.ToLower(kind) {
	case KindLED:
		return NewLED(ctrl, pin)
	case KindButton:
		pullUp, _ := cfg["pullUp"].(bool)
		return NewButton(ctrl, pin, pullUp)
	case KindPot, "pot":
		return NewPot(ctrl)
	}
	return nil, fmt.Errorf("unknown device kind %q", kind)
}

// base carries the registration shared by every device.
type base struct {
	ctrl *gpio.Controller
	id   string
	kind string
	pin  int

	unsub func()
}

func (b *base) ID() string   { return b.id }
func (b *base) Kind() string { return b.kind }
func (b *base) Pin() int     { return b.pin }

// Detach unregisters the device. The pin keeps its state.
func (b *base) Detach() error {
	if b.unsub != nil {
		b.unsub()
		b.unsub = nil
	}
	return b.ctrl.UnregisterComponent(b.id)
}

func (b *base) register(ctrl *gpio.Controller, kind string, pin any, cfg map[string]any, l gpio.Listener) error {
	id, err := ctrl.RegisterComponent(gpio.Descriptor{Kind: kind, Pin: pin, Config: cfg, Listener: l})
	if err != nil {
		return err
	}
	resolved, err := ctrl.Registry().Resolve(pin)
	if err != nil {
		return err
	}
	b.ctrl, b.id, b.kind, b.pin = ctrl, id, kind, resolved
	return nil
}
