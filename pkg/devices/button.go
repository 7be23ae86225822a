package devices

import (
	"sync"

	"gpiosim/pkg/bus"
	"gpiosim/pkg/gpio"
)

// Button is a momentary switch. Wired with a pull-up it connects the pin to
// ground, so pressing reads LOW; otherwise pressing reads HIGH.
//
// The pull-up level is an external stimulus, like a press. After a pin
// reset the button is released and, when wired with a pull-up, drives its
// pin High again through SetExternalValue once the reset has completed and
// gpio-reset has been published. Pin states therefore differ from the
// board defaults on that pin while such a button stays attached.
type Button struct {
	base
	pullUp bool

	mu      sync.Mutex
	pressed bool
}

func NewButton(ctrl *gpio.Controller, pin any, pullUp bool) (*Button, error) {
	b := &Button{pullUp: pullUp}
	if err := b.register(ctrl, KindButton, pin, map[string]any{"pullUp": pullUp}, nil); err != nil {
		return nil, err
	}
	if err := b.idle(); err != nil {
		return nil, err
	}
	// A pin reset drops the pull-up level; put the released level back.
	b.unsub = ctrl.Bus().Subscribe(bus.TopicGPIOReset, func(bus.Event) {
		b.mu.Lock()
		b.pressed = false
		b.mu.Unlock()
		_ = b.idle()
	})
	return b, nil
}

func (b *Button) idle() error {
	if !b.pullUp {
		return nil
	}
	return b.ctrl.SetExternalValue(b.pin, gpio.High)
}

func (b *Button) Press() error   { return b.set(true) }
func (b *Button) Release() error { return b.set(false) }

// Toggle flips the button and reports the new pressed state.
func (b *Button) Toggle() (bool, error) {
	next := !b.Pressed()
	return next, b.set(next)
}

func (b *Button) Pressed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pressed
}

func (b *Button) set(pressed bool) error {
	b.mu.Lock()
	b.pressed = pressed
	b.mu.Unlock()

	level := gpio.LevelOf(boolInt(pressed))
	if b.pullUp {
		level = gpio.LevelOf(boolInt(!pressed))
	}
	return b.ctrl.SetExternalValue(b.pin, level)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
