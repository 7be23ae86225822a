package devices

import (
	"sync"

	"gpiosim/pkg/gpio"
)

// LED mirrors the pin it is attached to. Under PWM its brightness follows
// the duty cycle; otherwise it is fully on or off.
type LED struct {
	base

	mu         sync.Mutex
	on         bool
	brightness float64
	changes    int
}

func NewLED(ctrl *gpio.Controller, pin any) (*LED, error) {
	l := &LED{}
	if err := l.register(ctrl, KindLED, pin, nil, l); err != nil {
		return nil, err
	}
	return l, nil
}

// PinChanged implements gpio.Listener.
func (l *LED) PinChanged(ev gpio.PinEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = ev.Value == gpio.High
	if ev.PWM {
		l.brightness = ev.Brightness
	} else if l.on {
		l.brightness = 1
	} else {
		l.brightness = 0
	}
	l.changes++
}

func (l *LED) On() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

// Brightness in [0, 1].
func (l *LED) Brightness() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.brightness
}

// Changes counts the writes the LED has seen since it was attached.
func (l *LED) Changes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.changes
}
