package devices

import (
	"sync"

	"gpiosim/pkg/bus"
	"gpiosim/pkg/gpio"
	"gpiosim/pkg/mathx"
)

// Pot is a potentiometer on the board's analog input. Like a pull-up
// Button, it re-applies its level as an external stimulus after every pin
// reset.
type Pot struct {
	base

	mu    sync.Mutex
	level int
}

func NewPot(ctrl *gpio.Controller) (*Pot, error) {
	p := &Pot{}
	if err := p.register(ctrl, KindPot, ctrl.Registry().AnalogPin(), nil, nil); err != nil {
		return nil, err
	}
	// The knob does not move when the pins are reset.
	p.unsub = ctrl.Bus().Subscribe(bus.TopicGPIOReset, func(bus.Event) {
		p.ctrl.SetExternalAnalog(p.Level())
	})
	return p, nil
}

// Set turns the knob to level, clamped to 0..1023.
func (p *Pot) Set(level int) {
	level = mathx.Clamp(level, 0, gpio.MaxDuty)
	p.mu.Lock()
	p.level = level
	p.mu.Unlock()
	p.ctrl.SetExternalAnalog(level)
}

// SetFraction sets the knob position as a fraction of full travel.
func (p *Pot) SetFraction(f float64) {
	f = mathx.Clamp(f, 0, 1)
	p.Set(int(f*gpio.MaxDuty + 0.5))
}

func (p *Pot) Level() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}
