package main

import (
	"image/color"
	"strconv"
	"sync"

	"gpiosim/pkg/bus"
	"gpiosim/pkg/gpio"
)

var (
	colorUnset  = color.RGBA{0x44, 0x44, 0x4c, 0xff}
	colorInput  = color.RGBA{0x2a, 0x4d, 0x8f, 0xff}
	colorActive = color.RGBA{0x5c, 0xc8, 0xff, 0xff}
	colorLow    = color.RGBA{0x3a, 0x2a, 0x10, 0xff}
	colorHigh   = color.RGBA{0xff, 0xd2, 0x3f, 0xff}
)

// tileColor picks a pin tile's fill. Outputs blend from dark to lit by
// brightness, so PWM pins glow in between.
func tileColor(s gpio.PinState) color.RGBA {
	switch s.Mode {
	case gpio.ModeUnset:
		return colorUnset
	case gpio.ModeInput, gpio.ModeInputPullUp:
		if s.Value == gpio.High {
			return colorActive
		}
		return colorInput
	}
	b := 0.0
	switch {
	case s.PWMActive:
		b = s.Brightness()
	case s.Value == gpio.High:
		b = 1
	}
	return lerp(colorLow, colorHigh, b)
}

func lerp(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*t + 0.5) }
	return color.RGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), 0xff}
}

func tileLabel(s gpio.PinState) string {
	name := strconv.Itoa(s.Pin)
	if s.Alias != "" {
		name = s.Alias + " (" + name + ")"
	}
	return name
}

func tileDetail(s gpio.PinState) string {
	if s.PWMActive {
		return "pwm " + strconv.Itoa(s.Duty)
	}
	if s.Mode == gpio.ModeUnset {
		return "-"
	}
	return s.Value.String()
}

// consolePanel keeps the newest console lines for drawing.
type consolePanel struct {
	mu    sync.Mutex
	lines []string
	max   int
}

func newConsolePanel(n int) *consolePanel { return &consolePanel{max: n} }

func (p *consolePanel) handle(ev bus.Event) {
	l, ok := ev.Payload.(bus.ConsoleLog)
	if !ok {
		return
	}
	prefix := ""
	switch {
	case l.Source == bus.SourceHardware:
		prefix = "hw> "
	case l.Severity != bus.SeverityInfo:
		prefix = string(l.Severity) + ": "
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines = append(p.lines, prefix+l.Message)
	if over := len(p.lines) - p.max; over > 0 {
		p.lines = append(p.lines[:0:0], p.lines[over:]...)
	}
}

func (p *consolePanel) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lines...)
}
