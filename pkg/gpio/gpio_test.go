package gpio

import (
	"errors"
	"strings"
	"testing"

	"gpiosim/pkg/board"
	"gpiosim/pkg/bus"
)

func newTestController(t *testing.T) (*Controller, *bus.Bus) {
	t.Helper()
	b := bus.New(256)
	return New(board.Default(), b), b
}

func warnings(b *bus.Bus) []string {
	var out []string
	for _, ev := range b.History(bus.TopicConsoleLog) {
		if l := ev.Payload.(bus.ConsoleLog); l.Severity == bus.SeverityWarn {
			out = append(out, l.Message)
		}
	}
	return out
}

func TestAnalogWriteDrivesDigitalView(t *testing.T) {
	c, _ := newTestController(t)
	for _, pin := range c.Registry().Pins() {
		if err := c.SetMode(pin, ModeOutput); err != nil {
			t.Fatalf("SetMode(%d): %v", pin, err)
		}
		for _, duty := range []int{0, 1, 512, 1022, 1023} {
			if err := c.WriteAnalog(pin, duty); err != nil {
				t.Fatalf("WriteAnalog(%d, %d): %v", pin, duty, err)
			}
			v, err := c.ReadDigital(pin)
			if err != nil {
				t.Fatalf("ReadDigital(%d): %v", pin, err)
			}
			if want := LevelOf(duty); v != want {
				t.Errorf("pin %d duty %d: read %v, want %v", pin, duty, v, want)
			}
		}
	}
}

func TestAnalogWriteClamps(t *testing.T) {
	tests := []struct {
		duty int
		want int
	}{
		{-5, 0},
		{2000, 1023},
	}
	for _, tt := range tests {
		c, b := newTestController(t)
		_ = c.SetMode(5, ModeOutput)
		if err := c.WriteAnalog(5, tt.duty); err != nil {
			t.Fatalf("WriteAnalog: %v", err)
		}
		s, _ := c.State(5)
		if s.Duty != tt.want {
			t.Errorf("duty %d: stored %d, want %d", tt.duty, s.Duty, tt.want)
		}
		w := warnings(b)
		if len(w) != 1 || !strings.Contains(w[0], "out of range") {
			t.Errorf("duty %d: expected one clamp warning, got %v", tt.duty, w)
		}
	}
}

func TestDigitalWriteSnapsDuty(t *testing.T) {
	c, _ := newTestController(t)
	_ = c.SetMode(4, ModeOutput)
	_ = c.WriteAnalog(4, 300)

	_ = c.WriteDigital(4, High)
	s, _ := c.State(4)
	if s.Duty != MaxDuty || s.PWMActive || s.Value != High {
		t.Errorf("after HIGH: %+v", s)
	}

	_ = c.WriteAnalog(4, 300)
	_ = c.WriteDigital(4, Low)
	s, _ = c.State(4)
	if s.Duty != 0 || s.PWMActive || s.Value != Low {
		t.Errorf("after LOW: %+v", s)
	}
}

func TestAnalogSupersedesDigital(t *testing.T) {
	c, b := newTestController(t)
	_ = c.SetMode(14, ModeOutput)
	_ = c.WriteDigital(14, High)
	b.Clear()
	_ = c.WriteAnalog(14, 100)

	s, _ := c.State(14)
	if s.Duty != 100 || !s.PWMActive || s.Value != High {
		t.Fatalf("analog write did not supersede digital: %+v", s)
	}
	pwm := b.History(bus.TopicPWMChange)
	if len(pwm) != 1 {
		t.Fatalf("expected one pwm-change, got %d", len(pwm))
	}
	p := pwm[0].Payload.(bus.PWMChange)
	if p.Value != 100 || p.Brightness != 100.0/1023 {
		t.Errorf("pwm-change payload %+v", p)
	}
}

func TestWriteBeforeModeWarnsButWrites(t *testing.T) {
	c, b := newTestController(t)
	if err := c.WriteDigital("D1", High); err != nil {
		t.Fatalf("WriteDigital: %v", err)
	}
	s, _ := c.State(5)
	if s.Value != High {
		t.Errorf("write was not performed")
	}
	if w := warnings(b); len(w) != 1 || !strings.Contains(w[0], "not configured as OUTPUT") {
		t.Errorf("expected mode warning, got %v", w)
	}
}

func TestReadUnsetWarns(t *testing.T) {
	c, b := newTestController(t)
	v, err := c.ReadDigital(13)
	if err != nil || v != Low {
		t.Fatalf("ReadDigital = %v, %v", v, err)
	}
	if len(warnings(b)) != 1 {
		t.Error("expected a warning for reading an unset pin")
	}
}

func TestSoftwarePWMWarning(t *testing.T) {
	c, b := newTestController(t)
	_ = c.SetMode("D0", ModeOutput)
	if err := c.WriteAnalog("D0", 512); err != nil {
		t.Fatalf("WriteAnalog: %v", err)
	}
	w := warnings(b)
	if len(w) != 1 || !strings.Contains(w[0], "software PWM") {
		t.Errorf("expected software PWM warning, got %v", w)
	}
	s, _ := c.State(16)
	if s.Duty != 512 {
		t.Errorf("software PWM not simulated: %+v", s)
	}
}

func TestAnalogWriteOnInputWarns(t *testing.T) {
	c, b := newTestController(t)
	_ = c.SetMode(12, ModeInput)
	_ = c.WriteAnalog(12, 10)
	if w := warnings(b); len(w) != 1 || !strings.Contains(w[0], "not OUTPUT") {
		t.Errorf("expected mode warning, got %v", w)
	}
}

func TestPullUpIdlesHigh(t *testing.T) {
	c, _ := newTestController(t)
	_ = c.SetMode(0, ModeInputPullUp)
	v, _ := c.ReadDigital(0)
	if v != High {
		t.Errorf("INPUT_PULLUP pin should idle HIGH")
	}
	_ = c.SetExternalValue(0, Low)
	v, _ = c.ReadDigital(0)
	if v != Low {
		t.Errorf("external value not applied")
	}
	s, _ := c.State(0)
	if s.Mode != ModeInputPullUp {
		t.Errorf("external value changed the mode to %v", s.Mode)
	}
}

func TestInvalidPin(t *testing.T) {
	c, _ := newTestController(t)
	ops := map[string]error{
		"SetMode":          c.SetMode(99, ModeOutput),
		"WriteDigital":     c.WriteDigital("D9", High),
		"WriteAnalog":      c.WriteAnalog(7, 1),
		"SetExternalValue": c.SetExternalValue("bogus", High),
	}
	_, ops["ReadDigital"] = c.ReadDigital(-1)
	for name, err := range ops {
		var ipe *InvalidPinError
		if !errors.As(err, &ipe) {
			t.Errorf("%s: expected InvalidPinError, got %v", name, err)
		}
	}
}

func TestPublishOrder(t *testing.T) {
	c, b := newTestController(t)
	_ = c.SetMode(2, ModeOutput)
	b.Clear()
	_ = c.WriteDigital("LED_BUILTIN", High)
	hist := b.History(bus.TopicPinChange, bus.TopicPWMChange)
	if len(hist) != 2 || hist[0].Topic != bus.TopicPWMChange || hist[1].Topic != bus.TopicPinChange {
		t.Fatalf("expected pwm-change then pin-change, got %+v", hist)
	}
	pc := hist[1].Payload.(bus.PinChange)
	if pc.Pin != 2 || pc.Alias != "D4" || pc.Mode != "OUTPUT" || pc.Value != 1 {
		t.Errorf("pin-change payload %+v", pc)
	}
}

func TestSubscribersSeeStateBeforeReturn(t *testing.T) {
	c, b := newTestController(t)
	_ = c.SetMode(13, ModeOutput)
	var seen Level = -1
	b.Subscribe(bus.TopicPinChange, func(bus.Event) {
		s, _ := c.State(13)
		seen = s.Value
	})
	_ = c.WriteDigital(13, High)
	if seen != High {
		t.Errorf("subscriber observed %v during publish", seen)
	}
}

type recorder struct{ events []PinEvent }

func (r *recorder) PinChanged(ev PinEvent) { r.events = append(r.events, ev) }

func TestComponentsSurviveReset(t *testing.T) {
	c, b := newTestController(t)
	rec := &recorder{}
	id, err := c.RegisterComponent(Descriptor{Kind: "led", Pin: "D5", Listener: rec})
	if err != nil {
		t.Fatalf("RegisterComponent: %v", err)
	}
	if id != "led-1" {
		t.Errorf("generated id %q", id)
	}
	_ = c.SetMode(14, ModeOutput)
	_ = c.WriteAnalog(14, 1023)
	_ = c.WriteDigital(14, Low)
	if len(rec.events) != 2 || rec.events[0].Brightness != 1 || !rec.events[0].PWM || rec.events[1].Duty != 0 {
		t.Errorf("listener events %+v", rec.events)
	}

	c.Reset()
	for _, s := range c.States() {
		if s.Mode != ModeUnset || s.Value != Low || s.Duty != 0 || s.PWMActive {
			t.Errorf("pin %d not reset: %+v", s.Pin, s)
		}
	}
	if comps := c.Components(); len(comps) != 1 || comps[0].ID != id || comps[0].Pin != 14 {
		t.Errorf("components after reset: %+v", comps)
	}
	if len(b.History(bus.TopicGPIOReset)) != 1 {
		t.Error("gpio-reset not published")
	}

	if _, err := c.RegisterComponent(Descriptor{ID: id, Kind: "led", Pin: 14}); err == nil {
		t.Error("duplicate id accepted")
	}
	if err := c.UnregisterComponent(id); err != nil {
		t.Fatalf("UnregisterComponent: %v", err)
	}
	if err := c.UnregisterComponent(id); err == nil {
		t.Error("second unregister should fail")
	}
	if len(b.History(bus.TopicComponentRegistered)) != 1 || len(b.History(bus.TopicComponentUnregistered)) != 1 {
		t.Error("component events missing")
	}
}

func TestExternalAnalog(t *testing.T) {
	c, _ := newTestController(t)
	c.SetExternalAnalog(700)
	if got := c.ReadAnalog(); got != 700 {
		t.Errorf("ReadAnalog = %d", got)
	}
	c.SetExternalAnalog(5000)
	if got := c.ReadAnalog(); got != MaxDuty {
		t.Errorf("ReadAnalog not clamped: %d", got)
	}
}

func TestModeFromDialect(t *testing.T) {
	for v, want := range map[int]Mode{0: ModeInput, 1: ModeOutput, 2: ModeInputPullUp} {
		got, err := ModeFromDialect(v)
		if err != nil || got != want {
			t.Errorf("ModeFromDialect(%d) = %v, %v", v, got, err)
		}
	}
	if _, err := ModeFromDialect(7); err == nil {
		t.Error("expected error for mode 7")
	}
}
