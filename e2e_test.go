package main

import (
	"strings"
	"sync"
	"testing"
	"time"

	"gpiosim/pkg/bus"
	"gpiosim/pkg/devices"
	"gpiosim/pkg/engine"
	"gpiosim/pkg/gpio"
	"gpiosim/pkg/utils"
)

// session runs a sketch from _sketches and collects its serial lines.
type session struct {
	t   *testing.T
	eng *engine.Engine

	mu    sync.Mutex
	lines []string
}

func startSketch(t *testing.T, name string) *session {
	t.Helper()
	src, _, err := utils.ReadSketch("_sketches/" + name)
	if err != nil {
		t.Fatalf("Failed to read sketch: %v", err)
	}
	eng, err := engine.NewSession(engine.Config{Quantum: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	s := &session{t: t, eng: eng}
	eng.Bus().Subscribe(bus.TopicConsoleLog, func(ev bus.Event) {
		l := ev.Payload.(bus.ConsoleLog)
		s.mu.Lock()
		s.lines = append(s.lines, string(l.Severity)+" "+l.Message)
		s.mu.Unlock()
	})
	t.Cleanup(eng.Stop)

	res := eng.Run(src)
	if !res.Success {
		t.Fatalf("%s failed to compile: %v", name, res.Errors)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("%s warnings: %v", name, res.Warnings)
	}
	return s
}

func (s *session) output() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.lines, "\n")
}

func (s *session) waitFor(what string, cond func() bool) {
	s.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			s.t.Fatalf("timed out waiting for %s; console:\n%s", what, s.output())
		}
		time.Sleep(time.Millisecond)
	}
}

func (s *session) waitOutput(want string) {
	s.t.Helper()
	s.waitFor(want, func() bool { return strings.Contains(s.output(), want) })
}

func (s *session) pin(id int) gpio.PinState {
	st, err := s.eng.GPIO().State(id)
	if err != nil {
		s.t.Fatal(err)
	}
	return st
}

func TestBlinkSketch(t *testing.T) {
	s := startSketch(t, "blink.ino")
	s.waitOutput("info blink ready")
	if st := s.pin(2); st.Mode != gpio.ModeOutput {
		t.Errorf("LED_BUILTIN mode = %s", st.Mode)
	}
	if s.pin(2).Value != gpio.Low {
		t.Error("LED should be driven LOW during the first half second")
	}
}

func TestFadeSketch(t *testing.T) {
	s := startSketch(t, "fade.ino")
	led, err := devices.NewLED(s.eng.GPIO(), "D1")
	if err != nil {
		t.Fatal(err)
	}
	seen := map[bool]bool{}
	s.waitFor("partial brightness", func() bool {
		b := led.Brightness()
		seen[b > 0 && b < 1] = true
		return seen[true] && s.eng.Iterations() > 20
	})
	if st := s.pin(5); !st.PWMActive {
		t.Errorf("D1 state %+v, want PWM", st)
	}
}

func TestButtonSketch(t *testing.T) {
	s := startSketch(t, "button.ino")
	btn, err := devices.NewButton(s.eng.GPIO(), "D3", true)
	if err != nil {
		t.Fatal(err)
	}
	s.waitFor("setup", func() bool { return s.pin(0).Mode == gpio.ModeInputPullUp })

	for i := 1; i <= 2; i++ {
		_ = btn.Press()
		s.waitFor("LED on", func() bool { return s.pin(2).Value == gpio.High })
		_ = btn.Release()
		s.waitFor("LED off", func() bool { return s.pin(2).Value == gpio.Low })
	}
	s.waitOutput("info pressed 2")
}

func TestPotSketch(t *testing.T) {
	s := startSketch(t, "pot.ino")
	pot, err := devices.NewPot(s.eng.GPIO())
	if err != nil {
		t.Fatal(err)
	}
	s.waitOutput("info level 0")
	pot.Set(1023)
	s.waitOutput("info level 255")
	s.waitFor("full duty", func() bool { return s.pin(4).Duty == 1023 })
}

func TestStatsSketch(t *testing.T) {
	s := startSketch(t, "stats.ino")
	s.waitOutput("info mask=0x6")
	out := s.output()
	for _, want := range []string{"info sum=38", "info max=9", "info mean=4.75"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}
