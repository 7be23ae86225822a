package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gpiosim/pkg/board"
	"gpiosim/pkg/bus"
	"gpiosim/pkg/engine"
	"gpiosim/pkg/gpio"
)

const echoButton = `void setup() { pinMode(D3, INPUT); pinMode(D4, OUTPUT); }
void loop() { digitalWrite(D4, digitalRead(D3)); }`

func newTestShell(t *testing.T, src string) (*shell, *engine.Engine, *eventPrinter, *bytes.Buffer) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sketch.ino")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	eng := engine.New(engine.Config{Quantum: time.Millisecond}, gpio.New(board.Default(), bus.New(256)))
	t.Cleanup(eng.Stop)
	var buf bytes.Buffer
	p := &eventPrinter{w: &buf, pins: true}
	t.Cleanup(eng.Bus().Subscribe(bus.TopicAll, p.handle))
	return newShell(eng, p, path), eng, p, &buf
}

func waitPin(t *testing.T, eng *engine.Engine, pin int, want gpio.Level) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		s, _ := eng.GPIO().State(pin)
		if s.Value == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("pin %d never became %v", pin, want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestShellButtonDrivesSketch(t *testing.T) {
	sh, eng, _, _ := newTestShell(t, echoButton)
	if sh.exec("run") {
		t.Fatal("run asked to quit")
	}
	sh.exec("press D3")
	waitPin(t, eng, 2, gpio.High)
	sh.exec("release D3")
	waitPin(t, eng, 2, gpio.Low)
	if len(eng.GPIO().Components()) != 1 {
		t.Errorf("components = %v", eng.GPIO().Components())
	}
}

func TestShellCommands(t *testing.T) {
	sh, eng, p, buf := newTestShell(t, echoButton)

	p.mu.Lock()
	buf.Reset()
	p.mu.Unlock()
	sh.exec("state")
	sh.exec("pot 700")
	sh.exec(`attach led "D1"`)
	sh.exec("bogus")
	sh.exec(`send "unterminated`)

	p.mu.Lock()
	out := buf.String()
	p.mu.Unlock()
	for _, want := range []string{"idle, 0 iterations", "attached led-", `unknown command "bogus"`, "error:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if eng.GPIO().ReadAnalog() != 700 {
		t.Errorf("analog = %d", eng.GPIO().ReadAnalog())
	}
	if !sh.exec("quit") {
		t.Error("quit did not exit")
	}
}

func TestEventPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := &eventPrinter{w: &buf, pins: true}
	duty := 512
	p.handle(bus.Event{Payload: bus.ConsoleLog{Message: "hi", Severity: bus.SeverityInfo, Source: bus.SourceHardware}})
	p.handle(bus.Event{Payload: bus.PinChange{Pin: 2, Alias: "D4", Mode: "OUTPUT", Value: 1}})
	p.handle(bus.Event{Payload: bus.PinChange{Pin: 5, Mode: "OUTPUT", Value: 1, PWMValue: &duty}})
	p.handle(bus.Event{Payload: bus.EngineState{State: "running"}})

	want := "[hw] hi\npin D4(2) OUTPUT HIGH\npin 5 OUTPUT pwm=512\nengine running\n"
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}
