package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/shlex"

	"gpiosim/pkg/bus"
	"gpiosim/pkg/devices"
	"gpiosim/pkg/engine"
	"gpiosim/pkg/utils"
)

// forwarder lets the engine be built before the writer it forwards to.
type forwarder struct {
	mu sync.Mutex
	w  io.Writer
}

func (f *forwarder) set(w io.Writer) {
	f.mu.Lock()
	f.w = w
	f.mu.Unlock()
}

func (f *forwarder) Write(p []byte) (int, error) {
	f.mu.Lock()
	w := f.w
	f.mu.Unlock()
	if w == nil {
		return len(p), nil
	}
	return w.Write(p)
}

// eventPrinter writes bus events as text lines. It is also the writer the
// shell answers on, so both outputs interleave by line.
type eventPrinter struct {
	mu   sync.Mutex
	w    io.Writer
	pins bool
}

func (p *eventPrinter) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.w.Write(b)
}

func (p *eventPrinter) printf(format string, args ...any) {
	fmt.Fprintf(p, format+"\n", args...)
}

func (p *eventPrinter) handle(ev bus.Event) {
	switch v := ev.Payload.(type) {
	case bus.ConsoleLog:
		tag := string(v.Severity)
		if v.Source == bus.SourceHardware {
			tag = "hw"
		}
		p.printf("[%s] %s", tag, v.Message)
	case bus.PinChange:
		if !p.pins {
			return
		}
		name := strconv.Itoa(v.Pin)
		if v.Alias != "" {
			name = v.Alias + "(" + name + ")"
		}
		if v.PWMValue != nil {
			p.printf("pin %s %s pwm=%d", name, v.Mode, *v.PWMValue)
			return
		}
		p.printf("pin %s %s %s", name, v.Mode, levelName(v.Value))
	case bus.EngineState:
		p.printf("engine %s", v.State)
	case bus.ComponentRegistered:
		p.printf("attached %s (%s) to pin %d", v.ID, v.Kind, v.Pin)
	case bus.ComponentUnregistered:
		p.printf("detached %s", v.ID)
	}
}

func levelName(v int) string {
	if v != 0 {
		return "HIGH"
	}
	return "LOW"
}

type shell struct {
	eng  *engine.Engine
	out  io.Writer
	path string

	devs    map[string]devices.Device
	buttons map[int]*devices.Button
	pot     *devices.Pot
}

func newShell(eng *engine.Engine, out io.Writer, path string) *shell {
	return &shell{
		eng:     eng,
		out:     out,
		path:    path,
		devs:    make(map[string]devices.Device),
		buttons: make(map[int]*devices.Button),
	}
}

const helpText = `commands:
  start | stop | reset | run      control the engine (run reloads the sketch file)
  state | pins | components       inspect
  attach <kind> <pin> [pullup]    attach led, button or pot
  detach <id>
  press <pin> | release <pin> | toggle <pin>
  pot <0..1023>
  send <text>                     queue text for Serial.read
  quit`

// exec runs one command line and reports whether the shell should exit.
func (s *shell) exec(line string) bool {
	args, err := shlex.Split(line)
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
		return false
	}
	if len(args) == 0 {
		return false
	}
	if err := s.dispatch(strings.ToLower(args[0]), args[1:]); err != nil {
		if errors.Is(err, errQuit) {
			return true
		}
		fmt.Fprintf(s.out, "error: %v\n", err)
	}
	return false
}

var errQuit = errors.New("quit")

func (s *shell) dispatch(cmd string, args []string) error {
	switch cmd {
	case "quit", "exit":
		return errQuit
	case "help", "?":
		fmt.Fprintln(s.out, helpText)
	case "start":
		return s.eng.Start()
	case "stop":
		s.eng.Stop()
	case "reset":
		s.eng.Reset()
	case "run":
		src, _, err := utils.ReadSketch(s.path)
		if err != nil {
			return err
		}
		if res := s.eng.Run(src); !res.Success {
			return fmt.Errorf("%d compile error(s)", len(res.Errors))
		}
	case "state":
		fmt.Fprintf(s.out, "%s, %d iterations\n", s.eng.State(), s.eng.Iterations())
	case "pins":
		s.printPins()
	case "components":
		for _, c := range s.eng.GPIO().Components() {
			fmt.Fprintf(s.out, "%s\t%s\tpin %d\n", c.ID, c.Kind, c.Pin)
		}
	case "attach":
		return s.attach(args)
	case "detach":
		return s.detach(args)
	case "press", "release", "toggle":
		return s.button(cmd, args)
	case "pot":
		return s.setPot(args)
	case "send":
		if len(args) == 0 {
			return fmt.Errorf("usage: send <text>")
		}
		s.eng.SendSerial(strings.Join(args, " ") + "\n")
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return nil
}

func (s *shell) printPins() {
	states := s.eng.GPIO().States()
	sort.Slice(states, func(i, j int) bool { return states[i].Pin < states[j].Pin })
	for _, st := range states {
		line := fmt.Sprintf("%3d %-12s %-13s %s", st.Pin, st.Alias, st.Mode, st.Value)
		if st.PWMActive {
			line += fmt.Sprintf(" duty=%d", st.Duty)
		}
		fmt.Fprintln(s.out, line)
	}
}

func (s *shell) attach(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: attach <kind> <pin> [pullup]")
	}
	var pin any
	if len(args) > 1 {
		pin = args[1]
	}
	cfg := map[string]any{}
	if len(args) > 2 && strings.EqualFold(args[2], "pullup") {
		cfg["pullUp"] = true
	}
	d, err := devices.Attach(s.eng.GPIO(), args[0], pin, cfg)
	if err != nil {
		return err
	}
	s.track(d)
	return nil
}

func (s *shell) track(d devices.Device) {
	s.devs[d.ID()] = d
	switch v := d.(type) {
	case *devices.Button:
		s.buttons[v.Pin()] = v
	case *devices.Pot:
		s.pot = v
	}
}

func (s *shell) detach(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: detach <id>")
	}
	d, ok := s.devs[args[0]]
	if !ok {
		return s.eng.GPIO().UnregisterComponent(args[0])
	}
	delete(s.devs, args[0])
	switch v := d.(type) {
	case *devices.Button:
		delete(s.buttons, v.Pin())
	case *devices.Pot:
		s.pot = nil
	}
	return d.Detach()
}

// button drives the button on pin, attaching a plain one first if the pin
// has none.
func (s *shell) button(cmd string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s <pin>", cmd)
	}
	id, err := s.eng.GPIO().Registry().Resolve(args[0])
	if err != nil {
		return err
	}
	btn, ok := s.buttons[id]
	if !ok {
		if btn, err = devices.NewButton(s.eng.GPIO(), id, false); err != nil {
			return err
		}
		s.track(btn)
	}
	switch cmd {
	case "press":
		return btn.Press()
	case "release":
		return btn.Release()
	}
	_, err = btn.Toggle()
	return err
}

func (s *shell) setPot(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: pot <0..1023>")
	}
	level, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid level %q", args[0])
	}
	if s.pot == nil {
		if s.pot, err = devices.NewPot(s.eng.GPIO()); err != nil {
			return err
		}
		s.track(s.pot)
	}
	s.pot.Set(level)
	return nil
}
