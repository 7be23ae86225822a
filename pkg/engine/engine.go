// Package engine drives a compiled sketch: setup once, then loop until it is
// stopped or fails. It owns the scheduling state, binds programs to the pin
// state machine and announces every transition on the bus.
//
// At most one runner goroutine executes user code at any time. A runner
// suspends only inside delays and between loop iterations, and both waits
// go through the engine's single scheduler timer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"gpiosim/pkg/board"
	"gpiosim/pkg/bus"
	"gpiosim/pkg/compiler"
	"gpiosim/pkg/gpio"
)

// ErrNoProgram is returned by Start when nothing has been loaded.
var ErrNoProgram = errors.New("no program loaded")

// State of the engine.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
	StateErrored
)

var stateNames = [...]string{
	StateIdle:    "idle",
	StateRunning: "running",
	StateStopped: "stopped",
	StateErrored: "errored",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// LoadResult is the outcome of Load and Run.
type LoadResult struct {
	Success  bool                  `json:"success"`
	Errors   []compiler.Diagnostic `json:"errors"`
	Warnings []compiler.Diagnostic `json:"warnings"`
}

// Engine is safe for concurrent use. Bus handlers run synchronously inside
// the sketch's pin and console calls, so they must not call Stop or Reset
// directly; hand off to another goroutine instead.
type Engine struct {
	cfg  Config
	gpio *gpio.Controller
	bus  *bus.Bus
	log  *slog.Logger
	now  func() time.Time

	// runMu orders capability calls against halting: a capability holds it
	// for reading across its liveness check and pin or console operation,
	// Stop, Reset and fail hold it for writing. Taken before mu.
	runMu sync.RWMutex

	mu         sync.Mutex
	state      State
	prog       *compiler.Program
	source     string
	running    bool
	gen        uint64 // incremented for every Start; stale runners compare against it
	cancel     context.CancelFunc
	timer      *time.Timer
	done       chan struct{} // closed when the current runner exits
	started    time.Time
	iterations uint64
	serialIn   []byte
	baud       int

	console   *consoleSink
	serialOut io.Writer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithSerialOutput copies every completed serial line the sketch prints to w.
func WithSerialOutput(w io.Writer) Option {
	return func(e *Engine) { e.serialOut = w }
}

// WithClock overrides the time source behind millis() and micros().
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an idle engine driving ctrl. Zero config fields take their
// defaults.
func New(cfg Config, ctrl *gpio.Controller, opts ...Option) *Engine {
	e := &Engine{
		cfg:  cfg.withDefaults(),
		gpio: ctrl,
		bus:  ctrl.Bus(),
		log:  slog.Default(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.console = newConsoleSink(e.bus, e.serialOut)
	return e
}

// NewSession builds a bus, a pin controller for cfg.Board and an engine
// over them.
func NewSession(cfg Config, opts ...Option) (*Engine, error) {
	cfg = cfg.withDefaults()
	reg, err := board.Load(cfg.Board)
	if err != nil {
		return nil, err
	}
	e := &Engine{log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	b := bus.New(cfg.History, bus.WithLogger(e.log))
	ctrl := gpio.New(reg, b, gpio.WithLogger(e.log))
	return New(cfg, ctrl, opts...), nil
}

// GPIO returns the pin controller the engine drives.
func (e *Engine) GPIO() *gpio.Controller { return e.gpio }

// Bus returns the bus the engine publishes on.
func (e *Engine) Bus() *bus.Bus { return e.bus }

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Iterations returns the number of loop iterations completed by the current
// or last run.
func (e *Engine) Iterations() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.iterations
}

// Source returns the source of the loaded program, or "".
func (e *Engine) Source() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.source
}

// Baud returns the rate passed to Serial.begin by the current run, or 0.
func (e *Engine) Baud() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.baud
}

// Program returns the loaded program, or nil.
func (e *Engine) Program() *compiler.Program {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prog
}

func (e *Engine) publishState(s State) {
	e.bus.Publish(bus.TopicEngineState, bus.EngineState{State: s.String()})
}

func (e *Engine) options() compiler.Options {
	return compiler.Options{Board: e.gpio.Registry(), Seed: e.cfg.RandomSeed}
}

// Load validates and compiles src. On success it replaces the loaded program;
// on failure the engine is left untouched. Every diagnostic is mirrored to
// the console.
func (e *Engine) Load(src string) LoadResult {
	prog, diags, err := compiler.Compile(src, e.options())
	errs, warns := compiler.Errors(diags)
	res := LoadResult{Success: err == nil, Errors: errs, Warnings: warns}
	if err != nil && len(errs) == 0 {
		// Not expected: every compile failure carries a diagnostic.
		res.Errors = []compiler.Diagnostic{{Message: err.Error(), Severity: compiler.SeverityError, Stage: compiler.StageCompile}}
	}

	for _, d := range res.Errors {
		e.bus.Log(bus.SeverityError, d.String())
	}
	for _, d := range res.Warnings {
		e.bus.Log(bus.SeverityWarn, d.String())
	}
	if err != nil {
		e.log.Info("load failed", "err", err)
		return res
	}

	e.mu.Lock()
	e.prog = prog
	e.source = src
	e.mu.Unlock()
	e.bus.Log(bus.SeverityInfo, "program compiled")
	return res
}

// Start runs the loaded program: setup once, then loop until stopped.
// Starting a running engine only publishes a warning.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.state == StateRunning {
		e.mu.Unlock()
		e.bus.Log(bus.SeverityWarn, "program is already running")
		return nil
	}
	if e.prog == nil {
		e.mu.Unlock()
		e.bus.Log(bus.SeverityError, "cannot start: "+ErrNoProgram.Error())
		return ErrNoProgram
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.gen++
	gen := e.gen
	e.cancel = cancel
	e.running = true
	e.state = StateRunning
	e.started = e.now()
	e.iterations = 0
	e.serialIn = nil
	e.baud = 0
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.NewTimer(time.Hour)
	e.timer.Stop()
	done := make(chan struct{})
	e.done = done
	inst := e.prog.Bind(&capabilities{e: e, gen: gen})
	e.mu.Unlock()

	e.console.reset()
	e.log.Debug("engine started", "gen", gen)
	e.publishState(StateRunning)
	go e.runner(ctx, inst, gen, done)
	return nil
}

// haltLocked clears the running flag, cancels the run and stops the timer.
// Callers hold runMu and mu.
func (e *Engine) haltLocked() {
	e.running = false
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if e.timer != nil {
		e.timer.Stop()
	}
}

// Stop halts the current run. The runner unwinds at its next suspension
// point; Stop does not wait for it (see Wait). Calling Stop in any state is
// safe.
func (e *Engine) Stop() {
	e.runMu.Lock()
	e.mu.Lock()
	e.haltLocked()
	changed := e.state == StateRunning || e.state == StateErrored
	if changed {
		e.state = StateStopped
	}
	e.mu.Unlock()
	e.runMu.Unlock()

	e.console.flush()
	if changed {
		e.publishState(StateStopped)
	}
}

// Reset stops, clears every pin, discards the program and returns to Idle.
// Attached components stay registered.
func (e *Engine) Reset() {
	e.runMu.Lock()
	e.mu.Lock()
	e.haltLocked()
	e.state = StateIdle
	e.prog = nil
	e.source = ""
	e.iterations = 0
	e.serialIn = nil
	e.mu.Unlock()
	e.runMu.Unlock()

	e.console.reset()
	e.gpio.Reset()
	e.bus.Publish(bus.TopicEngineReset, bus.EngineReset{})
	e.publishState(StateIdle)
}

// Wait blocks until the current runner has exited or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run stops any running program, clears the pins, loads src and starts it
// if it compiled.
func (e *Engine) Run(src string) LoadResult {
	if e.State() == StateRunning {
		e.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.StopGrace)
		if err := e.Wait(ctx); err != nil {
			e.log.Warn("previous run did not exit in time", "grace", e.cfg.StopGrace)
		}
		cancel()
	}
	e.gpio.Reset()
	res := e.Load(src)
	if res.Success {
		if err := e.Start(); err != nil {
			res.Success = false
		}
	}
	return res
}

// SendSerial queues text for Serial.read in the running program.
func (e *Engine) SendSerial(text string) {
	e.mu.Lock()
	e.serialIn = append(e.serialIn, text...)
	e.mu.Unlock()
}

func (e *Engine) runner(ctx context.Context, inst *compiler.Instance, gen uint64, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			e.fail(gen, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := inst.Setup(ctx); err != nil {
		e.fail(gen, err)
		return
	}
	for {
		if err := e.sleep(ctx, gen, e.cfg.LoopYield); err != nil {
			return
		}
		if err := inst.Loop(ctx); err != nil {
			e.fail(gen, err)
			return
		}
		e.mu.Lock()
		if e.gen == gen {
			e.iterations++
		}
		e.mu.Unlock()
	}
}

// fail moves a live run to Errored. Cancellation and failures of stale runs
// are dropped silently.
func (e *Engine) fail(gen uint64, err error) {
	if errors.Is(err, compiler.ErrCancelled) {
		return
	}
	e.runMu.Lock()
	e.mu.Lock()
	if e.gen != gen || !e.running {
		e.mu.Unlock()
		e.runMu.Unlock()
		return
	}
	e.haltLocked()
	e.state = StateErrored
	e.mu.Unlock()
	e.runMu.Unlock()

	e.console.flush()
	e.log.Error("runtime error", "err", err)
	e.bus.Log(bus.SeverityError, "runtime error: "+err.Error())
	e.publishState(StateErrored)
}

// sleep waits d on the scheduler timer. It returns compiler.ErrCancelled as
// soon as the run is stopped or superseded.
func (e *Engine) sleep(ctx context.Context, gen uint64, d time.Duration) error {
	e.mu.Lock()
	if e.gen != gen || !e.running || ctx.Err() != nil {
		e.mu.Unlock()
		return compiler.ErrCancelled
	}
	t := e.timer
	t.Reset(d)
	e.mu.Unlock()

	select {
	case <-ctx.Done():
		return compiler.ErrCancelled
	case <-t.C:
		return nil
	}
}

// delay serves a sketch delay in quanta, checking the running flag at every
// boundary.
func (e *Engine) delay(ctx context.Context, gen uint64, d time.Duration) error {
	if d > e.cfg.MaxDelay {
		e.log.Debug("delay clamped", "requested", d, "max", e.cfg.MaxDelay)
		d = e.cfg.MaxDelay
	}
	if d <= 0 {
		return e.sleep(ctx, gen, 0)
	}
	for d > 0 {
		step := min(d, e.cfg.Quantum)
		if err := e.sleep(ctx, gen, step); err != nil {
			return err
		}
		d -= step
	}
	return nil
}
