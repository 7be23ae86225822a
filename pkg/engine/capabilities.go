package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"gpiosim/pkg/bus"
	"gpiosim/pkg/compiler"
	"gpiosim/pkg/gpio"
)

// capabilities binds one run of a program to the engine. Every call checks
// the run first so a cancelled runner can never touch pins or the console.
// The check and the operation both happen under runMu's read lock, so Stop
// and Reset cannot slip in between them.
type capabilities struct {
	e   *Engine
	gen uint64
}

// enter checks the run and holds runMu for reading until release is called.
func (c *capabilities) enter(ctx context.Context) (release func(), err error) {
	c.e.runMu.RLock()
	if err := c.live(ctx); err != nil {
		c.e.runMu.RUnlock()
		return nil, err
	}
	return c.e.runMu.RUnlock, nil
}

func (c *capabilities) live(ctx context.Context) error {
	if ctx.Err() != nil {
		return compiler.ErrCancelled
	}
	c.e.mu.Lock()
	defer c.e.mu.Unlock()
	if c.e.gen != c.gen || !c.e.running {
		return compiler.ErrCancelled
	}
	return nil
}

func (c *capabilities) PinMode(ctx context.Context, pin, mode int) error {
	release, err := c.enter(ctx)
	if err != nil {
		return err
	}
	defer release()
	m, err := gpio.ModeFromDialect(mode)
	if err != nil {
		return err
	}
	return c.e.gpio.SetMode(pin, m)
}

func (c *capabilities) DigitalWrite(ctx context.Context, pin, value int) error {
	release, err := c.enter(ctx)
	if err != nil {
		return err
	}
	defer release()
	return c.e.gpio.WriteDigital(pin, gpio.LevelOf(value))
}

func (c *capabilities) DigitalRead(ctx context.Context, pin int) (int, error) {
	release, err := c.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer release()
	v, err := c.e.gpio.ReadDigital(pin)
	return int(v), err
}

// AnalogRead accepts the board's analog pin or channel 0.
func (c *capabilities) AnalogRead(ctx context.Context, pin int) (int, error) {
	release, err := c.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer release()
	if pin != 0 && pin != c.e.gpio.Registry().AnalogPin() {
		return 0, fmt.Errorf("pin %d is not an analog input", pin)
	}
	return c.e.gpio.ReadAnalog(), nil
}

func (c *capabilities) AnalogWrite(ctx context.Context, pin, duty int) error {
	release, err := c.enter(ctx)
	if err != nil {
		return err
	}
	defer release()
	return c.e.gpio.WriteAnalog(pin, duty)
}

func (c *capabilities) Delay(ctx context.Context, d time.Duration) error {
	if err := c.live(ctx); err != nil {
		return err
	}
	return c.e.delay(ctx, c.gen, d)
}

func (c *capabilities) elapsed() time.Duration {
	c.e.mu.Lock()
	start := c.e.started
	c.e.mu.Unlock()
	return c.e.now().Sub(start)
}

func (c *capabilities) Millis(context.Context) int64 { return c.elapsed().Milliseconds() }
func (c *capabilities) Micros(context.Context) int64 { return c.elapsed().Microseconds() }

func (c *capabilities) SerialBegin(ctx context.Context, baud int) error {
	release, err := c.enter(ctx)
	if err != nil {
		return err
	}
	defer release()
	if baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", baud)
	}
	c.e.mu.Lock()
	c.e.baud = baud
	c.e.mu.Unlock()
	c.e.log.Debug("serial begin", "baud", baud)
	return nil
}

func (c *capabilities) SerialWrite(ctx context.Context, text string) error {
	release, err := c.enter(ctx)
	if err != nil {
		return err
	}
	defer release()
	c.e.console.write(text)
	return nil
}

func (c *capabilities) SerialAvailable(ctx context.Context) (int, error) {
	release, err := c.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer release()
	c.e.mu.Lock()
	defer c.e.mu.Unlock()
	return len(c.e.serialIn), nil
}

func (c *capabilities) SerialRead(ctx context.Context) (int, error) {
	release, err := c.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer release()
	c.e.mu.Lock()
	defer c.e.mu.Unlock()
	if len(c.e.serialIn) == 0 {
		return -1, nil
	}
	b := c.e.serialIn[0]
	c.e.serialIn = c.e.serialIn[1:]
	return int(b), nil
}

// consoleSink turns serial output into console-log lines. A partial line is
// held until a newline arrives or the run ends.
type consoleSink struct {
	bus *bus.Bus
	out io.Writer

	mu  sync.Mutex
	buf strings.Builder
}

func newConsoleSink(b *bus.Bus, out io.Writer) *consoleSink {
	return &consoleSink{bus: b, out: out}
}

func (s *consoleSink) write(text string) {
	s.mu.Lock()
	s.buf.WriteString(text)
	pending := s.buf.String()
	var lines []string
	if i := strings.LastIndexByte(pending, '\n'); i >= 0 {
		lines = strings.Split(pending[:i], "\n")
		s.buf.Reset()
		s.buf.WriteString(pending[i+1:])
	}
	s.mu.Unlock()

	for _, l := range lines {
		s.emit(strings.TrimSuffix(l, "\r"))
	}
}

func (s *consoleSink) emit(line string) {
	s.bus.Log(bus.SeverityInfo, line)
	if s.out != nil {
		_, _ = io.WriteString(s.out, line+"\n")
	}
}

func (s *consoleSink) flush() {
	s.mu.Lock()
	rest := s.buf.String()
	s.buf.Reset()
	s.mu.Unlock()
	if rest != "" {
		s.emit(rest)
	}
}

func (s *consoleSink) reset() {
	s.mu.Lock()
	s.buf.Reset()
	s.mu.Unlock()
}
