// Package bridge connects the simulation to a physical board over a serial
// port. Lines the board prints show up on the console as hardware output.
// A Bridge is also an io.Writer, so the engine can forward the simulated
// sketch's serial output to the board.
package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"

	"gpiosim/pkg/bus"
)

// Config names the port to open.
type Config struct {
	Device      string        `yaml:"device"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// Open opens a native serial port.
func Open(cfg Config) (io.ReadWriteCloser, error) {
	if cfg.Device == "" {
		return nil, errors.New("serial device is required")
	}
	if cfg.Baud == 0 {
		cfg.Baud = 115200
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 100 * time.Millisecond
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	return port, nil
}

// Bridge pumps lines between a port and the bus.
type Bridge struct {
	bus  *bus.Bus
	port io.ReadWriteCloser
	log  *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Option configures a Bridge.
type Option func(*Bridge)

func WithLogger(l *slog.Logger) Option {
	return func(br *Bridge) {
		if l != nil {
			br.log = l
		}
	}
}

func New(b *bus.Bus, port io.ReadWriteCloser, opts ...Option) *Bridge {
	br := &Bridge{bus: b, port: port, log: slog.Default()}
	for _, opt := range opts {
		opt(br)
	}
	return br
}

// idleWait is the pause after an empty read so a port that reports every
// read timeout as io.EOF is not polled in a busy loop.
const idleWait = 10 * time.Millisecond

// Run reads the port until ctx is done, the bridge is closed or the port
// fails. io.EOF from the port is a read timeout on a quiet line (tarm/serial
// reports VTIME expiry that way) and does not end Run. Closing and
// cancelling end Run with a nil error.
func (br *Bridge) Run(ctx context.Context) error {
	defer br.Close()

	exited := make(chan struct{})
	defer close(exited)
	go func() {
		select {
		case <-ctx.Done():
			br.Close()
		case <-exited:
		}
	}()

	var pending []byte
	buf := make([]byte, 256)
	for {
		n, err := br.port.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				br.publish(string(pending[:i]))
				pending = pending[i+1:]
			}
		}
		switch {
		case br.isClosed() || ctx.Err() != nil:
			br.flush(pending)
			return nil
		case err == nil:
		case errors.Is(err, io.EOF):
			if n == 0 {
				select {
				case <-ctx.Done():
				case <-time.After(idleWait):
				}
			}
		default:
			br.flush(pending)
			return fmt.Errorf("serial read: %w", err)
		}
	}
}

// flush publishes an unterminated last line.
func (br *Bridge) flush(pending []byte) {
	if len(pending) > 0 {
		br.publish(string(pending))
	}
}

func (br *Bridge) publish(line string) {
	line = strings.TrimRight(line, "\r")
	br.bus.Publish(bus.TopicConsoleLog, bus.ConsoleLog{
		Message: line, Severity: bus.SeverityInfo, Source: bus.SourceHardware,
	})
}

// Write sends p to the board. Writes after Close are dropped.
func (br *Bridge) Write(p []byte) (int, error) {
	if br.isClosed() {
		return len(p), nil
	}
	n, err := br.port.Write(p)
	if err != nil {
		br.log.Warn("serial write failed", "err", err)
	}
	return n, err
}

func (br *Bridge) isClosed() bool {
	br.mu.Lock()
	defer br.mu.Unlock()
	return br.closed
}

// Close closes the port. It is safe to call twice.
func (br *Bridge) Close() error {
	br.mu.Lock()
	if br.closed {
		br.mu.Unlock()
		return nil
	}
	br.closed = true
	br.mu.Unlock()
	return br.port.Close()
}
