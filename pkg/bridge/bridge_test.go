package bridge

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"gpiosim/pkg/bus"
)

// pipePort is a port whose input the test writes and whose output it reads.
type pipePort struct {
	r *io.PipeReader

	mu  sync.Mutex
	out bytes.Buffer
}

func newPipePort() (*pipePort, *io.PipeWriter) {
	r, w := io.Pipe()
	return &pipePort{r: r}, w
}

func (p *pipePort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *pipePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Write(b)
}

func (p *pipePort) Close() error { return p.r.Close() }

func (p *pipePort) written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.String()
}

func hardwareLines(b *bus.Bus) []string {
	var out []string
	for _, ev := range b.History(bus.TopicConsoleLog) {
		if l := ev.Payload.(bus.ConsoleLog); l.Source == bus.SourceHardware {
			out = append(out, l.Message)
		}
	}
	return out
}

// quietPort replays scripted reads, then blocks until closed. It stands in
// for a tty whose read timeout surfaces as (0, io.EOF).
type quietPort struct {
	reads  chan read
	closed chan struct{}
	once   sync.Once
}

type read struct {
	data string
	err  error
}

func newQuietPort(script ...read) *quietPort {
	p := &quietPort{reads: make(chan read, len(script)), closed: make(chan struct{})}
	for _, r := range script {
		p.reads <- r
	}
	return p
}

func (p *quietPort) Read(b []byte) (int, error) {
	select {
	case r := <-p.reads:
		return copy(b, r.data), r.err
	case <-p.closed:
		return 0, io.ErrClosedPipe
	}
}

func (p *quietPort) Write(b []byte) (int, error) { return len(b), nil }

func (p *quietPort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func waitLines(t *testing.T, b *bus.Bus, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for len(hardwareLines(b)) < n {
		if time.Now().After(deadline) {
			t.Fatalf("hardware lines = %q, want %d", hardwareLines(b), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRunPublishesHardwareLines(t *testing.T) {
	b := bus.New(64)
	port, feed := newPipePort()
	br := New(b, port)

	done := make(chan error, 1)
	go func() { done <- br.Run(context.Background()) }()

	_, _ = io.WriteString(feed, "hello\r\nwor")
	_, _ = io.WriteString(feed, "ld\npartial")
	waitLines(t, b, 2)
	_ = br.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}

	got := hardwareLines(b)
	want := []string{"hello", "world", "partial"}
	if len(got) != len(want) {
		t.Fatalf("lines = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRunSurvivesReadTimeouts(t *testing.T) {
	b := bus.New(64)
	port := newQuietPort(
		read{err: io.EOF},
		read{err: io.EOF},
		read{data: "hel"},
		read{err: io.EOF},
		read{data: "lo\n", err: nil},
		read{err: io.EOF},
		read{data: "again\n"},
	)
	br := New(b, port)

	done := make(chan error, 1)
	go func() { done <- br.Run(context.Background()) }()

	waitLines(t, b, 2)
	select {
	case err := <-done:
		t.Fatalf("Run returned early: %v", err)
	default:
	}
	if got := hardwareLines(b); got[0] != "hello" || got[1] != "again" {
		t.Errorf("lines = %q", got)
	}

	_ = br.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	port, _ := newPipePort()
	br := New(bus.New(8), port)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- br.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run ignored cancellation")
	}
}

func TestWriteForwardsUntilClosed(t *testing.T) {
	port, _ := newPipePort()
	br := New(bus.New(8), port)
	if _, err := br.Write([]byte("blink\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_ = br.Close()
	_ = br.Close()
	_, _ = br.Write([]byte("late\n"))
	if got := port.written(); got != "blink\n" {
		t.Errorf("port got %q", got)
	}
}

func TestOpenRequiresDevice(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Error("empty device accepted")
	}
}
