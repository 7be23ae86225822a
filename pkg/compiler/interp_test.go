package compiler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// recorder is a Capabilities that logs every call.
type recorder struct {
	calls   []string
	serial  strings.Builder
	input   []byte
	pins    map[int]int
	delayed time.Duration
	millis  int64
}

func newRecorder() *recorder { return &recorder{pins: make(map[int]int)} }

func (r *recorder) logf(format string, args ...any) {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recorder) PinMode(_ context.Context, pin, mode int) error {
	if pin == 99 {
		return errors.New("invalid pin 99")
	}
	r.logf("pinMode(%d,%d)", pin, mode)
	return nil
}

func (r *recorder) DigitalWrite(_ context.Context, pin, value int) error {
	r.logf("digitalWrite(%d,%d)", pin, value)
	r.pins[pin] = value
	return nil
}

func (r *recorder) DigitalRead(_ context.Context, pin int) (int, error) { return r.pins[pin], nil }
func (r *recorder) AnalogRead(_ context.Context, _ int) (int, error)    { return 512, nil }

func (r *recorder) AnalogWrite(_ context.Context, pin, duty int) error {
	r.logf("analogWrite(%d,%d)", pin, duty)
	return nil
}

func (r *recorder) Delay(ctx context.Context, d time.Duration) error {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	r.delayed += d
	r.millis += d.Milliseconds()
	return nil
}

func (r *recorder) Millis(context.Context) int64 { return r.millis }
func (r *recorder) Micros(context.Context) int64 { return r.millis * 1000 }

func (r *recorder) SerialBegin(_ context.Context, baud int) error {
	r.logf("begin(%d)", baud)
	return nil
}

func (r *recorder) SerialWrite(_ context.Context, text string) error {
	r.serial.WriteString(text)
	return nil
}

func (r *recorder) SerialAvailable(context.Context) (int, error) { return len(r.input), nil }

func (r *recorder) SerialRead(context.Context) (int, error) {
	if len(r.input) == 0 {
		return -1, nil
	}
	c := r.input[0]
	r.input = r.input[1:]
	return int(c), nil
}

func mustCompile(t *testing.T, src string) *Program {
	t.Helper()
	prog, diags, err := Compile(src, Options{})
	if err != nil {
		t.Fatalf("Compile: %v (diagnostics %v)", err, diags)
	}
	return prog
}

// runSketch runs setup once and loop n times, returning the serial output.
func runSketch(t *testing.T, src string, loops int) (*recorder, string) {
	t.Helper()
	rec := newRecorder()
	in := mustCompile(t, src).Bind(rec)
	ctx := context.Background()
	if err := in.Setup(ctx); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	for i := 0; i < loops; i++ {
		if err := in.Loop(ctx); err != nil {
			t.Fatalf("Loop %d: %v", i, err)
		}
	}
	return rec, rec.serial.String()
}

func TestInterpreterBlink(t *testing.T) {
	src := `
#define STEP 250
void setup() {
  pinMode(LED_BUILTIN, OUTPUT);
}
void loop() {
  digitalWrite(LED_BUILTIN, HIGH);
  delay(STEP);
  digitalWrite(D4, LOW);
  delay(STEP);
}`
	rec, _ := runSketch(t, src, 2)
	want := "pinMode(2,1) digitalWrite(2,1) digitalWrite(2,0) digitalWrite(2,1) digitalWrite(2,0)"
	if got := strings.Join(rec.calls, " "); got != want {
		t.Errorf("calls:\n got  %s\n want %s", got, want)
	}
	if rec.delayed != time.Second {
		t.Errorf("delayed %v, want 1s", rec.delayed)
	}
}

func TestInterpreterPrograms(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		loops    int
		expected string
	}{
		{
			name: "Arithmetic",
			src: `void setup() {
  Serial.println(7 / 2);
  Serial.println(7 % 3);
  Serial.println(7.0 / 2);
  Serial.println(1 << 4 | 1);
  Serial.println(-7 / 2);
}
void loop() {}`,
			expected: "3\n1\n3.50\n17\n-3\n",
		},
		{
			name: "Globals Persist Across Loops",
			src: `int count = 0;
void setup() {}
void loop() { count++; Serial.print(count); Serial.print(" "); }`,
			loops:    3,
			expected: "1 2 3 ",
		},
		{
			name: "Functions And Recursion",
			src: `int fact(int n) { if (n <= 1) return 1; return n * fact(n - 1); }
void setup() { Serial.println(fact(5)); }
void loop() {}`,
			expected: "120\n",
		},
		{
			name: "Loops",
			src: `void setup() {
  int s = 0;
  for (int i = 0; i < 10; i++) {
    if (i == 2) continue;
    if (i == 5) break;
    s += i;
  }
  Serial.println(s);
  int n = 3;
  while (n > 0) n--;
  do { n++; } while (n < 0);
  Serial.println(n);
}
void loop() {}`,
			expected: "8\n1\n",
		},
		{
			name: "Switch Fallthrough",
			src: `void show(int v) {
  switch (v) {
    case 1: Serial.print("one ");
    case 2: Serial.print("two "); break;
    default: Serial.print("other ");
  }
}
void setup() { show(1); show(2); show(9); }
void loop() {}`,
			expected: "one two two other ",
		},
		{
			name: "Arrays",
			src: `int pins[] = {4, 5, 12};
int grid[2][3];
void setup() {
  grid[1][2] = pins[2] + 1;
  Serial.println(grid[1][2]);
  int total = 0;
  for (int i = 0; i < 3; i++) total += pins[i];
  Serial.println(total);
}
void loop() {}`,
			expected: "13\n21\n",
		},
		{
			name: "Strings And Chars",
			src: `char name[] = "ok";
String greeting = "hi ";
void setup() {
  char c = 'a';
  c++;
  Serial.println(greeting + name);
  Serial.println(c);
  Serial.println(name[1]);
  Serial.println("HIGH stays HIGH");
}
void loop() {}`,
			expected: "hi ok\nb\nk\nHIGH stays HIGH\n",
		},
		{
			name: "Print Formats",
			src: `void setup() {
  Serial.print(255, HEX); Serial.print(" ");
  Serial.print(5, BIN); Serial.print(" ");
  Serial.print(3.14159, 3); Serial.print(" ");
  Serial.println(10, DEC);
}
void loop() {}`,
			expected: "FF 101 3.142 10\n",
		},
		{
			name: "Math Builtins",
			src: `void setup() {
  Serial.println(map(512, 0, 1023, 0, 255));
  Serial.println(constrain(300, 0, 255));
  Serial.println(min(3, 9) + max(3, 9));
  Serial.println(abs(-4));
}
void loop() {}`,
			expected: "127\n255\n12\n4\n",
		},
		{
			name: "Ternary And Logic",
			src: `int calls = 0;
int bump() { calls++; return 1; }
void setup() {
  int v = (0 && bump()) || (1 || bump());
  Serial.println(v ? calls : -1);
}
void loop() {}`,
			expected: "0\n",
		},
		{
			name: "Casts",
			src: `void setup() {
  Serial.println((int) 3.9);
  Serial.println(float(1) / 4);
  Serial.println((byte) 300);
}
void loop() {}`,
			expected: "3\n0.25\n44\n",
		},
		{
			name: "Timing",
			src: `void setup() { delay(40); Serial.println(millis()); Serial.println(micros()); }
void loop() {}`,
			expected: "40\n40000\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, out := runSketch(t, tt.src, tt.loops)
			if out != tt.expected {
				t.Errorf("output:\n got  %q\n want %q", out, tt.expected)
			}
		})
	}
}

func TestInterpreterSerialRead(t *testing.T) {
	rec := newRecorder()
	rec.input = []byte("AB")
	in := mustCompile(t, `void setup() { Serial.begin(9600); }
void loop() { while (Serial.available() > 0) { Serial.write(Serial.read() + 1); } }`).Bind(rec)
	ctx := context.Background()
	if err := in.Setup(ctx); err != nil {
		t.Fatal(err)
	}
	if err := in.Loop(ctx); err != nil {
		t.Fatal(err)
	}
	if got := rec.serial.String(); got != "BC" {
		t.Errorf("echo = %q, want BC", got)
	}
	if rec.calls[0] != "begin(9600)" {
		t.Errorf("calls = %v", rec.calls)
	}
}

func TestBindFreshState(t *testing.T) {
	prog := mustCompile(t, `int n = 10;
void setup() { n = n * 2; Serial.println(n); }
void loop() {}`)
	for i := 0; i < 2; i++ {
		rec := newRecorder()
		if err := prog.Bind(rec).Setup(context.Background()); err != nil {
			t.Fatal(err)
		}
		if got := rec.serial.String(); got != "20\n" {
			t.Errorf("run %d printed %q, want 20", i, got)
		}
	}
}

func TestStaticLocals(t *testing.T) {
	src := `int next() {
  static int id = 100;
  return id++;
}
void setup() {}
void loop() {
  static int n = 0, calls;
  n++;
  calls += 2;
  for (int i = 0; i < 2; i++) {
    static int inner = 5;
    inner++;
  }
  Serial.print(n);
  Serial.print(":");
  Serial.print(next());
  Serial.print(" ");
}`
	_, out := runSketch(t, src, 3)
	if want := "1:100 2:101 3:102 "; out != want {
		t.Errorf("output = %q, want %q", out, want)
	}

	// A new instance starts from the initialisers again.
	prog := mustCompile(t, src)
	for i := 0; i < 2; i++ {
		rec := newRecorder()
		if err := prog.Bind(rec).Loop(context.Background()); err != nil {
			t.Fatal(err)
		}
		if got := rec.serial.String(); got != "1:100 " {
			t.Errorf("instance %d printed %q", i, got)
		}
	}
}

func TestRandomDeterministic(t *testing.T) {
	src := `void setup() { randomSeed(42); }
void loop() { Serial.print(random(100)); Serial.print(","); Serial.print(random(5, 10)); Serial.print(" "); }`
	_, first := runSketch(t, src, 5)
	_, second := runSketch(t, src, 5)
	if first != second {
		t.Errorf("same seed gave %q and %q", first, second)
	}
}

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
		fn   string
		want string
	}{
		{
			name: "Division By Zero",
			src:  "int z = 0;\nvoid setup() {}\nvoid loop() {\n  int x = 1 / z;\n}",
			line: 4, fn: "loop", want: "division by zero",
		},
		{
			name: "Index Out Of Range",
			src:  "int a[2];\nvoid setup() {\n  a[2] = 1;\n}\nvoid loop() {}",
			line: 3, fn: "setup", want: "index 2 out of range",
		},
		{
			name: "Capability Failure",
			src:  "int p = 99;\nvoid setup() {\n  pinMode(p, OUTPUT);\n}\nvoid loop() {}",
			line: 3, fn: "setup", want: "invalid pin 99",
		},
		{
			name: "Innermost Function",
			src:  "int bad(int d) {\n  return 10 / d;\n}\nvoid setup() {\n  bad(0);\n}\nvoid loop() {}",
			line: 2, fn: "bad", want: "division by zero",
		},
		{
			name: "Oversized Array",
			src:  "void setup() {\n  int a[65536][65536];\n}\nvoid loop() {}",
			line: 2, fn: "setup", want: "too large",
		},
		{
			name: "Oversized Global Array",
			src:  "long cube[64][64][64];\nvoid setup() {}\nvoid loop() {}",
			line: 1, fn: "global", want: "too large",
		},
		{
			name: "Unbounded Recursion",
			src:  "int f(int n) {\n  return f(n + 1);\n}\nvoid setup() { f(0); }\nvoid loop() {}",
			fn:   "f", want: "call stack exhausted",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := mustCompile(t, tt.src).Bind(newRecorder())
			err := in.Setup(context.Background())
			if err == nil {
				err = in.Loop(context.Background())
			}
			var re *RuntimeError
			if !errors.As(err, &re) {
				t.Fatalf("expected *RuntimeError, got %v", err)
			}
			if tt.line != 0 && re.Line != tt.line {
				t.Errorf("line = %d, want %d", re.Line, tt.line)
			}
			if re.Func != tt.fn {
				t.Errorf("func = %s, want %s", re.Func, tt.fn)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestCancelledRunStops(t *testing.T) {
	rec := newRecorder()
	in := mustCompile(t, `void setup() {}
void loop() { while (true) { digitalWrite(2, HIGH); } }`).Bind(rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := in.Loop(ctx)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	var re *RuntimeError
	if errors.As(err, &re) {
		t.Errorf("cancellation must not be wrapped: %v", err)
	}
	if len(rec.calls) != 0 {
		t.Errorf("capability called after cancel: %v", rec.calls)
	}
}
