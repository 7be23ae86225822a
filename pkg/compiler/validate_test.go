package compiler

import (
	"errors"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		errors   []string
		warnings []string
	}{
		{
			name: "Clean",
			src: `void setup() { pinMode(LED_BUILTIN, OUTPUT); }
void loop() { digitalWrite(2, HIGH); delay(500); }`,
		},
		{
			name:   "Missing Loop",
			src:    `void setup() {}`,
			errors: []string{"missing required function loop()"},
		},
		{
			name:   "Prototype Does Not Count",
			src:    "void loop();\nvoid setup() {}",
			errors: []string{"missing required function loop()"},
		},
		{
			name: "Duplicate Setup",
			src: `void setup() {}
void setup() {}
void loop() {}`,
			errors: []string{"duplicate definition of setup() (first defined on line 1)"},
		},
		{
			name:   "Invalid Pin",
			src:    `void setup() { pinMode(99, OUTPUT); } void loop() {}`,
			errors: []string{"invalid pin 99 in pinMode()"},
		},
		{
			name:     "Write Before Mode",
			src:      `void setup() {} void loop() { digitalWrite(5, HIGH); }`,
			warnings: []string{"pin 5 used in digitalWrite() before pinMode()"},
		},
		{
			name: "Alias Matches Numeric Mode",
			src: `void setup() { pinMode(D1, OUTPUT); }
void loop() { digitalWrite(5, LOW); analogWrite(D1, 10); }`,
		},
		{
			name: "Variable Pin",
			src: `int led = 4;
void setup() { pinMode(led, OUTPUT); }
void loop() { digitalWrite(led, HIGH); digitalRead(button); }`,
		},
		{
			name: "Pin Parameter",
			src: `void pulse(int p) { digitalWrite(p, HIGH); delay(5); digitalWrite(p, LOW); }
void setup() { pinMode(4, OUTPUT); }
void loop() { pulse(4); digitalWrite(D5, HIGH); }`,
			warnings: []string{"pin D5 used in digitalWrite() before pinMode()"},
		},
		{
			name:   "Negative Delay",
			src:    `void setup() { delay(-5); delayMicroseconds(- 1); } void loop() { delay(x - 1); }`,
			errors: []string{"delay() called with negative duration -5", "delayMicroseconds() called with negative duration -1"},
		},
		{
			name: "Analog Duty Out Of Range",
			src:  `void setup() { pinMode(4, OUTPUT); } void loop() { analogWrite(4, 2000); }`,
			warnings: []string{
				"analogWrite() duty 2000 outside 0..1023 will be clamped",
			},
		},
		{
			name: "Order Is Source Order",
			src: `void loop() { digitalWrite(4, HIGH); }
void setup() { pinMode(4, OUTPUT); }`,
			warnings: []string{"pin 4 used in digitalWrite() before pinMode()"},
		},
		{
			name: "Strings Are Not Calls",
			src:  `void setup() { Serial.println("pinMode(99, OUTPUT)"); } void loop() {}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs, warns := Errors(Validate(tt.src, Options{}))
			check := func(kind string, got []Diagnostic, want []string) {
				if len(got) != len(want) {
					t.Fatalf("%s: got %v, want %v", kind, got, want)
				}
				for i, d := range got {
					if d.Message != want[i] {
						t.Errorf("%s[%d] = %q, want %q", kind, i, d.Message, want[i])
					}
					if d.Stage != StageValidate {
						t.Errorf("%s[%d] stage = %s", kind, i, d.Stage)
					}
				}
			}
			check("errors", errs, tt.errors)
			check("warnings", warns, tt.warnings)
		})
	}
}

func TestValidateUnparseableSource(t *testing.T) {
	// Validation still reports findings when the code does not parse.
	diags := Validate("void setup() { pinMode(99, OUTPUT) }\nvoid loop() { int x = ; }", Options{})
	errs, _ := Errors(diags)
	if len(errs) != 1 || !strings.Contains(errs[0].Message, "invalid pin 99") {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
}

func TestValidateLexError(t *testing.T) {
	diags := Validate("void setup() {}\nvoid loop() { Serial.print(\"open); }", Options{})
	errs, _ := Errors(diags)
	if len(errs) == 0 || errs[len(errs)-1].Stage != StageCompile || errs[len(errs)-1].Line != 2 {
		t.Fatalf("expected a compile-stage diagnostic on line 2, got %v", diags)
	}
}

func TestCompileMissingLoop(t *testing.T) {
	prog, diags, err := Compile("void setup() { pinMode(2, OUTPUT); }", Options{})
	if prog != nil {
		t.Fatal("expected no program")
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	errs, _ := Errors(diags)
	if len(errs) != 1 || !strings.Contains(errs[0].Message, "loop") {
		t.Fatalf("expected exactly one error about loop, got %v", errs)
	}
}

func TestCompileWarningOnly(t *testing.T) {
	prog, diags, err := Compile("void setup() {}\nvoid loop() { digitalWrite(5, HIGH); }", Options{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if prog == nil {
		t.Fatal("expected a program")
	}
	errs, warns := Errors(diags)
	if len(errs) != 0 || len(warns) != 1 {
		t.Fatalf("expected one warning, got errors=%v warnings=%v", errs, warns)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"Syntax", "void setup() { int x = ; }\nvoid loop() {}", "expected expression"},
		{"Undefined Function", "void setup() { blink(); }\nvoid loop() {}", "undefined function blink"},
		{"Unknown Method", "void setup() { Serial.flushAll(); }\nvoid loop() {}", "unknown method Serial.flushAll"},
		{"Builtin Arity", "void setup() { pinMode(2); }\nvoid loop() {}", "pinMode() takes 2 arguments, got 1"},
		{"User Arity", "int f(int a) { return a; }\nvoid setup() { f(); }\nvoid loop() {}", "f() takes 1 argument(s), got 0"},
		{"Undeclared", "void setup() { y = 2; }\nvoid loop() {}", "undeclared identifier y"},
		{"Assign Constant", "void setup() { HIGH = 0; }\nvoid loop() {}", "cannot assign to constant HIGH"},
		{"Assign Const", "const int k = 1;\nvoid setup() { k++; }\nvoid loop() {}", "cannot assign to const k"},
		{"Break Outside Loop", "void setup() { break; }\nvoid loop() {}", "break outside loop or switch"},
		{"Redeclared", "void setup() { int a; int a; }\nvoid loop() {}", "a redeclared in this scope"},
		{"Loop With Params", "void setup() {}\nvoid loop(int n) {}", "loop() must not take parameters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, diags, err := Compile(tt.src, Options{})
			if prog != nil || err == nil {
				t.Fatalf("expected failure, got program=%v err=%v", prog, err)
			}
			if errors.Is(err, ErrValidation) || !IsCompileError(err) {
				t.Fatalf("expected a compile error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
			errs, _ := Errors(diags)
			if len(errs) != 1 || errs[0].Stage != StageCompile {
				t.Errorf("expected one compile diagnostic, got %v", diags)
			}
		})
	}
}
