package compiler

import (
	"context"
	"fmt"
	"time"

	"gpiosim/pkg/mathx"
)

// Capabilities is the surface a bound program runs against. Every blocking
// or side-effecting call receives the run's context; implementations return
// ErrCancelled once that context is done.
type Capabilities interface {
	PinMode(ctx context.Context, pin, mode int) error
	DigitalWrite(ctx context.Context, pin, value int) error
	DigitalRead(ctx context.Context, pin int) (int, error)
	AnalogRead(ctx context.Context, pin int) (int, error)
	AnalogWrite(ctx context.Context, pin, duty int) error

	// Delay suspends the program cooperatively.
	Delay(ctx context.Context, d time.Duration) error
	Millis(ctx context.Context) int64
	Micros(ctx context.Context) int64

	SerialBegin(ctx context.Context, baud int) error
	SerialWrite(ctx context.Context, text string) error
	SerialAvailable(ctx context.Context) (int, error)
	SerialRead(ctx context.Context) (int, error)
}

type builtinFunc func(in *Instance, ctx context.Context, args []Value) (Value, error)

type builtin struct {
	minArgs, maxArgs int
	call             builtinFunc
}

func (b builtin) arity() string {
	switch {
	case b.minArgs == b.maxArgs && b.minArgs == 1:
		return "1 argument"
	case b.minArgs == b.maxArgs:
		return fmt.Sprintf("%d arguments", b.minArgs)
	}
	return fmt.Sprintf("%d to %d arguments", b.minArgs, b.maxArgs)
}

// builtins is filled in init to break the reference cycle through Instance.
var builtins map[string]builtin

func init() {
	builtins = map[string]builtin{
		"pinMode": {2, 2, func(in *Instance, ctx context.Context, a []Value) (Value, error) {
			return Value{}, in.caps.PinMode(ctx, int(a[0].Int()), int(a[1].Int()))
		}},
		"digitalWrite": {2, 2, func(in *Instance, ctx context.Context, a []Value) (Value, error) {
			return Value{}, in.caps.DigitalWrite(ctx, int(a[0].Int()), int(a[1].Int()))
		}},
		"digitalRead": {1, 1, func(in *Instance, ctx context.Context, a []Value) (Value, error) {
			v, err := in.caps.DigitalRead(ctx, int(a[0].Int()))
			return Int(int64(v)), err
		}},
		"analogRead": {1, 1, func(in *Instance, ctx context.Context, a []Value) (Value, error) {
			v, err := in.caps.AnalogRead(ctx, int(a[0].Int()))
			return Int(int64(v)), err
		}},
		"analogWrite": {2, 2, func(in *Instance, ctx context.Context, a []Value) (Value, error) {
			return Value{}, in.caps.AnalogWrite(ctx, int(a[0].Int()), int(a[1].Int()))
		}},

		"delay": {1, 1, func(in *Instance, ctx context.Context, a []Value) (Value, error) {
			return Value{}, in.caps.Delay(ctx, duration(a[0], time.Millisecond))
		}},
		"delayMicroseconds": {1, 1, func(in *Instance, ctx context.Context, a []Value) (Value, error) {
			return Value{}, in.caps.Delay(ctx, duration(a[0], time.Microsecond))
		}},
		"millis": {0, 0, func(in *Instance, ctx context.Context, _ []Value) (Value, error) {
			return Int(in.caps.Millis(ctx)), nil
		}},
		"micros": {0, 0, func(in *Instance, ctx context.Context, _ []Value) (Value, error) {
			return Int(in.caps.Micros(ctx)), nil
		}},

		"Serial.begin": {1, 2, func(in *Instance, ctx context.Context, a []Value) (Value, error) {
			return Value{}, in.caps.SerialBegin(ctx, int(a[0].Int()))
		}},
		"Serial.print": {1, 2, func(in *Instance, ctx context.Context, a []Value) (Value, error) {
			return Value{}, in.caps.SerialWrite(ctx, printable(a))
		}},
		"Serial.println": {0, 2, func(in *Instance, ctx context.Context, a []Value) (Value, error) {
			return Value{}, in.caps.SerialWrite(ctx, printable(a)+"\n")
		}},
		"Serial.write": {1, 1, func(in *Instance, ctx context.Context, a []Value) (Value, error) {
			text := a[0].String()
			if a[0].Kind() == KindInt {
				text = string(rune(a[0].Int() & 0xFF))
			}
			return Value{}, in.caps.SerialWrite(ctx, text)
		}},
		"Serial.available": {0, 0, func(in *Instance, ctx context.Context, _ []Value) (Value, error) {
			n, err := in.caps.SerialAvailable(ctx)
			return Int(int64(n)), err
		}},
		"Serial.read": {0, 0, func(in *Instance, ctx context.Context, _ []Value) (Value, error) {
			c, err := in.caps.SerialRead(ctx)
			return Int(int64(c)), err
		}},

		"map": {5, 5, func(_ *Instance, _ context.Context, a []Value) (Value, error) {
			return Int(mathx.Map(a[0].Int(), a[1].Int(), a[2].Int(), a[3].Int(), a[4].Int())), nil
		}},
		"constrain": {3, 3, func(_ *Instance, _ context.Context, a []Value) (Value, error) {
			if anyFloat(a) {
				return Float(mathx.Clamp(a[0].Float(), a[1].Float(), a[2].Float())), nil
			}
			return Int(mathx.Clamp(a[0].Int(), a[1].Int(), a[2].Int())), nil
		}},
		"min": {2, 2, func(_ *Instance, _ context.Context, a []Value) (Value, error) {
			if anyFloat(a) {
				return Float(min(a[0].Float(), a[1].Float())), nil
			}
			return Int(min(a[0].Int(), a[1].Int())), nil
		}},
		"max": {2, 2, func(_ *Instance, _ context.Context, a []Value) (Value, error) {
			if anyFloat(a) {
				return Float(max(a[0].Float(), a[1].Float())), nil
			}
			return Int(max(a[0].Int(), a[1].Int())), nil
		}},
		"abs": {1, 1, func(_ *Instance, _ context.Context, a []Value) (Value, error) {
			if a[0].Kind() == KindFloat {
				return Float(mathx.Abs(a[0].Float())), nil
			}
			return Int(mathx.Abs(a[0].Int())), nil
		}},
		"random": {1, 2, func(in *Instance, _ context.Context, a []Value) (Value, error) {
			lo, hi := int64(0), a[0].Int()
			if len(a) == 2 {
				lo, hi = a[0].Int(), a[1].Int()
			}
			if hi <= lo {
				return Int(lo), nil
			}
			return Int(lo + in.rng.Int64N(hi-lo)), nil
		}},
		"randomSeed": {1, 1, func(in *Instance, _ context.Context, a []Value) (Value, error) {
			in.seed(a[0].Int())
			return Value{}, nil
		}},
	}
}

func anyFloat(args []Value) bool {
	for _, a := range args {
		if a.Kind() == KindFloat {
			return true
		}
	}
	return false
}

// duration converts a delay argument; negative requests do not wait.
func duration(v Value, unit time.Duration) time.Duration {
	if v.Kind() == KindFloat {
		if v.Float() <= 0 {
			return 0
		}
		return time.Duration(v.Float() * float64(unit))
	}
	n := v.Int()
	if n <= 0 {
		return 0
	}
	if n > int64(time.Duration(1<<62)/unit) {
		return time.Duration(1 << 62)
	}
	return time.Duration(n) * unit
}

// printable renders Serial.print arguments: the value, optionally with a base
// or a number of decimals.
func printable(args []Value) string {
	switch len(args) {
	case 0:
		return ""
	case 1:
		return args[0].String()
	}
	return args[0].Format(args[1].Int())
}
