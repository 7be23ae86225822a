package gpio

import (
	"fmt"

	"gpiosim/pkg/board"
)

// MaxDuty is the top of the PWM duty range.
const MaxDuty = 1023

// InvalidPinError is returned by every operation given an unknown pin.
type InvalidPinError = board.InvalidPinError

// Mode is a pin's configured direction.
type Mode int

const (
	ModeUnset Mode = iota
	ModeInput
	ModeOutput
	ModeInputPullUp
)

var modeNames = [...]string{
	ModeUnset:       "UNSET",
	ModeInput:       "INPUT",
	ModeOutput:      "OUTPUT",
	ModeInputPullUp: "INPUT_PULLUP",
}

func (m Mode) String() string {
	if int(m) >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Dialect mode constants, matching the values of INPUT, OUTPUT and
// INPUT_PULLUP in sketch source.
const (
	DialectInput       = 0
	DialectOutput      = 1
	DialectInputPullUp = 2
)

// ModeFromDialect converts a sketch-level mode value into a Mode.
func ModeFromDialect(v int) (Mode, error) {
	switch v {
	case DialectInput:
		return ModeInput, nil
	case DialectOutput:
		return ModeOutput, nil
	case DialectInputPullUp:
		return ModeInputPullUp, nil
	}
	return ModeUnset, fmt.Errorf("invalid pin mode %d", v)
}

// Level is a digital value.
type Level int

const (
	Low  Level = 0
	High Level = 1
)

func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// LevelOf maps any non-zero value to High.
func LevelOf(v int) Level {
	if v != 0 {
		return High
	}
	return Low
}

// PinState is the canonical state of one GPIO.
//
// When PWMActive is set, Duty > 0 iff Value is High. A digital write clears
// PWMActive and snaps Duty to 0 or MaxDuty.
type PinState struct {
	Pin       int    `json:"pin"`
	Alias     string `json:"alias,omitempty"`
	Mode      Mode   `json:"mode"`
	Value     Level  `json:"value"`
	Duty      int    `json:"duty"`
	PWMActive bool   `json:"pwmActive"`

	// Analog is the input level of the analog pin, 0..MaxDuty.
	Analog int `json:"analog,omitempty"`
}

// Brightness is the normalised duty in [0, 1].
func (s PinState) Brightness() float64 {
	return float64(s.Duty) / MaxDuty
}

func (s *PinState) reset() {
	s.Mode = ModeUnset
	s.Value = Low
	s.Duty = 0
	s.PWMActive = false
	s.Analog = 0
}
