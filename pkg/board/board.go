// Package board describes a simulated microcontroller: which GPIO ids exist,
// the symbolic aliases that name them, and which pins have special roles.
//
// A Registry is immutable after construction and safe to share.
package board

import (
	"embed"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// BuiltinLED is the reserved alias for the on-board LED.
const BuiltinLED = "LED_BUILTIN"

// DefaultProfile is used when no profile is named.
const DefaultProfile = "nodemcu"

//go:embed profiles/*.yaml
var profiles embed.FS

// Profile is the on-disk (YAML) description of a board.
type Profile struct {
	Name       string         `yaml:"name"`
	Pins       []int          `yaml:"pins"`
	BuiltinLED int            `yaml:"builtin_led"`
	AnalogPin  int            `yaml:"analog_pin"`
	NoPWM      []int          `yaml:"no_pwm"`
	Aliases    map[string]int `yaml:"aliases"`
}

// InvalidPinError reports a pin identifier that does not name a valid pin.
type InvalidPinError struct {
	Pin any
}

func (e *InvalidPinError) Error() string {
	return fmt.Sprintf("invalid pin %v", e.Pin)
}

// Registry is the fixed set of valid pin ids plus the alias table.
type Registry struct {
	name    string
	pins    []int
	valid   map[int]bool
	aliases map[string]int
	names   map[int]string
	builtin int
	analog  int
	noPWM   map[int]bool
}

// Load returns the registry for an embedded profile name ("nodemcu", "uno").
func Load(name string) (*Registry, error) {
	if name == "" {
		name = DefaultProfile
	}
	data, err := profiles.ReadFile("profiles/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("unknown board profile %q", name)
	}
	return Parse(data)
}

// LoadFile reads a YAML profile from disk.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read board profile %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML profile and builds its registry.
func Parse(data []byte) (*Registry, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid board profile: %w", err)
	}
	return New(p)
}

// Default returns the embedded default profile. It panics only if the
// embedded data is broken, which a test guards against.
func Default() *Registry {
	r, err := Load(DefaultProfile)
	if err != nil {
		panic(err)
	}
	return r
}

// New validates p and builds a Registry from it.
func New(p Profile) (*Registry, error) {
	if len(p.Pins) == 0 {
		return nil, fmt.Errorf("board %q: no pins defined", p.Name)
	}
	r := &Registry{
		name:    p.Name,
		valid:   make(map[int]bool, len(p.Pins)),
		aliases: make(map[string]int, len(p.Aliases)+1),
		names:   make(map[int]string),
		builtin: p.BuiltinLED,
		analog:  p.AnalogPin,
		noPWM:   make(map[int]bool, len(p.NoPWM)),
	}
	for _, id := range p.Pins {
		if id < 0 {
			return nil, fmt.Errorf("board %q: negative pin id %d", p.Name, id)
		}
		if r.valid[id] {
			return nil, fmt.Errorf("board %q: duplicate pin id %d", p.Name, id)
		}
		r.valid[id] = true
		r.pins = append(r.pins, id)
	}
	sort.Ints(r.pins)

	check := func(what string, id int) error {
		if !r.valid[id] {
			return fmt.Errorf("board %q: %s refers to unknown pin %d", p.Name, what, id)
		}
		return nil
	}
	if err := check("builtin_led", p.BuiltinLED); err != nil {
		return nil, err
	}
	if err := check("analog_pin", p.AnalogPin); err != nil {
		return nil, err
	}
	for _, id := range p.NoPWM {
		if err := check("no_pwm", id); err != nil {
			return nil, err
		}
		r.noPWM[id] = true
	}

	names := make([]string, 0, len(p.Aliases))
	for name := range p.Aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		id := p.Aliases[name]
		if err := check("alias "+name, id); err != nil {
			return nil, err
		}
		key := strings.ToUpper(name)
		if key == BuiltinLED {
			return nil, fmt.Errorf("board %q: alias %s is reserved", p.Name, BuiltinLED)
		}
		r.aliases[key] = id
		if _, ok := r.names[id]; !ok {
			r.names[id] = key
		}
	}
	r.aliases[BuiltinLED] = p.BuiltinLED
	return r, nil
}

// Name of the board profile.
func (r *Registry) Name() string { return r.name }

// Pins returns the valid ids in ascending order.
func (r *Registry) Pins() []int {
	out := make([]int, len(r.pins))
	copy(out, r.pins)
	return out
}

// Valid reports whether id is a member of the valid id set.
func (r *Registry) Valid(id int) bool { return r.valid[id] }

// BuiltinLED returns the pin behind LED_BUILTIN.
func (r *Registry) BuiltinLED() int { return r.builtin }

// AnalogPin returns the single analog-input pin.
func (r *Registry) AnalogPin() int { return r.analog }

// HasPWM reports whether id has hardware PWM.
func (r *Registry) HasPWM(id int) bool { return !r.noPWM[id] }

// Alias returns the preferred symbolic name for id, or "".
func (r *Registry) Alias(id int) string { return r.names[id] }

// Aliases returns a copy of the alias table, LED_BUILTIN included.
func (r *Registry) Aliases() map[string]int {
	out := make(map[string]int, len(r.aliases))
	for k, v := range r.aliases {
		out[k] = v
	}
	return out
}

// Lookup resolves a symbolic alias. Matching is case-insensitive.
func (r *Registry) Lookup(alias string) (int, bool) {
	id, ok := r.aliases[strings.ToUpper(strings.TrimSpace(alias))]
	return id, ok
}

// Resolve turns a pin identifier into a valid numeric id. Accepted forms are
// integers, numeric-looking strings, board aliases and LED_BUILTIN.
func (r *Registry) Resolve(pin any) (int, error) {
	var id int
	switch v := pin.(type) {
	case int:
		id = v
	case int64:
		id = int(v)
	case int32:
		id = int(v)
	case uint8:
		id = int(v)
	case float64:
		if v != float64(int(v)) {
			return 0, &InvalidPinError{Pin: pin}
		}
		id = int(v)
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.Atoi(s); err == nil {
			id = n
			break
		}
		a, ok := r.Lookup(s)
		if !ok {
			return 0, &InvalidPinError{Pin: pin}
		}
		id = a
	default:
		return 0, &InvalidPinError{Pin: pin}
	}
	if !r.valid[id] {
		return 0, &InvalidPinError{Pin: pin}
	}
	return id, nil
}
