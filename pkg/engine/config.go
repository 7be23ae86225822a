package engine

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"gpiosim/pkg/board"
	"gpiosim/pkg/bus"
)

// Config tunes the scheduler. Durations are written as Go duration strings
// in YAML ("10ms", "2s").
type Config struct {
	// Quantum is the chunk a delay is served in; it bounds stop latency.
	Quantum time.Duration `yaml:"quantum"`
	// MaxDelay caps a single delay request.
	MaxDelay time.Duration `yaml:"max_delay"`
	// LoopYield is the pause between two loop iterations.
	LoopYield time.Duration `yaml:"loop_yield"`
	// StopGrace is how long Run waits for a stopped runner to exit.
	StopGrace time.Duration `yaml:"stop_grace"`
	// History is the bus ring buffer capacity used by NewSession.
	History int `yaml:"history"`
	// RandomSeed seeds random() for every run.
	RandomSeed int64 `yaml:"random_seed"`
	// Board names the embedded board profile used by NewSession.
	Board string `yaml:"board"`
}

// DefaultConfig returns the defaults every zero field falls back to.
func DefaultConfig() Config {
	return Config{
		Quantum:    10 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		LoopYield:  time.Millisecond,
		StopGrace:  100 * time.Millisecond,
		History:    bus.DefaultHistory,
		RandomSeed: 1,
		Board:      board.DefaultProfile,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Quantum <= 0 {
		c.Quantum = d.Quantum
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.LoopYield <= 0 {
		c.LoopYield = d.LoopYield
	}
	if c.StopGrace <= 0 {
		c.StopGrace = d.StopGrace
	}
	if c.History <= 0 {
		c.History = d.History
	}
	if c.RandomSeed == 0 {
		c.RandomSeed = d.RandomSeed
	}
	if c.Board == "" {
		c.Board = d.Board
	}
	return c
}

// LoadConfig reads a YAML config file. Missing fields keep their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c.withDefaults(), nil
}
