package main

import (
	"fmt"
	"strings"

	"gpiosim/pkg/compiler"
	"gpiosim/pkg/devices"
	"gpiosim/pkg/engine"
	"gpiosim/pkg/gpio"
)

// op is a control request. It arrives as an HTTP body, a websocket message
// or an MQTT command.
type op struct {
	Op     string         `json:"op"`
	Source string         `json:"source,omitempty"`
	Pin    any            `json:"pin,omitempty"`
	Value  int            `json:"value,omitempty"`
	Kind   string         `json:"kind,omitempty"`
	ID     string         `json:"id,omitempty"`
	Config map[string]any `json:"config,omitempty"`
	Text   string         `json:"text,omitempty"`
}

type reply struct {
	Op          string                `json:"op"`
	Error       string                `json:"error,omitempty"`
	Result      *engine.LoadResult    `json:"result,omitempty"`
	Diagnostics []compiler.Diagnostic `json:"diagnostics,omitempty"`
	State       string                `json:"state,omitempty"`
	Iterations  uint64                `json:"iterations,omitempty"`
	Pins        []gpio.PinState       `json:"pins,omitempty"`
	Components  []gpio.Component      `json:"components,omitempty"`
	ID          string                `json:"id,omitempty"`
}

// controller executes ops against one engine.
type controller struct {
	eng *engine.Engine
}

func (c *controller) do(o op) reply {
	rep := reply{Op: o.Op}
	if err := c.apply(o, &rep); err != nil {
		rep.Error = err.Error()
	}
	return rep
}

func (c *controller) apply(o op, rep *reply) error {
	ctrl := c.eng.GPIO()
	switch strings.ToLower(o.Op) {
	case "run":
		res := c.eng.Run(o.Source)
		rep.Result = &res
	case "load":
		res := c.eng.Load(o.Source)
		rep.Result = &res
	case "validate":
		rep.Diagnostics = compiler.Validate(o.Source, compiler.Options{Board: ctrl.Registry()})
	case "start":
		return c.eng.Start()
	case "stop":
		c.eng.Stop()
	case "reset":
		c.eng.Reset()
	case "state":
		rep.State = c.eng.State().String()
		rep.Iterations = c.eng.Iterations()
	case "pins":
		rep.Pins = ctrl.States()
	case "components":
		rep.Components = ctrl.Components()
	case "attach":
		d, err := devices.Attach(ctrl, o.Kind, o.Pin, o.Config)
		if err != nil {
			return err
		}
		rep.ID = d.ID()
	case "detach":
		return ctrl.UnregisterComponent(o.ID)
	case "input":
		return ctrl.SetExternalValue(o.Pin, gpio.LevelOf(o.Value))
	case "analog":
		ctrl.SetExternalAnalog(o.Value)
	case "serial":
		c.eng.SendSerial(o.Text)
	default:
		return fmt.Errorf("unknown op %q", o.Op)
	}
	return nil
}
