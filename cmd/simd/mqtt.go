package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"gpiosim/pkg/bus"
)

// mirror republishes bus events on MQTT as <prefix>/<topic> and accepts
// ops on <prefix>/cmd/<op>.
type mirror struct {
	prefix  string
	publish func(topic string, payload []byte) error
	ops     func(op) reply
	log     *slog.Logger
}

func (m *mirror) handle(ev bus.Event) {
	js, err := json.Marshal(ev.Payload)
	if err != nil {
		m.log.Warn("mqtt marshal error", "topic", ev.Topic, "err", err)
		return
	}
	if err := m.publish(m.prefix+"/"+string(ev.Topic), js); err != nil {
		m.log.Warn("mqtt publish failed", "topic", ev.Topic, "err", err)
	}
}

// command turns an inbound message into an op. A JSON object body is
// decoded as the op; any other body is taken as the op's source or text.
func (m *mirror) command(topic string, payload []byte) (reply, bool) {
	name, ok := strings.CutPrefix(topic, m.prefix+"/cmd/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return reply{}, false
	}
	var o op
	if len(payload) > 0 && payload[0] == '{' {
		if err := json.Unmarshal(payload, &o); err != nil {
			return reply{Op: name, Error: "can't parse: " + err.Error()}, true
		}
	} else {
		o.Source = string(payload)
		o.Text = string(payload)
	}
	o.Op = name
	return m.ops(o), true
}

func (m *mirror) onMessage(_ mqtt.Client, msg mqtt.Message) {
	rep, ok := m.command(msg.Topic(), msg.Payload())
	if !ok {
		return
	}
	js, _ := json.Marshal(rep)
	if err := m.publish(m.prefix+"/reply", js); err != nil {
		m.log.Warn("mqtt reply failed", "err", err)
	}
}

// connectMQTT dials broker and starts mirroring. The returned function
// disconnects.
func connectMQTT(broker, clientID, prefix string, ops func(op) reply, b *bus.Bus, log *slog.Logger) (func(), error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetKeepAlive(10 * time.Second)
	opts.AutoReconnect = true
	opts.CleanSession = true
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", "err", err)
	}

	client := mqtt.NewClient(opts)
	m := &mirror{
		prefix: prefix,
		ops:    ops,
		log:    log,
		// Bus handlers run on the engine's goroutine, so publishing never
		// waits for the broker.
		publish: func(topic string, payload []byte) error {
			t := client.Publish(topic, 0, false, payload)
			go func() {
				if t.WaitTimeout(5*time.Second) && t.Error() != nil {
					log.Warn("mqtt publish failed", "topic", topic, "err", t.Error())
				}
			}()
			return nil
		},
	}

	if t := client.Connect(); t.Wait() && t.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, t.Error())
	}
	if t := client.Subscribe(prefix+"/cmd/+", 0, m.onMessage); t.Wait() && t.Error() != nil {
		client.Disconnect(100)
		return nil, fmt.Errorf("mqtt subscribe: %w", t.Error())
	}
	unsub := b.Subscribe(bus.TopicAll, m.handle)
	return func() {
		unsub()
		client.Disconnect(250)
	}, nil
}
