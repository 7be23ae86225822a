package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"gpiosim/pkg/bus"
)

// firehose fans every bus event out to all websocket clients. A client
// that falls behind loses events rather than stalling the bus.
type firehose struct {
	log      *slog.Logger
	upgrader websocket.Upgrader
	ops      func(op) reply

	mu      sync.Mutex
	clients map[*websocket.Conn]chan bus.Event
}

func newFirehose(log *slog.Logger, ops func(op) reply) *firehose {
	return &firehose{
		log:     log,
		ops:     ops,
		clients: make(map[*websocket.Conn]chan bus.Event),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// publish is a bus handler.
func (f *firehose) publish(ev bus.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c, ch := range f.clients {
		select {
		case ch <- ev:
		default:
			f.log.Warn("firehose blocked", "client", c.RemoteAddr().String())
		}
	}
}

func (f *firehose) clientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// ServeHTTP upgrades the connection, streams events to it and executes any
// ops the client sends back.
func (f *firehose) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Warn("upgrade error", "err", err)
		return
	}
	defer c.Close()

	events := make(chan bus.Event, 64)
	replies := make(chan reply, 8)
	f.mu.Lock()
	f.clients[c] = events
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		delete(f.clients, c)
		f.mu.Unlock()
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			var msg any
			select {
			case <-done:
				return
			case ev := <-events:
				msg = ev
			case rep := <-replies:
				msg = rep
			}
			js, err := json.Marshal(msg)
			if err != nil {
				f.log.Warn("firehose marshal error", "err", err)
				continue
			}
			if err := c.WriteMessage(websocket.TextMessage, js); err != nil {
				f.log.Debug("firehose write", "err", err)
				return
			}
		}
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			f.log.Debug("firehose read", "err", err)
			return
		}
		var rep reply
		var o op
		if err := json.Unmarshal(message, &o); err != nil {
			rep = reply{Error: "can't parse: " + err.Error()}
		} else {
			rep = f.ops(o)
		}
		select {
		case replies <- rep:
		default:
			f.log.Warn("firehose reply dropped", "op", o.Op)
		}
	}
}
