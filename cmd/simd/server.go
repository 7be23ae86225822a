package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"gpiosim/pkg/bus"
	"gpiosim/pkg/engine"
)

const maxBody = 1 << 20

type server struct {
	ctl  *controller
	eng  *engine.Engine
	log  *slog.Logger
	hose *firehose
}

func newServer(eng *engine.Engine, log *slog.Logger) *server {
	s := &server{ctl: &controller{eng: eng}, eng: eng, log: log}
	s.hose = newFirehose(log, s.ctl.do)
	return s
}

// routes builds the HTTP API. Sketch sources are posted as plain text;
// every other request body is a JSON op.
func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	for _, name := range []string{"run", "load", "validate"} {
		mux.HandleFunc("POST /api/"+name, s.sourceOp(name))
	}
	for _, name := range []string{"start", "stop", "reset", "attach", "detach", "input", "analog", "serial"} {
		mux.HandleFunc("POST /api/"+name, s.jsonOp(name))
	}
	for _, name := range []string{"state", "pins", "components"} {
		mux.HandleFunc("GET /api/"+name, s.query(name))
	}
	mux.HandleFunc("GET /api/history", s.history)
	mux.Handle("GET /ws", s.hose)
	return s.logged(mux)
}

func (s *server) sourceOp(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		src, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.respond(w, s.ctl.do(op{Op: name, Source: string(src)}))
	}
}

func (s *server) jsonOp(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var o op
		if r.ContentLength != 0 {
			if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&o); err != nil && err != io.EOF {
				http.Error(w, "can't parse: "+err.Error(), http.StatusBadRequest)
				return
			}
		}
		o.Op = name
		s.respond(w, s.ctl.do(o))
	}
}

func (s *server) query(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respond(w, s.ctl.do(op{Op: name}))
	}
}

// history returns the retained events, optionally filtered by ?topic=.
func (s *server) history(w http.ResponseWriter, r *http.Request) {
	var topics []bus.Topic
	for _, t := range r.URL.Query()["topic"] {
		topics = append(topics, bus.Topic(t))
	}
	writeJSON(w, http.StatusOK, s.eng.Bus().History(topics...))
}

func (s *server) respond(w http.ResponseWriter, rep reply) {
	status := http.StatusOK
	switch {
	case rep.Error != "":
		status = http.StatusBadRequest
	case rep.Result != nil && !rep.Result.Success:
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, rep)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *server) logged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("http", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}
