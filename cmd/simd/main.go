// Command simd serves the simulator over HTTP. Control ops are plain POSTs,
// /ws streams every bus event as JSON and accepts ops back, and with -mqtt
// the same events are mirrored to a broker.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gpiosim/pkg/bus"
	"gpiosim/pkg/engine"
	"gpiosim/pkg/utils"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	configPath := flag.String("config", "", "engine config file (YAML)")
	boardName := flag.String("board", "", "board profile (nodemcu, uno)")
	sketch := flag.String("sketch", "", "sketch to run at startup")
	broker := flag.String("mqtt", "", "MQTT broker URL, e.g. tcp://localhost:1883")
	clientID := flag.String("mqtt-id", "gpiosim", "MQTT client id")
	prefix := flag.String("mqtt-prefix", "gpiosim", "MQTT topic prefix")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := engine.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = engine.LoadConfig(*configPath); err != nil {
			log.Fatalf("%v", err)
		}
	}
	if *boardName != "" {
		cfg.Board = *boardName
	}
	eng, err := engine.NewSession(cfg, engine.WithLogger(logger))
	if err != nil {
		log.Fatalf("%v", err)
	}

	srv := newServer(eng, logger)
	unsub := eng.Bus().Subscribe(bus.TopicAll, srv.hose.publish)
	defer unsub()

	if *broker != "" {
		disconnect, err := connectMQTT(*broker, *clientID, *prefix, srv.ctl.do, eng.Bus(), logger)
		if err != nil {
			log.Fatalf("%v", err)
		}
		defer disconnect()
	}

	if *sketch != "" {
		src, _, err := utils.ReadSketch(*sketch)
		if err != nil {
			log.Fatalf("%v", err)
		}
		if res := eng.Run(src); !res.Success {
			logger.Error("startup sketch failed to compile", "errors", len(res.Errors))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpSrv := &http.Server{Addr: *addr, Handler: srv.routes(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", *addr, "board", cfg.Board)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("%v", err)
	}
	eng.Stop()
}
