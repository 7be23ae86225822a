// Command console runs a sketch headless. Console output and pin changes
// are printed to stdout; commands typed on stdin drive buttons, the
// potentiometer and the engine.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"gpiosim/pkg/bridge"
	"gpiosim/pkg/bus"
	"gpiosim/pkg/engine"
	"gpiosim/pkg/utils"
)

func main() {
	configPath := flag.String("config", "", "engine config file (YAML)")
	boardName := flag.String("board", "", "board profile (nodemcu, uno)")
	serialDev := flag.String("serial", "", "bridge a physical board on this serial device")
	baud := flag.Int("baud", 115200, "baud rate for -serial")
	duration := flag.Duration("duration", 0, "stop after this long (0 runs until quit)")
	quietPins := flag.Bool("quiet-pins", false, "do not print pin changes")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: console [flags] sketch.ino")
		flag.PrintDefaults()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	src, fullPath, err := utils.ReadSketch(flag.Arg(0))
	if err != nil {
		log.Fatalf("%v", err)
	}

	cfg := engine.DefaultConfig()
	if *configPath != "" {
		if cfg, err = engine.LoadConfig(*configPath); err != nil {
			log.Fatalf("%v", err)
		}
	}
	if *boardName != "" {
		cfg.Board = *boardName
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var fwd forwarder
	opts := []engine.Option{engine.WithLogger(logger)}
	if *serialDev != "" {
		opts = append(opts, engine.WithSerialOutput(&fwd))
	}
	eng, err := engine.NewSession(cfg, opts...)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if *serialDev != "" {
		port, err := bridge.Open(bridge.Config{Device: *serialDev, Baud: *baud})
		if err != nil {
			log.Fatalf("%v", err)
		}
		br := bridge.New(eng.Bus(), port, bridge.WithLogger(logger))
		fwd.set(br)
		defer br.Close()
		go func() {
			if err := br.Run(ctx); err != nil {
				logger.Error("serial bridge stopped", "err", err)
			}
		}()
	}

	if code := run(ctx, eng, src, fullPath, *duration, *quietPins); code != 0 {
		stop()
		os.Exit(code)
	}
}

func run(ctx context.Context, eng *engine.Engine, src, path string, d time.Duration, quietPins bool) int {
	printer := &eventPrinter{w: os.Stdout, pins: !quietPins}
	unsub := eng.Bus().Subscribe(bus.TopicAll, printer.handle)
	defer unsub()

	sh := newShell(eng, printer, path)
	if res := eng.Run(src); !res.Success {
		return 1
	}

	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			eng.Stop()
			return 0
		case line, ok := <-lines:
			if !ok {
				// stdin closed: keep running until the duration or a signal.
				lines = nil
				continue
			}
			if quit := sh.exec(line); quit {
				eng.Stop()
				return 0
			}
		}
	}
}
