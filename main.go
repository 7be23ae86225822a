//go:build !js

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"gpiosim/pkg/board"
	"gpiosim/pkg/bus"
	"gpiosim/pkg/compiler"
	"gpiosim/pkg/engine"
	"gpiosim/pkg/utils"
)

func main() {
	boardName := flag.String("board", board.DefaultProfile, "board profile to validate pins against")
	showTokens := flag.Bool("tokens", false, "print the token stream")
	showAST := flag.Bool("ast", false, "print the parsed declarations")
	asJSON := flag.Bool("json", false, "print diagnostics as JSON")
	runFor := flag.Duration("run", 0, "run the sketch headless for this long and print its console")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: gpiosim [flags] sketch.ino")
		flag.Usage()
		os.Exit(2)
	}

	src, fullPath, err := utils.ReadSketch(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	reg, err := board.Load(*boardName)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if *showTokens {
		if err := printTokens(src); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}

	prog, diags, err := compiler.Compile(src, compiler.Options{Board: reg})
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(diags)
	} else {
		for _, d := range diags {
			fmt.Printf("%s: %s\n", fullPath, d)
		}
	}
	if err != nil {
		os.Exit(1)
	}

	if *showAST {
		for _, s := range prog.Decls() {
			fmt.Println(s)
		}
	}

	if *runFor > 0 {
		if err := runHeadless(src, *boardName, *runFor); err != nil {
			fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
			os.Exit(1)
		}
	}
}

func printTokens(src string) error {
	text, err := compiler.Preprocess(src)
	if err != nil {
		return err
	}
	tokens, err := compiler.Lex(text)
	for _, t := range tokens {
		fmt.Println(t)
	}
	return err
}

// runHeadless runs the sketch for d and prints everything it logs.
func runHeadless(src, boardName string, d time.Duration) error {
	eng, err := engine.NewSession(engine.Config{Board: boardName})
	if err != nil {
		return err
	}
	eng.Bus().Subscribe(bus.TopicConsoleLog, func(ev bus.Event) {
		l := ev.Payload.(bus.ConsoleLog)
		if l.Severity == bus.SeverityInfo {
			fmt.Println(l.Message)
		} else {
			fmt.Printf("%s: %s\n", l.Severity, l.Message)
		}
	})

	if res := eng.Run(src); !res.Success {
		return fmt.Errorf("%d compile error(s)", len(res.Errors))
	}
	time.Sleep(d)

	state := eng.State()
	eng.Stop()
	fmt.Printf("run complete: %s after %d iterations\n", state, eng.Iterations())
	if state == engine.StateErrored {
		return fmt.Errorf("sketch failed")
	}
	return nil
}
