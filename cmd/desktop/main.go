// Command desktop shows a running sketch as a board of pin tiles. Clicking
// an input tile presses its button; the potentiometer follows the arrow
// keys. R reloads and runs the sketch, S stops and X resets.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"log"
	"os"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"golang.org/x/image/font/basicfont"

	"gpiosim/pkg/bus"
	"gpiosim/pkg/devices"
	"gpiosim/pkg/engine"
	"gpiosim/pkg/gpio"
	"gpiosim/pkg/grid"
	"gpiosim/pkg/utils"
)

const (
	screenW      = 640
	screenH      = 480
	consoleLines = 12
	lineHeight   = 14
)

type Game struct {
	eng     *engine.Engine
	path    string
	layout  grid.Layout
	face    *text.GoXFace
	console *consolePanel

	buttons map[int]*devices.Button
	held    int // pin of the button under the mouse, or -1
	pot     *devices.Pot
}

func newGame(eng *engine.Engine, path string) (*Game, error) {
	pot, err := devices.NewPot(eng.GPIO())
	if err != nil {
		return nil, err
	}
	g := &Game{
		eng:     eng,
		path:    path,
		layout:  grid.Layout{Cols: 6, CellW: 96, CellH: 52, Gap: 8, Origin: image.Pt(10, 30)},
		face:    text.NewGoXFace(basicfont.Face7x13),
		console: newConsolePanel(consoleLines),
		buttons: make(map[int]*devices.Button),
		held:    -1,
		pot:     pot,
	}
	eng.Bus().Subscribe(bus.TopicConsoleLog, g.console.handle)
	return g, nil
}

func (g *Game) run() {
	src, _, err := utils.ReadSketch(g.path)
	if err != nil {
		g.eng.Bus().Log(bus.SeverityError, err.Error())
		return
	}
	g.eng.Run(src)
}

func (g *Game) Update() error {
	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyR):
		g.run()
	case inpututil.IsKeyJustPressed(ebiten.KeyS):
		g.eng.Stop()
	case inpututil.IsKeyJustPressed(ebiten.KeyX):
		g.eng.Reset()
	}

	step := 0
	if ebiten.IsKeyPressed(ebiten.KeyArrowUp) || ebiten.IsKeyPressed(ebiten.KeyArrowRight) {
		step = 8
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowDown) || ebiten.IsKeyPressed(ebiten.KeyArrowLeft) {
		step = -8
	}
	if step != 0 {
		g.pot.Set(g.pot.Level() + step)
	}

	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		g.press(image.Pt(ebiten.CursorPosition()))
	}
	if inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft) && g.held >= 0 {
		if btn := g.buttons[g.held]; btn != nil {
			_ = btn.Release()
		}
		g.held = -1
	}
	return nil
}

// press pushes the button on the input tile under p, attaching one wired
// to match the pin's mode the first time.
func (g *Game) press(p image.Point) {
	states := g.eng.GPIO().States()
	i, ok := g.layout.Hit(p, len(states))
	if !ok {
		return
	}
	s := states[i]
	if s.Mode != gpio.ModeInput && s.Mode != gpio.ModeInputPullUp {
		return
	}
	btn := g.buttons[s.Pin]
	if btn == nil {
		var err error
		if btn, err = devices.NewButton(g.eng.GPIO(), s.Pin, s.Mode == gpio.ModeInputPullUp); err != nil {
			g.eng.Bus().Log(bus.SeverityError, err.Error())
			return
		}
		g.buttons[s.Pin] = btn
	}
	_ = btn.Press()
	g.held = s.Pin
}

func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(color.RGBA{0x18, 0x18, 0x1c, 0xff})
	status := fmt.Sprintf("%s  %s  loops %d  A0 %d", g.eng.GPIO().Registry().Name(), g.eng.State(), g.eng.Iterations(), g.pot.Level())
	g.drawText(screen, status, 10, 8, color.White)

	for i, s := range g.eng.GPIO().States() {
		r := g.layout.Rect(i)
		screen.SubImage(r).(*ebiten.Image).Fill(tileColor(s))
		fg := color.Color(color.White)
		if s.Mode == gpio.ModeOutput && tileColor(s).R > 0xa0 {
			fg = color.Black
		}
		g.drawText(screen, tileLabel(s), r.Min.X+6, r.Min.Y+6, fg)
		g.drawText(screen, s.Mode.String(), r.Min.X+6, r.Min.Y+20, fg)
		g.drawText(screen, tileDetail(s), r.Min.X+6, r.Min.Y+34, fg)
	}

	top := screenH - consoleLines*lineHeight - 10
	screen.SubImage(image.Rect(0, top-6, screenW, screenH)).(*ebiten.Image).Fill(color.RGBA{0x0c, 0x0c, 0x0e, 0xff})
	for i, line := range g.console.snapshot() {
		g.drawText(screen, line, 10, top+i*lineHeight, color.RGBA{0xb0, 0xe0, 0xb0, 0xff})
	}
}

func (g *Game) drawText(dst *ebiten.Image, s string, x, y int, c color.Color) {
	op := &text.DrawOptions{}
	op.GeoM.Translate(float64(x), float64(y))
	op.ColorScale.ScaleWithColor(c)
	text.Draw(dst, s, g.face, op)
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenW, screenH
}

func main() {
	configPath := flag.String("config", "", "engine config file (YAML)")
	boardName := flag.String("board", "", "board profile (nodemcu, uno)")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: desktop [flags] sketch.ino")
		os.Exit(2)
	}

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
	eng, err := engine.NewSession(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	path := flag.Arg(0)
	if _, _, err := utils.ReadSketch(path); err != nil {
		log.Fatalf("%v", err)
	}
	game, err := newGame(eng, path)
	if err != nil {
		log.Fatalf("%v", err)
	}
	game.run()

	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(screenW, screenH)
	ebiten.SetWindowTitle("GPIO Simulator")
	if err := ebiten.RunGame(game); err != nil {
		log.Fatal(err)
	}
	eng.Stop()
}
