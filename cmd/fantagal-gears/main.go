package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"log"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/tonetxo/fantagal-go"
	"github.com/tonetxo/fantagal-go/internal/gears"
	"github.com/tonetxo/fantagal-go/internal/mixer"
	"github.com/tonetxo/fantagal-go/internal/synth"
)

const (
	windowW    = 720
	windowH    = 900
	minWindowW = 540
	minWindowH = 680

	textScale = 2
	charW     = 7 * textScale
	lineH     = 14 * textScale

	// worldW and worldH bound the gear layout coordinates.
	worldW = 1080
	worldH = 1200
)

var (
	bgColor       = color.RGBA{192, 192, 192, 255}
	panelColor    = color.RGBA{192, 192, 192, 255}
	borderColor   = color.RGBA{128, 128, 128, 255}
	onColor       = color.RGBA{0, 0, 128, 255}
	bevelLight    = color.RGBA{255, 255, 255, 255}
	bevelDarker   = color.RGBA{64, 64, 64, 255}
	sunkenBgColor = color.RGBA{24, 24, 32, 255}
	idleGearColor = color.RGBA{70, 70, 80, 255}

	materialColors = [...]color.RGBA{
		synth.MaterialIron:     {150, 150, 160, 255},
		synth.MaterialBronze:   {205, 127, 50, 255},
		synth.MaterialCopper:   {184, 115, 51, 255},
		synth.MaterialGold:     {230, 190, 60, 255},
		synth.MaterialPlatinum: {225, 228, 235, 255},
	}
)

var engineKeys = [mixer.SlotCount]ebiten.Key{ebiten.Key1, ebiten.Key2, ebiten.Key3, ebiten.Key4, ebiten.Key5}

type game struct {
	p        *fantagal.Platform
	dragging int // gear id, -1 when none
	status   string

	textCache map[string]*ebiten.Image
	viewW     int
	viewH     int
}

func newGame(p *fantagal.Platform) *game {
	return &game{
		p:         p,
		dragging:  -1,
		status:    "drag a gear into the driver's reach",
		textCache: make(map[string]*ebiten.Image, 256),
		viewW:     windowW,
		viewH:     windowH,
	}
}

// Update runs at the default 60 ticks per second, which is also the gear
// frame rate.
func (g *game) Update() error {
	g.handleKeys()
	g.handleMouse()
	g.p.StepGears()
	return nil
}

func (g *game) Draw(screen *ebiten.Image) {
	screen.Fill(bgColor)
	l := g.layoutRects()

	g.drawSunkenPanel(screen, l.canvas)
	g.drawGears(screen, l.canvas)
	for i, r := range l.engines {
		s := mixer.Slot(i)
		g.drawToggle(screen, r, fmt.Sprintf("%d %s", i+1, s), g.p.IsEngineEnabled(s))
	}
	g.drawToggle(screen, l.seq, "seq", g.sequencerPlaying())
	g.drawPanel(screen, l.status)
	g.drawText(screen, g.status, l.status.Min.X+8, l.status.Min.Y+(l.status.Dy()-lineH)/2)
}

func (g *game) Layout(outsideW, outsideH int) (int, int) {
	g.viewW = max(outsideW, minWindowW)
	g.viewH = max(outsideH, minWindowH)
	return g.viewW, g.viewH
}

type uiLayout struct {
	canvas  image.Rectangle
	engines [mixer.SlotCount]image.Rectangle
	seq     image.Rectangle
	status  image.Rectangle
}

func (g *game) layoutRects() uiLayout {
	pad := 16
	rowH := 40
	statusTop := g.viewH - pad - rowH
	buttonsTop := statusTop - 8 - rowH

	var l uiLayout
	l.canvas = image.Rect(pad, pad, g.viewW-pad, buttonsTop-8)
	n := mixer.SlotCount + 1
	bw := (g.viewW - 2*pad - (n-1)*6) / n
	for i := range l.engines {
		x := pad + i*(bw+6)
		l.engines[i] = image.Rect(x, buttonsTop, x+bw, buttonsTop+rowH)
	}
	x := pad + mixer.SlotCount*(bw+6)
	l.seq = image.Rect(x, buttonsTop, x+bw, buttonsTop+rowH)
	l.status = image.Rect(pad, statusTop, g.viewW-pad, statusTop+rowH)
	return l
}

// view maps layout coordinates into the canvas, preserving aspect.
type view struct {
	x0, y0, scale float64
}

func canvasView(rect image.Rectangle) view {
	s := math.Min(float64(rect.Dx())/worldW, float64(rect.Dy())/worldH)
	return view{
		x0:    float64(rect.Min.X) + (float64(rect.Dx())-worldW*s)/2,
		y0:    float64(rect.Min.Y) + (float64(rect.Dy())-worldH*s)/2,
		scale: s,
	}
}

func (v view) toScreen(x, y float32) (float32, float32) {
	return float32(v.x0 + float64(x)*v.scale), float32(v.y0 + float64(y)*v.scale)
}

func (v view) toWorld(x, y int) (float32, float32) {
	return float32((float64(x) - v.x0) / v.scale), float32((float64(y) - v.y0) / v.scale)
}

func (g *game) drawGears(screen *ebiten.Image, rect image.Rectangle) {
	v := canvasView(rect)
	for _, gr := range g.p.Gears() {
		cx, cy := v.toScreen(gr.X, gr.Y)
		r := gr.Radius * float32(v.scale)
		if r <= 0 {
			continue
		}
		fill := idleGearColor
		if gr.Connected && gr.Material >= 0 && int(gr.Material) < len(materialColors) {
			fill = materialColors[gr.Material]
		}
		vector.DrawFilledCircle(screen, cx, cy, r, fill, true)
		edge := color.Color(bevelDarker)
		if gr.Dragging {
			edge = bevelLight
		}
		vector.StrokeCircle(screen, cx, cy, r, 2, edge, true)
		teeth := max(gr.Teeth, 1)
		for k := 0; k < teeth; k++ {
			a := float64(gr.Angle) + 2*math.Pi*float64(k)/float64(teeth)
			ex := cx + r*float32(math.Cos(a))
			ey := cy + r*float32(math.Sin(a))
			vector.StrokeLine(screen, cx, cy, ex, ey, 1.5, sunkenBgColor, true)
		}
		label := fmt.Sprintf("%d", gr.ID)
		if gr.Connected && gr.ID != gears.DriverID {
			label = fmt.Sprintf("%d d%d", gr.ID, gr.Depth)
		}
		g.drawText(screen, label, int(cx)-len(label)*charW/2, int(cy)-lineH/2)
	}
}

func (g *game) handleKeys() {
	for i, k := range engineKeys {
		if inpututil.IsKeyJustPressed(k) {
			g.toggleEngine(mixer.Slot(i))
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.toggleSequencer()
	}
}

func (g *game) handleMouse() {
	mx, my := ebiten.CursorPosition()
	l := g.layoutRects()

	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		for i, r := range l.engines {
			if pointInRect(mx, my, r) {
				g.toggleEngine(mixer.Slot(i))
				return
			}
		}
		if pointInRect(mx, my, l.seq) {
			g.toggleSequencer()
			return
		}
		if pointInRect(mx, my, l.canvas) {
			g.grab(mx, my, l.canvas)
		}
	}
	if g.dragging < 0 {
		return
	}
	if !ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		g.p.EndDrag(g.dragging)
		g.dragging = -1
		return
	}
	wx, wy := canvasView(l.canvas).toWorld(mx, my)
	g.p.DragTo(g.dragging, wx, wy)
}

// grab starts dragging the topmost gear under the cursor. The driver is
// fixed.
func (g *game) grab(mx, my int, rect image.Rectangle) {
	wx, wy := canvasView(rect).toWorld(mx, my)
	gs := g.p.Gears()
	for i := len(gs) - 1; i >= 0; i-- {
		gr := gs[i]
		if math.Hypot(float64(wx-gr.X), float64(wy-gr.Y)) > float64(gr.Radius) {
			continue
		}
		if g.p.BeginDrag(gr.ID) {
			g.dragging = gr.ID
			g.status = fmt.Sprintf("dragging gear %d", gr.ID)
		}
		return
	}
}

func (g *game) toggleEngine(s mixer.Slot) {
	on := !g.p.IsEngineEnabled(s)
	g.p.SetEngineEnabled(s, on)
	state := "off"
	if on {
		state = "on"
	}
	g.status = fmt.Sprintf("%s %s", s, state)
}

func (g *game) sequencerPlaying() bool {
	var data [mixer.SequencerDataLen]float32
	return g.p.SequencerData(data[:]) > 0 && data[2] != 0
}

func (g *game) toggleSequencer() {
	on := !g.sequencerPlaying()
	g.p.SetSequencerPlaying(on)
	if on && !g.p.IsEngineEnabled(mixer.SlotBreitema) {
		g.status = "sequencer running; enable breitema (5) to hear it"
	}
}

func (g *game) drawPanel(screen *ebiten.Image, rect image.Rectangle) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), panelColor)
	drawBorder(screen, rect)
}

func (g *game) drawSunkenPanel(screen *ebiten.Image, rect image.Rectangle) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), sunkenBgColor)
	drawSunkenBorder(screen, rect)
}

func (g *game) drawToggle(screen *ebiten.Image, rect image.Rectangle, label string, on bool) {
	fill := color.Color(panelColor)
	if on {
		fill = onColor
	}
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), fill)
	if on {
		drawSunkenBorder(screen, rect)
	} else {
		drawBorder(screen, rect)
	}
	maxChars := max(1, (rect.Dx()-8)/charW)
	if r := []rune(label); len(r) > maxChars {
		label = string(r[:maxChars])
	}
	x := rect.Min.X + (rect.Dx()-len([]rune(label))*charW)/2
	y := rect.Min.Y + (rect.Dy()-lineH)/2
	g.drawText(screen, label, x, y)
}

func drawBorder(screen *ebiten.Image, rect image.Rectangle) {
	x := float64(rect.Min.X)
	y := float64(rect.Min.Y)
	w := float64(rect.Dx())
	h := float64(rect.Dy())
	ebitenutil.DrawRect(screen, x, y, w-1, 1, bevelLight)
	ebitenutil.DrawRect(screen, x, y+1, 1, h-2, bevelLight)
	ebitenutil.DrawRect(screen, x, y+h-1, w, 1, bevelDarker)
	ebitenutil.DrawRect(screen, x+w-1, y, 1, h, bevelDarker)
	ebitenutil.DrawRect(screen, x+1, y+h-2, w-3, 1, borderColor)
	ebitenutil.DrawRect(screen, x+w-2, y+1, 1, h-3, borderColor)
}

func drawSunkenBorder(screen *ebiten.Image, rect image.Rectangle) {
	x := float64(rect.Min.X)
	y := float64(rect.Min.Y)
	w := float64(rect.Dx())
	h := float64(rect.Dy())
	ebitenutil.DrawRect(screen, x, y, w-1, 1, bevelDarker)
	ebitenutil.DrawRect(screen, x, y+1, 1, h-2, bevelDarker)
	ebitenutil.DrawRect(screen, x, y+h-1, w, 1, bevelLight)
	ebitenutil.DrawRect(screen, x+w-1, y, 1, h, bevelLight)
}

func (g *game) drawText(screen *ebiten.Image, msg string, x int, y int) {
	if msg == "" {
		return
	}
	img := g.textCache[msg]
	if img == nil {
		w := max(1, len([]rune(msg))*7)
		img = ebiten.NewImage(w, 14)
		ebitenutil.DebugPrintAt(img, msg, 0, 0)
		if len(g.textCache) > 1000 {
			g.textCache = make(map[string]*ebiten.Image, 256)
		}
		g.textCache[msg] = img
	}
	opS := &ebiten.DrawImageOptions{}
	opS.GeoM.Scale(textScale, textScale)
	opS.GeoM.Translate(float64(x+2), float64(y+2))
	opS.ColorScale.Scale(0, 0, 0, 1)
	screen.DrawImage(img, opS)
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(textScale, textScale)
	op.GeoM.Translate(float64(x), float64(y))
	screen.DrawImage(img, op)
}

func pointInRect(x, y int, rect image.Rectangle) bool {
	return x >= rect.Min.X && x < rect.Max.X && y >= rect.Min.Y && y < rect.Max.Y
}

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		backend    = flag.String("backend", fantagal.BackendEbiten, "audio backend: oto|ebiten|beep|headless")
	)
	flag.Parse()

	cfg := fantagal.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = fantagal.LoadConfig(*configPath); err != nil {
			log.Fatal(err)
		}
	}
	cfg.Backend = *backend
	// Each Update is one simulation frame.
	cfg.FrameRate = float64(ebiten.DefaultTPS)

	p, err := fantagal.New(fantagal.WithConfig(cfg))
	if err != nil {
		log.Fatal(err)
	}
	if err := p.Start(); err != nil {
		log.Fatal(err)
	}
	defer p.Stop()

	ebiten.SetWindowSize(windowW, windowH)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSizeLimits(minWindowW, minWindowH, -1, -1)
	ebiten.SetWindowTitle("fantagal gears")
	if err := ebiten.RunGame(newGame(p)); err != nil {
		log.Fatal(err)
	}
}
