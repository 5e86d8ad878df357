package gears

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/tonetxo/fantagal-go/internal/synth"
)

type recordingSink struct {
	mu        sync.Mutex
	gears     map[int]synth.GearState
	positions map[int][2]float32
	posPushes int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{gears: map[int]synth.GearState{}, positions: map[int][2]float32{}}
}

func (r *recordingSink) UpdateGear(g synth.GearState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gears[g.ID] = g
}

func (r *recordingSink) UpdateGearPosition(id int, x, y float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions[id] = [2]float32{x, y}
	r.posPushes++
}

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func layout(gs ...Gear) []Gear {
	for i := range gs {
		if gs[i].ID != DriverID {
			gs[i].Depth = Unreachable
		}
	}
	return gs
}

func driver() Gear {
	return Gear{ID: 0, X: 0, Y: 0, Radius: 100, Teeth: 14}
}

func TestSingleGearWithinToleranceConnects(t *testing.T) {
	s := New(nil, quiet(), WithLayout(layout(driver(), Gear{ID: 1, X: 170, Y: 0, Radius: 60})))
	s.SetEngineActive(true)
	s.Propagate()

	g, _ := s.Gear(1)
	if !g.Connected || g.Depth != 1 {
		t.Fatalf("gear 1 = %+v, want connected depth 1", g)
	}
	want := float32(-DriverSpeed) * (float32(100) / float32(60))
	if g.Speed != want {
		t.Fatalf("speed = %v, want %v", g.Speed, want)
	}
}

func TestSpeedSignAndRatioAlongChain(t *testing.T) {
	s := New(nil, quiet(), WithLayout(layout(
		driver(),
		Gear{ID: 1, X: 170, Y: 0, Radius: 60},
		Gear{ID: 2, X: 170, Y: 110, Radius: 40},
	)))
	s.SetEngineActive(true)
	s.Propagate()

	gs := s.Gears()
	a, b := gs[1], gs[2]
	if !b.Connected || b.Depth != 2 {
		t.Fatalf("gear 2 = %+v, want connected depth 2", b)
	}
	if b.Speed != -a.Speed*(a.Radius/b.Radius) {
		t.Fatalf("speed = %v, want %v", b.Speed, -a.Speed*(a.Radius/b.Radius))
	}
	if b.Speed <= 0 {
		t.Fatal("second hop should rotate with the driver")
	}
}

func TestFarApartGearsStayDisconnected(t *testing.T) {
	s := New(nil, quiet(), WithLayout(layout(
		driver(),
		Gear{ID: 1, X: 1000, Y: 0, Radius: 50},
		Gear{ID: 2, X: -1000, Y: 1000, Radius: 50},
	)))
	s.SetEngineActive(true)
	s.Propagate()
	for _, g := range s.Gears()[1:] {
		if g.Connected || g.Depth != Unreachable || g.Speed != 0 {
			t.Fatalf("gear %d = %+v, want idle", g.ID, g)
		}
	}
}

func TestInactiveDriverLeavesNetworkIdle(t *testing.T) {
	s := New(nil, quiet(), WithLayout(layout(driver(), Gear{ID: 1, X: 170, Y: 0, Radius: 60})))
	s.Propagate()
	for _, g := range s.Gears() {
		if g.Connected || g.Speed != 0 {
			t.Fatalf("gear %d moving with driver off: %+v", g.ID, g)
		}
	}
	d, _ := s.Gear(0)
	if d.Depth != 0 {
		t.Fatalf("driver depth = %d", d.Depth)
	}
}

func TestPropagationIsDeterministic(t *testing.T) {
	s := New(nil, quiet())
	s.SetEngineActive(true)
	s.BeginDrag(1)
	s.DragTo(1, 540, 850)
	s.EndDrag(1)
	s.BeginDrag(4)
	s.DragTo(4, 540, 760)
	s.EndDrag(4)

	s.Propagate()
	first := s.Gears()
	for i := 0; i < 5; i++ {
		s.Propagate()
		again := s.Gears()
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("pass %d differs at gear %d: %+v vs %+v", i, j, first[j], again[j])
			}
		}
	}
	if !first[1].Connected || !first[4].Connected || first[4].Depth != 2 {
		t.Fatalf("chain not formed: %+v %+v", first[1], first[4])
	}
}

func TestSecondHopDepth(t *testing.T) {
	// Gear 3 meshes only with gear 1, so it is reached on the second pass.
	s := New(nil, quiet(), WithLayout(layout(
		driver(),
		Gear{ID: 1, X: 170, Y: 0, Radius: 60},
		Gear{ID: 2, X: 170, Y: 110, Radius: 40},
		Gear{ID: 3, X: 250, Y: 60, Radius: 30},
	)))
	s.SetEngineActive(true)
	s.Propagate()
	g, _ := s.Gear(3)
	if !g.Connected || g.Depth != 2 {
		t.Fatalf("gear 3 = %+v, want depth 2", g)
	}
}

func TestDraggedGearIsFrozen(t *testing.T) {
	s := New(nil, quiet(), WithLayout(layout(driver(), Gear{ID: 1, X: 170, Y: 0, Radius: 60})))
	s.SetEngineActive(true)
	s.Propagate()
	before, _ := s.Gear(1)

	if !s.BeginDrag(1) {
		t.Fatal("BeginDrag failed")
	}
	s.DragTo(1, 5000, 5000)
	s.Propagate()
	during, _ := s.Gear(1)
	if during.Connected != before.Connected || during.Speed != before.Speed || during.Depth != before.Depth {
		t.Fatalf("dragged gear changed: %+v -> %+v", before, during)
	}
	if during.X != 5000 || during.Y != 5000 {
		t.Fatal("dragged gear should follow input")
	}

	s.EndDrag(1)
	s.Propagate()
	after, _ := s.Gear(1)
	if after.Connected || after.Depth != Unreachable {
		t.Fatalf("released gear far away should disconnect: %+v", after)
	}
}

func TestDraggedGearDoesNotPropagate(t *testing.T) {
	s := New(nil, quiet(), WithLayout(layout(
		driver(),
		Gear{ID: 1, X: 170, Y: 0, Radius: 60},
		Gear{ID: 2, X: 170, Y: 110, Radius: 40},
	)))
	s.SetEngineActive(true)
	s.Propagate()
	s.BeginDrag(1)
	s.Propagate()
	g, _ := s.Gear(2)
	if g.Connected {
		t.Fatal("gear reached only through a dragged gear should disconnect")
	}
}

func TestDriverCannotBeDragged(t *testing.T) {
	s := New(nil, quiet())
	if s.BeginDrag(DriverID) {
		t.Fatal("driver drag should be refused")
	}
	if s.BeginDrag(42) {
		t.Fatal("unknown gear drag should be refused")
	}
	if s.DragTo(2, 1, 1) {
		t.Fatal("DragTo without BeginDrag should be refused")
	}
}

func TestZeroRadiusGearIsInert(t *testing.T) {
	s := New(nil, quiet(), WithLayout(layout(
		driver(),
		Gear{ID: 1, X: 50, Y: 0, Radius: 0},
		Gear{ID: 2, X: 120, Y: 0, Radius: 20},
	)))
	s.SetEngineActive(true)
	s.Propagate()
	g, _ := s.Gear(1)
	if g.Connected || g.Speed != 0 {
		t.Fatalf("zero radius gear = %+v, want inert", g)
	}
	g2, _ := s.Gear(2)
	if !g2.Connected || g2.Depth != 1 {
		t.Fatalf("gear 2 = %+v", g2)
	}
}

func TestMarginControlsMeshing(t *testing.T) {
	gs := layout(driver(), Gear{ID: 1, X: 200, Y: 0, Radius: 60})
	tight := New(nil, quiet(), WithLayout(gs), WithMargin(0))
	tight.SetEngineActive(true)
	tight.Propagate()
	if g, _ := tight.Gear(1); g.Connected {
		t.Fatal("gap of 40 should not mesh with margin 0")
	}
	loose := New(nil, quiet(), WithLayout(gs), WithMargin(41))
	loose.SetEngineActive(true)
	loose.Propagate()
	if g, _ := loose.Gear(1); !g.Connected {
		t.Fatal("gap of 40 should mesh with margin 41")
	}
}

func TestStepPushesStateAndResyncsPositions(t *testing.T) {
	sink := newRecordingSink()
	s := New(sink, quiet())
	s.SetEngineActive(true)

	s.Step()
	if len(sink.gears) != 5 {
		t.Fatalf("pushed %d gears, want 5", len(sink.gears))
	}
	if sink.posPushes != 5 {
		t.Fatalf("first frame position pushes = %d, want 5", sink.posPushes)
	}
	if !sink.gears[0].Connected || sink.gears[0].Speed != DriverSpeed {
		t.Fatalf("driver state = %+v", sink.gears[0])
	}
	for i := 1; i < ResyncInterval; i++ {
		s.Step()
	}
	if sink.posPushes != 5 {
		t.Fatalf("position pushes before resync = %d", sink.posPushes)
	}
	s.Step()
	if sink.posPushes != 10 {
		t.Fatalf("position pushes after resync = %d, want 10", sink.posPushes)
	}
	if s.Frame() != ResyncInterval+1 {
		t.Fatalf("frame = %d", s.Frame())
	}
	d, _ := s.Gear(0)
	if d.Angle == 0 {
		t.Fatal("driver angle should integrate")
	}
}

func TestDragPushesPositionImmediately(t *testing.T) {
	sink := newRecordingSink()
	s := New(sink, quiet())
	s.BeginDrag(3)
	s.DragTo(3, 10, 20)
	if sink.positions[3] != [2]float32{10, 20} {
		t.Fatalf("position = %v", sink.positions[3])
	}
}

func TestSyncPushesLayoutWithoutStepping(t *testing.T) {
	sink := newRecordingSink()
	s := New(sink, quiet(), WithLayout(layout(driver(), Gear{ID: 6, X: 300, Y: 40, Radius: 20})))
	s.Sync()
	if len(sink.gears) != 2 || sink.posPushes != 2 {
		t.Fatalf("pushed %d gears and %d positions, want 2 and 2", len(sink.gears), sink.posPushes)
	}
	if sink.positions[6] != [2]float32{300, 40} {
		t.Fatalf("position = %v", sink.positions[6])
	}
	if s.Frame() != 0 {
		t.Fatalf("frame = %d, want 0", s.Frame())
	}
}

func TestDecodeAndRestore(t *testing.T) {
	data := []float32{
		0, 1, 2, 0.02, 1, 0, 100, 0, 14, 0.5,
		3, 30, 40, -0.03, 0, 3, 80, 999, 10, 1.5,
		7, 0, 0, 0, 0, 0, 10, 0, 3, 0,
	}
	gs := Decode(data, 5)
	if len(gs) != 3 {
		t.Fatalf("decoded %d gears, want 3", len(gs))
	}
	if gs[1].ID != 3 || gs[1].Material != synth.MaterialGold || gs[1].Depth != Unreachable || gs[1].Connected {
		t.Fatalf("gear = %+v", gs[1])
	}
	if Decode(data[:9], 1) != nil {
		t.Fatal("partial row should decode to nothing")
	}

	s := New(nil, quiet())
	if n := s.Restore(gs); n != 2 {
		t.Fatalf("restored %d, want 2", n)
	}
	g, _ := s.Gear(3)
	if g.X != 30 || g.Y != 40 || g.Angle != 1.5 {
		t.Fatalf("restored gear = %+v", g)
	}
}

func TestRunStepsUntilCancelled(t *testing.T) {
	s := New(newRecordingSink(), quiet())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, time.Millisecond) }()
	deadline := time.Now().Add(2 * time.Second)
	for s.Frame() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run = %v", err)
	}
	if s.Frame() < 3 {
		t.Fatalf("frames = %d", s.Frame())
	}
}

func TestGearStateRoundTrip(t *testing.T) {
	g := Gear{ID: 2, X: 1, Y: 2, Radius: 3, Teeth: 4, Angle: 5, Speed: 6, Connected: true, Depth: 7, Material: synth.MaterialCopper}
	if FromState(g.State()) != g {
		t.Fatal("state conversion lost fields")
	}
}
