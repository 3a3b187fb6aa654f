package veil

import (
	"image/color"
	"testing"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
)

// stubLayer records render calls for compositor tests.
type stubLayer struct {
	id       string
	priority int
	throttle time.Duration // 0 = render every tick
	renders  int
	log      *[]string
}

func (l *stubLayer) ID() string    { return l.id }
func (l *stubLayer) Priority() int { return l.priority }

func (l *stubLayer) NeedsUpdate(now, last time.Time, cfg QualityConfig) bool {
	if l.throttle == 0 {
		return true
	}
	return last.IsZero() || now.Sub(last) >= l.throttle
}

func (l *stubLayer) Render(dst *ebiten.Image, now time.Time, cfg QualityConfig) {
	l.renders++
	if l.log != nil {
		*l.log = append(*l.log, l.id)
	}
}

// paintLayer stamps one opaque pixel so tests can observe surface clears.
type paintLayer struct {
	id     string
	active bool
}

func (l *paintLayer) ID() string    { return l.id }
func (l *paintLayer) Priority() int { return 10 }

func (l *paintLayer) NeedsUpdate(now, last time.Time, cfg QualityConfig) bool {
	return l.active
}

func (l *paintLayer) Render(dst *ebiten.Image, now time.Time, cfg QualityConfig) {
	dst.Set(1, 1, color.White)
}

// watcherLayer records, per render, whether the painted pixel was still present
// when this higher-priority layer ran.
type watcherLayer struct {
	sawPaint []bool
}

func (l *watcherLayer) ID() string    { return "watcher" }
func (l *watcherLayer) Priority() int { return 20 }

func (l *watcherLayer) NeedsUpdate(now, last time.Time, cfg QualityConfig) bool {
	return true
}

func (l *watcherLayer) Render(dst *ebiten.Image, now time.Time, cfg QualityConfig) {
	_, _, _, a := dst.At(1, 1).RGBA()
	l.sawPaint = append(l.sawPaint, a != 0)
}

func newTestCompositor(t *testing.T) *Compositor {
	t.Helper()
	c := NewCompositor(CompositorConfig{Width: 64, Height: 48})
	c.Start()
	return c
}

func TestCloseDetachesTierSignal(t *testing.T) {
	pc := NewPerformanceController(PerformanceConfig{WindowSize: 1, FramesToTrigger: 1})
	c := NewCompositor(CompositorConfig{Width: 100, Height: 80, Controller: pc})
	c.Start()
	if pc.tierChanged.Len() != 1 {
		t.Fatal("construction should subscribe to tier changes")
	}

	c.Close()
	if c.Running() {
		t.Error("Close implies Stop")
	}
	if pc.tierChanged.Len() != 0 {
		t.Fatal("Close must drop the tier subscription")
	}
	c.Close() // idempotent

	// A later tier change no longer reaches the closed compositor.
	pc.AddDelta(50 * time.Millisecond) // 20 FPS, below the low threshold
	if pc.CurrentTier() != TierMed {
		t.Fatalf("tier = %v, want MED", pc.CurrentTier())
	}
	if c.Quality().Tier != TierHigh {
		t.Error("closed compositor must not follow tier changes")
	}
}

func TestSurfaceClearsOncePerTick(t *testing.T) {
	c := newTestCompositor(t)
	paint := &paintLayer{id: "paint", active: true}
	watcher := &watcherLayer{}
	c.RegisterLayer(paint)
	c.RegisterLayer(watcher)

	// The clear happens before the layers run, never between them: the
	// watcher, compositing after the painter, still sees its pixel.
	c.Tick(at(0))
	if len(watcher.sawPaint) != 1 || !watcher.sawPaint[0] {
		t.Fatal("a lower-priority layer's pixels must survive until the tick ends")
	}

	// With the painter idle, the next tick's single clear removes the pixel.
	paint.active = false
	c.Tick(at(1.0 / 60))
	if watcher.sawPaint[1] {
		t.Fatal("every running tick must start from a cleared surface")
	}

	// Paused ticks neither clear nor render; the last composited frame
	// survives across them.
	paint.active = true
	c.Tick(at(2.0 / 60))
	c.Pause()
	c.Tick(at(3.0 / 60))
	c.Tick(at(4.0 / 60))
	if _, _, _, a := c.Surface().At(1, 1).RGBA(); a == 0 {
		t.Fatal("paused ticks must not clear the surface")
	}

	c.Resume()
	paint.active = false
	c.Tick(at(5.0 / 60))
	if _, _, _, a := c.Surface().At(1, 1).RGBA(); a != 0 {
		t.Fatal("the first resumed tick must clear the stale frame")
	}
}

func TestLayersRenderAscendingByPriority(t *testing.T) {
	c := newTestCompositor(t)
	var log []string
	c.RegisterLayer(&stubLayer{id: "fg", priority: 90, log: &log})
	c.RegisterLayer(&stubLayer{id: "bg", priority: 10, log: &log})
	c.RegisterLayer(&stubLayer{id: "mid", priority: 50, log: &log})

	c.Tick(at(0))
	want := []string{"bg", "mid", "fg"}
	if len(log) != 3 {
		t.Fatalf("renders = %d, want 3", len(log))
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("render %d = %q, want %q", i, log[i], want[i])
		}
	}
}

func TestEqualPriorityKeepsRegistrationOrder(t *testing.T) {
	c := newTestCompositor(t)
	var log []string
	c.RegisterLayer(&stubLayer{id: "a", priority: 10, log: &log})
	c.RegisterLayer(&stubLayer{id: "b", priority: 10, log: &log})
	c.Tick(at(0))
	if len(log) != 2 || log[0] != "a" || log[1] != "b" {
		t.Errorf("log = %v, want [a b]", log)
	}
}

func TestNeedsUpdateGatesRendering(t *testing.T) {
	c := newTestCompositor(t)
	slow := &stubLayer{id: "slow", priority: 1, throttle: 100 * time.Millisecond}
	fast := &stubLayer{id: "fast", priority: 2}
	c.RegisterLayer(slow)
	c.RegisterLayer(fast)

	// 60 Hz ticks for 100ms: the throttled layer renders on the first tick
	// and again only once its interval has elapsed.
	for i := 0; i <= 6; i++ {
		c.Tick(at(float64(i) / 60))
	}
	if fast.renders != 7 {
		t.Errorf("fast renders = %d, want 7", fast.renders)
	}
	if slow.renders != 2 {
		t.Errorf("slow renders = %d, want 2", slow.renders)
	}
}

func TestLastUpdateRecordedOnlyOnRender(t *testing.T) {
	c := newTestCompositor(t)
	slow := &stubLayer{id: "slow", priority: 1, throttle: time.Second}
	c.RegisterLayer(slow)
	c.Tick(at(0))
	c.Tick(at(0.1))
	slot := c.byID["slow"]
	if !slot.lastUpdate.Equal(at(0)) {
		t.Errorf("lastUpdate = %v, want the first tick's time", slot.lastUpdate)
	}
}

func TestDisabledLayerSkipped(t *testing.T) {
	c := newTestCompositor(t)
	l := &stubLayer{id: "l", priority: 1}
	c.RegisterLayer(l)
	c.SetLayerEnabled("l", false)
	c.Tick(at(0))
	if l.renders != 0 {
		t.Error("disabled layer must not render")
	}
	c.SetLayerEnabled("l", true)
	c.Tick(at(0.02))
	if l.renders != 1 {
		t.Error("re-enabled layer should render")
	}
	c.SetLayerEnabled("ghost", true) // silent no-op
}

func TestPauseSkipsRenderingKeepsLoopAlive(t *testing.T) {
	c := newTestCompositor(t)
	l := &stubLayer{id: "l", priority: 1}
	c.RegisterLayer(l)

	c.Pause()
	c.Tick(at(0))
	c.Tick(at(0.02))
	if l.renders != 0 {
		t.Fatal("paused ticks must not render")
	}
	c.Resume()
	c.Tick(at(0.04))
	if l.renders != 1 {
		t.Error("resume should take effect on the very next tick")
	}
}

func TestStopIsIdempotentNoOp(t *testing.T) {
	c := newTestCompositor(t)
	l := &stubLayer{id: "l", priority: 1}
	c.RegisterLayer(l)
	c.Stop()
	c.Stop()
	c.Tick(at(0))
	if l.renders != 0 {
		t.Error("stopped compositor must ignore ticks")
	}
	c.Start()
	c.Tick(at(0.02))
	if l.renders != 1 {
		t.Error("restarted compositor should tick again")
	}
}

func TestRegisterSameIDReplaces(t *testing.T) {
	c := newTestCompositor(t)
	first := &stubLayer{id: "l", priority: 1}
	second := &stubLayer{id: "l", priority: 1}
	c.RegisterLayer(first)
	c.RegisterLayer(second)
	c.Tick(at(0))
	if first.renders != 0 || second.renders != 1 {
		t.Error("re-registered ID should replace the original layer")
	}
	if len(c.layers) != 1 {
		t.Errorf("layers = %d, want 1", len(c.layers))
	}
}

func TestUnregisterLayer(t *testing.T) {
	c := newTestCompositor(t)
	l := &stubLayer{id: "l", priority: 1}
	c.RegisterLayer(l)
	c.UnregisterLayer("l")
	c.UnregisterLayer("ghost") // silent no-op
	c.Tick(at(0))
	if l.renders != 0 {
		t.Error("unregistered layer must not render")
	}
}

func TestSetQualityTierRescalesSurfaceOnlyOnChange(t *testing.T) {
	c := NewCompositor(CompositorConfig{Width: 100, Height: 80})
	highSurface := c.Surface()
	if w := highSurface.Bounds().Dx(); w != 100 {
		t.Fatalf("HIGH surface width = %d, want 100", w)
	}

	c.SetQualityTier(TierLow) // PixelRatioCap 0.75
	low := c.Surface()
	if low == highSurface {
		t.Fatal("LOW tier should reallocate the surface")
	}
	if w, h := low.Bounds().Dx(), low.Bounds().Dy(); w != 75 || h != 60 {
		t.Errorf("LOW surface = %dx%d, want 75x60", w, h)
	}

	c.SetQualityTier(TierMed) // cap back to 1.0
	med := c.Surface()
	c.SetQualityTier(TierHigh) // also 1.0: same backing size, no realloc
	if c.Surface() != med {
		t.Error("same backing size must not reallocate the surface")
	}
	if c.Quality().Tier != TierHigh {
		t.Errorf("quality tier = %s, want HIGH", c.Quality().Tier)
	}
}

func TestControllerDrivesTier(t *testing.T) {
	pc := NewPerformanceController(trigCfg())
	c := NewCompositor(CompositorConfig{Width: 64, Height: 48, Controller: pc})
	c.Start()

	// Ticks at 20 FPS: after arming plus framesToTrigger deltas the
	// controller steps down and the compositor follows within the same tick.
	for i := 0; i <= 8; i++ {
		c.Tick(at(float64(i) * 0.05))
	}
	if pc.CurrentTier() != TierMed {
		t.Fatalf("controller tier = %s, want MED", pc.CurrentTier())
	}
	if c.Quality().Tier != TierMed {
		t.Errorf("compositor tier = %s, want MED", c.Quality().Tier)
	}
}

func TestTierDecisionPrecedesLayerDecisions(t *testing.T) {
	pc := NewPerformanceController(trigCfg())
	c := NewCompositor(CompositorConfig{Width: 64, Height: 48, Controller: pc})
	c.Start()

	var seen []Tier
	c.RegisterLayer(&recordTierLayer{seen: &seen})
	for i := 0; i <= 8; i++ {
		c.Tick(at(float64(i) * 0.05))
	}
	// The tick on which the controller stepped down must already hand MED to
	// the layer.
	last := seen[len(seen)-1]
	if last != TierMed {
		t.Errorf("layer saw tier %s on the stepping tick, want MED", last)
	}
}

// recordTierLayer records the tier passed to Render each tick.
type recordTierLayer struct {
	seen *[]Tier
}

func (l *recordTierLayer) ID() string    { return "record" }
func (l *recordTierLayer) Priority() int { return 1 }
func (l *recordTierLayer) NeedsUpdate(now, last time.Time, cfg QualityConfig) bool {
	return true
}
func (l *recordTierLayer) Render(dst *ebiten.Image, now time.Time, cfg QualityConfig) {
	*l.seen = append(*l.seen, cfg.Tier)
}

func TestGovernorExpiryRunsOnTick(t *testing.T) {
	gov := NewGovernor(GovernorConfig{})
	c := NewCompositor(CompositorConfig{Width: 64, Height: 48, Governor: gov})
	c.Start()

	suppressed := false
	gov.Register(ActiveEffect{
		ID: "blink", Intensity: 0.2, StartTime: at(0),
		Duration:   100 * time.Millisecond,
		OnSuppress: func() { suppressed = true },
	})
	c.Tick(at(0.05))
	if suppressed {
		t.Fatal("effect expired early")
	}
	c.Tick(at(0.2))
	if !suppressed {
		t.Error("tick should expire elapsed effects")
	}
}
