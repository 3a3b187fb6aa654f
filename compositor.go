package veil

import (
	"math"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
)

// Layer is a self-contained, independently-throttled render step hosted by
// the Compositor. Layers carry their own internal state; the compositor only
// tracks registration, enabledness, and the time of each layer's last render.
//
// A layer with persistent visible content should return true from NeedsUpdate
// every tick (the shared surface is cleared once per tick, so skipped layers
// leave no pixels behind) and throttle expensive internal work such as pixel
// capture or re-simulation to the rates in QualityConfig.
// NeedsUpdate returning false is for layers with nothing to show.
type Layer interface {
	// ID identifies the layer for registration. Registering a second layer
	// with the same ID replaces the first.
	ID() string
	// Priority orders compositing; lower renders first (background).
	Priority() int
	// NeedsUpdate reports whether the layer wants to render this tick.
	// last is the time of the layer's previous render (zero before the
	// first one).
	NeedsUpdate(now, last time.Time, cfg QualityConfig) bool
	// Render draws the layer onto the shared surface.
	Render(dst *ebiten.Image, now time.Time, cfg QualityConfig)
}

// CompositorConfig configures the shared surface and collaborators.
type CompositorConfig struct {
	// Width and Height are the logical surface size in pixels (the backing
	// resolution is scaled by the active tier's PixelRatioCap).
	Width, Height int
	// Tiers holds the per-tier quality bundles, indexed by Tier. Zero value
	// selects DefaultQualityConfigs.
	Tiers [3]QualityConfig
	// Governor, when set, gets an expiry pass at the start of every tick.
	Governor *Governor
	// Controller, when set, is ticked before layer decisions each frame and
	// its tier changes are applied automatically.
	Controller *PerformanceController
}

// Compositor multiplexes many effect layers through one shared render surface
// and one scheduling tick. Each tick it clears the surface exactly once, then
// renders the enabled layers in ascending priority order, asking each whether
// it needs to update first. Background layers therefore always composite
// before foreground layers, and each layer controls its own cadence without
// owning a timer or a surface.
//
// The compositor does not own a goroutine; the host calls Tick once per frame
// (for Ebitengine hosts, from ebiten.Game.Update) and Draw to composite the
// surface onto the screen. Stop simply makes Tick a no-op; cancellation is
// cooperative and idempotent, with nothing to join.
type Compositor struct {
	cfg     CompositorConfig
	surface *ebiten.Image
	quality QualityConfig

	// layers is kept sorted ascending by priority; byID indexes it.
	layers []*layerSlot
	byID   map[string]*layerSlot

	running bool
	paused  bool

	debug    bool
	tickSeen int

	detachTier func()
}

// layerSlot is the compositor's bookkeeping for one registered layer.
type layerSlot struct {
	layer      Layer
	enabled    bool
	lastUpdate time.Time
	seq        int // registration order, tiebreak for equal priorities
}

// NewCompositor creates a compositor with its shared surface sized for the
// given config, starting at TierHigh. Call Start before ticking.
func NewCompositor(cfg CompositorConfig) *Compositor {
	if cfg.Width <= 0 {
		cfg.Width = 640
	}
	if cfg.Height <= 0 {
		cfg.Height = 480
	}
	if cfg.Tiers == ([3]QualityConfig{}) {
		cfg.Tiers = DefaultQualityConfigs()
	}
	c := &Compositor{
		cfg:  cfg,
		byID: make(map[string]*layerSlot),
	}
	c.quality = cfg.Tiers[TierHigh]
	c.surface = ebiten.NewImage(c.surfaceSize())
	if cfg.Controller != nil {
		c.detachTier = cfg.Controller.OnTierChange(func(qc QualityConfig) {
			c.SetQualityTier(qc.Tier)
		})
	}
	return c
}

// RegisterLayer adds a layer; new layers start enabled. Registering an ID
// that is already present replaces the existing layer in place, keeping its
// last-update time.
func (c *Compositor) RegisterLayer(l Layer) {
	if slot, ok := c.byID[l.ID()]; ok {
		slot.layer = l
		c.sortLayers()
		return
	}
	slot := &layerSlot{layer: l, enabled: true, seq: len(c.layers)}
	c.layers = append(c.layers, slot)
	c.byID[l.ID()] = slot
	c.sortLayers()
}

// UnregisterLayer removes a layer. Unknown ids are a silent no-op.
func (c *Compositor) UnregisterLayer(id string) {
	slot, ok := c.byID[id]
	if !ok {
		return
	}
	delete(c.byID, id)
	for i, s := range c.layers {
		if s == slot {
			c.layers = append(c.layers[:i], c.layers[i+1:]...)
			return
		}
	}
}

// SetLayerEnabled toggles a layer without unregistering it. Unknown ids are a
// silent no-op.
func (c *Compositor) SetLayerEnabled(id string, enabled bool) {
	if slot, ok := c.byID[id]; ok {
		slot.enabled = enabled
	}
}

// SetQualityTier swaps the active QualityConfig and rescales the surface.
// The surface is reallocated only when the backing size actually changes.
func (c *Compositor) SetQualityTier(t Tier) {
	if t > TierHigh {
		t = TierHigh
	}
	c.quality = c.cfg.Tiers[t]
	w, h := c.surfaceSize()
	b := c.surface.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return
	}
	c.surface.Deallocate()
	c.surface = ebiten.NewImage(w, h)
	if c.debug {
		debugLogf("surface rescaled to %dx%d (tier %s)", w, h, t)
	}
}

// Quality returns the active quality bundle.
func (c *Compositor) Quality() QualityConfig {
	return c.quality
}

// Surface returns the shared render surface. It is owned by the compositor;
// callers other than the active layer must treat it as read-only.
func (c *Compositor) Surface() *ebiten.Image {
	return c.surface
}

// Start arms the compositor so Tick does work. Idempotent.
func (c *Compositor) Start() {
	c.running = true
}

// Stop disarms the compositor: subsequent Ticks are no-ops until Start is
// called again. Idempotent and safe from any component at any point.
func (c *Compositor) Stop() {
	c.running = false
}

// Close stops the compositor and detaches it from the controller's tier
// signal, so a discarded compositor no longer reacts to tier changes.
// Idempotent; a closed compositor can be re-armed with Start but stays
// detached.
func (c *Compositor) Close() {
	c.Stop()
	if c.detachTier != nil {
		c.detachTier()
		c.detachTier = nil
	}
}

// Pause skips rendering while keeping the tick armed, so Resume takes effect
// on the very next frame. Idempotent.
func (c *Compositor) Pause() {
	c.paused = true
}

// Resume re-enables rendering after Pause. Idempotent.
func (c *Compositor) Resume() {
	c.paused = false
}

// Running reports whether Tick currently does work.
func (c *Compositor) Running() bool {
	return c.running
}

// Tick runs one scheduling turn at now: controller first (so this tick's tier
// decision precedes its layer decisions), then the governor's expiry pass,
// then one surface clear, then the enabled layers in ascending priority
// order. Paused ticks skip everything after the controller but keep the loop
// alive.
func (c *Compositor) Tick(now time.Time) {
	if !c.running {
		return
	}
	if c.cfg.Controller != nil {
		c.cfg.Controller.Tick(now)
	}
	if c.paused {
		return
	}
	if c.cfg.Governor != nil {
		c.cfg.Governor.Expire(now)
	}

	var t0 time.Time
	var stats tickStats
	if c.debug {
		t0 = time.Now()
	}

	c.surface.Clear()

	for _, slot := range c.layers {
		if !slot.enabled {
			continue
		}
		if !slot.layer.NeedsUpdate(now, slot.lastUpdate, c.quality) {
			continue
		}
		slot.layer.Render(c.surface, now, c.quality)
		slot.lastUpdate = now
		stats.rendered++
	}

	if c.debug {
		stats.tickTime = time.Since(t0)
		stats.layers = len(c.layers)
		stats.tier = c.quality.Tier
		c.tickSeen++
		if c.tickSeen%60 == 0 {
			c.debugLog(stats)
		}
	}
}

// Draw composites the shared surface onto screen, scaled up from the backing
// resolution to the screen size. Call from ebiten.Game.Draw after the primary
// subject has been drawn, so effects overlay it without ever hiding it.
func (c *Compositor) Draw(screen *ebiten.Image) {
	if !c.running {
		return
	}
	sw := screen.Bounds().Dx()
	sh := screen.Bounds().Dy()
	b := c.surface.Bounds()
	var op ebiten.DrawImageOptions
	op.GeoM.Scale(float64(sw)/float64(b.Dx()), float64(sh)/float64(b.Dy()))
	op.Filter = ebiten.FilterLinear
	screen.DrawImage(c.surface, &op)
}

// SetDebugMode enables per-tick timing logs to stderr (sampled once per 60
// ticks).
func (c *Compositor) SetDebugMode(enabled bool) {
	c.debug = enabled
}

// surfaceSize returns the backing pixel size for the current tier.
func (c *Compositor) surfaceSize() (w, h int) {
	ratio := c.quality.PixelRatioCap
	if ratio <= 0 {
		ratio = 1
	}
	w = int(math.Ceil(float64(c.cfg.Width) * ratio))
	h = int(math.Ceil(float64(c.cfg.Height) * ratio))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// sortLayers keeps layers ascending by priority, registration order breaking
// ties so equal-priority layers composite deterministically.
func (c *Compositor) sortLayers() {
	// Insertion sort: the set is small and almost always already ordered.
	for i := 1; i < len(c.layers); i++ {
		for j := i; j > 0; j-- {
			a, b := c.layers[j-1], c.layers[j]
			if a.layer.Priority() < b.layer.Priority() ||
				(a.layer.Priority() == b.layer.Priority() && a.seq < b.seq) {
				break
			}
			c.layers[j-1], c.layers[j] = b, a
		}
	}
}
