package veil

import (
	"time"

	"github.com/hajimehoshi/ebiten/v2"
)

// rainDrop is the per-streak simulation state. Unexported; managed by RainLayer.
type rainDrop struct {
	x, y   float64
	speed  float64
	length float64
	alpha  float32
}

// RainConfig controls the weather layer. Zero values select defaults.
type RainConfig struct {
	// MaxDrops is the pool size before tier scaling (default 400).
	MaxDrops int
	// SpawnRate is drops per second at intensity 1 (default 240).
	SpawnRate float64
	// Speed is the fall speed range in px/s (default [420, 760]).
	Speed Range
	// Length is the streak length range in px (default [8, 22]).
	Length Range
	// Wind is the horizontal drift in px/s (default 30).
	Wind float64
	// Color is the streak tint (default a cool translucent gray-blue).
	Color Color
	// Priority is the layer's compositor priority (default 40).
	Priority int
}

// RainLayer is a rain simulation rendered as falling streaks. Its pool size
// and spawn rate scale with both the active tier's ParticleMultiplier and the
// layer's governed intensity, so the governor can thin a storm without
// stopping it.
type RainLayer struct {
	cfg       RainConfig
	drops     []rainDrop
	alive     int
	accum     float64
	intensity float64
	lastFrame time.Time
}

// NewRainLayer creates a rain layer. Zero fields in cfg are replaced with
// defaults. The layer starts at intensity 0 (dormant).
func NewRainLayer(cfg RainConfig) *RainLayer {
	if cfg.MaxDrops <= 0 {
		cfg.MaxDrops = 400
	}
	if cfg.SpawnRate <= 0 {
		cfg.SpawnRate = 240
	}
	if cfg.Speed == (Range{}) {
		cfg.Speed = Range{420, 760}
	}
	if cfg.Length == (Range{}) {
		cfg.Length = Range{8, 22}
	}
	if cfg.Wind == 0 {
		cfg.Wind = 30
	}
	if cfg.Color == (Color{}) {
		cfg.Color = Color{R: 0.62, G: 0.70, B: 0.82, A: 0.55}
	}
	if cfg.Priority == 0 {
		cfg.Priority = 40
	}
	return &RainLayer{
		cfg:   cfg,
		drops: make([]rainDrop, cfg.MaxDrops),
	}
}

// SetIntensity sets the storm strength in [0, 1]. Zero stops spawning;
// existing streaks fall out naturally.
func (l *RainLayer) SetIntensity(v float64) {
	l.intensity = clamp01(v)
}

// Intensity returns the current storm strength.
func (l *RainLayer) Intensity() float64 {
	return l.intensity
}

// ID implements Layer.
func (l *RainLayer) ID() string { return "rain" }

// Priority implements Layer.
func (l *RainLayer) Priority() int { return l.cfg.Priority }

// NeedsUpdate implements Layer: renders while raining or while streaks are
// still falling out.
func (l *RainLayer) NeedsUpdate(now, last time.Time, cfg QualityConfig) bool {
	return l.intensity > 0 || l.alive > 0
}

// Render implements Layer.
func (l *RainLayer) Render(dst *ebiten.Image, now time.Time, cfg QualityConfig) {
	w := float64(dst.Bounds().Dx())
	h := float64(dst.Bounds().Dy())

	dt := 1.0 / 60.0
	if !l.lastFrame.IsZero() {
		dt = now.Sub(l.lastFrame).Seconds()
		if dt <= 0 {
			dt = 1.0 / 60.0
		} else if dt > 0.25 {
			dt = 0.25
		}
	}
	l.lastFrame = now

	mult := cfg.ParticleMultiplier
	if mult <= 0 {
		mult = 1
	}
	capDrops := int(float64(l.cfg.MaxDrops) * mult)
	if capDrops > len(l.drops) {
		capDrops = len(l.drops)
	}

	// Advance streaks, swap-removing those that left the surface.
	i := 0
	for i < l.alive {
		d := &l.drops[i]
		d.y += d.speed * dt
		d.x += l.cfg.Wind * dt
		if d.y-d.length > h {
			l.alive--
			l.drops[i] = l.drops[l.alive]
			continue
		}
		i++
	}

	// Spawn new streaks.
	if l.intensity > 0 {
		l.accum += l.cfg.SpawnRate * l.intensity * mult * dt
		for l.accum >= 1 {
			l.accum--
			if l.alive >= capDrops {
				continue
			}
			d := &l.drops[l.alive]
			d.x = Range{0, w}.Random()
			d.length = l.cfg.Length.Random()
			d.y = -d.length
			d.speed = l.cfg.Speed.Random()
			d.alpha = float32(0.5 + 0.5*l.intensity)
			l.alive++
		}
	}

	// Draw streaks as thin vertical quads.
	c := l.cfg.Color
	var op ebiten.DrawImageOptions
	for i := 0; i < l.alive; i++ {
		d := &l.drops[i]
		a := float32(c.A) * d.alpha
		op.GeoM.Reset()
		op.GeoM.Scale(1, d.length)
		op.GeoM.Translate(d.x, d.y-d.length)
		op.ColorScale.Reset()
		op.ColorScale.Scale(float32(c.R)*a, float32(c.G)*a, float32(c.B)*a, a)
		dst.DrawImage(whitePixel, &op)
	}
}
