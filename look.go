package veil

import (
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// LookConfig controls the color grading layer. Zero values select defaults.
type LookConfig struct {
	// Strength is the grade's overlay opacity in [0, 1] (default 0.18).
	Strength float64
	// FadeDuration is the crossfade time between looks (default 900ms).
	FadeDuration time.Duration
	// Priority is the layer's compositor priority (default 240: looks grade
	// everything beneath them).
	Priority int
}

// LookLayer applies a color "look" as a full-surface translucent grade.
// Look changes crossfade in HCL space, which keeps intermediate colors
// perceptually between the two endpoints instead of detouring through gray.
// The blend itself is recomputed only at the tier's AuxUpdateHz; the fill is
// drawn every frame from the cached result.
type LookLayer struct {
	cfg LookConfig

	from    colorful.Color
	to      colorful.Color
	fade    *gween.Tween
	blended Color
	active  bool

	lastBlend time.Time
	lastFrame time.Time
}

// NewLookLayer creates a look layer with no active look. Zero fields in cfg
// are replaced with defaults.
func NewLookLayer(cfg LookConfig) *LookLayer {
	if cfg.Strength <= 0 {
		cfg.Strength = 0.18
	}
	if cfg.FadeDuration <= 0 {
		cfg.FadeDuration = 900 * time.Millisecond
	}
	if cfg.Priority == 0 {
		cfg.Priority = 240
	}
	return &LookLayer{cfg: cfg}
}

// SetLook starts a crossfade from the current grade color to c. The alpha
// component of c is ignored; overlay opacity comes from LookConfig.Strength.
func (l *LookLayer) SetLook(c Color) {
	target := colorful.Color{R: clamp01(c.R), G: clamp01(c.G), B: clamp01(c.B)}
	if l.active {
		l.from = l.currentBlend()
	} else {
		// First look fades in from the target itself (opacity ramps via
		// the fade progress).
		l.from = target
	}
	l.to = target
	l.fade = gween.New(0, 1, float32(l.cfg.FadeDuration.Seconds()), ease.InOutCubic)
	l.active = true
}

// ClearLook removes the grade immediately.
func (l *LookLayer) ClearLook() {
	l.active = false
	l.fade = nil
}

// ID implements Layer.
func (l *LookLayer) ID() string { return "look" }

// Priority implements Layer.
func (l *LookLayer) Priority() int { return l.cfg.Priority }

// NeedsUpdate implements Layer.
func (l *LookLayer) NeedsUpdate(now, last time.Time, cfg QualityConfig) bool {
	return l.active
}

// Render implements Layer.
func (l *LookLayer) Render(dst *ebiten.Image, now time.Time, cfg QualityConfig) {
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

	if l.fade != nil {
		l.fade.Update(float32(dt))
	}

	// Recompute the HCL blend at AuxUpdateHz; reuse the cached color between
	// refreshes.
	hz := cfg.AuxUpdateHz
	if hz <= 0 {
		hz = 12
	}
	interval := time.Duration(float64(time.Second) / hz)
	if l.lastBlend.IsZero() || now.Sub(l.lastBlend) >= interval {
		l.lastBlend = now
		c := l.currentBlend()
		l.blended = Color{R: c.R, G: c.G, B: c.B, A: l.cfg.Strength * l.fadeProgress()}
	}

	b := l.blended
	a := float32(b.A)
	if a <= 0 {
		return
	}
	var op ebiten.DrawImageOptions
	op.GeoM.Scale(float64(dst.Bounds().Dx()), float64(dst.Bounds().Dy()))
	op.ColorScale.Scale(float32(b.R)*a, float32(b.G)*a, float32(b.B)*a, a)
	dst.DrawImage(whitePixel, &op)
}

// currentBlend returns the from→to HCL blend at the current fade progress.
func (l *LookLayer) currentBlend() colorful.Color {
	return l.from.BlendHcl(l.to, l.fadeProgress()).Clamped()
}

// fadeProgress returns the eased crossfade progress in [0, 1].
func (l *LookLayer) fadeProgress() float64 {
	if l.fade == nil {
		return 1
	}
	// gween has no peek; Update(0) advances nothing and returns the value.
	v, _ := l.fade.Update(0)
	return float64(v)
}
