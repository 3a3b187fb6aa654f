package veil

import (
	"fmt"
	"math"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// RippleConfig controls gesture feedback rings. Zero values select defaults.
type RippleConfig struct {
	// Duration is each ring's expand-and-fade time (default 600ms).
	Duration time.Duration
	// Radius is the ring's final radius range in px (default [60, 90]).
	Radius Range
	// Color is the ring tint (default translucent white).
	Color Color
	// Intensity is the governed strength each ring requests (default 0.25).
	Intensity float64
	// Priority is the layer's compositor priority (default 120).
	Priority int
}

// ring is one expanding gesture ring.
type ring struct {
	effectID string
	x, y     float64
	radius   *gween.Tween
	alpha    *gween.Tween
	r        float64
	a        float64
	done     bool
}

// RippleLayer renders expanding rings as gesture feedback. Every triggered
// ring registers a secondary effect with the governor, so sustained gesturing
// is admission-controlled: when the secondary class fills up, the governor
// suppresses the oldest ring, which removes it from screen immediately.
type RippleLayer struct {
	cfg   RippleConfig
	gov   *Governor
	rings []*ring
	next  int

	ringImg *ebiten.Image

	lastFrame time.Time
}

// NewRippleLayer creates a ripple layer. gov may be nil, in which case rings
// are not governed. Zero fields in cfg are replaced with defaults.
func NewRippleLayer(gov *Governor, cfg RippleConfig) *RippleLayer {
	if cfg.Duration <= 0 {
		cfg.Duration = 600 * time.Millisecond
	}
	if cfg.Radius == (Range{}) {
		cfg.Radius = Range{60, 90}
	}
	if cfg.Color == (Color{}) {
		cfg.Color = Color{R: 1, G: 1, B: 1, A: 0.6}
	}
	if cfg.Intensity <= 0 {
		cfg.Intensity = 0.25
	}
	if cfg.Priority == 0 {
		cfg.Priority = 120
	}
	return &RippleLayer{
		cfg:     cfg,
		gov:     gov,
		ringImg: generateRing(32, 10),
	}
}

// Trigger spawns a ring centered at p in surface coordinates.
func (l *RippleLayer) Trigger(p Vec2) {
	l.next++
	dur := float32(l.cfg.Duration.Seconds())
	rg := &ring{
		effectID: fmt.Sprintf("ripple-%d", l.next),
		x:        p.X,
		y:        p.Y,
		radius:   gween.New(4, float32(l.cfg.Radius.Random()), dur, ease.OutCubic),
		alpha:    gween.New(float32(l.cfg.Color.A), 0, dur, ease.OutQuad),
		a:        l.cfg.Color.A,
	}
	l.rings = append(l.rings, rg)

	if l.gov != nil {
		l.gov.Register(ActiveEffect{
			ID:         rg.effectID,
			Class:      EffectSecondary,
			Tag:        "gesture",
			Intensity:  l.cfg.Intensity,
			Duration:   l.cfg.Duration,
			OnSuppress: func() { rg.done = true },
		})
	}
}

// ID implements Layer.
func (l *RippleLayer) ID() string { return "ripple" }

// Priority implements Layer.
func (l *RippleLayer) Priority() int { return l.cfg.Priority }

// NeedsUpdate implements Layer: renders only while rings are live.
func (l *RippleLayer) NeedsUpdate(now, last time.Time, cfg QualityConfig) bool {
	return len(l.rings) > 0
}

// Render implements Layer.
func (l *RippleLayer) Render(dst *ebiten.Image, now time.Time, cfg QualityConfig) {
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

	kept := l.rings[:0]
	for _, rg := range l.rings {
		if !rg.done {
			radius, _ := rg.radius.Update(float32(dt))
			alpha, finished := rg.alpha.Update(float32(dt))
			rg.r = float64(radius)
			rg.a = float64(alpha)
			if finished {
				rg.done = true
			}
		}
		if rg.done {
			if l.gov != nil {
				l.gov.Unregister(rg.effectID)
			}
			continue
		}
		kept = append(kept, rg)
	}
	l.rings = kept

	// The tier caps how many glow draws land; the newest rings win. Older
	// rings keep simulating so they reappear if the tier recovers.
	first := 0
	if limit := cfg.MaxLightSources; limit > 0 && len(l.rings) > limit {
		first = len(l.rings) - limit
	}

	c := l.cfg.Color
	srcSize := float64(l.ringImg.Bounds().Dx())
	for _, rg := range l.rings[first:] {
		a := float32(rg.a)
		var op ebiten.DrawImageOptions
		scale := rg.r * 2 / srcSize
		op.GeoM.Scale(scale, scale)
		op.GeoM.Translate(rg.x-rg.r, rg.y-rg.r)
		op.ColorScale.Scale(float32(c.R)*a, float32(c.G)*a, float32(c.B)*a, a)
		dst.DrawImage(l.ringImg, &op)
	}
}

// generateRing renders the ring texture: an annulus hollow at the center,
// peaking along a centerline half a thickness inside the outer edge, and
// feathered to transparent on both sides of that line. Texel values carry
// the alpha (premultiplied white) so overlapping rings accumulate smoothly.
func generateRing(radius, thickness float64) *ebiten.Image {
	size := int(math.Ceil(radius * 2))
	if size < 1 {
		size = 1
	}
	if thickness <= 0 || thickness > radius {
		thickness = radius / 3
	}
	img := ebiten.NewImage(size, size)
	pix := make([]byte, size*size*4)

	center := radius - thickness/2
	half := thickness / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx := float64(x) + 0.5 - radius
			dy := float64(y) + 0.5 - radius
			d := math.Abs(math.Sqrt(dx*dx+dy*dy)-center) / half

			var alpha float64
			if d < 1 {
				f := 1 - d
				alpha = f * f * (3 - 2*f)
			}

			a := uint8(alpha * 255)
			off := (y*size + x) * 4
			pix[off+0] = a
			pix[off+1] = a
			pix[off+2] = a
			pix[off+3] = a
		}
	}
	img.WritePixels(pix)
	return img
}
