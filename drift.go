package veil

import (
	"math"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
)

// mote is one ambient drifting speck.
type mote struct {
	x, y  float64
	phase float64
	speed float64
	size  float64
	alpha float32
}

// DriftConfig controls the idle ambience layer. Zero values select defaults.
type DriftConfig struct {
	// Motes is the speck count before tier scaling (default 48).
	Motes int
	// Speed is the vertical drift speed range in px/s (default [4, 14]).
	Speed Range
	// Sway is the horizontal sway amplitude in px (default 18).
	Sway float64
	// Color is the speck tint (default a faint warm white).
	Color Color
	// Priority is the layer's compositor priority (default 20).
	Priority int
}

// DriftLayer renders slow-floating motes as idle ambience. The simulation is
// cheap but still throttled to the tier's AuxUpdateHz; between simulation
// steps the motes are drawn at their last positions, so the layer stays
// visible every frame without paying per-frame update cost.
type DriftLayer struct {
	cfg     DriftConfig
	motes   []mote
	seeded  bool
	lastSim time.Time
	enabled bool
}

// NewDriftLayer creates a drift layer. Zero fields in cfg are replaced with
// defaults. The layer starts enabled; idle monitors typically toggle it via
// SetActive as the user goes idle or returns.
func NewDriftLayer(cfg DriftConfig) *DriftLayer {
	if cfg.Motes <= 0 {
		cfg.Motes = 48
	}
	if cfg.Speed == (Range{}) {
		cfg.Speed = Range{4, 14}
	}
	if cfg.Sway <= 0 {
		cfg.Sway = 18
	}
	if cfg.Color == (Color{}) {
		cfg.Color = Color{R: 0.95, G: 0.93, B: 0.85, A: 0.35}
	}
	if cfg.Priority == 0 {
		cfg.Priority = 20
	}
	return &DriftLayer{
		cfg:     cfg,
		motes:   make([]mote, cfg.Motes),
		enabled: true,
	}
}

// SetActive toggles the ambience.
func (l *DriftLayer) SetActive(active bool) {
	l.enabled = active
}

// ID implements Layer.
func (l *DriftLayer) ID() string { return "drift" }

// Priority implements Layer.
func (l *DriftLayer) Priority() int { return l.cfg.Priority }

// NeedsUpdate implements Layer.
func (l *DriftLayer) NeedsUpdate(now, last time.Time, cfg QualityConfig) bool {
	return l.enabled
}

// Render implements Layer.
func (l *DriftLayer) Render(dst *ebiten.Image, now time.Time, cfg QualityConfig) {
	w := float64(dst.Bounds().Dx())
	h := float64(dst.Bounds().Dy())

	if !l.seeded {
		l.seed(w, h)
	}

	// Re-simulate at AuxUpdateHz; draw at last positions otherwise.
	hz := cfg.AuxUpdateHz
	if hz <= 0 {
		hz = 12
	}
	interval := time.Duration(float64(time.Second) / hz)
	if l.lastSim.IsZero() || now.Sub(l.lastSim) >= interval {
		dt := interval.Seconds()
		if !l.lastSim.IsZero() {
			if actual := now.Sub(l.lastSim).Seconds(); actual > dt && actual < 1 {
				dt = actual
			}
		}
		l.lastSim = now
		for i := range l.motes {
			m := &l.motes[i]
			m.y -= m.speed * dt
			m.phase += dt
			if m.y+m.size < 0 {
				m.y = h + m.size
				m.x = Range{0, w}.Random()
			}
		}
	}

	mult := cfg.ParticleMultiplier
	if mult <= 0 {
		mult = 1
	}
	visible := int(float64(len(l.motes)) * mult)
	if visible > len(l.motes) {
		visible = len(l.motes)
	}

	c := l.cfg.Color
	var op ebiten.DrawImageOptions
	for i := 0; i < visible; i++ {
		m := &l.motes[i]
		sway := math.Sin(m.phase) * l.cfg.Sway
		a := float32(c.A) * m.alpha
		op.GeoM.Reset()
		op.GeoM.Scale(m.size, m.size)
		op.GeoM.Translate(m.x+sway, m.y)
		op.ColorScale.Reset()
		op.ColorScale.Scale(float32(c.R)*a, float32(c.G)*a, float32(c.B)*a, a)
		dst.DrawImage(whitePixel, &op)
	}
}

// seed scatters the motes over the surface once, lazily, so the layer does
// not need to know the surface size at construction.
func (l *DriftLayer) seed(w, h float64) {
	for i := range l.motes {
		l.motes[i] = mote{
			x:     Range{0, w}.Random(),
			y:     Range{0, h}.Random(),
			phase: Range{0, 2 * math.Pi}.Random(),
			speed: l.cfg.Speed.Random(),
			size:  Range{1, 3}.Random(),
			alpha: float32(Range{0.4, 1}.Random()),
		}
	}
	l.seeded = true
}
