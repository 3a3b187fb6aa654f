package veil

import (
	"errors"
	"image"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// Capture failures are resolved internally by the fallback chain; these
// sentinels exist so tests and debug logs can name what happened.
var (
	// ErrNoCapture reports that pixel readback was denied or failed.
	ErrNoCapture = errors.New("veil: pixel capture unavailable")
	// ErrTooFewSamples reports that a capture pass produced fewer qualifying
	// samples than the configured minimum.
	ErrTooFewSamples = errors.New("veil: too few qualifying samples")
)

// captureMode records which capture strategy won for the active transition.
type captureMode uint8

const (
	captureNone      captureMode = iota
	captureParticles             // live particles from points or pixels
	captureStatic                // single faded image of the band
)

// transitionParticle is the per-particle state for one transition. Particles
// are created in bulk at capture time, mutated every active frame, and
// swap-removed once their alpha decays below the visibility floor.
type transitionParticle struct {
	x, y    float64
	vx, vy  float64
	r, g, b float32
	alpha   float32
	size    float64
}

// visibilityFloor is the effective alpha below which a particle is discarded.
const visibilityFloor = 0.02

// TransitionConfig tunes the sampler. Zero values select defaults.
type TransitionConfig struct {
	// Duration is the nominal transition length (default 1.2s).
	Duration time.Duration
	// TailDuration bounds the finishing tail entered by EndTransition: the
	// surface is fully cleared within this long of rendered time regardless
	// of when termination was requested (default 300ms).
	TailDuration time.Duration
	// MaxParticles caps the pool; the active tier's ParticleMultiplier
	// scales the per-capture budget below this (default 1500).
	MaxParticles int
	// PointStride subsamples the engine's points (default 7). The stride
	// widens automatically when the point count would exceed the budget.
	PointStride int
	// PixelStride subsamples band pixels in the fallback path (default 6).
	PixelStride int
	// MinSamples is the minimum qualifying sample count for a live-particle
	// transition; below it the static image fallback is used (default 20).
	MinSamples int
	// BandFraction is the captured strip's share of the output height
	// (default 1/3).
	BandFraction float64
	// AlphaFalloff is the per-frame alpha multiplier (default 0.965).
	AlphaFalloff float64
	// Damping is the per-frame velocity multiplier (default 0.985).
	Damping float64
	// DepthRange is the accepted normalized depth window for projected
	// points (default [0.02, 0.98]).
	DepthRange Range
	// Speed is the initial vertical speed range in px/s, signed by the
	// transition direction (default [120, 260]).
	Speed Range
	// Jitter is the horizontal velocity range in px/s (default [-40, 40]).
	Jitter Range
	// AlphaThreshold is the minimum pixel alpha for a pixel sample to
	// qualify (default 24).
	AlphaThreshold uint8
	// Priority is the sampler's compositor layer priority (default 200).
	Priority int
	// Governor, when set, receives a primary effect for the transition's
	// lifetime; suppression by the governor ends the transition early.
	Governor *Governor
}

const transitionEffectID = "transition"

// TransitionSampler animates scene changes by deriving a short-lived particle
// burst from the live rendered output. It captures a directional band of the
// current frame, projecting live points into screen space when the engine
// exposes them and reading pixels back otherwise, and sweeps the burst off the
// chosen edge while the new scene appears underneath. When both capture
// strategies produce too little material, it falls back to sweeping a single
// faded image of the band: a transition never renders nothing.
//
// The sampler is a Layer; register it with the compositor that owns the
// shared surface.
type TransitionSampler struct {
	cfg  TransitionConfig
	band bandCache

	particles []transitionParticle
	alive     int

	mode      captureMode
	direction Direction
	active    bool
	finishing bool

	tween     *gween.Tween
	eased     float64
	lastFrame time.Time

	fallbackImg  *ebiten.Image // cached band image; content in the top-left
	fallbackRect image.Rectangle

	srcW, srcH int
	readBuf    []byte

	// quality is the last QualityConfig seen from the compositor; captures
	// between renders use its particle budget.
	quality QualityConfig

	progressSig Signal[float64]
	doneSig     Signal[struct{}]
}

// NewTransitionSampler creates a sampler. Zero fields in cfg are replaced
// with defaults.
func NewTransitionSampler(cfg TransitionConfig) *TransitionSampler {
	if cfg.Duration <= 0 {
		cfg.Duration = 1200 * time.Millisecond
	}
	if cfg.TailDuration <= 0 {
		cfg.TailDuration = 300 * time.Millisecond
	}
	if cfg.MaxParticles <= 0 {
		cfg.MaxParticles = 1500
	}
	if cfg.PointStride <= 0 {
		cfg.PointStride = 7
	}
	if cfg.PixelStride <= 0 {
		cfg.PixelStride = 6
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 20
	}
	if cfg.BandFraction <= 0 || cfg.BandFraction > 1 {
		cfg.BandFraction = 1.0 / 3.0
	}
	if cfg.AlphaFalloff <= 0 || cfg.AlphaFalloff >= 1 {
		cfg.AlphaFalloff = 0.965
	}
	if cfg.Damping <= 0 || cfg.Damping > 1 {
		cfg.Damping = 0.985
	}
	if cfg.DepthRange == (Range{}) {
		cfg.DepthRange = Range{0.02, 0.98}
	}
	if cfg.Speed == (Range{}) {
		cfg.Speed = Range{120, 260}
	}
	if cfg.Jitter == (Range{}) {
		cfg.Jitter = Range{-40, 40}
	}
	if cfg.AlphaThreshold == 0 {
		cfg.AlphaThreshold = 24
	}
	if cfg.Priority == 0 {
		cfg.Priority = 200
	}
	return &TransitionSampler{
		cfg:       cfg,
		particles: make([]transitionParticle, cfg.MaxParticles),
	}
}

// StartTransition captures the directional band of src and begins the burst.
// A transition already in flight is finished immediately and replaced.
// Capture failures are resolved by the fallback chain and never surface to
// the caller.
func (ts *TransitionSampler) StartTransition(dir Direction, src PixelSource) {
	if ts.active {
		ts.finish()
	}

	w, h := src.Size()
	if w <= 0 || h <= 0 {
		return
	}
	ts.srcW, ts.srcH = w, h
	ts.direction = dir

	band := ts.bandRect(dir, w, h)
	budget := ts.particleBudget()

	if !ts.capturePoints(src, band, budget) {
		ts.capturePixels(src, band, budget)
	}

	ts.tween = gween.New(0, 1, float32(ts.cfg.Duration.Seconds()), ease.InOutCubic)
	ts.eased = 0
	ts.lastFrame = time.Time{}
	ts.finishing = false
	ts.active = true

	if ts.cfg.Governor != nil {
		ts.cfg.Governor.Register(ActiveEffect{
			ID:         transitionEffectID,
			Class:      EffectPrimary,
			Tag:        "transition",
			Intensity:  0.85,
			OnSuppress: ts.EndTransition,
		})
	}
}

// EndTransition requests an early finish: the remaining progress is
// compressed into the configured tail duration so the surface is guaranteed
// to be fully cleared within that tail. Safe to call any number of times,
// from any component, whether or not a transition is active.
func (ts *TransitionSampler) EndTransition() {
	if !ts.active || ts.finishing {
		return
	}
	ts.finishing = true
	ts.tween = gween.New(float32(ts.eased), 1, float32(ts.cfg.TailDuration.Seconds()), ease.OutQuad)
}

// BindScene subscribes to the engine's scene-change announcements and starts
// a transition in dir over src each time one arrives. The returned cancel
// detaches the binding.
func (ts *TransitionSampler) BindScene(sig SceneSignaler, dir Direction, src PixelSource) (cancel func()) {
	return sig.OnSceneChanged(func() {
		ts.StartTransition(dir, src)
	})
}

// Active reports whether a transition is in flight.
func (ts *TransitionSampler) Active() bool {
	return ts.active
}

// OnProgress subscribes to eased progress updates in [0, 1], delivered once
// per rendered frame while a transition is active.
func (ts *TransitionSampler) OnProgress(fn func(float64)) (cancel func()) {
	return ts.progressSig.Subscribe(fn)
}

// OnDone subscribes to transition completion, delivered once per transition.
func (ts *TransitionSampler) OnDone(fn func()) (cancel func()) {
	return ts.doneSig.Subscribe(func(struct{}) { fn() })
}

// --- Layer implementation ---

// ID implements Layer.
func (ts *TransitionSampler) ID() string { return "transition" }

// Priority implements Layer.
func (ts *TransitionSampler) Priority() int { return ts.cfg.Priority }

// NeedsUpdate implements Layer: the sampler renders every tick while a
// transition is in flight and never otherwise.
func (ts *TransitionSampler) NeedsUpdate(now, last time.Time, cfg QualityConfig) bool {
	return ts.active
}

// Render implements Layer: advances the eased progress and the per-particle
// physics, then draws the burst (or the static band) onto the shared surface.
func (ts *TransitionSampler) Render(dst *ebiten.Image, now time.Time, cfg QualityConfig) {
	ts.quality = cfg
	if !ts.active {
		return
	}

	dt := 1.0 / 60.0
	if !ts.lastFrame.IsZero() {
		dt = now.Sub(ts.lastFrame).Seconds()
		if dt <= 0 {
			dt = 1.0 / 60.0
		} else if dt > 0.25 {
			dt = 0.25
		}
	}
	ts.lastFrame = now

	easedF, done := ts.tween.Update(float32(dt))
	ts.eased = float64(easedF)
	fade := 1 - ts.eased

	// Map source pixel space onto the (possibly tier-rescaled) surface.
	sx := float64(dst.Bounds().Dx()) / float64(ts.srcW)
	sy := float64(dst.Bounds().Dy()) / float64(ts.srcH)

	switch ts.mode {
	case captureParticles:
		ts.stepParticles(dt)
		ts.drawParticles(dst, fade, sx, sy)
	case captureStatic:
		ts.drawStatic(dst, fade, sx, sy)
	}

	ts.progressSig.Emit(ts.eased)

	if done || (ts.mode == captureParticles && ts.alive == 0) {
		ts.finish()
	}
}

// --- capture ---

// bandRect returns the directional capture strip: the bottom third for
// forward transitions, the top third for backward ones.
func (ts *TransitionSampler) bandRect(dir Direction, w, h int) image.Rectangle {
	bh := int(float64(h) * ts.cfg.BandFraction)
	if bh < 1 {
		bh = 1
	}
	if dir == DirectionBackward {
		return image.Rect(0, 0, w, bh)
	}
	return image.Rect(0, h-bh, w, h)
}

// particleBudget is MaxParticles scaled by the active tier's multiplier.
func (ts *TransitionSampler) particleBudget() int {
	mult := ts.quality.ParticleMultiplier
	if mult <= 0 {
		mult = 1
	}
	budget := int(float64(ts.cfg.MaxParticles) * mult)
	if budget < ts.cfg.MinSamples {
		budget = ts.cfg.MinSamples
	}
	if budget > len(ts.particles) {
		budget = len(ts.particles)
	}
	return budget
}

// capturePoints projects a stride-sampled subset of the engine's points into
// screen space and spawns one particle per point that lands in the band,
// inside the viewport, and within the depth window. Returns false when the
// engine exposes no point data or too few points qualify.
func (ts *TransitionSampler) capturePoints(src PixelSource, band image.Rectangle, budget int) bool {
	pcs, ok := src.(PointCloudSource)
	if !ok {
		return false
	}
	points := pcs.Points()
	cam := pcs.Camera()
	if points == nil || cam == nil {
		return false
	}

	count := points.PointCount()
	if count == 0 {
		return false
	}
	stride := ts.cfg.PointStride
	if count/stride > budget {
		stride = count/budget + 1
	}

	depthMin, depthMax := ts.cfg.DepthRange.Min, ts.cfg.DepthRange.Max
	depthSpan := depthMax - depthMin
	w, h := float64(ts.srcW), float64(ts.srcH)

	// Depth-brightness proxy colors: near points read bright and warm,
	// far points cool and dim. Blended perceptually per particle.
	near := colorful.Color{R: 0.93, G: 0.95, B: 1.0}
	far := colorful.Color{R: 0.30, G: 0.38, B: 0.55}

	ts.alive = 0
	for i := 0; i < count && ts.alive < budget; i += stride {
		nx, ny, depth, ok := cam.Project(points.PointAt(i))
		if !ok {
			continue
		}
		if depth < depthMin || depth > depthMax {
			continue
		}
		px, py := nx*w, ny*h
		if px < 0 || px >= w || py < 0 || py >= h {
			continue
		}
		if int(px) < band.Min.X || int(px) >= band.Max.X ||
			int(py) < band.Min.Y || int(py) >= band.Max.Y {
			continue
		}

		brightness := 1 - (depth-depthMin)/depthSpan
		c := far.BlendHcl(near, brightness).Clamped()

		p := &ts.particles[ts.alive]
		p.x, p.y = px, py
		p.vy = float64(ts.direction) * ts.cfg.Speed.Random() * lerp(0.6, 1, brightness)
		p.vx = ts.cfg.Jitter.Random() * lerp(0.4, 1, brightness)
		p.r, p.g, p.b = float32(c.R), float32(c.G), float32(c.B)
		p.alpha = float32(lerp(0.55, 1, brightness))
		p.size = lerp(1, 3.5, brightness)
		ts.alive++
	}

	if ts.alive < ts.cfg.MinSamples {
		ts.alive = 0
		return false
	}
	ts.mode = captureParticles
	return true
}

// capturePixels copies the band to a readback buffer and spawns a particle
// per coarse-stride pixel whose alpha clears the visibility threshold. When
// the read fails or too few pixels qualify it installs the static image
// fallback instead, so the transition still shows the captured band (or a
// neutral strip when nothing at all is readable).
func (ts *TransitionSampler) capturePixels(src PixelSource, band image.Rectangle, budget int) {
	bw, bh := band.Dx(), band.Dy()
	need := bw * bh * 4
	if cap(ts.readBuf) < need {
		ts.readBuf = make([]byte, need)
	}
	buf := ts.readBuf[:need]

	if err := src.ReadRegion(band, buf); err != nil {
		debugLogf("transition: %v: %v", ErrNoCapture, err)
		ts.installStatic(band, nil)
		return
	}

	stride := ts.cfg.PixelStride
	ts.alive = 0
	for yy := 0; yy < bh && ts.alive < budget; yy += stride {
		row := yy * bw * 4
		for xx := 0; xx < bw && ts.alive < budget; xx += stride {
			off := row + xx*4
			a := buf[off+3]
			if a < ts.cfg.AlphaThreshold {
				continue
			}
			p := &ts.particles[ts.alive]
			p.x = float64(band.Min.X + xx)
			p.y = float64(band.Min.Y + yy)
			p.vy = float64(ts.direction) * ts.cfg.Speed.Random()
			p.vx = ts.cfg.Jitter.Random()
			p.r = float32(buf[off]) / 255
			p.g = float32(buf[off+1]) / 255
			p.b = float32(buf[off+2]) / 255
			p.alpha = float32(a) / 255
			p.size = 1.5 + float64(a)/255
			ts.alive++
		}
	}

	if ts.alive < ts.cfg.MinSamples {
		debugLogf("transition: %v: %d of %d", ErrTooFewSamples, ts.alive, ts.cfg.MinSamples)
		ts.alive = 0
		ts.installStatic(band, buf)
		return
	}
	ts.mode = captureParticles
}

// installStatic sets up the last-resort fallback: a single faded image of the
// band. pix holds the band's RGBA content when readback succeeded; nil means
// nothing was readable and a neutral translucent strip is used instead.
func (ts *TransitionSampler) installStatic(band image.Rectangle, pix []byte) {
	ts.fallbackImg = ts.band.take(band.Dx(), band.Dy())
	region := ts.fallbackImg.SubImage(image.Rect(0, 0, band.Dx(), band.Dy())).(*ebiten.Image)
	if pix != nil {
		region.WritePixels(pix)
	} else {
		region.Fill(Color{R: 0.78, G: 0.80, B: 0.86, A: 0.45}.toRGBA())
	}
	ts.fallbackRect = band
	ts.mode = captureStatic
}

// --- per-frame simulation and drawing ---

// stepParticles advances the burst one frame: position by velocity, alpha by
// the falloff factor, velocity by the damping factor (falloff and damping are
// per-frame factors, not per-second rates). Dead particles are swap-removed.
func (ts *TransitionSampler) stepParticles(dt float64) {
	falloff := float32(ts.cfg.AlphaFalloff)
	damping := ts.cfg.Damping
	fade := float32(1 - ts.eased)

	i := 0
	for i < ts.alive {
		p := &ts.particles[i]
		p.x += p.vx * dt
		p.y += p.vy * dt
		p.vx *= damping
		p.vy *= damping
		p.alpha *= falloff
		if p.alpha*fade < visibilityFloor {
			ts.alive--
			ts.particles[i] = ts.particles[ts.alive]
			continue
		}
		i++
	}
}

// drawParticles draws each live particle as a scaled solid quad, tinted by
// its sampled color and faded by the global progress multiplier.
func (ts *TransitionSampler) drawParticles(dst *ebiten.Image, fade, sx, sy float64) {
	var op ebiten.DrawImageOptions
	for i := 0; i < ts.alive; i++ {
		p := &ts.particles[i]
		a := p.alpha * float32(fade)
		if a < visibilityFloor {
			continue
		}
		op.GeoM.Reset()
		op.GeoM.Scale(p.size*sx, p.size*sy)
		op.GeoM.Translate(p.x*sx, p.y*sy)
		op.ColorScale.Reset()
		op.ColorScale.Scale(p.r*a, p.g*a, p.b*a, a)
		dst.DrawImage(whitePixel, &op)
	}
}

// drawStatic sweeps the faded band image toward the transition's edge.
func (ts *TransitionSampler) drawStatic(dst *ebiten.Image, fade, sx, sy float64) {
	if ts.fallbackImg == nil {
		return
	}
	bw, bh := ts.fallbackRect.Dx(), ts.fallbackRect.Dy()
	region := ts.fallbackImg.SubImage(image.Rect(0, 0, bw, bh)).(*ebiten.Image)

	// The band drifts off-screen as progress advances.
	drift := ts.eased * float64(bh) * float64(ts.direction)

	var op ebiten.DrawImageOptions
	op.GeoM.Scale(sx, sy)
	op.GeoM.Translate(float64(ts.fallbackRect.Min.X)*sx, (float64(ts.fallbackRect.Min.Y)+drift)*sy)
	op.ColorScale.ScaleAlpha(float32(fade * 0.85))
	dst.DrawImage(region, &op)
}

// finish tears the active transition down: particles are discarded, the band
// image returns to its cache, the governor effect is released, and completion
// is published.
func (ts *TransitionSampler) finish() {
	wasActive := ts.active
	ts.active = false
	ts.finishing = false
	ts.mode = captureNone
	ts.alive = 0
	ts.tween = nil
	ts.eased = 0
	ts.fallbackImg = nil // backing image stays in the band cache
	if ts.cfg.Governor != nil {
		ts.cfg.Governor.Unregister(transitionEffectID)
	}
	if wasActive {
		ts.doneSig.Emit(struct{}{})
	}
}
