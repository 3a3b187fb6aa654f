package veil

import "time"

// ActiveEffect is a time-bounded, intensity-parameterized visual modulation
// tracked by the Governor. Identity is ID: registering an effect whose ID is
// already tracked updates it in place rather than creating a duplicate.
type ActiveEffect struct {
	ID    string
	Class EffectClass
	// Tag is a free-form priority/category tag for the producer's own use
	// (e.g. "weather", "gesture"). The governor does not interpret it.
	Tag string
	// Intensity is the effect's requested strength in [0, 1]. The governor
	// may scale it down on admission to honor the global intensity cap.
	Intensity float64
	StartTime time.Time
	// Duration bounds the effect's lifetime; zero means it lives until
	// explicitly unregistered or evicted.
	Duration time.Duration
	// OnSuppress, if set, is invoked when the effect is suppressed (evicted,
	// expired, or explicitly suppressed) so the producer can release side
	// resources such as a running animation.
	OnSuppress func()
}

// GovernorConfig bounds concurrent effect load. Zero values select defaults.
type GovernorConfig struct {
	MaxPrimary   int     // concurrent primary effects (default 2)
	MaxSecondary int     // concurrent secondary effects (default 4)
	IntensityCap float64 // global Σ intensity cap (default 2.0)
}

const (
	defaultMaxPrimary   = 2
	defaultMaxSecondary = 4
	defaultIntensityCap = 2.0
)

// Governor is the admission controller for ephemeral effects. It enforces
// per-class concurrency caps via oldest-first eviction and a global intensity
// cap via scale-to-fit, so a registration always succeeds from the producer's
// point of view.
//
// Governor is not safe for concurrent use (see package docs).
type Governor struct {
	cfg     GovernorConfig
	effects map[string]*ActiveEffect
}

// NewGovernor creates a Governor. Zero fields in cfg are replaced with
// defaults.
func NewGovernor(cfg GovernorConfig) *Governor {
	if cfg.MaxPrimary <= 0 {
		cfg.MaxPrimary = defaultMaxPrimary
	}
	if cfg.MaxSecondary <= 0 {
		cfg.MaxSecondary = defaultMaxSecondary
	}
	if cfg.IntensityCap <= 0 {
		cfg.IntensityCap = defaultIntensityCap
	}
	return &Governor{
		cfg:     cfg,
		effects: make(map[string]*ActiveEffect),
	}
}

// Register admits an effect. If the ID is already tracked the effect is
// updated in place. Otherwise, when the effect's class is at capacity, the
// oldest effect of that class (smallest StartTime) is suppressed to make
// room. The incoming intensity is scaled down to the remaining headroom under
// the global cap rather than being rejected. Register always returns true;
// overcapacity resolves deterministically, never as an error to the caller.
func (g *Governor) Register(e ActiveEffect) bool {
	e.Intensity = clamp01(e.Intensity)
	if e.StartTime.IsZero() {
		e.StartTime = time.Now()
	}

	if existing, ok := g.effects[e.ID]; ok {
		if existing.Class == e.Class {
			// In-place update. Headroom excludes the effect's own previous
			// contribution.
			headroom := g.cfg.IntensityCap - (g.totalIntensity() - existing.Intensity)
			*existing = e
			existing.Intensity = fitIntensity(e.Intensity, headroom)
			return true
		}
		// A class swap re-enters admission so the new class's cap holds
		// after this call too.
		delete(g.effects, e.ID)
	}

	for g.classCount(e.Class) >= g.classCap(e.Class) {
		oldest := g.oldest(e.Class)
		if oldest == nil {
			break
		}
		g.Suppress(oldest.ID)
	}

	headroom := g.cfg.IntensityCap - g.totalIntensity()
	e.Intensity = fitIntensity(e.Intensity, headroom)
	stored := e
	g.effects[e.ID] = &stored
	return true
}

// Unregister removes an effect without invoking its OnSuppress callback.
// Unknown ids are a silent no-op.
func (g *Governor) Unregister(id string) {
	delete(g.effects, id)
}

// Suppress invokes the effect's OnSuppress callback and removes it. Unknown
// ids are a silent no-op.
func (g *Governor) Suppress(id string) {
	e, ok := g.effects[id]
	if !ok {
		return
	}
	// Remove before the callback so a re-registration from within
	// OnSuppress is not clobbered.
	delete(g.effects, id)
	if e.OnSuppress != nil {
		e.OnSuppress()
	}
}

// SetIntensity updates an effect's intensity, scaled to the headroom left by
// the other active effects. Unknown ids are a silent no-op.
func (g *Governor) SetIntensity(id string, v float64) {
	e, ok := g.effects[id]
	if !ok {
		return
	}
	headroom := g.cfg.IntensityCap - (g.totalIntensity() - e.Intensity)
	e.Intensity = fitIntensity(clamp01(v), headroom)
}

// Intensity returns the current (possibly scaled) intensity of an effect, or
// 0 when the id is unknown.
func (g *Governor) Intensity(id string) float64 {
	if e, ok := g.effects[id]; ok {
		return e.Intensity
	}
	return 0
}

// Active returns a snapshot of the active effects. The returned slice is
// owned by the caller; the pointed-to effects are not and must be treated as
// read-only.
func (g *Governor) Active() []*ActiveEffect {
	out := make([]*ActiveEffect, 0, len(g.effects))
	for _, e := range g.effects {
		out = append(out, e)
	}
	return out
}

// TotalIntensity returns the sum of active effect intensities. The governor
// maintains the invariant TotalIntensity() <= IntensityCap after every call.
func (g *Governor) TotalIntensity() float64 {
	return g.totalIntensity()
}

// Expire suppresses every effect whose duration has elapsed at now. It is
// called once per compositor tick; there is no separate timer subsystem, so
// effects do not expire while ticking is stopped (accepted tradeoff).
func (g *Governor) Expire(now time.Time) {
	// Collect first: OnSuppress callbacks may register new effects, which
	// must not interleave with the map iteration.
	var expired []string
	for id, e := range g.effects {
		if e.Duration > 0 && now.Sub(e.StartTime) >= e.Duration {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		g.Suppress(id)
	}
}

func (g *Governor) totalIntensity() float64 {
	var sum float64
	for _, e := range g.effects {
		sum += e.Intensity
	}
	return sum
}

func (g *Governor) classCount(c EffectClass) int {
	n := 0
	for _, e := range g.effects {
		if e.Class == c {
			n++
		}
	}
	return n
}

func (g *Governor) classCap(c EffectClass) int {
	if c == EffectPrimary {
		return g.cfg.MaxPrimary
	}
	return g.cfg.MaxSecondary
}

// oldest returns the active effect of class c with the smallest StartTime.
func (g *Governor) oldest(c EffectClass) *ActiveEffect {
	var found *ActiveEffect
	for _, e := range g.effects {
		if e.Class != c {
			continue
		}
		if found == nil || e.StartTime.Before(found.StartTime) {
			found = e
		}
	}
	return found
}

// fitIntensity scales v down to exactly fill the remaining headroom under the
// global cap. Negative headroom yields zero, never a rejection.
func fitIntensity(v, headroom float64) float64 {
	if headroom <= 0 {
		return 0
	}
	if v > headroom {
		return headroom
	}
	return v
}
