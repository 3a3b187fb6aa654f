package veil

import "time"

// PerformanceConfig tunes the closed-loop quality controller. Zero values
// select defaults.
type PerformanceConfig struct {
	// WindowSize is the depth of the sliding window of frame deltas
	// (default 60).
	WindowSize int
	// LowFPS is the degradation threshold: windowed average FPS below this
	// counts toward a tier step down (default 25).
	LowFPS float64
	// RecoveryFPS is the recovery threshold: windowed average FPS at or
	// above this counts toward a tier step up (default 50).
	RecoveryFPS float64
	// FramesToTrigger is how many consecutive low frames force a step down
	// (default 20).
	FramesToTrigger int
	// FramesToRecover is how many consecutive recovered frames are needed
	// before the ramp-up delay starts counting (default 60).
	FramesToRecover int
	// RampUpDelay is the extra consecutive recovered frames required after
	// FramesToRecover before stepping up (default 120). Recovery is
	// intentionally slower than degradation to avoid oscillation.
	RampUpDelay int
	// MinDelta and MaxDelta bound plausible frame deltas. Samples outside
	// (MinDelta, MaxDelta) indicate a backgrounded host or a clock jump and
	// are discarded without touching the window or the streak counters.
	// Defaults: 0 and 1s.
	MinDelta time.Duration
	MaxDelta time.Duration
	// Tiers holds the per-tier quality bundles, indexed by Tier. Zero value
	// selects DefaultQualityConfigs.
	Tiers [3]QualityConfig
}

const (
	defaultWindowSize      = 60
	defaultLowFPS          = 25.0
	defaultRecoveryFPS     = 50.0
	defaultFramesToTrigger = 20
	defaultFramesToRecover = 60
	defaultRampUpDelay     = 120
	defaultMaxDelta        = time.Second
)

// PerformanceController observes frame timing and selects the active quality
// tier. It keeps a fixed-depth sliding window of inter-frame deltas, computes
// the windowed average FPS each tick, and applies asymmetric hysteresis:
// sustained low FPS steps the tier down one level, while stepping back up
// requires a longer sustained recovery plus an additional ramp-up delay.
// Tier changes are published to subscribers only when the tier actually
// changes, never on a steady tick.
type PerformanceController struct {
	cfg PerformanceConfig

	// Sliding window of deltas as a ring buffer with a running sum.
	window []time.Duration
	head   int
	filled int
	sum    time.Duration

	lastTick time.Time

	tier       Tier
	lowStreak  int
	highStreak int

	tierChanged Signal[QualityConfig]
}

// NewPerformanceController creates a controller starting at TierHigh. Zero
// fields in cfg are replaced with defaults.
func NewPerformanceController(cfg PerformanceConfig) *PerformanceController {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = defaultWindowSize
	}
	if cfg.LowFPS <= 0 {
		cfg.LowFPS = defaultLowFPS
	}
	if cfg.RecoveryFPS <= 0 {
		cfg.RecoveryFPS = defaultRecoveryFPS
	}
	if cfg.FramesToTrigger <= 0 {
		cfg.FramesToTrigger = defaultFramesToTrigger
	}
	if cfg.FramesToRecover <= 0 {
		cfg.FramesToRecover = defaultFramesToRecover
	}
	if cfg.RampUpDelay <= 0 {
		cfg.RampUpDelay = defaultRampUpDelay
	}
	if cfg.MaxDelta <= 0 {
		cfg.MaxDelta = defaultMaxDelta
	}
	if cfg.Tiers == ([3]QualityConfig{}) {
		cfg.Tiers = DefaultQualityConfigs()
	}
	return &PerformanceController{
		cfg:    cfg,
		window: make([]time.Duration, cfg.WindowSize),
		tier:   TierHigh,
	}
}

// Tick observes one frame boundary at now. The first call only arms the
// clock; every subsequent call feeds the inter-frame delta to the window.
func (pc *PerformanceController) Tick(now time.Time) {
	if pc.lastTick.IsZero() {
		pc.lastTick = now
		return
	}
	d := now.Sub(pc.lastTick)
	pc.lastTick = now
	pc.AddDelta(d)
}

// AddDelta feeds one inter-frame delta to the controller. Implausible deltas
// (outside the configured sanity window) are discarded entirely: they neither
// enter the window nor advance the streak counters.
func (pc *PerformanceController) AddDelta(d time.Duration) {
	if d <= pc.cfg.MinDelta || d >= pc.cfg.MaxDelta {
		return
	}

	// Push into the ring, evicting the oldest sample.
	if pc.filled == len(pc.window) {
		pc.sum -= pc.window[pc.head]
	} else {
		pc.filled++
	}
	pc.window[pc.head] = d
	pc.sum += d
	pc.head = (pc.head + 1) % len(pc.window)

	fps := pc.CurrentFPS()

	switch {
	case fps < pc.cfg.LowFPS:
		pc.lowStreak++
		pc.highStreak = 0
		if pc.lowStreak >= pc.cfg.FramesToTrigger {
			pc.lowStreak = 0
			pc.stepDown()
		}

	case fps >= pc.cfg.RecoveryFPS:
		pc.highStreak++
		pc.lowStreak = 0
		// Recovering takes FramesToRecover frames to qualify plus
		// RampUpDelay additional frames before the step actually happens.
		if pc.highStreak >= pc.cfg.FramesToRecover+pc.cfg.RampUpDelay {
			pc.highStreak = 0
			pc.stepUp()
		}

	default:
		// Between thresholds: no pressure either way.
		pc.lowStreak = 0
		pc.highStreak = 0
	}
}

// CurrentTier returns the active tier.
func (pc *PerformanceController) CurrentTier() Tier {
	return pc.tier
}

// CurrentConfig returns the active tier's quality bundle.
func (pc *PerformanceController) CurrentConfig() QualityConfig {
	return pc.cfg.Tiers[pc.tier]
}

// CurrentFPS returns the windowed average FPS, or 0 before any valid sample.
func (pc *PerformanceController) CurrentFPS() float64 {
	if pc.filled == 0 {
		return 0
	}
	avg := pc.sum.Seconds() / float64(pc.filled)
	if avg <= 0 {
		return 0
	}
	return 1.0 / avg
}

// OnTierChange subscribes to tier changes. The new tier's QualityConfig is
// delivered once per change, in subscription order. The returned cancel
// function removes the subscription.
func (pc *PerformanceController) OnTierChange(fn func(QualityConfig)) (cancel func()) {
	return pc.tierChanged.Subscribe(fn)
}

func (pc *PerformanceController) stepDown() {
	if pc.tier == TierLow {
		return
	}
	pc.tier--
	pc.tierChanged.Emit(pc.cfg.Tiers[pc.tier])
}

func (pc *PerformanceController) stepUp() {
	if pc.tier == TierHigh {
		return
	}
	pc.tier++
	pc.tierChanged.Emit(pc.cfg.Tiers[pc.tier])
}
