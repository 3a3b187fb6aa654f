package veil

// Tier is a named rendering-cost level chosen by the PerformanceController.
// Tiers are totally ordered (TierLow < TierMed < TierHigh) and the controller
// moves exactly one step per decision.
type Tier uint8

const (
	TierLow Tier = iota
	TierMed
	TierHigh
)

// String returns the tier name for logging.
func (t Tier) String() string {
	switch t {
	case TierLow:
		return "LOW"
	case TierMed:
		return "MED"
	case TierHigh:
		return "HIGH"
	default:
		return "unknown"
	}
}

// QualityConfig is an immutable bundle of rendering-cost parameters for one
// tier. Exactly one config is active at a time; the compositor and every
// layer consume it read-only.
type QualityConfig struct {
	Tier Tier
	// PixelRatioCap scales the shared surface's backing resolution relative
	// to its logical size.
	PixelRatioCap float64
	// ParticleMultiplier scales particle pool sizes and spawn rates.
	ParticleMultiplier float64
	// SampleRefreshHz is how often expensive capture work (pixel readback,
	// mask refresh) may run.
	SampleRefreshHz float64
	// AuxUpdateHz is how often auxiliary work (color sampling, ambient
	// re-simulation) may run.
	AuxUpdateHz float64
	// MaxLightSources caps concurrent additive glow draws (ripple rings).
	// Zero means unlimited.
	MaxLightSources int
}

// DefaultQualityConfigs returns the canonical three-tier configuration,
// indexed by Tier.
func DefaultQualityConfigs() [3]QualityConfig {
	return [3]QualityConfig{
		TierLow: {
			Tier:               TierLow,
			PixelRatioCap:      0.75,
			ParticleMultiplier: 0.35,
			SampleRefreshHz:    6,
			AuxUpdateHz:        8,
			MaxLightSources:    2,
		},
		TierMed: {
			Tier:               TierMed,
			PixelRatioCap:      1.0,
			ParticleMultiplier: 0.65,
			SampleRefreshHz:    10,
			AuxUpdateHz:        12,
			MaxLightSources:    4,
		},
		TierHigh: {
			Tier:               TierHigh,
			PixelRatioCap:      1.0,
			ParticleMultiplier: 1.0,
			SampleRefreshHz:    20,
			AuxUpdateHz:        20,
			MaxLightSources:    8,
		},
	}
}
