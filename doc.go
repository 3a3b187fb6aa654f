// Package veil overlays governed, quality-adaptive visual effects on top of a
// primary rendered subject for [Ebitengine] hosts.
//
// Veil was built for point-cloud viewers that stack many short-lived effects
// (gesture feedback, idle ambience, weather, scene transitions, color looks)
// over one expensive primary render. Its job is arbitration: many effect
// producers share one render budget, the primary subject stays legible, and
// load degrades visual richness instead of dropping frames.
//
// # Components
//
// [Governor] is the admission controller for ephemeral effects. Producers
// register effects freely; the governor enforces per-class concurrency caps
// by evicting the oldest effect of a full class and honors a global intensity
// cap by scaling newcomers down. A registration never fails.
//
// [PerformanceController] watches frame timing through a sliding window and
// picks one of three quality tiers with asymmetric hysteresis: tiers fall
// quickly under sustained load and climb back slowly, one step at a time.
//
// [Compositor] owns the one shared render surface and the one scheduling
// tick. Registered [Layer] values composite in ascending priority order, each
// deciding for itself whether it needs to render this tick.
//
// [TransitionSampler] animates scene changes by sampling the live render into
// a particle burst swept off one edge. It prefers projected points when the
// engine exposes them, falls back to pixel readback, and as a last resort
// sweeps a faded still of the captured band.
//
// # Wiring
//
// The host drives everything from its frame loop:
//
//	gov := veil.NewGovernor(veil.GovernorConfig{})
//	pc := veil.NewPerformanceController(veil.PerformanceConfig{})
//	comp := veil.NewCompositor(veil.CompositorConfig{
//		Width: 1280, Height: 720,
//		Governor: gov, Controller: pc,
//	})
//	comp.RegisterLayer(veil.NewRainLayer(veil.RainConfig{}))
//	comp.Start()
//
//	// in ebiten.Game.Update:
//	comp.Tick(time.Now())
//	// in ebiten.Game.Draw, after the primary subject:
//	comp.Draw(screen)
//
// The rendering engine that draws the primary subject is consumed only
// through the capability interfaces in engine.go ([PixelSource],
// [PointCloudSource], [SceneSignaler]); veil never touches it otherwise.
//
// # Concurrency
//
// The entire package assumes single-threaded, cooperative scheduling on the
// host's frame turn. There are no goroutines, locks, or timers: components
// re-arm themselves each tick, cancellation means "do not re-arm" and is
// idempotent, and effect expiry is a wall-clock comparison during ticks. None
// of these types may be shared across goroutines without external
// synchronization. Nothing is persisted; all governance and quality state is
// process-lifetime only.
//
// [Ebitengine]: https://ebitengine.org
package veil
