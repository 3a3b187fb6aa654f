package veil

import (
	"math"
	"testing"
	"time"
)

// assertNear fails the test when got is not within epsilon of want.
func assertNear(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("%s = %f, want %f", name, got, want)
	}
}

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return testEpoch.Add(time.Duration(sec * float64(time.Second)))
}

func TestGovernorDefaults(t *testing.T) {
	g := NewGovernor(GovernorConfig{})
	if g.cfg.MaxPrimary != defaultMaxPrimary {
		t.Errorf("MaxPrimary = %d, want %d", g.cfg.MaxPrimary, defaultMaxPrimary)
	}
	if g.cfg.MaxSecondary != defaultMaxSecondary {
		t.Errorf("MaxSecondary = %d, want %d", g.cfg.MaxSecondary, defaultMaxSecondary)
	}
	assertNear(t, "IntensityCap", g.cfg.IntensityCap, defaultIntensityCap)
}

func TestRegisterAdmits(t *testing.T) {
	g := NewGovernor(GovernorConfig{})
	if !g.Register(ActiveEffect{ID: "a", Intensity: 0.5, StartTime: at(0)}) {
		t.Fatal("Register should always admit")
	}
	if len(g.Active()) != 1 {
		t.Fatalf("active = %d, want 1", len(g.Active()))
	}
	assertNear(t, "total", g.TotalIntensity(), 0.5)
}

func TestRegisterSameIDUpdatesInPlace(t *testing.T) {
	g := NewGovernor(GovernorConfig{})
	g.Register(ActiveEffect{ID: "a", Intensity: 0.3, StartTime: at(0)})
	g.Register(ActiveEffect{ID: "a", Intensity: 0.7, StartTime: at(1)})
	if len(g.Active()) != 1 {
		t.Fatalf("active = %d, want 1 (no duplicate)", len(g.Active()))
	}
	assertNear(t, "intensity", g.Intensity("a"), 0.7)
}

func TestOldestFirstEviction(t *testing.T) {
	// Register A (primary, t=0) then B (primary, t=1) with maxPrimary=1:
	// A must be suppressed and the active set is exactly {B}.
	g := NewGovernor(GovernorConfig{MaxPrimary: 1})
	suppressed := ""
	g.Register(ActiveEffect{
		ID: "A", Class: EffectPrimary, Intensity: 0.5, StartTime: at(0),
		OnSuppress: func() { suppressed = "A" },
	})
	g.Register(ActiveEffect{
		ID: "B", Class: EffectPrimary, Intensity: 0.5, StartTime: at(1),
	})
	if suppressed != "A" {
		t.Errorf("suppressed = %q, want A", suppressed)
	}
	active := g.Active()
	if len(active) != 1 || active[0].ID != "B" {
		t.Fatalf("active set should be exactly {B}, got %d effects", len(active))
	}
}

func TestEvictionAlwaysOldestByStartTime(t *testing.T) {
	g := NewGovernor(GovernorConfig{MaxPrimary: 3})
	// Register out of chronological order.
	g.Register(ActiveEffect{ID: "mid", Class: EffectPrimary, Intensity: 0.1, StartTime: at(5)})
	g.Register(ActiveEffect{ID: "old", Class: EffectPrimary, Intensity: 0.1, StartTime: at(1)})
	g.Register(ActiveEffect{ID: "new", Class: EffectPrimary, Intensity: 0.1, StartTime: at(9)})

	g.Register(ActiveEffect{ID: "extra", Class: EffectPrimary, Intensity: 0.1, StartTime: at(10)})
	if g.Intensity("old") != 0 {
		t.Error("oldest effect should have been evicted")
	}
	for _, id := range []string{"mid", "new", "extra"} {
		if g.Intensity(id) == 0 {
			t.Errorf("effect %q should still be active", id)
		}
	}
}

func TestClassCapsHoldAfterEveryCall(t *testing.T) {
	g := NewGovernor(GovernorConfig{MaxPrimary: 2, MaxSecondary: 3, IntensityCap: 100})
	for i := 0; i < 20; i++ {
		class := EffectPrimary
		if i%2 == 0 {
			class = EffectSecondary
		}
		g.Register(ActiveEffect{
			ID: string(rune('a' + i)), Class: class,
			Intensity: 0.1, StartTime: at(float64(i)),
		})
		primary, secondary := 0, 0
		for _, e := range g.Active() {
			if e.Class == EffectPrimary {
				primary++
			} else {
				secondary++
			}
		}
		if primary > 2 {
			t.Fatalf("step %d: primary = %d, exceeds cap 2", i, primary)
		}
		if secondary > 3 {
			t.Fatalf("step %d: secondary = %d, exceeds cap 3", i, secondary)
		}
	}
}

func TestIntensityScaledToHeadroomNeverRejected(t *testing.T) {
	g := NewGovernor(GovernorConfig{MaxPrimary: 10, IntensityCap: 1.0})
	g.Register(ActiveEffect{ID: "a", Intensity: 0.7, StartTime: at(0)})
	if !g.Register(ActiveEffect{ID: "b", Intensity: 0.7, StartTime: at(1)}) {
		t.Fatal("registration over the cap must still be admitted")
	}
	assertNear(t, "b scaled to headroom", g.Intensity("b"), 0.3)
	assertNear(t, "total at cap", g.TotalIntensity(), 1.0)

	// No headroom at all: admitted at zero intensity.
	g.Register(ActiveEffect{ID: "c", Intensity: 0.5, StartTime: at(2)})
	assertNear(t, "c at zero", g.Intensity("c"), 0)
	if g.TotalIntensity() > 1.0+1e-9 {
		t.Errorf("total = %f, exceeds cap", g.TotalIntensity())
	}
}

func TestIntensityCapHoldsAfterEveryCall(t *testing.T) {
	g := NewGovernor(GovernorConfig{MaxPrimary: 50, MaxSecondary: 50, IntensityCap: 2.0})
	for i := 0; i < 30; i++ {
		g.Register(ActiveEffect{
			ID: string(rune('a' + i)), Intensity: 0.4, StartTime: at(float64(i)),
		})
		if g.TotalIntensity() > 2.0+1e-9 {
			t.Fatalf("step %d: total = %f, exceeds cap", i, g.TotalIntensity())
		}
	}
}

func TestUpdateReusesOwnHeadroom(t *testing.T) {
	g := NewGovernor(GovernorConfig{IntensityCap: 1.0})
	g.Register(ActiveEffect{ID: "a", Intensity: 0.8, StartTime: at(0)})
	// Re-register with a lower intensity; its own old contribution must not
	// count against it.
	g.Register(ActiveEffect{ID: "a", Intensity: 0.6, StartTime: at(0)})
	assertNear(t, "updated intensity", g.Intensity("a"), 0.6)
}

func TestClassSwapReentersAdmission(t *testing.T) {
	g := NewGovernor(GovernorConfig{MaxPrimary: 1, MaxSecondary: 4})
	g.Register(ActiveEffect{ID: "a", Class: EffectPrimary, Intensity: 0.2, StartTime: at(0)})
	g.Register(ActiveEffect{ID: "b", Class: EffectSecondary, Intensity: 0.2, StartTime: at(1)})

	// Promoting b to primary must evict the oldest primary, not overflow
	// the class cap.
	g.Register(ActiveEffect{ID: "b", Class: EffectPrimary, Intensity: 0.2, StartTime: at(1)})
	if n := g.classCount(EffectPrimary); n != 1 {
		t.Fatalf("primary count = %d, want 1 after the class swap", n)
	}
	if g.Intensity("a") != 0 {
		t.Error("the standing primary should have been evicted")
	}
	if g.Intensity("b") == 0 {
		t.Error("the promoted effect should be active")
	}
}

func TestSetIntensityScales(t *testing.T) {
	g := NewGovernor(GovernorConfig{IntensityCap: 1.0})
	g.Register(ActiveEffect{ID: "a", Intensity: 0.5, StartTime: at(0)})
	g.Register(ActiveEffect{ID: "b", Intensity: 0.3, StartTime: at(1)})
	g.SetIntensity("b", 0.9)
	assertNear(t, "b scaled", g.Intensity("b"), 0.5)
	g.SetIntensity("missing", 0.9) // silent no-op
}

func TestUnregisterUnknownIsNoOp(t *testing.T) {
	g := NewGovernor(GovernorConfig{})
	g.Unregister("ghost")
	g.Suppress("ghost")
	if len(g.Active()) != 0 {
		t.Error("no effects should exist")
	}
}

func TestSuppressInvokesCallbackBeforeRemoval(t *testing.T) {
	g := NewGovernor(GovernorConfig{})
	called := false
	g.Register(ActiveEffect{ID: "a", Intensity: 0.5, StartTime: at(0),
		OnSuppress: func() { called = true }})
	g.Suppress("a")
	if !called {
		t.Error("OnSuppress should be invoked")
	}
	if g.Intensity("a") != 0 {
		t.Error("effect should be removed")
	}
}

func TestUnregisterSkipsCallback(t *testing.T) {
	g := NewGovernor(GovernorConfig{})
	called := false
	g.Register(ActiveEffect{ID: "a", Intensity: 0.5, StartTime: at(0),
		OnSuppress: func() { called = true }})
	g.Unregister("a")
	if called {
		t.Error("Unregister must not invoke OnSuppress")
	}
}

func TestExpireByWallClock(t *testing.T) {
	g := NewGovernor(GovernorConfig{})
	suppressed := false
	g.Register(ActiveEffect{
		ID: "short", Intensity: 0.2, StartTime: at(0),
		Duration:   2 * time.Second,
		OnSuppress: func() { suppressed = true },
	})
	g.Register(ActiveEffect{ID: "forever", Intensity: 0.2, StartTime: at(0)})

	g.Expire(at(1.9))
	if suppressed {
		t.Fatal("effect expired too early")
	}
	g.Expire(at(2))
	if !suppressed {
		t.Fatal("effect should expire at its duration")
	}
	if g.Intensity("forever") == 0 {
		t.Error("unbounded effect must never expire")
	}
}

func TestRegisterDefaultsStartTime(t *testing.T) {
	g := NewGovernor(GovernorConfig{})
	g.Register(ActiveEffect{ID: "a", Intensity: 0.1})
	if g.Active()[0].StartTime.IsZero() {
		t.Error("zero StartTime should be defaulted")
	}
}
