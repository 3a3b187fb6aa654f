package veil

import (
	"math/rand/v2"

	"github.com/hajimehoshi/ebiten/v2"
)

// Color is an RGBA color with float64 components in [0, 1], stored straight
// (non-premultiplied); premultiplication happens when a draw is submitted.
type Color struct {
	R, G, B, A float64
}

// ColorWhite is the identity tint.
var ColorWhite = Color{1, 1, 1, 1}

// Vec2 is a 2D point or offset in surface coordinates (origin top-left,
// Y increasing downward).
type Vec2 struct {
	X, Y float64
}

// Vec3 is a 3D point in the rendering engine's world space.
type Vec3 struct {
	X, Y, Z float64
}

// whitePixel backs every solid-color quad in the package (rain streaks, grade
// fills, transition particles): scaling and tinting one shared 1x1 texel
// beats allocating per-effect images.
var whitePixel *ebiten.Image

func init() {
	whitePixel = ebiten.NewImage(1, 1)
	whitePixel.Fill(ColorWhite.toRGBA())
}

// Range bounds a randomized scalar parameter (spawn speed, streak length,
// jitter). Min == Max pins the parameter.
type Range struct {
	Min, Max float64
}

// Random draws a uniform sample from [Min, Max].
func (r Range) Random() float64 {
	return lerp(r.Min, r.Max, rand.Float64())
}

// EffectClass is the priority class of a governed effect. Each class has its
// own concurrency cap in the Governor.
type EffectClass uint8

const (
	EffectPrimary   EffectClass = iota // headline effects (transitions, weather)
	EffectSecondary                    // incidental effects (gesture feedback, ambience)
)

// String returns the class name for logging.
func (c EffectClass) String() string {
	switch c {
	case EffectPrimary:
		return "primary"
	case EffectSecondary:
		return "secondary"
	default:
		return "unknown"
	}
}

// Direction selects which edge of the output a transition flows toward.
// Forward captures the bottom band and sweeps particles downward; Backward
// captures the top band and sweeps them upward.
type Direction int8

const (
	DirectionForward  Direction = 1
	DirectionBackward Direction = -1
)

// toRGBA converts a veil Color to a premultiplied color.Color for image.Fill.
func (c Color) toRGBA() colorRGBA {
	return colorRGBA{
		R: uint8(clamp01(c.R*c.A) * 255),
		G: uint8(clamp01(c.G*c.A) * 255),
		B: uint8(clamp01(c.B*c.A) * 255),
		A: uint8(clamp01(c.A) * 255),
	}
}

// colorRGBA implements the color.Color interface for image.Fill.
type colorRGBA struct {
	R, G, B, A uint8
}

func (c colorRGBA) RGBA() (r, g, b, a uint32) {
	r = uint32(c.R) * 0x101
	g = uint32(c.G) * 0x101
	b = uint32(c.B) * 0x101
	a = uint32(c.A) * 0x101
	return
}

// lerp linearly interpolates between a and b by t.
func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// clamp01 clamps v to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
