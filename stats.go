package veil

import (
	"fmt"
	"image/color"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
)

// StatsLayer displays the windowed FPS and the active quality tier in the
// top-left corner. The text image is rebuilt every ~0.5 seconds; between
// rebuilds the cached image is blitted, so the layer costs one draw per
// frame. Intended as a debug aid; it renders above every other layer.
type StatsLayer struct {
	pc         *PerformanceController
	img        *ebiten.Image
	lastRedraw time.Time
}

// NewStatsLayer creates a stats layer reading from pc.
func NewStatsLayer(pc *PerformanceController) *StatsLayer {
	// 120x32 is enough for "FPS: 60.0\nTier: HIGH".
	return &StatsLayer{
		pc:  pc,
		img: ebiten.NewImage(120, 32),
	}
}

// ID implements Layer.
func (l *StatsLayer) ID() string { return "stats" }

// Priority implements Layer: draws on top of everything.
func (l *StatsLayer) Priority() int { return 255 }

// NeedsUpdate implements Layer.
func (l *StatsLayer) NeedsUpdate(now, last time.Time, cfg QualityConfig) bool {
	return true
}

// Render implements Layer.
func (l *StatsLayer) Render(dst *ebiten.Image, now time.Time, cfg QualityConfig) {
	if l.lastRedraw.IsZero() || now.Sub(l.lastRedraw) >= 500*time.Millisecond {
		l.lastRedraw = now
		// Semi-transparent background for readability.
		l.img.Fill(color.RGBA{0, 0, 0, 128})
		ebitenutil.DebugPrint(l.img, fmt.Sprintf("FPS: %.1f\nTier: %s",
			l.pc.CurrentFPS(), l.pc.CurrentTier()))
	}
	dst.DrawImage(l.img, nil)
}
