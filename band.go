package veil

import (
	"image"

	"github.com/hajimehoshi/ebiten/v2"
)

// bandCache holds the one offscreen image backing the transition's static
// band fallback. A sampler shows at most one band at a time, so a single
// reusable slot suffices: the image survives between transitions and is
// regrown only when a larger band arrives (source resize, wider tier).
type bandCache struct {
	img  *ebiten.Image
	w, h int
}

// take returns a cleared image of at least (w, h) pixels, reusing the cached
// one when it is large enough in both dimensions.
func (c *bandCache) take(w, h int) *ebiten.Image {
	if c.img != nil && c.w >= w && c.h >= h {
		c.img.Clear()
		return c.img
	}
	if c.img != nil {
		c.img.Deallocate()
	}
	c.img = ebiten.NewImageWithOptions(
		image.Rect(0, 0, w, h),
		&ebiten.NewImageOptions{Unmanaged: true},
	)
	c.w, c.h = w, h
	return c.img
}
