package veil

import "image"

// The rendering engine that draws the primary subject is opaque to this
// package. It is consumed strictly through the narrow capability interfaces
// below so that no specific rendering library leaks into the overlay core.

// PixelSource exposes read-only access to the engine's current rendered frame.
type PixelSource interface {
	// Size returns the pixel dimensions of the rendered output.
	Size() (w, h int)
	// ReadRegion copies the RGBA pixels of region into buf, which must hold
	// at least region.Dx()*region.Dy()*4 bytes. It returns an error when the
	// frame is not readable (e.g. the backing surface is lost or protected).
	ReadRegion(region image.Rectangle, buf []byte) error
}

// CameraProjector maps a world-space point to normalized screen coordinates.
type CameraProjector interface {
	// Project returns the normalized screen position (x, y in [0, 1], origin
	// top-left) and a normalized depth in [0, 1] (0 = near plane). ok is
	// false when the point is behind the camera or outside the frustum.
	Project(p Vec3) (x, y, depth float64, ok bool)
}

// PointSource provides indexed access to the engine's point positions.
type PointSource interface {
	PointCount() int
	PointAt(i int) Vec3
}

// PointCloudSource is optionally implemented by engines that expose raw point
// positions and a camera projection. When a PixelSource passed to
// [TransitionSampler.StartTransition] also implements PointCloudSource, the
// sampler prefers projecting live points over reading back pixels.
type PointCloudSource interface {
	Points() PointSource
	Camera() CameraProjector
}

// SceneSignaler is optionally implemented by engines that announce scene
// readiness or content changes. Callers typically subscribe to start a
// transition whenever the primary subject is swapped.
type SceneSignaler interface {
	OnSceneChanged(fn func()) (cancel func())
}
