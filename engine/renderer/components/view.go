package components

import (
	"github.com/spaghettifunk/renderworld/engine/math"
)

/**
 * @brief The projection state of the output surface. Projections are
 * rebuilt whenever the surface is resized.
 */
type ViewInfo struct {
	Width       uint32
	Height      uint32
	AspectRatio float32
	FOVRadians  float32
	NearClip    float32
	FarClip     float32

	Projection   math.Mat4
	Orthographic math.Mat4
}

func NewViewInfo(width, height uint32, fovDegrees, nearClip, farClip float32) *ViewInfo {
	v := &ViewInfo{
		FOVRadians: math.DegToRad(fovDegrees),
		NearClip:   nearClip,
		FarClip:    farClip,
	}
	v.Resize(width, height)
	return v
}

// Resize rebuilds the projection matrices for the new surface size.
// A zero sized surface (minimized window) keeps the previous matrices.
func (v *ViewInfo) Resize(width, height uint32) {
	if width == 0 || height == 0 {
		return
	}
	v.Width = width
	v.Height = height
	v.AspectRatio = float32(width) / float32(height)
	v.Projection = math.NewMat4Perspective(v.FOVRadians, v.AspectRatio, v.NearClip, v.FarClip)
	v.Orthographic = math.NewMat4Orthographic(0, float32(width), float32(height), 0, -100, 100)
}
