package render

import (
	"unsafe"

	mgl32 "github.com/go-gl/mathgl/mgl32"
	"github.com/vulkan-go/vulkan"
)

// UniformPayload matches the uniform block at set 0, binding 0 of the
// vertex shader: three column-major 4x4 matrices.
type UniformPayload struct {
	Model mgl32.Mat4
	View  mgl32.Mat4
	Proj  mgl32.Mat4
}

const UniformSize = vulkan.DeviceSize(unsafe.Sizeof(UniformPayload{}))

// Bytes returns a copy of the payload in its in-memory layout.
func (p UniformPayload) Bytes() []byte {
	out := make([]byte, UniformSize)
	copy(out, (*[1 << 30]byte)(unsafe.Pointer(&p))[:UniformSize:UniformSize])
	return out
}

// computeUniform spins the model a quarter turn per second about Z and looks
// at it from (2,2,2).
func computeUniform(elapsedSeconds float32, extent vulkan.Extent2D, conv Convention) UniformPayload {
	aspect := float32(1)
	if extent.Height != 0 {
		aspect = float32(extent.Width) / float32(extent.Height)
	}
	return UniformPayload{
		Model: mgl32.HomogRotate3D(elapsedSeconds*mgl32.DegToRad(90), mgl32.Vec3{0, 0, 1}),
		View: mgl32.LookAtV(
			mgl32.Vec3{2, 2, 2},
			mgl32.Vec3{0, 0, 0},
			mgl32.Vec3{0, 0, 1},
		),
		Proj: conv.Projection(mgl32.Perspective(mgl32.DegToRad(45), aspect, 0.1, 10.0)),
	}
}
