package render

import (
	"strings"

	"github.com/cockroachdb/errors"
	mgl32 "github.com/go-gl/mathgl/mgl32"
)

// Convention is the clip-space convention the projection is built for.
type Convention int

const (
	// ConventionVulkan: Y points down in clip space and depth is [0,1].
	ConventionVulkan Convention = iota
	// ConventionGL: Y up, depth [-1,1]. The projection is left untouched.
	ConventionGL
)

// vulkanClip maps a GL-style projection to Vulkan clip space: it negates Y
// and remaps depth from [-1,1] to [0,1]. Column-major.
var vulkanClip = mgl32.Mat4{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

func ParseConvention(name string) (Convention, error) {
	switch strings.ToLower(name) {
	case "vulkan", "":
		return ConventionVulkan, nil
	case "gl", "opengl":
		return ConventionGL, nil
	}
	return ConventionVulkan, errors.Newf("unknown convention %q", name)
}

func (c Convention) String() string {
	switch c {
	case ConventionVulkan:
		return "vulkan"
	case ConventionGL:
		return "gl"
	}
	return "unknown"
}

// Projection adapts a projection built by mgl32 (GL clip space) to c.
func (c Convention) Projection(proj mgl32.Mat4) mgl32.Mat4 {
	if c == ConventionVulkan {
		return vulkanClip.Mul4(proj)
	}
	return proj
}
