// Package mesh holds CPU-side geometry in the layout the vertex shader reads.
package mesh

import (
	"unsafe"

	mgl32 "github.com/go-gl/mathgl/mgl32"
)

// Vertex is tightly packed: position, normal, texture coordinate (32 bytes).
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	TexCoord mgl32.Vec2
}

const (
	VertexSize = int(unsafe.Sizeof(Vertex{}))
	IndexSize  = 4
)

// Offsets of each attribute inside Vertex, for the vertex input description.
var (
	PositionOffset = uint32(unsafe.Offsetof(Vertex{}.Position))
	NormalOffset   = uint32(unsafe.Offsetof(Vertex{}.Normal))
	TexCoordOffset = uint32(unsafe.Offsetof(Vertex{}.TexCoord))
)

type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// VertexBytes returns a copy of the vertex data as raw bytes.
func (m Mesh) VertexBytes() []byte {
	if len(m.Vertices) == 0 {
		return nil
	}
	size := len(m.Vertices) * VertexSize
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(&m.Vertices[0])), size))
	return out
}

// IndexBytes returns a copy of the index data as raw bytes.
func (m Mesh) IndexBytes() []byte {
	if len(m.Indices) == 0 {
		return nil
	}
	size := len(m.Indices) * IndexSize
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(&m.Indices[0])), size))
	return out
}

// Cube builds an axis-aligned cube of the given edge length centred on the
// origin. Every face has its own four vertices so normals and texture
// coordinates stay per-face: 24 vertices, 36 indices.
func Cube(size float32) Mesh {
	h := size / 2

	faces := []struct {
		normal  mgl32.Vec3
		corners [4]mgl32.Vec3
	}{
		{mgl32.Vec3{0, 0, 1}, [4]mgl32.Vec3{{-h, -h, h}, {h, -h, h}, {h, h, h}, {-h, h, h}}},     // front
		{mgl32.Vec3{0, 0, -1}, [4]mgl32.Vec3{{h, -h, -h}, {-h, -h, -h}, {-h, h, -h}, {h, h, -h}}}, // back
		{mgl32.Vec3{-1, 0, 0}, [4]mgl32.Vec3{{-h, -h, -h}, {-h, -h, h}, {-h, h, h}, {-h, h, -h}}}, // left
		{mgl32.Vec3{1, 0, 0}, [4]mgl32.Vec3{{h, -h, h}, {h, -h, -h}, {h, h, -h}, {h, h, h}}},      // right
		{mgl32.Vec3{0, 1, 0}, [4]mgl32.Vec3{{-h, h, h}, {h, h, h}, {h, h, -h}, {-h, h, -h}}},      // top
		{mgl32.Vec3{0, -1, 0}, [4]mgl32.Vec3{{-h, -h, -h}, {h, -h, -h}, {h, -h, h}, {-h, -h, h}}}, // bottom
	}
	uvs := [4]mgl32.Vec2{{0, 0}, {1, 0}, {1, 1}, {0, 1}}

	m := Mesh{
		Vertices: make([]Vertex, 0, len(faces)*4),
		Indices:  make([]uint32, 0, len(faces)*6),
	}
	for _, f := range faces {
		base := uint32(len(m.Vertices))
		for i, c := range f.corners {
			m.Vertices = append(m.Vertices, Vertex{Position: c, Normal: f.normal, TexCoord: uvs[i]})
		}
		m.Indices = append(m.Indices, base, base+1, base+2, base+2, base+3, base)
	}
	return m
}
