package render

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vulkan-go/vulkan"

	"zephyr/internal/mesh"
)

const hostCoherent = vulkan.MemoryPropertyHostVisibleBit | vulkan.MemoryPropertyHostCoherentBit

// Region is a buffer with its own dedicated allocation. Host-visible regions
// may be mapped; device-local ones are only reachable through copies.
type Region struct {
	drv Driver

	Buffer vulkan.Buffer
	Memory vulkan.DeviceMemory
	Size   vulkan.DeviceSize

	mapped unsafe.Pointer
}

// NewRegion creates an exclusive buffer of size bytes and binds it to fresh
// memory of a type that has every flag in props.
func NewRegion(drv Driver, size vulkan.DeviceSize, usage vulkan.BufferUsageFlagBits, props vulkan.MemoryPropertyFlagBits) (*Region, error) {
	r := &Region{drv: drv, Size: size}

	buf, err := drv.CreateBuffer(&vulkan.BufferCreateInfo{
		SType:       vulkan.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       vulkan.BufferUsageFlags(usage),
		SharingMode: vulkan.SharingModeExclusive,
	})
	if err != nil {
		return nil, err
	}
	r.Buffer = buf

	req := drv.BufferMemoryRequirements(buf)
	memType, err := findMemoryType(drv.MemoryProperties(), req.MemoryTypeBits, props)
	if err != nil {
		r.Destroy()
		return nil, err
	}
	mem, err := drv.AllocateMemory(&vulkan.MemoryAllocateInfo{
		SType:           vulkan.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: memType,
	})
	if err != nil {
		r.Destroy()
		return nil, err
	}
	r.Memory = mem
	if err := drv.BindBufferMemory(buf, mem); err != nil {
		r.Destroy()
		return nil, err
	}
	return r, nil
}

// Map maps the whole region. Mapping an already mapped region is a no-op.
func (r *Region) Map() error {
	if r.mapped != nil {
		return nil
	}
	data, err := r.drv.MapMemory(r.Memory, r.Size)
	if err != nil {
		return err
	}
	r.mapped = data
	return nil
}

func (r *Region) Unmap() {
	if r.mapped != nil {
		r.drv.UnmapMemory(r.Memory)
		r.mapped = nil
	}
}

func (r *Region) Mapped() bool { return r.mapped != nil }

// Bytes views the mapped memory. It is nil while the region is unmapped.
func (r *Region) Bytes() []byte {
	if r.mapped == nil {
		return nil
	}
	return (*[1 << 30]byte)(r.mapped)[:r.Size:r.Size]
}

// Write copies data to the start of the mapped region.
func (r *Region) Write(data []byte) error {
	if r.mapped == nil {
		return errors.AssertionFailedf("write to unmapped region")
	}
	if vulkan.DeviceSize(len(data)) > r.Size {
		return errors.Newf("write of %d bytes into %d byte region", len(data), r.Size)
	}
	copy(r.Bytes(), data)
	return nil
}

func (r *Region) Destroy() {
	if r.drv == nil {
		return
	}
	r.Unmap()
	if r.Buffer != vulkan.Buffer(vulkan.NullHandle) {
		r.drv.DestroyBuffer(r.Buffer)
		r.Buffer = vulkan.Buffer(vulkan.NullHandle)
	}
	if r.Memory != vulkan.DeviceMemory(vulkan.NullHandle) {
		r.drv.FreeMemory(r.Memory)
		r.Memory = vulkan.DeviceMemory(vulkan.NullHandle)
	}
}

// CopyRegion copies all of src into dst with a one-shot command buffer and
// waits for it to finish. Both regions must belong to the pool's device.
func CopyRegion(cmds *CommandPool, src, dst *Region) error {
	if src.drv != dst.drv || src.drv != cmds.drv {
		return errors.WithStack(ErrCrossDeviceCopy)
	}
	if dst.Size < src.Size {
		return errors.Newf("copy of %d bytes into %d byte region", src.Size, dst.Size)
	}
	return cmds.RunOnce(func(cb vulkan.CommandBuffer) {
		cmds.drv.CmdCopyBuffer(cb, src.Buffer, dst.Buffer, src.Size)
	})
}

// UploadImmutable stages data through a host-visible region into a new
// device-local region with the given usage. The staging region is gone
// when this returns.
func UploadImmutable(cmds *CommandPool, data []byte, usage vulkan.BufferUsageFlagBits) (*Region, error) {
	if len(data) == 0 {
		return nil, errors.New("upload of empty data")
	}
	drv := cmds.drv
	size := vulkan.DeviceSize(len(data))

	staging, err := NewRegion(drv, size, vulkan.BufferUsageTransferSrcBit, hostCoherent)
	if err != nil {
		return nil, errors.Wrap(err, "staging region")
	}
	defer staging.Destroy()
	if err := staging.Map(); err != nil {
		return nil, err
	}
	if err := staging.Write(data); err != nil {
		return nil, err
	}
	staging.Unmap()

	// TransferSrc keeps the region readable for ReadBack.
	dst, err := NewRegion(drv, size,
		usage|vulkan.BufferUsageTransferDstBit|vulkan.BufferUsageTransferSrcBit,
		vulkan.MemoryPropertyDeviceLocalBit)
	if err != nil {
		return nil, errors.Wrap(err, "device-local region")
	}
	if err := CopyRegion(cmds, staging, dst); err != nil {
		dst.Destroy()
		return nil, err
	}
	return dst, nil
}

// ReadBack copies a region into temporary host-visible memory and returns
// its contents. It is meant for debugging and tests.
func ReadBack(cmds *CommandPool, region *Region) ([]byte, error) {
	host, err := NewRegion(cmds.drv, region.Size, vulkan.BufferUsageTransferDstBit, hostCoherent)
	if err != nil {
		return nil, errors.Wrap(err, "readback region")
	}
	defer host.Destroy()
	if err := CopyRegion(cmds, region, host); err != nil {
		return nil, err
	}
	if err := host.Map(); err != nil {
		return nil, err
	}
	return append([]byte(nil), host.Bytes()...), nil
}

// Geometry is an uploaded mesh.
type Geometry struct {
	Vertices   *Region
	Indices    *Region
	IndexCount uint32
}

func UploadMesh(cmds *CommandPool, m mesh.Mesh) (*Geometry, error) {
	if len(m.Vertices) == 0 || len(m.Indices) == 0 {
		return nil, errors.New("mesh has no vertices or indices")
	}
	g := &Geometry{IndexCount: uint32(len(m.Indices))}
	var err error
	if g.Vertices, err = UploadImmutable(cmds, m.VertexBytes(), vulkan.BufferUsageVertexBufferBit); err != nil {
		return nil, errors.Wrap(err, "upload vertices")
	}
	if g.Indices, err = UploadImmutable(cmds, m.IndexBytes(), vulkan.BufferUsageIndexBufferBit); err != nil {
		g.Destroy()
		return nil, errors.Wrap(err, "upload indices")
	}
	return g, nil
}

func (g *Geometry) Destroy() {
	if g.Vertices != nil {
		g.Vertices.Destroy()
		g.Vertices = nil
	}
	if g.Indices != nil {
		g.Indices.Destroy()
		g.Indices = nil
	}
}

// UniformSet is one persistently mapped host-coherent region per frame slot.
type UniformSet struct {
	Regions []*Region
}

func NewUniformSet(drv Driver, count int, size vulkan.DeviceSize) (*UniformSet, error) {
	u := &UniformSet{}
	for i := 0; i < count; i++ {
		r, err := NewRegion(drv, size, vulkan.BufferUsageUniformBufferBit, hostCoherent)
		if err != nil {
			u.Destroy()
			return nil, errors.Wrapf(err, "uniform region %d", i)
		}
		u.Regions = append(u.Regions, r)
		if err := r.Map(); err != nil {
			u.Destroy()
			return nil, errors.Wrapf(err, "map uniform region %d", i)
		}
	}
	return u, nil
}

// WritePayload copies p into the region of slot. The memory is coherent so
// no flush follows.
func (u *UniformSet) WritePayload(slot int, p UniformPayload) error {
	if slot < 0 || slot >= len(u.Regions) {
		return errors.AssertionFailedf("uniform slot %d out of range [0,%d)", slot, len(u.Regions))
	}
	return u.Regions[slot].Write(p.Bytes())
}

func (u *UniformSet) Destroy() {
	for _, r := range u.Regions {
		r.Destroy()
	}
	u.Regions = nil
}
