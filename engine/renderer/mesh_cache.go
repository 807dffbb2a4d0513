package renderer

import (
	"fmt"

	"github.com/spaghettifunk/renderworld/engine/core"
	"github.com/spaghettifunk/renderworld/engine/geometry"
	"github.com/spaghettifunk/renderworld/engine/math"
	"github.com/spaghettifunk/renderworld/engine/renderer/metadata"
)

type meshEntry struct {
	name   string
	handle metadata.MeshHandle
}

/**
 * @brief Deduplicates meshes by name and packs them into two unified arenas,
 * one of vertices and one of indices, mirrored on the GPU together with the
 * table of mesh records. The arenas only grow.
 */
type MeshCache struct {
	table    map[uint64]meshEntry
	records  []metadata.MeshRecord
	vertices []math.Vertex
	indices  []uint32

	recordBuffer *StructuredBuffer[metadata.MeshRecord]
	vertexBuffer *StructuredBuffer[math.Vertex]
	indexBuffer  *StructuredBuffer[uint32]

	// set when the GPU mirror may not match the arenas
	stale bool
}

func NewMeshCache(records *StructuredBuffer[metadata.MeshRecord], vertices *StructuredBuffer[math.Vertex], indices *StructuredBuffer[uint32]) *MeshCache {
	return &MeshCache{
		table:        make(map[uint64]meshEntry),
		recordBuffer: records,
		vertexBuffer: vertices,
		indexBuffer:  indices,
	}
}

/**
 * @brief Adds a mesh under its canonical name and returns its handle. A name
 * that was already added returns the existing handle without touching the
 * GPU. On failure the invalid handle is returned and the cache is unchanged.
 *
 * @param name The canonical name of the mesh, see geometry.Name.
 * @param mesh The triangle mesh. It is copied into the arenas.
 */
func (mc *MeshCache) AddMesh(name string, mesh *geometry.Mesh) (metadata.MeshHandle, error) {
	if mesh == nil || len(mesh.Vertices) == 0 || len(mesh.Indices) == 0 {
		core.LogWarn("mesh `%s` cannot be added because it does not have all the necessary data", name)
		return metadata.InvalidMeshHandle, fmt.Errorf("%w: `%s`", core.ErrEmptyMesh, name)
	}

	key := metadata.HashName(name)
	if entry, ok := mc.table[key]; ok {
		if entry.name != name {
			err := fmt.Errorf("%w: `%s` and `%s` hash to %#x", core.ErrMeshKeyCollision, name, entry.name, key)
			core.LogError("%s", err)
			return metadata.InvalidMeshHandle, err
		}
		return entry.handle, nil
	}

	vertexCount := len(mc.vertices)
	indexCount := len(mc.indices)
	handle := metadata.MeshHandle(len(mc.records))

	mc.records = append(mc.records, metadata.MeshRecord{
		VertexOffset: uint32(vertexCount),
		VertexCount:  uint32(len(mesh.Vertices)),
		IndexOffset:  uint32(indexCount),
		IndexCount:   uint32(len(mesh.Indices)),
	})
	mc.vertices = append(mc.vertices, mesh.Vertices...)
	mc.indices = append(mc.indices, mesh.Indices...)
	mc.table[key] = meshEntry{name: name, handle: handle}

	if err := mc.Sync(); err != nil {
		mc.records = mc.records[:handle]
		mc.vertices = mc.vertices[:vertexCount]
		mc.indices = mc.indices[:indexCount]
		delete(mc.table, key)
		core.LogError("mesh `%s` rolled back: %s", name, err)
		return metadata.InvalidMeshHandle, err
	}

	core.LogDebug("mesh `%s` added as %d (%d vertices, %d indices)", name, handle, len(mesh.Vertices), len(mesh.Indices))
	return handle, nil
}

/**
 * @brief Uploads the record table and both arenas in full. A failure marks
 * the cache stale until a later Sync succeeds.
 */
func (mc *MeshCache) Sync() error {
	if err := mc.recordBuffer.Update(mc.records); err != nil {
		mc.stale = true
		return err
	}
	if err := mc.vertexBuffer.Update(mc.vertices); err != nil {
		mc.stale = true
		return err
	}
	if err := mc.indexBuffer.Update(mc.indices); err != nil {
		mc.stale = true
		return err
	}
	mc.stale = false
	return nil
}

// Bind binds the record table and both arenas at their registers.
func (mc *MeshCache) Bind() error {
	for _, b := range []binder{mc.recordBuffer, mc.indexBuffer, mc.vertexBuffer} {
		if err := b.Bind(); err != nil {
			return err
		}
	}
	return nil
}

func (mc *MeshCache) Stale() bool {
	return mc.stale
}

func (mc *MeshCache) Record(handle metadata.MeshHandle) (metadata.MeshRecord, bool) {
	if int(handle) >= len(mc.records) {
		return metadata.MeshRecord{}, false
	}
	return mc.records[handle], true
}

func (mc *MeshCache) Lookup(name string) (metadata.MeshHandle, bool) {
	entry, ok := mc.table[metadata.HashName(name)]
	if !ok || entry.name != name {
		return metadata.InvalidMeshHandle, false
	}
	return entry.handle, true
}

func (mc *MeshCache) MeshCount() int   { return len(mc.records) }
func (mc *MeshCache) VertexCount() int { return len(mc.vertices) }
func (mc *MeshCache) IndexCount() int  { return len(mc.indices) }

// Free releases the GPU buffers. The CPU arenas are kept.
func (mc *MeshCache) Free() {
	mc.recordBuffer.Free()
	mc.vertexBuffer.Free()
	mc.indexBuffer.Free()
}
