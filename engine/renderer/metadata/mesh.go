package metadata

import (
	gomath "math"

	"github.com/spaghettifunk/renderworld/engine/math"
	"github.com/spaghettifunk/renderworld/engine/world"
)

/** @brief Identifies a mesh record in the mesh cache. */
type MeshHandle uint32

/** @brief Returned by the mesh cache when a mesh could not be added. */
const InvalidMeshHandle MeshHandle = gomath.MaxUint32

func (h MeshHandle) Valid() bool {
	return h != InvalidMeshHandle
}

/**
 * @brief Locates one mesh inside the unified vertex and index arenas.
 * The layout is four tightly packed uint32, read as is by shaders.
 */
type MeshRecord struct {
	VertexOffset uint32
	VertexCount  uint32
	IndexOffset  uint32
	IndexCount   uint32
}

/** @brief Binds a world entity to a mesh and to its slot in the world matrix table. */
type RenderEntity struct {
	EntityID        world.EntityID
	Mesh            MeshHandle
	WorldMatrixSlot uint32
}

/**
 * @brief Per frame constants, written once per frame and visible to the
 * vertex and pixel stages. 176 bytes.
 */
type FrameConstants struct {
	View            math.Mat4
	Projection      math.Mat4
	CameraPosition  math.Vec3
	_               uint32
	CameraDirection math.Vec3
	_               uint32
	LightCount      uint32
	_               [3]uint32
}

/** @brief Per draw constants: which mesh and which world matrix to use. 16 bytes. */
type DrawConstants struct {
	MeshID        uint32
	WorldMatrixID uint32
	_             [2]uint32
}
