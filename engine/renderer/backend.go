package renderer

import "github.com/spaghettifunk/renderworld/engine/renderer/metadata"

/**
 * @brief The graphics API seen by the scene aggregator. A backend owns the
 * device; the renderer only creates buffers, fills them through a mapped
 * byte view, binds them to shader registers and issues draws.
 */
type Backend interface {
	Resized(width, height uint32) error
	BeginFrame(deltaTime float64) error
	EndFrame(deltaTime float64) error
	/** @brief Creates a buffer; structured buffers get a shader visible view at desc.Register. */
	CreateBuffer(desc metadata.BufferDesc) (*metadata.RenderBuffer, error)
	/** @brief Releases the buffer and its view. Destroying nil is a no-op. */
	DestroyBuffer(buffer *metadata.RenderBuffer)
	/** @brief Maps the whole buffer for CPU writes. Every successful map is followed by an unmap. */
	MapBuffer(buffer *metadata.RenderBuffer) ([]byte, error)
	UnmapBuffer(buffer *metadata.RenderBuffer)
	BindShaderResource(buffer *metadata.RenderBuffer) error
	UpdateConstants(buffer *metadata.RenderBuffer, data []byte) error
	BindConstants(buffer *metadata.RenderBuffer) error
	/** @brief Draws vertexCount vertices as a triangle list, without vertex or index buffers. */
	Draw(vertexCount uint32) error
	Shutdown() error
}
