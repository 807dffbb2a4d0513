package metadata

import "fmt"

/** @brief The kind of GPU buffer, which determines how shaders see it. */
type BufferKind uint8

const (
	/** @brief An array of fixed size records, read by shaders through a view. */
	BufferKindStructured BufferKind = iota
	/** @brief A small block of constants written every frame or every draw. */
	BufferKindConstant
)

func (k BufferKind) String() string {
	switch k {
	case BufferKindStructured:
		return "structured"
	case BufferKindConstant:
		return "constant"
	}
	return "unknown"
}

/** @brief The shader stages a buffer is visible to. */
type ShaderStage uint8

const (
	ShaderStageVertex ShaderStage = 0x1
	ShaderStagePixel  ShaderStage = 0x2
)

func (s ShaderStage) Has(stage ShaderStage) bool {
	return s&stage == stage
}

/**
 * @brief Describes a GPU buffer to the backend. Structured buffers hold
 * Count records of Stride bytes; constant buffers hold one record.
 */
type BufferDesc struct {
	/** @brief A debug name used in logs and by backends that support labels. */
	Label string
	Kind  BufferKind
	/** @brief The size of one record in bytes. */
	Stride uint32
	/** @brief The number of records. */
	Count uint32
	/** @brief The shader register (binding slot) the buffer is bound to. */
	Register uint32
	/** @brief The stages the buffer is bound for. */
	Stages ShaderStage
}

// Size returns the total size of the buffer in bytes.
func (d BufferDesc) Size() uint64 {
	return uint64(d.Stride) * uint64(d.Count)
}

func (d BufferDesc) String() string {
	return fmt.Sprintf("%s(%s, %d x %dB @ %d)", d.Label, d.Kind, d.Count, d.Stride, d.Register)
}

/** @brief A GPU buffer created by a backend. */
type RenderBuffer struct {
	Desc BufferDesc
	/** @brief The total size of the buffer in bytes. */
	TotalSize uint64
	/** @brief Contains internal data for the renderer-API-specific buffer. */
	InternalData interface{}
}
