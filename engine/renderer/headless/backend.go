package headless

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/spaghettifunk/renderworld/engine/core"
	"github.com/spaghettifunk/renderworld/engine/renderer/metadata"
)

var (
	ErrBufferTooLarge = errors.New("buffer exceeds the device limit")
	ErrDestroyed      = errors.New("buffer was destroyed")
	ErrAlreadyMapped  = errors.New("buffer is already mapped")
)

type Op uint8

const (
	OpCreate Op = iota
	OpDestroy
	OpMap
	OpUnmap
	OpBindResource
	OpUpdateConstants
	OpBindConstants
	OpDraw
	OpBeginFrame
	OpEndFrame
)

func (o Op) String() string {
	return [...]string{"create", "destroy", "map", "unmap", "bind_resource", "update_constants", "bind_constants", "draw", "begin_frame", "end_frame"}[o]
}

// Command is one recorded backend call.
type Command struct {
	Op          Op
	Label       string
	Register    uint32
	VertexCount uint32
}

// DrawCall is a draw together with the state bound when it was issued.
type DrawCall struct {
	VertexCount uint32
	// Constants holds a copy of every bound constant buffer, by slot.
	Constants map[uint32][]byte
	// Resources holds the label of every bound structured buffer, by register.
	Resources map[uint32]string
}

type memory struct {
	data      []byte
	mapped    bool
	destroyed bool
}

/**
 * @brief A backend without a device. Buffers live in CPU memory and every
 * call is recorded, which makes it the backend of tests and of headless
 * runs. Failures can be injected through the Fail hooks.
 */
type Backend struct {
	// MaxBufferSize limits the size of created buffers. Zero means no limit.
	MaxBufferSize uint64
	// FailCreate, when set, is asked before every buffer creation.
	FailCreate func(desc metadata.BufferDesc) error
	// FailMap, when set, is asked before every map.
	FailMap func(buffer *metadata.RenderBuffer) error

	commands  []Command
	draws     []DrawCall
	constants map[uint32]*metadata.RenderBuffer
	resources map[uint32]*metadata.RenderBuffer
	live      int
	frames    uint64
	width     uint32
	height    uint32
}

func New() *Backend {
	return &Backend{
		constants: make(map[uint32]*metadata.RenderBuffer),
		resources: make(map[uint32]*metadata.RenderBuffer),
	}
}

func (b *Backend) record(c Command) {
	b.commands = append(b.commands, c)
}

func (b *Backend) Resized(width, height uint32) error {
	b.width, b.height = width, height
	return nil
}

// BeginFrame drops the recording of the previous frame, so a long headless
// run keeps only the current one.
func (b *Backend) BeginFrame(deltaTime float64) error {
	b.Reset()
	b.record(Command{Op: OpBeginFrame})
	return nil
}

func (b *Backend) EndFrame(deltaTime float64) error {
	b.record(Command{Op: OpEndFrame})
	b.frames++
	return nil
}

func (b *Backend) CreateBuffer(desc metadata.BufferDesc) (*metadata.RenderBuffer, error) {
	if b.FailCreate != nil {
		if err := b.FailCreate(desc); err != nil {
			return nil, err
		}
	}
	size := desc.Size()
	if size == 0 {
		return nil, fmt.Errorf("buffer `%s` has zero size", desc.Label)
	}
	if b.MaxBufferSize > 0 && size > b.MaxBufferSize {
		return nil, fmt.Errorf("%w: `%s` is %d bytes, limit %d", ErrBufferTooLarge, desc.Label, size, b.MaxBufferSize)
	}

	b.live++
	b.record(Command{Op: OpCreate, Label: desc.Label, Register: desc.Register})
	return &metadata.RenderBuffer{
		Desc:         desc,
		TotalSize:    size,
		InternalData: &memory{data: make([]byte, size)},
	}, nil
}

func (b *Backend) DestroyBuffer(buffer *metadata.RenderBuffer) {
	if buffer == nil {
		return
	}
	mem := buffer.InternalData.(*memory)
	if mem.destroyed {
		core.LogWarn("buffer `%s` destroyed twice", buffer.Desc.Label)
		return
	}
	mem.destroyed = true
	b.live--
	b.record(Command{Op: OpDestroy, Label: buffer.Desc.Label, Register: buffer.Desc.Register})

	for slot, bound := range b.resources {
		if bound == buffer {
			delete(b.resources, slot)
		}
	}
	for slot, bound := range b.constants {
		if bound == buffer {
			delete(b.constants, slot)
		}
	}
}

func (b *Backend) MapBuffer(buffer *metadata.RenderBuffer) ([]byte, error) {
	if b.FailMap != nil {
		if err := b.FailMap(buffer); err != nil {
			return nil, err
		}
	}
	mem := buffer.InternalData.(*memory)
	if mem.destroyed {
		return nil, fmt.Errorf("%w: `%s`", ErrDestroyed, buffer.Desc.Label)
	}
	if mem.mapped {
		return nil, fmt.Errorf("%w: `%s`", ErrAlreadyMapped, buffer.Desc.Label)
	}
	mem.mapped = true
	b.record(Command{Op: OpMap, Label: buffer.Desc.Label, Register: buffer.Desc.Register})
	return mem.data, nil
}

func (b *Backend) UnmapBuffer(buffer *metadata.RenderBuffer) {
	mem := buffer.InternalData.(*memory)
	if !mem.mapped {
		core.LogWarn("buffer `%s` unmapped but not mapped", buffer.Desc.Label)
		return
	}
	mem.mapped = false
	b.record(Command{Op: OpUnmap, Label: buffer.Desc.Label, Register: buffer.Desc.Register})
}

func (b *Backend) BindShaderResource(buffer *metadata.RenderBuffer) error {
	if buffer.InternalData.(*memory).destroyed {
		return fmt.Errorf("%w: `%s`", ErrDestroyed, buffer.Desc.Label)
	}
	b.resources[buffer.Desc.Register] = buffer
	b.record(Command{Op: OpBindResource, Label: buffer.Desc.Label, Register: buffer.Desc.Register})
	return nil
}

func (b *Backend) UpdateConstants(buffer *metadata.RenderBuffer, data []byte) error {
	mem := buffer.InternalData.(*memory)
	if mem.destroyed {
		return fmt.Errorf("%w: `%s`", ErrDestroyed, buffer.Desc.Label)
	}
	if len(data) > len(mem.data) {
		return fmt.Errorf("constants for `%s` are %d bytes, buffer holds %d", buffer.Desc.Label, len(data), len(mem.data))
	}
	copy(mem.data, data)
	b.record(Command{Op: OpUpdateConstants, Label: buffer.Desc.Label, Register: buffer.Desc.Register})
	return nil
}

func (b *Backend) BindConstants(buffer *metadata.RenderBuffer) error {
	if buffer.InternalData.(*memory).destroyed {
		return fmt.Errorf("%w: `%s`", ErrDestroyed, buffer.Desc.Label)
	}
	b.constants[buffer.Desc.Register] = buffer
	b.record(Command{Op: OpBindConstants, Label: buffer.Desc.Label, Register: buffer.Desc.Register})
	return nil
}

func (b *Backend) Draw(vertexCount uint32) error {
	call := DrawCall{
		VertexCount: vertexCount,
		Constants:   make(map[uint32][]byte, len(b.constants)),
		Resources:   make(map[uint32]string, len(b.resources)),
	}
	for slot, buffer := range b.constants {
		call.Constants[slot] = append([]byte(nil), buffer.InternalData.(*memory).data...)
	}
	for register, buffer := range b.resources {
		call.Resources[register] = buffer.Desc.Label
	}
	b.draws = append(b.draws, call)
	b.record(Command{Op: OpDraw, VertexCount: vertexCount})
	return nil
}

func (b *Backend) Shutdown() error {
	if b.live > 0 {
		core.LogWarn("headless backend shut down with %d live buffers", b.live)
	}
	return nil
}

// Commands returns every recorded call since the last Reset or BeginFrame.
func (b *Backend) Commands() []Command { return b.commands }

// Draws returns every draw since the last Reset or BeginFrame.
func (b *Backend) Draws() []DrawCall { return b.draws }

// Reset forgets the recorded calls. Buffers and bindings are kept.
func (b *Backend) Reset() {
	b.commands = nil
	b.draws = nil
}

func (b *Backend) LiveBuffers() int { return b.live }

func (b *Backend) Frames() uint64 { return b.frames }

// Bound returns the structured buffer bound at register, if any.
func (b *Backend) Bound(register uint32) *metadata.RenderBuffer {
	return b.resources[register]
}

// Contents returns the memory of the buffer.
func (b *Backend) Contents(buffer *metadata.RenderBuffer) []byte {
	return buffer.InternalData.(*memory).data
}

// Mapped reports whether the buffer is currently mapped.
func (b *Backend) Mapped(buffer *metadata.RenderBuffer) bool {
	return buffer.InternalData.(*memory).mapped
}

// Records reads the first n records of type T from the structured buffer
// bound at register.
func Records[T any](b *Backend, register uint32, n int) []T {
	buffer := b.Bound(register)
	if buffer == nil || n == 0 {
		return nil
	}
	return Decode[T](b.Contents(buffer))[:n]
}

// Decode reinterprets data as records of type T.
func Decode[T any](data []byte) []T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if len(data) < size {
		return nil
	}
	out := make([]T, len(data)/size)
	copy(metadata.SliceToBytes(out), data)
	return out
}
