package renderer

import (
	"fmt"

	"github.com/spaghettifunk/renderworld/engine/core"
	"github.com/spaghettifunk/renderworld/engine/renderer/metadata"
)

/**
 * @brief A GPU array of fixed size records of type T, bound to one shader
 * register for its whole life. Growing the buffer replaces the GPU
 * resource but never the register. No CPU copy of the content is kept.
 */
type StructuredBuffer[T any] struct {
	backend  Backend
	label    string
	register uint32
	stages   metadata.ShaderStage

	buffer   *metadata.RenderBuffer
	capacity uint32
	count    uint32
}

func NewStructuredBuffer[T any](backend Backend, label string, register uint32, stages metadata.ShaderStage) *StructuredBuffer[T] {
	return &StructuredBuffer[T]{
		backend:  backend,
		label:    label,
		register: register,
		stages:   stages,
	}
}

/**
 * @brief Creates the GPU resource for capacity records. An existing
 * resource is released once the new one exists, so a failed allocation
 * leaves the buffer as it was.
 */
func (sb *StructuredBuffer[T]) Allocate(capacity uint32) error {
	if capacity == 0 {
		return fmt.Errorf("%w: %s: capacity must be > 0", core.ErrAllocation, sb.label)
	}

	desc := metadata.BufferDesc{
		Label:    sb.label,
		Kind:     metadata.BufferKindStructured,
		Stride:   metadata.SizeOf[T](),
		Count:    capacity,
		Register: sb.register,
		Stages:   sb.stages,
	}
	buffer, err := sb.backend.CreateBuffer(desc)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", core.ErrAllocation, desc, err)
		core.LogError("%s", err)
		return err
	}

	if sb.buffer != nil {
		sb.backend.DestroyBuffer(sb.buffer)
	}
	sb.buffer = buffer
	sb.capacity = capacity
	sb.count = 0
	return nil
}

/**
 * @brief Replaces the content of the buffer with items. Grows the buffer to
 * exactly len(items) records when it does not fit.
 */
func (sb *StructuredBuffer[T]) Update(items []T) error {
	if sb.buffer == nil {
		return fmt.Errorf("%w: %s", core.ErrBufferNotAllocated, sb.label)
	}

	n := uint32(len(items))
	if n > sb.capacity {
		core.LogDebug("growing %s from %d to %d records", sb.label, sb.capacity, n)
		if err := sb.Allocate(n); err != nil {
			return err
		}
	}
	if n == 0 {
		sb.count = 0
		return nil
	}

	memory, err := sb.backend.MapBuffer(sb.buffer)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", core.ErrMap, sb.label, err)
		core.LogError("%s", err)
		return err
	}
	defer sb.backend.UnmapBuffer(sb.buffer)

	data := metadata.SliceToBytes(items)
	if len(memory) < len(data) {
		return fmt.Errorf("%w: %s: mapped %d bytes, need %d", core.ErrMap, sb.label, len(memory), len(data))
	}
	copy(memory, data)
	sb.count = n
	return nil
}

// Free releases the GPU resource. Calling it again does nothing.
func (sb *StructuredBuffer[T]) Free() {
	if sb.buffer == nil {
		return
	}
	sb.backend.DestroyBuffer(sb.buffer)
	sb.buffer = nil
	sb.capacity = 0
	sb.count = 0
}

func (sb *StructuredBuffer[T]) Bind() error {
	if sb.buffer == nil {
		return fmt.Errorf("%w: %s", core.ErrBufferNotAllocated, sb.label)
	}
	return sb.backend.BindShaderResource(sb.buffer)
}

func (sb *StructuredBuffer[T]) Allocated() bool  { return sb.buffer != nil }
func (sb *StructuredBuffer[T]) Capacity() uint32 { return sb.capacity }
func (sb *StructuredBuffer[T]) Count() uint32    { return sb.count }
func (sb *StructuredBuffer[T]) Register() uint32 { return sb.register }
func (sb *StructuredBuffer[T]) Label() string    { return sb.label }

func (sb *StructuredBuffer[T]) Buffer() *metadata.RenderBuffer {
	return sb.buffer
}

// ConstantBuffer holds one record of type T bound to a constant slot.
type ConstantBuffer[T any] struct {
	backend Backend
	buffer  *metadata.RenderBuffer
}

func NewConstantBuffer[T any](backend Backend, label string, slot uint32, stages metadata.ShaderStage) (*ConstantBuffer[T], error) {
	desc := metadata.BufferDesc{
		Label:    label,
		Kind:     metadata.BufferKindConstant,
		Stride:   metadata.SizeOf[T](),
		Count:    1,
		Register: slot,
		Stages:   stages,
	}
	buffer, err := backend.CreateBuffer(desc)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", core.ErrAllocation, desc, err)
		core.LogError("%s", err)
		return nil, err
	}
	return &ConstantBuffer[T]{backend: backend, buffer: buffer}, nil
}

func (cb *ConstantBuffer[T]) Write(value *T) error {
	if cb.buffer == nil {
		return fmt.Errorf("%w: constants", core.ErrBufferNotAllocated)
	}
	if err := cb.backend.UpdateConstants(cb.buffer, metadata.StructToBytes(value)); err != nil {
		return fmt.Errorf("%w: %s: %w", core.ErrMap, cb.buffer.Desc.Label, err)
	}
	return nil
}

func (cb *ConstantBuffer[T]) Bind() error {
	if cb.buffer == nil {
		return fmt.Errorf("%w: constants", core.ErrBufferNotAllocated)
	}
	return cb.backend.BindConstants(cb.buffer)
}

func (cb *ConstantBuffer[T]) Free() {
	if cb.buffer == nil {
		return
	}
	cb.backend.DestroyBuffer(cb.buffer)
	cb.buffer = nil
}
