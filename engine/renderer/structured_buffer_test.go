package renderer

import (
	"errors"
	"testing"

	"github.com/spaghettifunk/renderworld/engine/core"
	"github.com/spaghettifunk/renderworld/engine/renderer/headless"
	"github.com/spaghettifunk/renderworld/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected")

func failOn(label string) func(*metadata.RenderBuffer) error {
	return func(buffer *metadata.RenderBuffer) error {
		if buffer.Desc.Label == label {
			return errInjected
		}
		return nil
	}
}

func TestStructuredBufferAllocate(t *testing.T) {
	backend := headless.New()
	sb := NewStructuredBuffer[uint32](backend, "indices", 4, metadata.ShaderStageVertex)

	assert.ErrorIs(t, sb.Allocate(0), core.ErrAllocation)
	assert.ErrorIs(t, sb.Update([]uint32{1}), core.ErrBufferNotAllocated)
	assert.ErrorIs(t, sb.Bind(), core.ErrBufferNotAllocated)

	require.NoError(t, sb.Allocate(8))
	assert.True(t, sb.Allocated())
	assert.Equal(t, uint32(8), sb.Capacity())
	assert.Equal(t, uint64(32), sb.Buffer().TotalSize)
	assert.Equal(t, metadata.BufferKindStructured, sb.Buffer().Desc.Kind)
	assert.Equal(t, 1, backend.LiveBuffers())

	// allocating again replaces the resource
	require.NoError(t, sb.Allocate(4))
	assert.Equal(t, 1, backend.LiveBuffers())
}

func TestStructuredBufferUpdateGrowsToExactSize(t *testing.T) {
	backend := headless.New()
	sb := NewStructuredBuffer[uint32](backend, "indices", 4, metadata.ShaderStageVertex)
	require.NoError(t, sb.Allocate(2))

	items := []uint32{10, 20, 30, 40, 50}
	require.NoError(t, sb.Update(items))
	assert.Equal(t, uint32(5), sb.Capacity())
	assert.Equal(t, uint32(5), sb.Count())
	assert.Equal(t, items, headless.Decode[uint32](backend.Contents(sb.Buffer())))
	assert.False(t, backend.Mapped(sb.Buffer()))

	require.NoError(t, sb.Bind())
	assert.Same(t, sb.Buffer(), backend.Bound(4), "the register survives reallocation")

	// smaller updates keep the capacity
	require.NoError(t, sb.Update([]uint32{7}))
	assert.Equal(t, uint32(5), sb.Capacity())
	assert.Equal(t, uint32(1), sb.Count())
	assert.Equal(t, uint32(7), headless.Decode[uint32](backend.Contents(sb.Buffer()))[0])
}

func TestStructuredBufferMapFailure(t *testing.T) {
	backend := headless.New()
	backend.FailMap = failOn("indices")
	sb := NewStructuredBuffer[uint32](backend, "indices", 4, metadata.ShaderStageVertex)
	require.NoError(t, sb.Allocate(4))

	err := sb.Update([]uint32{1, 2})
	assert.ErrorIs(t, err, core.ErrMap)
	assert.ErrorIs(t, err, errInjected)
	assert.False(t, backend.Mapped(sb.Buffer()))
	assert.Zero(t, sb.Count())

	backend.FailMap = nil
	require.NoError(t, sb.Update([]uint32{1, 2}))
}

func TestStructuredBufferFailedGrowthKeepsBuffer(t *testing.T) {
	backend := headless.New()
	sb := NewStructuredBuffer[uint32](backend, "indices", 4, metadata.ShaderStageVertex)
	require.NoError(t, sb.Allocate(2))
	buffer := sb.Buffer()

	backend.MaxBufferSize = 8
	err := sb.Update([]uint32{1, 2, 3})
	assert.ErrorIs(t, err, core.ErrAllocation)
	assert.ErrorIs(t, err, headless.ErrBufferTooLarge)
	assert.Same(t, buffer, sb.Buffer())
	assert.Equal(t, uint32(2), sb.Capacity())
}

func TestStructuredBufferFree(t *testing.T) {
	backend := headless.New()
	sb := NewStructuredBuffer[uint32](backend, "indices", 4, metadata.ShaderStageVertex)
	require.NoError(t, sb.Allocate(2))

	sb.Free()
	sb.Free()
	assert.Zero(t, backend.LiveBuffers())
	assert.False(t, sb.Allocated())
	assert.ErrorIs(t, sb.Update([]uint32{1}), core.ErrBufferNotAllocated)

	require.NoError(t, sb.Allocate(1))
	require.NoError(t, sb.Update([]uint32{1}))
}

func TestConstantBuffer(t *testing.T) {
	backend := headless.New()
	cb, err := NewConstantBuffer[metadata.DrawConstants](backend, "draw_constants", 2, metadata.ShaderStageVertex)
	require.NoError(t, err)

	require.NoError(t, cb.Write(&metadata.DrawConstants{MeshID: 3, WorldMatrixID: 9}))
	require.NoError(t, cb.Bind())
	require.NoError(t, backend.Draw(3))

	draw := backend.Draws()[0]
	got := headless.Decode[metadata.DrawConstants](draw.Constants[2])[0]
	assert.Equal(t, uint32(3), got.MeshID)
	assert.Equal(t, uint32(9), got.WorldMatrixID)

	cb.Free()
	cb.Free()
	assert.ErrorIs(t, cb.Write(&metadata.DrawConstants{}), core.ErrBufferNotAllocated)
	assert.Zero(t, backend.LiveBuffers())
}
