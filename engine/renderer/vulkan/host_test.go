package vulkan

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickQueueFamilies(t *testing.T) {
	graphics, present, ok := pickQueueFamilies([]queueFamily{
		{graphics: true},
		{present: true},
		{graphics: true, present: true},
	})
	require.True(t, ok)
	assert.Equal(t, uint32(2), graphics, "a family that does both wins")
	assert.Equal(t, uint32(2), present)

	graphics, present, ok = pickQueueFamilies([]queueFamily{{present: true}, {graphics: true}})
	require.True(t, ok)
	assert.Equal(t, uint32(1), graphics)
	assert.Equal(t, uint32(0), present)

	_, _, ok = pickQueueFamilies([]queueFamily{{graphics: true}})
	assert.False(t, ok, "the surface cannot be presented to")
	_, _, ok = pickQueueFamilies(nil)
	assert.False(t, ok)
}

func TestDeviceRank(t *testing.T) {
	assert.Greater(t, deviceRank(vk.PhysicalDeviceTypeDiscreteGpu), deviceRank(vk.PhysicalDeviceTypeIntegratedGpu))
	assert.Greater(t, deviceRank(vk.PhysicalDeviceTypeIntegratedGpu), deviceRank(vk.PhysicalDeviceTypeVirtualGpu))
	assert.Greater(t, deviceRank(vk.PhysicalDeviceTypeVirtualGpu), deviceRank(vk.PhysicalDeviceTypeCpu))
	assert.Zero(t, deviceRank(vk.PhysicalDeviceTypeOther))
}

func TestSafeString(t *testing.T) {
	assert.Equal(t, "main\x00", safeString("main"))
	assert.Equal(t, "main\x00", safeString("main\x00"))
	assert.Equal(t, "\x00", safeString(""))
	assert.Equal(t, []string{"a\x00", "b\x00"}, safeStrings([]string{"a", "b\x00"}))
}

func spirvHeader(words ...uint32) []byte {
	out := make([]byte, 0, 4*(5+len(words)))
	for _, w := range append([]uint32{spirvMagic, 0x00010000, 0, 1, 0}, words...) {
		out = binary.LittleEndian.AppendUint32(out, w)
	}
	return out
}

func TestDecodeSPIRV(t *testing.T) {
	words, err := decodeSPIRV(spirvHeader(42))
	require.NoError(t, err)
	require.Len(t, words, 6)
	assert.Equal(t, spirvMagic, words[0])
	assert.Equal(t, uint32(42), words[5])

	_, err = decodeSPIRV(spirvHeader()[:19])
	assert.ErrorContains(t, err, "truncated")

	_, err = decodeSPIRV(append(spirvHeader(), 0))
	assert.ErrorContains(t, err, "truncated")

	swapped := spirvHeader()
	binary.BigEndian.PutUint32(swapped, spirvMagic)
	_, err = decodeSPIRV(swapped)
	assert.ErrorContains(t, err, "not a little endian")
}

func TestLoadShaderModuleReportsMissingFile(t *testing.T) {
	_, err := loadShaderModule(Device{}, filepath.Join(t.TempDir(), vertexShader))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), fragmentShader)
	require.NoError(t, os.WriteFile(path, []byte("#version 450"), 0o644))
	_, err = loadShaderModule(Device{}, path)
	assert.ErrorContains(t, err, fragmentShader)
}

func TestChooseSurfaceFormat(t *testing.T) {
	srgb := vk.SurfaceFormat{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}
	other := vk.SurfaceFormat{Format: vk.FormatR8g8b8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear}

	assert.Equal(t, srgb.Format, chooseSurfaceFormat([]vk.SurfaceFormat{other, srgb}).Format)
	assert.Equal(t, other.Format, chooseSurfaceFormat([]vk.SurfaceFormat{other}).Format)
	assert.Equal(t, vk.FormatB8g8r8a8Unorm, chooseSurfaceFormat([]vk.SurfaceFormat{{Format: vk.FormatUndefined}}).Format)
	assert.Equal(t, vk.FormatB8g8r8a8Unorm, chooseSurfaceFormat(nil).Format)
}

func TestChoosePresentMode(t *testing.T) {
	all := []vk.PresentMode{vk.PresentModeImmediate, vk.PresentModeFifo, vk.PresentModeMailbox}
	assert.Equal(t, vk.PresentModeFifo, choosePresentMode(all, true))
	assert.Equal(t, vk.PresentModeMailbox, choosePresentMode(all, false))
	assert.Equal(t, vk.PresentModeImmediate, choosePresentMode([]vk.PresentMode{vk.PresentModeFifo, vk.PresentModeImmediate}, false))
	assert.Equal(t, vk.PresentModeFifo, choosePresentMode(nil, false))
}

func TestChooseExtent(t *testing.T) {
	var capabilities vk.SurfaceCapabilities
	capabilities.CurrentExtent = vk.Extent2D{Width: 800, Height: 600}
	assert.Equal(t, uint32(800), chooseExtent(capabilities, 1024, 768).Width, "the window system fixed the size")

	capabilities.CurrentExtent = vk.Extent2D{Width: vk.MaxUint32, Height: vk.MaxUint32}
	capabilities.MinImageExtent = vk.Extent2D{Width: 64, Height: 64}
	capabilities.MaxImageExtent = vk.Extent2D{Width: 4096, Height: 2048}
	extent := chooseExtent(capabilities, 8192, 10)
	assert.Equal(t, uint32(4096), extent.Width)
	assert.Equal(t, uint32(64), extent.Height)
}

func TestChooseImageCount(t *testing.T) {
	var capabilities vk.SurfaceCapabilities
	capabilities.MinImageCount = 2
	assert.Equal(t, uint32(3), chooseImageCount(capabilities), "no upper bound")

	capabilities.MaxImageCount = 2
	assert.Equal(t, uint32(2), chooseImageCount(capabilities))
}

func TestHostRejectsOutOfOrderFrames(t *testing.T) {
	h := &Host{}
	assert.ErrorIs(t, h.Submit(nil), errNotStarted)

	_, _, err := h.Acquire(0)
	assert.ErrorContains(t, err, "out of range")

	h.recording = true
	_, _, err = h.Acquire(0)
	assert.ErrorContains(t, err, "never submitted")
}

func TestHostResizeDefersRecreation(t *testing.T) {
	h := &Host{}
	require.NoError(t, h.Resize(0, 0))
	assert.True(t, h.recreate)
	assert.Zero(t, h.width)

	require.NoError(t, h.Resize(640, 480))
	assert.Equal(t, uint32(640), h.width)
	assert.Equal(t, uint32(480), h.height)
}
