package vulkan

import (
	"errors"
	"sync"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

func TestCheckMapsResults(t *testing.T) {
	require.NoError(t, check("vkCreateBuffer", vk.Success))

	tests := []struct {
		in   vk.Result
		want gpu.Result
	}{
		{vk.ErrorOutOfDate, gpu.ErrorOutOfDate},
		{vk.Suboptimal, gpu.Suboptimal},
		{vk.ErrorDeviceLost, gpu.ErrorDeviceLost},
		{vk.ErrorOutOfDeviceMemory, gpu.ErrorOutOfDeviceMemory},
		{vk.ErrorFragmentedPool, gpu.ErrorUnknown},
	}
	for _, tt := range tests {
		err := check("op", tt.in)
		require.Error(t, err)
		assert.True(t, errors.Is(err, tt.want), "%s should match %s", err, tt.want)

		var apiErr *gpu.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "op", apiErr.Op)
	}
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "ERROR_OUT_OF_DATE", ResultString(vk.ErrorOutOfDate, false))
	assert.Contains(t, ResultString(vk.ErrorOutOfDate, true), "no longer compatible with the swapchain")
	assert.Equal(t, "SUCCESS", ResultString(vk.Success, true))
}

func TestSafeString(t *testing.T) {
	assert.Equal(t, "\x00", safeString(""))
	assert.Equal(t, "VK_KHR_surface\x00", safeString("VK_KHR_surface"))
	assert.Equal(t, "main\x00", safeString("main\x00"))

	in := []string{"a", "b\x00"}
	out := safeStrings(in)
	assert.Equal(t, []string{"a\x00", "b\x00"}, out)
	assert.Equal(t, "a", in[0], "input is left untouched")
}

func TestCString(t *testing.T) {
	var name [16]byte
	copy(name[:], "llvmpipe")
	assert.Equal(t, "llvmpipe", cString(name[:]))
	assert.Equal(t, "full", cString([]byte("full")))
}

func TestHandles(t *testing.T) {
	h := newHandles[string]()
	a := h.put("a")
	b := h.put("b")
	assert.NotZero(t, a)
	assert.NotEqual(t, a, b)

	v, ok := h.get(a)
	require.True(t, ok)
	assert.Equal(t, "a", v)

	_, ok = h.get(0)
	assert.False(t, ok, "zero is the null handle")

	id, ok := h.find(func(s string) bool { return s == "b" })
	require.True(t, ok)
	assert.Equal(t, b, id)

	v, ok = h.take(a)
	require.True(t, ok)
	assert.Equal(t, "a", v)
	_, ok = h.take(a)
	assert.False(t, ok, "a handle is released once")

	h.put("c")
	h.removeIf(func(s string) bool { return s != "c" })
	assert.Equal(t, 1, h.len())
}

func TestHandlesConcurrentPut(t *testing.T) {
	h := newHandles[int]()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.put(i)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 16, h.len())
}

func TestFormatConversionRoundTrips(t *testing.T) {
	for _, f := range []gpu.Format{
		gpu.FormatR8G8B8A8Unorm,
		gpu.FormatB8G8R8A8Unorm,
		gpu.FormatB8G8R8A8Srgb,
		gpu.FormatR32G32Sfloat,
		gpu.FormatR32G32B32Sfloat,
		gpu.FormatR32G32B32A32Sfloat,
	} {
		assert.Equal(t, f, fromVkFormat(toVkFormat(f)))
	}
	assert.Equal(t, gpu.FormatUndefined, fromVkFormat(vk.FormatD32Sfloat))
}

func TestFlagConversions(t *testing.T) {
	flags := vk.QueueFlags(vk.QueueGraphicsBit) | vk.QueueFlags(vk.QueueTransferBit)
	got := fromQueueFlags(flags)
	assert.True(t, got.Has(gpu.QueueGraphics|gpu.QueueTransfer))
	assert.False(t, got.Has(gpu.QueueCompute))

	mem := fromMemoryFlags(vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit))
	assert.Equal(t, gpu.MemoryHostVisible|gpu.MemoryHostCoherent, mem)

	usage := toBufferUsage(gpu.BufferUsageVertex | gpu.BufferUsageIndex)
	assert.NotZero(t, usage&vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit))
	assert.NotZero(t, usage&vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit))
	assert.Zero(t, usage&vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit))

	mode, ok := fromPresentMode(vk.PresentModeMailbox)
	require.True(t, ok)
	assert.Equal(t, gpu.PresentModeMailbox, mode)
	assert.Equal(t, vk.PresentModeFifo, toPresentMode(gpu.PresentMode(99)))

	assert.Equal(t, vk.CullModeFlags(vk.CullModeBackBit), toCullMode(gpu.CullModeBack))
	assert.Equal(t, vk.FrontFaceClockwise, toFrontFace(gpu.FrontFaceClockwise))
	assert.Equal(t, vk.PrimitiveTopologyTriangleFan, toTopology(gpu.TopologyTriangleFan))
	assert.Equal(t, vk.ImageLayoutPresentSrc, toImageLayout(gpu.ImageLayoutPresentSrc))
}

func TestLockPoolSerialisesGroup(t *testing.T) {
	p := newLockPool()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.SafeCall(MemoryManagement, func() error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 32, counter)

	sentinel := errors.New("boom")
	assert.ErrorIs(t, p.SafeQueueCall(0, func() error { return sentinel }), sentinel)
}

func TestShaderModuleInfoSizesInBytes(t *testing.T) {
	code := []uint32{0x07230203, 0x00010000, 0, 1, 0}
	info := shaderModuleInfo(code)
	assert.Equal(t, vk.StructureTypeShaderModuleCreateInfo, info.SType)
	assert.Equal(t, uint64(20), info.CodeSize)
	assert.Equal(t, code, info.PCode)
}

func TestNewInstanceRequiresProcAddr(t *testing.T) {
	_, err := NewInstance(Config{AppName: "test"})
	require.Error(t, err)
}
