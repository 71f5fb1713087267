package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeSoftConfig writes a configuration selecting the soft driver and stub
// SPIR-V shaders, returning its path and the output file it names.
func writeSoftConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()

	spv := filepath.Join(dir, "stub.spv")
	var code bytes.Buffer
	for _, w := range []uint32{0x07230203, 0x00010000, 0, 1, 0} {
		require.NoError(t, binary.Write(&code, binary.LittleEndian, w))
	}
	require.NoError(t, os.WriteFile(spv, code.Bytes(), 0o644))

	out := filepath.Join(dir, "scene.png")
	cfg := fmt.Sprintf(`
[window]
width = 48
height = 32

[render]
driver = "soft"
output = %q

[shaders]
vertex = %q
fragment = %q

[log]
level = "warn"
`, out, spv, spv)
	path := filepath.Join(dir, "vulx.toml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path, out
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestRenderCommandWritesImage(t *testing.T) {
	cfg, out := writeSoftConfig(t)
	_, err := run(t, "render", "-c", cfg)
	require.NoError(t, err)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 48, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())
}

func TestRenderCommandFlagsOverrideConfig(t *testing.T) {
	cfg, _ := writeSoftConfig(t)
	out := filepath.Join(t.TempDir(), "small.bmp")
	_, err := run(t, "render", "-c", cfg, "-o", out, "--width", "8", "--height", "4")
	require.NoError(t, err)
	fi, err := os.Stat(out)
	require.NoError(t, err)
	assert.NotZero(t, fi.Size())
}

func TestDevicesCommand(t *testing.T) {
	stdout, err := run(t, "devices", "--driver", "soft")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Device 0:")
	assert.Contains(t, stdout, "graphics")
}

func TestWindowCommandNeedsVulkan(t *testing.T) {
	_, err := run(t, "window", "--driver", "soft")
	assert.ErrorContains(t, err, "vulkan driver")
}

func TestInvalidDriver(t *testing.T) {
	_, err := run(t, "devices", "--driver", "metal")
	assert.ErrorContains(t, err, `unknown driver "metal"`)
}
