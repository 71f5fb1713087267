package core

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vulx.toml")
	require.NoError(t, os.WriteFile(path, []byte("[render]\ndriver = \"soft\"\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "soft", cfg.Render.Driver)
	assert.Equal(t, uint32(640), cfg.Window.Width)
	assert.Equal(t, [4]float32{0, 0, 0, 1}, cfg.Render.ClearColor)
}

func TestConfigSaveThenLoad(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Render.Driver = "soft"
	cfg.Render.Projection = "perspective"
	cfg.Shaders.Watch = true

	path := filepath.Join(t.TempDir(), "saved.toml")
	require.NoError(t, cfg.Save(path))
	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[window\n"), 0o644))
	_, err = LoadConfig(bad)
	assert.ErrorContains(t, err, "bad.toml")
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Window.Width = 0
	cfg.Render.Driver = "metal"
	cfg.Render.Topology = "points"

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "window size")
	assert.ErrorContains(t, err, "metal")
	assert.ErrorContains(t, err, "points")
	assert.NoError(t, DefaultConfig().Validate())
}

func TestValidateWGSLEntryPoints(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Shaders.Vertex = "shaders/path.wgsl"
	cfg.Shaders.Fragment = "shaders/path.spv"
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "vertex_entry")
	assert.NotContains(t, err.Error(), "fragment_entry", "spv defaults to main")

	cfg.Shaders.VertexEntry = "vs_main"
	assert.NoError(t, cfg.Validate())
}

func TestRequireParams(t *testing.T) {
	assert.NoError(t, RequireParams(Param{Name: "device", Present: true}))

	err := RequireParams(
		Param{Name: "device", Present: false},
		Param{Name: "layout", Present: true},
		Param{Name: "shader", Present: false},
	)
	var missing *MissingParameterError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"device", "shader"}, missing.Names)
	assert.True(t, missing.Has("shader"))
	assert.False(t, missing.Has("layout"))
}

func TestIdentifiers(t *testing.T) {
	a, b := NewIdentifier(), NewIdentifier()
	assert.NotEqual(t, a, b)
	assert.Len(t, a.Short(), 8)
	assert.Equal(t, a.String()[:8], a.Short())
}

func TestSetLogLevel(t *testing.T) {
	require.NoError(t, SetLogLevel("debug"))
	assert.Error(t, SetLogLevel("loud"))
	require.NoError(t, SetLogLevel("info"))
}

func TestLogErrorKeepsPercentInArguments(t *testing.T) {
	var out bytes.Buffer
	restore := SetLogOutput(&out)
	defer restore()

	LogError("shader watcher: %s", errors.New("disk 100%d full"))
	assert.Contains(t, out.String(), "shader watcher: disk 100%d full")
}
