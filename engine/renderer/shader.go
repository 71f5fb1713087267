package renderer

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/spaghettifunk/vulx/engine/assets"
	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/renderer/gpu"
)

//go:embed shaders/builtin.wgsl
var builtinShaderWGSL string

const (
	builtinVertexEntry   = "vs_main"
	builtinFragmentEntry = "fs_main"
)

// ShaderSource is SPIR-V code and the entry point to run from it.
type ShaderSource struct {
	Code  []uint32
	Entry string
}

var (
	builtinOnce sync.Once
	builtinCode []uint32
	builtinErr  error
)

// DefaultShaders returns the embedded vertex and fragment shaders. Both come
// from one SPIR-V module with separate entry points.
func DefaultShaders() (vertex, fragment ShaderSource, err error) {
	builtinOnce.Do(func() {
		builtinCode, builtinErr = assets.CompileWGSL(builtinShaderWGSL)
		if builtinErr == nil {
			core.LogDebug("builtin shaders compiled: %d words", len(builtinCode))
		}
	})
	if builtinErr != nil {
		return ShaderSource{}, ShaderSource{}, fmt.Errorf("compiling builtin shaders: %w", builtinErr)
	}
	return ShaderSource{Code: builtinCode, Entry: builtinVertexEntry},
		ShaderSource{Code: builtinCode, Entry: builtinFragmentEntry}, nil
}

// LoadShaderSource reads a .spv or .wgsl file. An empty entry defaults to
// "main" for SPIR-V files. A WGSL module holds several entry points, so one
// must be named.
func LoadShaderSource(path, entry string) (ShaderSource, error) {
	if entry == "" {
		if assets.DetermineShaderKind(path) == assets.ShaderKindWGSL {
			return ShaderSource{}, fmt.Errorf("wgsl shader %s has no entry point: %w", path, core.ErrInvalidState)
		}
		entry = "main"
	}
	code, err := assets.LoadShader(path)
	if err != nil {
		return ShaderSource{}, err
	}
	return ShaderSource{Code: code, Entry: entry}, nil
}

func createShaderModule(dev *Device, src ShaderSource) (gpu.ShaderModule, error) {
	m, err := dev.Logical.CreateShaderModule(src.Code)
	if err != nil {
		core.LogError("failed to create shader module for entry %s: %s", src.Entry, err)
		return 0, fmt.Errorf("creating shader module: %w", err)
	}
	return m, nil
}
