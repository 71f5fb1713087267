package assets

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/naga"

	"github.com/spaghettifunk/vulx/engine/core"
)

const spirvMagic = 0x07230203

type ShaderKind int

const (
	ShaderKindNone ShaderKind = iota
	ShaderKindSPIRV
	ShaderKindWGSL
)

// DetermineShaderKind maps a file extension to the shader format it holds.
func DetermineShaderKind(path string) ShaderKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".spv":
		return ShaderKindSPIRV
	case ".wgsl":
		return ShaderKindWGSL
	default:
		return ShaderKindNone
	}
}

// LoadShader reads a shader from disk and returns SPIR-V words. Files ending
// in .spv are taken as is, .wgsl files are compiled.
func LoadShader(path string) ([]uint32, error) {
	kind := DetermineShaderKind(path)
	if kind == ShaderKindNone {
		return nil, fmt.Errorf("unsupported shader file %q: want .spv or .wgsl", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	core.LogDebug("loaded shader %s (%d bytes)", path, len(data))
	if kind == ShaderKindWGSL {
		return CompileWGSL(string(data))
	}
	return BytesToBytecode(data)
}

// CompileWGSL compiles every entry point of a WGSL module into one SPIR-V
// module.
func CompileWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader: %w", err)
	}
	return BytesToBytecode(spirvBytes)
}

// BytesToBytecode converts little-endian SPIR-V bytes into words and checks
// the header.
func BytesToBytecode(b []byte) ([]uint32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V size %d is not a multiple of 4", len(b))
	}
	byteCode := make([]uint32, len(b)/4)
	for i := range byteCode {
		byteCode[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	if len(byteCode) < 5 || byteCode[0] != spirvMagic {
		return nil, fmt.Errorf("invalid SPIR-V header")
	}
	return byteCode, nil
}
