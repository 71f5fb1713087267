//go:build mage

package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/magefile/mage/mg"

	"github.com/spaghettifunk/vulx/engine/assets"
	"github.com/spaghettifunk/vulx/engine/systems"
)

const (
	binaryName = "vulx"
	shaderDir  = "engine/renderer/shaders"
)

type Build mg.Namespace

// Builds the vulx binary into bin/.
func (Build) Binary() error {
	if _, err := executeCmd("go", withArgs("mod", "download")); err != nil {
		return err
	}
	// glfw is a cgo package.
	_, err := executeCmd("go",
		withArgs("build", "-o", filepath.Join("bin", binaryName), "."),
		withEnv("CGO_ENABLED", "1"),
		withStream(),
	)
	return err
}

// Compiles every WGSL shader under engine/renderer/shaders to a .spv file next to it.
func (Build) Shaders() error {
	return buildShaders()
}

func buildShaders() error {
	sources, err := filepath.Glob(filepath.Join(shaderDir, "*.wgsl"))
	if err != nil {
		return err
	}
	jobs, err := systems.NewJobSystem(runtime.NumCPU(), len(sources))
	if err != nil {
		return err
	}
	for _, src := range sources {
		src := src
		err := jobs.Submit(systems.JobTask{
			Name: src,
			Run:  func() error { return compileShader(src) },
		})
		if err != nil {
			return err
		}
	}
	return jobs.Shutdown()
}

func compileShader(src string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	words, err := assets.CompileWGSL(string(data))
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := binary.Write(&out, binary.LittleEndian, words); err != nil {
		return err
	}
	dst := strings.TrimSuffix(src, ".wgsl") + ".spv"
	if err := os.WriteFile(dst, out.Bytes(), 0o644); err != nil {
		return err
	}
	fmt.Printf("Compiled %s -> %s (%d words)\n", src, dst, len(words))
	return nil
}
