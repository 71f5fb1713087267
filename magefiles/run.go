//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Renders the demo scene to out.png with the software driver.
func (Run) Render() error {
	fmt.Println("Rendering demo scene...")
	_, err := executeCmd("go", withArgs("run", ".", "render", "--driver", "soft", "-o", "out.png"), withStream())
	return err
}

// Opens the demo scene in a window.
func (Run) Window() error {
	fmt.Println("Run window...")
	_, err := executeCmd("go", withArgs("run", ".", "window"), withStream())
	return err
}

type Test mg.Namespace

// Runs every package test with the race detector.
func (Test) All() error {
	_, err := executeCmd("go", withArgs("test", "-race", "./..."), withEnv("CGO_ENABLED", "1"), withStream())
	return err
}
