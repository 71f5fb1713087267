package renderer

import (
	"bufio"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/spaghettifunk/vulx/engine/core"
)

// EncodeImage writes img to path. The extension picks the format: .png,
// .bmp, .tif or .tiff.
func EncodeImage(path string, img image.Image) (err error) {
	encode, err := encoderFor(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		core.LogError("failed to create %s: %s", path, err)
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", path, cerr)
		}
	}()

	w := bufio.NewWriter(f)
	if err := encode(w, img); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	core.LogDebug("image written to %s", path)
	return nil
}

type encodeFunc func(w *bufio.Writer, img image.Image) error

func encoderFor(path string) (encodeFunc, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return func(w *bufio.Writer, img image.Image) error { return png.Encode(w, img) }, nil
	case ".bmp":
		return func(w *bufio.Writer, img image.Image) error { return bmp.Encode(w, img) }, nil
	case ".tif", ".tiff":
		return func(w *bufio.Writer, img image.Image) error {
			return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
		}, nil
	}
	return nil, fmt.Errorf("no encoder for %q", filepath.Ext(path))
}
