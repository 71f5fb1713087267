package renderer

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/chewxy/math32"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/math"
)

type Projection int

const (
	Ortho Projection = iota
	Perspective
)

func (p Projection) String() string {
	if p == Perspective {
		return "perspective"
	}
	return "ortho"
}

func ParseProjection(s string) (Projection, error) {
	switch strings.ToLower(s) {
	case "ortho", "orthographic", "":
		return Ortho, nil
	case "perspective":
		return Perspective, nil
	}
	return Ortho, fmt.Errorf("unknown projection %q", s)
}

const (
	perspectiveNear = 0.1
	DefaultFarPlane = 100
	// Three column-major 4x4 float32 matrices.
	mvpSize = 3 * 16 * 4
)

type StageConfig struct {
	Width      uint32
	Height     uint32
	Projection Projection
	// Far is the perspective far plane; 0 means DefaultFarPlane.
	Far    float32
	Camera *Camera
}

// Stage owns the camera state and the uniform buffer holding the MVP
// matrices. The buffer is sized once and stays mapped for its lifetime.
type Stage struct {
	Camera *Camera

	width      uint32
	height     uint32
	projection Projection
	far        float32
	mvp        Mvp
	buffer     *DeviceBuffer
	// recording is set while a render target records commands reading the
	// uniform buffer.
	recording bool
}

func NewStage(dev *Device, cfg StageConfig) (*Stage, error) {
	if cfg.Far == 0 {
		cfg.Far = DefaultFarPlane
	}
	if cfg.Camera == nil {
		cfg.Camera = NewCamera()
	}
	buffer, err := NewDeviceBuffer(dev, mvpSize, UniformBufferKind)
	if err != nil {
		return nil, fmt.Errorf("creating stage uniform buffer: %w", err)
	}
	s := &Stage{
		Camera:     cfg.Camera,
		width:      cfg.Width,
		height:     cfg.Height,
		projection: cfg.Projection,
		far:        cfg.Far,
		mvp:        NewMvpIdentity(),
		buffer:     buffer,
	}
	if err := buffer.AllocateData(s.mvp.bytes()); err != nil {
		buffer.Destroy()
		return nil, err
	}
	if err := buffer.Flush(); err != nil {
		buffer.Destroy()
		return nil, err
	}
	core.LogDebug("stage created: %dx%d %s", cfg.Width, cfg.Height, cfg.Projection)
	return s, nil
}

// Resize stores the new dimensions. Call Update to push them.
func (s *Stage) Resize(width, height uint32) {
	s.width = width
	s.height = height
}

func (s *Stage) Size() (uint32, uint32) {
	return s.width, s.height
}

func (s *Stage) ProjectionMatrix() math.Mat4 {
	w, h := float32(s.width), float32(s.height)
	if s.projection == Perspective {
		aspect := float32(1)
		if h != 0 {
			aspect = w / h
		}
		return math.NewMat4Perspective(s.Camera.Fov, aspect, perspectiveNear, s.far)
	}
	return math.NewMat4Orthographic(0, w, 0, h, -1, 1)
}

// Update recomputes the projection and camera matrices and writes them into
// the uniform buffer in place. It is rejected while a target is recording.
func (s *Stage) Update() error {
	if s.recording {
		return fmt.Errorf("stage update while recording: %w", core.ErrInvalidState)
	}
	s.mvp = s.Camera.Mvp(s.ProjectionMatrix())
	if err := s.buffer.Write(s.mvp.bytes()); err != nil {
		return err
	}
	return s.buffer.Flush()
}

func (s *Stage) Mvp() Mvp {
	return s.mvp
}

func (s *Stage) Buffer() *DeviceBuffer {
	return s.buffer
}

func (s *Stage) Destroy() {
	if s.buffer != nil {
		s.buffer.Destroy()
		s.buffer = nil
	}
}

func (m Mvp) bytes() []byte {
	out := make([]byte, 0, mvpSize)
	for _, mat := range [3]math.Mat4{m.Model, m.View, m.Projection} {
		for _, f := range mat.Data {
			out = binary.LittleEndian.AppendUint32(out, math32.Float32bits(f))
		}
	}
	return out
}
