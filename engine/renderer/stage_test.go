package renderer

import (
	"encoding/binary"
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vulx/engine/math"
)

func readMvp(t *testing.T, s *Stage) Mvp {
	t.Helper()
	raw := s.Buffer().Mapped()
	require.Len(t, raw, mvpSize)
	var out Mvp
	for i, m := range []*math.Mat4{&out.Model, &out.View, &out.Projection} {
		for j := range m.Data {
			m.Data[j] = math32.Float32frombits(binary.LittleEndian.Uint32(raw[(i*16+j)*4:]))
		}
	}
	return out
}

func TestNewStageWritesIdentity(t *testing.T) {
	inst, dev := newSoftDevice(t)
	stage, err := NewStage(dev, StageConfig{Width: 64, Height: 32})
	require.NoError(t, err)

	mvp := readMvp(t, stage)
	id := math.NewMat4Identity()
	assert.True(t, mvp.Model.Compare(id, 0))
	assert.True(t, mvp.View.Compare(id, 0))
	assert.True(t, mvp.Projection.Compare(id, 0))

	stage.Destroy()
	dev.Destroy()
	assert.Empty(t, inst.Violations())
}

func TestStageOrthoMapsPixelsToClipSpace(t *testing.T) {
	_, dev := newSoftDevice(t)
	defer dev.Destroy()
	stage, err := NewStage(dev, StageConfig{Width: 64, Height: 32})
	require.NoError(t, err)
	defer stage.Destroy()

	require.NoError(t, stage.Update())
	mvp := readMvp(t, stage)
	assert.Equal(t, stage.Mvp(), mvp, "the buffer holds what Update computed")

	transform := mvp.Projection.Mul(mvp.View).Mul(mvp.Model)
	tests := []struct {
		in   math.Vec4
		want math.Vec4
	}{
		{in: math.NewPoint(0, 0), want: math.NewVec4(-1, -1, 1, 1)},
		{in: math.NewPoint(64, 32), want: math.NewVec4(1, 1, 1, 1)},
		{in: math.NewPoint(32, 16), want: math.NewVec4(0, 0, 1, 1)},
	}
	for _, tt := range tests {
		got := transform.MulVec4(tt.in)
		assert.True(t, got.Compare(tt.want, 1e-5), "%v -> %v, want %v", tt.in, got, tt.want)
	}
}

func TestStageCameraPositionTranslates(t *testing.T) {
	_, dev := newSoftDevice(t)
	defer dev.Destroy()
	stage, err := NewStage(dev, StageConfig{Width: 64, Height: 64})
	require.NoError(t, err)
	defer stage.Destroy()

	stage.Camera.SetPosition(math.NewVec3(32, 32, 0))
	require.NoError(t, stage.Update())
	mvp := stage.Mvp()
	got := mvp.Projection.Mul(mvp.View).Mul(mvp.Model).MulVec4(math.NewPoint(0, 0))
	assert.InDelta(t, 0, got.X, 1e-5)
	assert.InDelta(t, 0, got.Y, 1e-5)
}

func TestStageResizeStoresOnly(t *testing.T) {
	_, dev := newSoftDevice(t)
	defer dev.Destroy()
	stage, err := NewStage(dev, StageConfig{Width: 64, Height: 64})
	require.NoError(t, err)
	defer stage.Destroy()
	require.NoError(t, stage.Update())
	before := stage.Mvp()

	stage.Resize(128, 32)
	w, h := stage.Size()
	assert.Equal(t, uint32(128), w)
	assert.Equal(t, uint32(32), h)
	assert.Equal(t, before, readMvp(t, stage))

	require.NoError(t, stage.Update())
	assert.NotEqual(t, before, readMvp(t, stage))
}

func TestStagePerspective(t *testing.T) {
	_, dev := newSoftDevice(t)
	defer dev.Destroy()
	stage, err := NewStage(dev, StageConfig{Width: 100, Height: 50, Projection: Perspective})
	require.NoError(t, err)
	defer stage.Destroy()

	p := stage.ProjectionMatrix()
	f := 1 / math32.Tan(math.DegToRad(45)/2)
	assert.InDelta(t, f/2, p.At(0, 0), 1e-5, "aspect ratio 2")
	assert.InDelta(t, f, p.At(1, 1), 1e-5)
	assert.InDelta(t, -1, p.At(3, 2), 1e-5)
	assert.InDelta(t, DefaultFarPlane/(perspectiveNear-DefaultFarPlane), p.At(2, 2), 1e-4)
}

func TestCameraReset(t *testing.T) {
	c := NewCamera()
	c.SetPosition(math.NewVec3(1, 2, 3))
	c.SetAngle(math.NewVec3(0, 1, 1))
	c.Fov = 1
	c.Reset()
	assert.Equal(t, math.Vec3{}, c.Position)
	assert.Equal(t, math.NewVec3(0, 0, 1), c.Angle)
	assert.InDelta(t, math32.Pi/4, c.Fov, 1e-6)
}

func TestCameraDefaultViewKeepsXY(t *testing.T) {
	m := NewCamera().Mvp(math.NewMat4Identity())
	got := m.View.MulVec4(math.NewVec4(3, 4, 0, 1))
	assert.InDelta(t, 3, got.X, 1e-6)
	assert.InDelta(t, 4, got.Y, 1e-6)
	assert.InDelta(t, -1, got.Z, 1e-6)
}
