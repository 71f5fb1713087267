package renderer

import (
	"errors"

	"github.com/spaghettifunk/vulx/engine/core"
	"github.com/spaghettifunk/vulx/engine/math"
)

// TargetOptionsFromConfig translates the [render] and [shaders] sections.
// The shader watcher is left to the caller, which owns its lifetime.
func TargetOptionsFromConfig(cfg *core.Config) (TargetOptions, error) {
	var errs []error
	r := cfg.Render

	projection, err := ParseProjection(r.Projection)
	errs = append(errs, err)
	mode, err := ParsePolygonMode(r.PolygonMode)
	errs = append(errs, err)
	topology, err := ParseTopology(r.Topology)
	errs = append(errs, err)
	layout, err := ParseVertexLayout(r.Layout)
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return TargetOptions{}, err
	}

	c := r.ClearColor
	return TargetOptions{
		ClearColor: &math.Color{R: c[0], G: c[1], B: c[2], A: c[3]},
		Projection: projection,
		Far:        r.FarPlane,
		Mode:       mode,
		Topology:   topology,
		LineWidth:  r.LineWidth,
		Layout:     layout,
		Shaders: ShaderFiles{
			Vertex:        cfg.Shaders.Vertex,
			Fragment:      cfg.Shaders.Fragment,
			VertexEntry:   cfg.Shaders.VertexEntry,
			FragmentEntry: cfg.Shaders.FragmentEntry,
		},
	}, nil
}
