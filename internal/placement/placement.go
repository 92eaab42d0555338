// Package placement decides where objects go when environments reset.
//
// Placements are root-frame poses per object per environment. Every
// sampler must produce pairwise non-overlapping placements within an
// environment; CheckNoOverlap verifies that contract.
package placement

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"domin/internal/config"
	"domin/internal/faults"
	"domin/internal/geom"
	"domin/internal/scene"
)

// Sampler produces reset placements.
type Sampler interface {
	Sample(props scene.StaticProps, numEnvs int) (map[string][]geom.Pose, error)
}

// Fixed places every object at one pose in every environment. It suits
// single-object scenes only.
type Fixed struct {
	Pose geom.Pose
}

// NewFixed returns the stub placement at (0.1, 0.1, 0) with identity
// orientation.
func NewFixed() Fixed {
	return Fixed{Pose: geom.Pose{Pos: geom.Vec3{X: 0.1, Y: 0.1}, Rot: geom.Identity}}
}

func (f Fixed) Sample(props scene.StaticProps, numEnvs int) (map[string][]geom.Pose, error) {
	out := make(map[string][]geom.Pose, len(props.ObjectSizes))
	for name := range props.ObjectSizes {
		poses := make([]geom.Pose, numEnvs)
		for env := range poses {
			poses[env] = f.Pose
		}
		out[name] = poses
	}
	return out, nil
}

// Ellipsoid samples object centers uniformly inside an ellipsoid and
// rejects samples overlapping objects already placed in the same env.
type Ellipsoid struct {
	Center      geom.Vec3
	Radii       geom.Vec3
	MaxAttempts int

	rng *rand.Rand
}

// NewEllipsoid builds a seeded ellipsoid sampler.
func NewEllipsoid(center, radii geom.Vec3, maxAttempts int, seed int64) *Ellipsoid {
	if maxAttempts <= 0 {
		maxAttempts = 1000
	}
	return &Ellipsoid{
		Center:      center,
		Radii:       radii,
		MaxAttempts: maxAttempts,
		rng:         rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)),
	}
}

func (e *Ellipsoid) Sample(props scene.StaticProps, numEnvs int) (map[string][]geom.Pose, error) {
	names := sortedNames(props)
	out := make(map[string][]geom.Pose, len(names))
	for _, name := range names {
		out[name] = make([]geom.Pose, numEnvs)
	}
	for env := range numEnvs {
		placed := make([]string, 0, len(names))
		for _, name := range names {
			pose, err := e.sampleOne(props, out, placed, name, env)
			if err != nil {
				return nil, err
			}
			out[name][env] = pose
			placed = append(placed, name)
		}
	}
	return out, nil
}

func (e *Ellipsoid) sampleOne(props scene.StaticProps, out map[string][]geom.Pose, placed []string, name string, env int) (geom.Pose, error) {
	for range e.MaxAttempts {
		candidate := geom.Pose{Pos: e.Center.Add(e.point()), Rot: geom.Identity}
		clear := true
		for _, other := range placed {
			if overlaps(props, name, candidate.Pos, other, out[other][env].Pos) {
				clear = false
				break
			}
		}
		if clear {
			return candidate, nil
		}
	}
	return geom.Pose{}, faults.Wrap(faults.ErrValidation, "placement", "sample",
		fmt.Sprintf("no free spot for %q in env %d after %d attempts", name, env, e.MaxAttempts), nil)
}

// point draws a uniform sample from the ellipsoid interior.
func (e *Ellipsoid) point() geom.Vec3 {
	for {
		v := geom.Vec3{X: 2*e.rng.Float64() - 1, Y: 2*e.rng.Float64() - 1, Z: 2*e.rng.Float64() - 1}
		if v.Dot(v) <= 1 {
			return geom.Vec3{X: v.X * e.Radii.X, Y: v.Y * e.Radii.Y, Z: v.Z * e.Radii.Z}
		}
	}
}

// FromConfig selects the sampler named in cfg.
func FromConfig(cfg config.Placement, seed int64) (Sampler, error) {
	switch cfg.Sampler {
	case "fixed", "":
		return NewFixed(), nil
	case "ellipsoid":
		return NewEllipsoid(vec(cfg.Center), vec(cfg.Radii), cfg.MaxAttempts, seed), nil
	default:
		return nil, faults.Wrap(faults.ErrConfiguration, "placement", "select sampler", fmt.Sprintf("unknown sampler %q", cfg.Sampler), nil)
	}
}

// CheckNoOverlap returns ErrValidation if a placement misses an object or
// puts two objects on top of each other in any env.
func CheckNoOverlap(props scene.StaticProps, placements map[string][]geom.Pose, numEnvs int) error {
	names := sortedNames(props)
	for _, name := range names {
		if len(placements[name]) != numEnvs {
			return faults.Wrap(faults.ErrValidation, "placement", "check", fmt.Sprintf("%q has %d poses for %d envs", name, len(placements[name]), numEnvs), nil)
		}
	}
	for env := range numEnvs {
		for i, a := range names {
			for _, b := range names[i+1:] {
				if overlaps(props, a, placements[a][env].Pos, b, placements[b][env].Pos) {
					return faults.Wrap(faults.ErrValidation, "placement", "check", fmt.Sprintf("%q overlaps %q in env %d", a, b, env), nil)
				}
			}
		}
	}
	return nil
}

// overlaps compares bounding spheres.
func overlaps(props scene.StaticProps, a string, pa geom.Vec3, b string, pb geom.Vec3) bool {
	ra := props.ObjectSizes[a].Norm() / 2
	rb := props.ObjectSizes[b].Norm() / 2
	return geom.Distance(pa, pb) < ra+rb
}

func sortedNames(props scene.StaticProps) []string {
	names := make([]string, 0, len(props.ObjectSizes))
	for name := range props.ObjectSizes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func vec(v []float64) geom.Vec3 {
	if len(v) < 3 {
		return geom.Vec3{}
	}
	return geom.Vec3{X: v[0], Y: v[1], Z: v[2]}
}

