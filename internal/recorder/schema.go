package recorder

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"domin/internal/dataset"
	"domin/internal/scene"
)

// ErrSchemaMismatch marks a resumed dataset whose metadata differs from the
// schema the current scene produces.
var ErrSchemaMismatch = errors.New("dataset schema mismatch")

// Mismatch is one differing metadata field.
type Mismatch struct {
	Field    string
	Expected string
	Got      string
}

// SchemaMismatchError lists every difference found on resume.
type SchemaMismatchError struct {
	Mismatches []Mismatch
}

func (e *SchemaMismatchError) Error() string {
	parts := make([]string, 0, len(e.Mismatches))
	for _, m := range e.Mismatches {
		parts = append(parts, fmt.Sprintf("%s: expected %s, got %s", m.Field, m.Expected, m.Got))
	}
	return ErrSchemaMismatch.Error() + ": " + strings.Join(parts, "; ")
}

func (e *SchemaMismatchError) Is(target error) bool { return target == ErrSchemaMismatch }

// Fields returns the names of the mismatched fields.
func (e *SchemaMismatchError) Fields() []string {
	out := make([]string, 0, len(e.Mismatches))
	for _, m := range e.Mismatches {
		out = append(out, m.Field)
	}
	return out
}

// Features derives the per-frame channels from the scene: joint state and
// action vectors named after the joints, plus one visual channel per
// camera shaped (height, width, 3).
func Features(m scene.Manifest, video bool) map[string]dataset.Feature {
	names := m.JointNames()
	n := len(names)
	features := map[string]dataset.Feature{
		dataset.KeyObservationState: {DType: dataset.DTypeFloat32, Shape: []int{n}, Names: slices.Clone(names)},
		dataset.KeyAction:           {DType: dataset.DTypeFloat32, Shape: []int{n}, Names: slices.Clone(names)},
	}
	dtype := dataset.DTypeImage
	if video {
		dtype = dataset.DTypeVideo
	}
	for _, cam := range m.Cameras {
		features[dataset.KeyImagePrefix+cam.Name] = dataset.Feature{
			DType: dtype,
			Shape: []int{cam.Height, cam.Width, 3},
			Names: []string{"height", "width", "channels"},
		}
	}
	return features
}

// BuildMeta is the dataset metadata a fresh recording declares.
func BuildMeta(m scene.Manifest, robotType string, fps int, video bool) dataset.Meta {
	return dataset.Meta{
		RobotType: robotType,
		FPS:       fps,
		Video:     video,
		Features:  dataset.WithDefaults(Features(m, video)),
	}
}

var featureEquality = cmpopts.EquateEmpty()

// ValidateSchema compares an existing dataset's metadata against the
// expected one and returns a *SchemaMismatchError naming every difference.
func ValidateSchema(expected, got dataset.Meta) error {
	var mismatches []Mismatch
	if expected.RobotType != got.RobotType {
		mismatches = append(mismatches, Mismatch{Field: "robot_type", Expected: expected.RobotType, Got: got.RobotType})
	}
	if expected.FPS != got.FPS {
		mismatches = append(mismatches, Mismatch{Field: "fps", Expected: fmt.Sprint(expected.FPS), Got: fmt.Sprint(got.FPS)})
	}

	keys := make([]string, 0, len(expected.Features)+len(got.Features))
	for key := range expected.Features {
		keys = append(keys, key)
	}
	for key := range got.Features {
		if _, ok := expected.Features[key]; !ok {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	for _, key := range keys {
		want, okWant := expected.Features[key]
		have, okHave := got.Features[key]
		switch {
		case !okHave:
			mismatches = append(mismatches, Mismatch{Field: "features." + key, Expected: describeFeature(want), Got: "<missing>"})
		case !okWant:
			mismatches = append(mismatches, Mismatch{Field: "features." + key, Expected: "<absent>", Got: describeFeature(have)})
		case !cmp.Equal(want, have, featureEquality):
			mismatches = append(mismatches, Mismatch{Field: "features." + key, Expected: describeFeature(want), Got: describeFeature(have)})
		}
	}
	if len(mismatches) == 0 {
		return nil
	}
	return &SchemaMismatchError{Mismatches: mismatches}
}

func describeFeature(f dataset.Feature) string {
	return fmt.Sprintf("%s%v%v", f.DType, f.Shape, f.Names)
}
