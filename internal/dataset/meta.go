package dataset

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Feature data types.
const (
	DTypeFloat32 = "float32"
	DTypeInt64   = "int64"
	DTypeImage   = "image"
	DTypeVideo   = "video"
)

// Feature keys shared by every dataset.
const (
	KeyObservationState = "observation.state"
	KeyAction           = "action"
	KeyImagePrefix      = "observation.images."
)

// Feature declares one channel of every frame.
type Feature struct {
	DType string   `json:"dtype"`
	Shape []int    `json:"shape"`
	Names []string `json:"names"`
}

// IsVisual reports whether the feature is stored as image files or video.
func (f Feature) IsVisual() bool {
	return f.DType == DTypeImage || f.DType == DTypeVideo
}

// Meta is fixed when the dataset is created.
type Meta struct {
	RobotType string             `json:"robot_type"`
	FPS       int                `json:"fps"`
	Video     bool               `json:"video"`
	Features  map[string]Feature `json:"features"`
}

// DefaultFeatures returns the bookkeeping channels every frame carries.
func DefaultFeatures() map[string]Feature {
	scalar := func(dtype string) Feature { return Feature{DType: dtype, Shape: []int{1}} }
	return map[string]Feature{
		"timestamp":     scalar(DTypeFloat32),
		"frame_index":   scalar(DTypeInt64),
		"episode_index": scalar(DTypeInt64),
		"index":         scalar(DTypeInt64),
		"task_index":    scalar(DTypeInt64),
	}
}

// WithDefaults returns a copy of features including DefaultFeatures.
func WithDefaults(features map[string]Feature) map[string]Feature {
	out := DefaultFeatures()
	maps.Copy(out, features)
	return out
}

// VisualKeys returns the image or video feature keys in sorted order.
func (m Meta) VisualKeys() []string {
	keys := make([]string, 0)
	for key, f := range m.Features {
		if f.IsVisual() {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys
}

// CameraName strips the image prefix from a visual feature key.
func CameraName(key string) string {
	return strings.TrimPrefix(key, KeyImagePrefix)
}

func (m Meta) vectorLen(key string) (int, error) {
	f, ok := m.Features[key]
	if !ok {
		return 0, fmt.Errorf("feature %q not declared", key)
	}
	if len(f.Shape) != 1 {
		return 0, fmt.Errorf("feature %q is not a vector", key)
	}
	return f.Shape[0], nil
}

func (m Meta) featuresJSON() (string, error) {
	data, err := json.Marshal(m.Features)
	if err != nil {
		return "", fmt.Errorf("encode features: %w", err)
	}
	return string(data), nil
}
