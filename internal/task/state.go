package task

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"domin/internal/geom"
)

// Phase is a step of the pick-and-lift sequence. Phases only advance until
// the environment is reset.
type Phase int

const (
	PhaseApproach Phase = iota
	PhaseGrasp
	PhaseLift
)

var phaseNames = map[Phase]string{
	PhaseApproach: "approach",
	PhaseGrasp:    "grasp",
	PhaseLift:     "lift",
}

var titleCaser = cases.Title(language.Und)

// String returns the display name, e.g. "Grasp".
func (p Phase) String() string {
	name, ok := phaseNames[p]
	if !ok {
		return "Unknown"
	}
	return titleCaser.String(name)
}

// ParsePhase accepts any casing of a phase name.
func ParsePhase(value string) (Phase, bool) {
	needle := strings.ToLower(strings.TrimSpace(value))
	for phase, name := range phaseNames {
		if name == needle {
			return phase, true
		}
	}
	return PhaseApproach, false
}

// EnvironmentState is the batched phase and timer of every environment.
// The orchestrator owns it; only a Policy's Targets call mutates it.
type EnvironmentState struct {
	Phase []Phase
	Timer []int
}

// NewEnvironmentState returns n environments in Approach with timers at 0.
func NewEnvironmentState(n int) *EnvironmentState {
	return &EnvironmentState{Phase: make([]Phase, n), Timer: make([]int, n)}
}

// Len returns the number of environments.
func (s *EnvironmentState) Len() int { return len(s.Phase) }

// Reset puts every environment back in Approach with a zero timer.
func (s *EnvironmentState) Reset() {
	for i := range s.Phase {
		s.Phase[i] = PhaseApproach
		s.Timer[i] = 0
	}
}

// Count returns how many environments are in phase.
func (s *EnvironmentState) Count(phase Phase) int {
	n := 0
	for _, p := range s.Phase {
		if p == phase {
			n++
		}
	}
	return n
}

// Target is the per-env command for one macro-step. Poses are in the robot
// root frame; Gripper holds one value in [0, 1] per hand joint.
type Target struct {
	Poses   []geom.Pose
	Gripper [][]float64
}

// Outcome is the verdict on finished episodes.
type Outcome struct {
	Success []bool
	Labels  []string
	// Heights is the final object height per env.
	Heights []float64
	// Lifted is the height gained since the episode started.
	Lifted []float64
}

// SuccessLabel is the label of successful episodes.
const SuccessLabel = "Success"
