package orchestrator

import (
	"cmp"
	"slices"
	"time"
)

// Stats summarizes a run.
type Stats struct {
	Mode    string
	NumEnvs int
	// Rounds counts batched episodes, each covering every environment.
	Rounds    int
	Resets    int
	Attempts  int
	Successes int
	// Committed counts kept episodes in generation mode and evaluated
	// episodes in evaluation mode.
	Committed  int
	Discarded  int
	Frames     int
	Ticks      int
	Labels     map[string]int
	Elapsed    time.Duration
	StopReason string
}

// LabelCount is one row of the label histogram.
type LabelCount struct {
	Label string
	Count int
}

func newStats(mode string, numEnvs int) Stats {
	return Stats{Mode: mode, NumEnvs: numEnvs, Labels: make(map[string]int)}
}

func (s *Stats) observe(label string, success bool) {
	s.Attempts++
	if success {
		s.Successes++
	}
	s.Labels[label]++
}

// SuccessRate returns Successes / Attempts, or 0 before any attempt.
func (s Stats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Attempts)
}

// LabelCounts returns the label histogram, most frequent first.
func (s Stats) LabelCounts() []LabelCount {
	out := make([]LabelCount, 0, len(s.Labels))
	for label, count := range s.Labels {
		out = append(out, LabelCount{Label: label, Count: count})
	}
	slices.SortFunc(out, func(a, b LabelCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	return out
}
