package testsupport

import (
	"context"
	"testing"

	"domin/internal/config"
	"domin/internal/recorder"
	"domin/internal/scene"
	"domin/internal/scene/kinematic"
)

// SmallManifest is the default scene with thumbnail cameras.
func SmallManifest(eeBody string) scene.Manifest {
	m := scene.DefaultManifest(eeBody)
	m.Cameras = []scene.CameraSpec{
		{Name: "front", Width: 16, Height: 12},
		{Name: "wrist", Width: 8, Height: 6},
	}
	return m
}

// NewKinematicSim builds the reference simulator for cfg with thumbnail
// cameras.
func NewKinematicSim(t testing.TB, cfg *config.Config) *kinematic.Sim {
	t.Helper()
	sim, err := kinematic.New(kinematic.Options{
		Manifest:  SmallManifest(cfg.IK.EEBody),
		NumEnvs:   cfg.Simulation.NumEnvs,
		PhysicsDT: cfg.Simulation.PhysicsDT,
	})
	if err != nil {
		t.Fatalf("kinematic.New: %v", err)
	}
	t.Cleanup(func() { _ = sim.Close() })
	return sim
}

// MustOpenRecorders opens a recorder group for sim under cfg's dataset root
// and closes it on cleanup.
func MustOpenRecorders(t testing.TB, cfg *config.Config, sim scene.Simulator) *recorder.Group {
	t.Helper()
	g, err := recorder.Open(context.Background(), recorder.OptionsFromConfig(cfg, sim.Manifest()))
	if err != nil {
		t.Fatalf("recorder.Open: %v", err)
	}
	t.Cleanup(func() { _ = g.Close(context.Background()) })
	return g
}
