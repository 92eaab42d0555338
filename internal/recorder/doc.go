// Package recorder turns per-environment control ticks into dataset
// episodes. A Group opens (or resumes) one dataset shared by a Recorder
// per environment; each Recorder buffers frames, hands camera images to
// the shared image writer and commits or discards whole episodes.
package recorder
