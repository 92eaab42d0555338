// Package kinematic is a reference scene.Simulator without dynamics.
//
// The robot is a gantry arm (prismatic x, y, z then roll, pitch, yaw) with
// a multi-joint hand. Joints follow their targets through a first-order
// filter clamped to limits. Objects rest on the table at z = 0 of each
// environment until a closed hand with its grasp point near an object picks
// it up; opening the hand drops it back to the table. Cameras render a flat
// top-down view. This is enough to drive the control and recording
// pipeline end to end without a physics engine.
package kinematic
