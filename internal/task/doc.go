// Package task holds per-environment task state machines.
//
// A Policy turns a world snapshot into Cartesian end-effector targets and
// gripper commands, advancing the phase and timer of every environment it
// is handed, and judges finished episodes. PickLift approaches the target
// object from above, grasps it and lifts it.
package task
