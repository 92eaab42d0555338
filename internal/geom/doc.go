// Package geom provides the small amount of rigid-body math the control
// pipeline needs: 3-vectors, unit quaternions in (w, x, y, z) order, poses,
// frame subtraction and the axis-angle orientation error used by the IK
// solver.
//
// All values are plain structs passed by value; batched code works on
// slices of them, one element per environment.
package geom
