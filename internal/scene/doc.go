// Package scene describes what a simulated scene contains and what the
// control loop needs from the engine that runs it.
//
// A Manifest is the explicit registry of named entities: the robot with
// its arm and hand joints, the objects on the table and the cameras.
// Simulator is the physics collaborator contract. World state handed to
// policies is expressed in each environment's robot root frame.
package scene
