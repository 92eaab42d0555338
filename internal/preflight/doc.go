// Package preflight provides readiness checks for the filesystem paths,
// external binaries and remote services a recording run depends on.
//
// These checks run in two contexts:
//   - "domin record" calls RunAll before creating any component and refuses
//     to start when a check fails, so a long run never dies on a full disk
//     or a missing ffmpeg at its first commit.
//   - "domin preflight" prints every result as a table.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
