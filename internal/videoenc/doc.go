// Package videoenc turns an episode's PNG frame sequence for one camera
// into an AV1 video.
//
// ffmpeg first assembles the frames into a lossless FFV1 intermediate; the
// drapto library then encodes that intermediate to AV1 in Matroska. The
// intermediate is removed once drapto finishes.
package videoenc
