// Package dataset is the on-disk demonstration dataset.
//
// A dataset root holds meta.db (SQLite: schema version, info, tasks,
// episodes, frames and per-env attempt outcomes), images/<feature>/ with
// one PNG directory per episode, and videos/<feature>/ when video encoding
// is on. A lock file keeps a second writer out. Frames are staged in an
// EpisodeBuffer and only become part of the dataset on SaveEpisode, which
// assigns the next global episode index.
package dataset
