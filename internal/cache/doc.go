// Package cache defines the disk-backed store used to persist small derived
// records between runs (today: MD5 digests of source binaries, keyed by the
// digest of their absolute path). Records live at
// <basePath>/<namespace>/<key>; writes go through a temp file + rename so a
// crashed run never leaves a half-written record behind, and the record's
// modtime is surfaced so callers can decide whether it is stale.
package cache
