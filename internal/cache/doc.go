// Package cache defines the disk-backed store that maps request paths to
// files under an area's local directory, and the filler that heals a miss by
// streaming the origin response into that store. Writes always go through a
// uniquely named temp file in the destination directory followed by a rename,
// so readers either see a complete file or nothing. Concurrent fills of the
// same path are not deduplicated; each writer renames its own temp file and
// the last rename wins.
package cache
