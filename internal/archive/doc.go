// Package archive implements the packed asset container: a blob holding the
// concatenated bytes of many files, plus a manifest that maps each relative
// path to a [start, end) range of the logical (uncompressed) stream.
//
// Blobs are either stored raw or wrapped in one whole-stream codec selected by
// file suffix (.xz, .zst, .lz4). Compressed blobs are only decoded
// sequentially from offset 0, so every bulk operation (Unpack, AddFolder, the
// streaming download) walks entries in ascending offset order. Random access
// for per-request lookups goes through Reader, which either reads a raw blob
// with ReadAt or holds a fully decoded copy in memory.
//
// Holder publishes a Reader to request handlers with an atomic swap, so an
// archive refresh never interleaves with reads against the previous snapshot.
package archive
