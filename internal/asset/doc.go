// Package asset resolves a request path inside an area to bytes by walking the
// configured tiers: the packed archive, the local cache directory and the remote
// origin. Each area picks one Mode at startup; the Resolver built for that mode
// is immutable and safe for concurrent use.
package asset
