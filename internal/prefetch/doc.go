// Package prefetch warms an area's local directory from its origin with a
// bounded worker pool, and compares two asset trees to report missing files.
package prefetch
