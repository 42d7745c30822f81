// Package server hosts the Fiber HTTP service, the request middleware chain
// and the area registry that maps the first path segment (/vcsky, /vcbr, ...)
// to a resolver. It also owns the shared upstream clients and the archive
// loader that publishes packed-tier snapshots. Keep exports narrow and accept
// explicit dependencies; the proxy package renders responses on top of it.
package server
