// Package application wires the configcache command: it builds the cache from
// the resolved settings, loads the requested files concurrently and prints the
// documents, optionally polling for reloads until the context is cancelled.
package application
