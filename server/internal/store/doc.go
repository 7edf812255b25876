// Package store holds messages received by the development sink in memory,
// per route, with a per-route cap and time-based eviction.
package store
