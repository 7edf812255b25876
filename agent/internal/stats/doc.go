// Package stats counts what the agent reads and forwards and renders the
// counters in the Prometheus text exposition format.
//
// Counters are plain atomics, safe to bump from every connection goroutine.
// RunTextfile periodically rewrites a file for node_exporter's textfile
// collector; the write is atomic (temp file + rename) so the collector never
// sees a partial file.
package stats
