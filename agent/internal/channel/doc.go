// Package channel serves the per-user Unix socket that local programs write
// logs into.
//
// Server.Serve binds the socket at an endpoint.Address, accepts connections
// until its context is cancelled, and runs one stream reader goroutine per
// connection. Cancellation closes the listener and removes the socket file;
// open connections are closed too, and Serve only waits for them when
// Options.DrainTimeout is set.
//
// A stream reader forwards every read as one message, so message boundaries
// follow OS read boundaries, not log lines. Framing "lines" holds back a
// trailing partial line so every message ends on a newline. Incomplete UTF-8
// sequences at the end of a read are carried into the next one. A chunk
// that is not valid UTF-8 closes only its own connection (or, with the
// "forward" policy, is sent as raw bytes).
//
// The socket is never unlinked before binding. A leftover file from an
// unclean shutdown makes Serve fail with ErrStaleSocket so the operator can
// remove it.
package channel
