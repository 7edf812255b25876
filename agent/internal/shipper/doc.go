// Package shipper hands forwarded messages to the remote sink.
//
// A Shipper is built once per process from the immutable config.Outbound and
// shared by every connection. Ship is fire-and-forget: it dispatches the send
// on its own goroutine and returns immediately, so a slow or failing remote
// never stalls the connection that produced the message. Failures are
// logged, counted, and dropped; there is no buffer, retry, or backoff.
//
// Nothing bounds the number of sends in flight. Against a remote that accepts
// connections but never answers, goroutines and open requests accumulate
// until send_timeout (0, meaning none, by default) expires them; set a
// non-zero send_timeout for long-running channels.
//
// Send is the synchronous variant used by pipe mode, where the one outcome
// is reported to the caller.
package shipper
