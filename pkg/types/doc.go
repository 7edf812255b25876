// Package types defines shared Go types used by both the agent and the
// development sink server.
//
// Route is the (hostname, key) pair that addresses one log stream on the
// remote logging service. The agent renders it into the request path of
// every forwarded message; the sink parses it back out of incoming requests.
package types
