package types

import (
	"fmt"
	"strings"
)

// Route identifies one log stream on the remote logging service.
// Key may itself contain slashes ("app/web"); Hostname may not.
type Route struct {
	Hostname string `json:"hostname"`
	Key      string `json:"key"`
}

// Path returns the request path for the route: "/<hostname>/<key>".
func (r Route) Path() string {
	return "/" + r.Hostname + "/" + r.Key
}

// String implements fmt.Stringer.
func (r Route) String() string {
	return r.Hostname + "/" + r.Key
}

// ParseRoute splits a request path of the form "/<hostname>/<key>" into a
// Route. The key keeps any further slashes.
func ParseRoute(path string) (Route, error) {
	trimmed := strings.TrimPrefix(path, "/")
	hostname, key, ok := strings.Cut(trimmed, "/")
	if !ok || hostname == "" || key == "" {
		return Route{}, fmt.Errorf("types: path %q is not /<hostname>/<key>", path)
	}
	return Route{Hostname: hostname, Key: key}, nil
}
