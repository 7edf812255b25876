// Package auth provides authentication middleware for logrelay-sink.
//
// APIKeyMiddleware(mode, header, key) wraps an http.Handler and validates the
// key carried in the named request header (AUTHKEY by default, matching what
// the agent sends).
//
// When mode != "apikey" or key == "", all requests pass through (useful for
// local development with auth disabled). When the key is incorrect or absent,
// the middleware answers 401 immediately.
package auth
