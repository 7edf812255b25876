// Package receiver implements the endpoint that accepts messages from
// logrelay agents: POST /<hostname>/<key> with the text as the body.
//
// The route is parsed with types.ParseRoute (404 if malformed), gzip bodies
// are decoded, and bodies over the configured limit are answered with 413.
// Accepted messages go to the store and the reply is 204. Authentication is
// enforced upstream by the auth middleware, so the receiver itself only
// performs structural validation.
package receiver
