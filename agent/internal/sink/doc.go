// Package sink posts forwarded messages to the remote logging service.
//
// Sink is the one-method contract the rest of the agent depends on:
// Post(ctx, endpoint, authKey, body). HTTPSink implements it over HTTPS with
// the headers the service expects (AUTHKEY and a text content type) and an
// optional gzip body. Endpoint builds https://<host>/<hostname>/<key>.
//
// Failures are returned as *SendError, classified as network (the request
// never got a response), status (a non-2xx reply), or other. There is no
// retry, backoff, or timeout unless Options.Timeout is set.
package sink
