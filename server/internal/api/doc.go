// Package api implements the read-only HTTP API of logrelay-sink.
//
// New(store) returns an http.Handler that serves:
//
//	GET /api/v1/health                    status, route and message counts
//	GET /api/v1/messages?hostname=&key=   live messages for one route, oldest first
//
// All endpoints respond with Content-Type: application/json and return 405
// for non-GET methods. Expired messages are excluded. No external HTTP
// framework is used.
package api
