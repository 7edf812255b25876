package api

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status       string          `json:"status"`
	RouteCount   int             `json:"route_count"`
	MessageCount int             `json:"message_count"`
	Routes       []RouteResponse `json:"routes"`
}

// RouteResponse summarises one route with live messages.
type RouteResponse struct {
	Hostname string `json:"hostname"`
	Key      string `json:"key"`
	Count    int    `json:"count"`
	LastSeen string `json:"last_seen"` // RFC3339
}

// MessagesResponse is the payload for GET /api/v1/messages.
type MessagesResponse struct {
	Hostname string            `json:"hostname"`
	Key      string            `json:"key"`
	Messages []MessageResponse `json:"messages"`
}

// MessageResponse is one stored message.
type MessageResponse struct {
	Body       string `json:"body"`
	ReceivedAt string `json:"received_at"` // RFC3339Nano
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
