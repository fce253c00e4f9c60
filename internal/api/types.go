package api

// Response is the envelope every web API method replies with.
type Response struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Warning  string `json:"warning,omitempty"`
	Metadata *struct {
		Messages []string `json:"messages,omitempty"`
	} `json:"response_metadata,omitempty"`
}

// OpenConnectionResponse from POST /apps.connections.open
type OpenConnectionResponse struct {
	Response
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in,omitempty"`
}

// ConnectionInfo describes a freshly issued WebSocket URL.
type ConnectionInfo struct {
	URL       string
	ExpiresIn int // seconds; zero when the server did not say
}
