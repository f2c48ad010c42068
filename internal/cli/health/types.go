// Package health provides shared types for health check responses.
package health

// Response is the wire shape of GET /health.
type Response struct {
	OK   bool `json:"ok"`
	Data struct {
		Status    string `json:"status"`
		Service   string `json:"service"`
		StartedAt string `json:"startedAt"`
		Uptime    string `json:"uptime"`
		UptimeSec int64  `json:"uptimeSec"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Healthy reports whether the response indicates a healthy server.
func (r *Response) Healthy() bool {
	return r.OK && r.Data.Status == "ok"
}

// Message returns the error message when unhealthy, or "".
func (r *Response) Message() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Message
}
