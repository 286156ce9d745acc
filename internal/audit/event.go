package audit

import "time"

// TopicDenied is the topic deny decisions are published to.
const TopicDenied = "ratelimit.denied"

// DeniedEvent records a request rejected by the rate limiter.
type DeniedEvent struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Scope     string    `json:"scope,omitempty"`
	Limit     int       `json:"limit"`
	Path      string    `json:"path"`
	Method    string    `json:"method"`
	ClientIP  string    `json:"clientIp"`
	UserAgent string    `json:"userAgent"`
	RequestID string    `json:"requestId,omitempty"`
	DeniedAt  time.Time `json:"deniedAt"`
}
