package handlers

// CheckRequest is the request body for an admission check.
type CheckRequest struct {
	Body struct {
		Key   string `doc:"Caller-chosen identity to limit"                      example:"user:42" json:"key"   maxLength:"512" minLength:"1"`
		Limit int    `doc:"Maximum admitted requests within the window for key" example:"10"      json:"limit"`
	}
}

// CheckResponse reports the admission decision for a key.
type CheckResponse struct {
	Body struct {
		Allowed bool   `doc:"Whether the request was admitted and recorded" json:"allowed"`
		Key     string `doc:"The checked key"                                json:"key"`
		Limit   int    `doc:"The limit the key was checked against"          json:"limit"`
		Backend string `doc:"Backend that decided: local or remote"          example:"local" json:"backend"`
	}
}

// StatsResponse describes the in-memory limiter state.
type StatsResponse struct {
	Body struct {
		TrackedKeys int    `doc:"Distinct keys currently held in memory"   json:"trackedKeys"`
		Capacity    int    `doc:"Maximum keys held before eviction"        json:"capacity"`
		WindowMS    int64  `doc:"Length of the trailing window in ms"      json:"windowMs"`
		Backend     string `doc:"Backend that decides: local or remote"    json:"backend"`
	}
}
