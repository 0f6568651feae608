package model

// ========== Status DTOs ==========

type HealthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Time    string            `json:"time"`
	Checks  map[string]string `json:"checks,omitempty"`
}

type TriggerResponse struct {
	Engine  string `json:"engine"`
	Message string `json:"message"`
}

// ========== Common DTOs ==========

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
