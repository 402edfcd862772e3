package entities

import "time"

type HealthCheckResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database,omitempty"`
	Uptime    string    `json:"uptime,omitempty"`
	Error     string    `json:"error,omitempty"`
}
