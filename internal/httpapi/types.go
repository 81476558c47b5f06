package httpapi

import (
	"encoding/json"

	"github.com/rmacdonaldsmith/eventhub-go/internal/hub"
	"github.com/rmacdonaldsmith/eventhub-go/pkg/topicindex"
)

// Request/Response types for the admin API

// PublishRequest represents a publish from an internal source
type PublishRequest struct {
	Topic   string          `json:"topic"`
	Message json.RawMessage `json:"message"`
}

// PublishResponse reports where a published message went
type PublishResponse struct {
	ID         string `json:"id"`
	Topic      string `json:"topic"`
	Deliveries int    `json:"deliveries"`
}

// ProcessInfo carries resource usage of the hub process
type ProcessInfo struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rssBytes"`
	CPUPercent float64 `json:"cpuPercent"`
	Threads    int32   `json:"threads"`
	Goroutines int     `json:"goroutines"`
}

// StatsResponse represents hub statistics
type StatsResponse struct {
	Hub     hub.Stats    `json:"hub"`
	Process *ProcessInfo `json:"process,omitempty"`
}

// SubscriptionsResponse lists every filter held in the topic index
type SubscriptionsResponse struct {
	Subscriptions []topicindex.Subscription `json:"subscriptions"`
	Count         int                       `json:"count"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Healthy     bool   `json:"healthy"`
	Running     bool   `json:"running"`
	Address     string `json:"address,omitempty"`
	Connections int64  `json:"connections"`
	Workers     int    `json:"workers"`
	Message     string `json:"message,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
