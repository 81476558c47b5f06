package httpclient

import (
	"encoding/json"
	"time"
)

// Config holds client configuration
type Config struct {
	// ServerURL is the base URL of the EventHub admin API (e.g., "http://localhost:8080")
	ServerURL string

	// Timeout for HTTP requests
	Timeout time.Duration
}

// SetDefaults sets reasonable default values for the config
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// PublishRequest represents a publish request
type PublishRequest struct {
	Topic   string          `json:"topic"`
	Message json.RawMessage `json:"message,omitempty"`
}

// PublishResponse represents a publish response
type PublishResponse struct {
	ID         string `json:"id"`
	Topic      string `json:"topic"`
	Deliveries int    `json:"deliveries"`
}

// WorkerStats describes one worker's connections
type WorkerStats struct {
	ID          int `json:"id"`
	Connections int `json:"connections"`
}

// HubStats holds hub counters
type HubStats struct {
	Running        bool          `json:"running"`
	Uptime         time.Duration `json:"uptime"`
	Connections    int64         `json:"connections"`
	Accepted       uint64        `json:"accepted"`
	Rejected       uint64        `json:"rejected"`
	Publishes      uint64        `json:"publishes"`
	Deliveries     uint64        `json:"deliveries"`
	Topics         int           `json:"topics"`
	Subscribers    int           `json:"subscribers"`
	TopicNodes     int           `json:"topicNodes"`
	GCSweeps       uint64        `json:"gcSweeps"`
	GCNodesRemoved uint64        `json:"gcNodesRemoved"`
	Workers        []WorkerStats `json:"workers"`
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
	Hub     HubStats     `json:"hub"`
	Process *ProcessInfo `json:"process,omitempty"`
}

// Subscription is one filter held by one connection
type Subscription struct {
	Filter       string `json:"filter"`
	SubscriberID string `json:"subscriberId"`
}

// SubscriptionsResponse lists every subscription in the hub
type SubscriptionsResponse struct {
	Subscriptions []Subscription `json:"subscriptions"`
	Count         int            `json:"count"`
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
