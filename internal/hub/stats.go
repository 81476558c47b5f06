package hub

import (
	"context"
	"time"

	"github.com/rmacdonaldsmith/eventhub-go/pkg/topicindex"
)

// WorkerStats describes one worker's shard
type WorkerStats struct {
	ID          int `json:"id"`
	Connections int `json:"connections"`
}

// Stats is a point-in-time snapshot of hub counters
type Stats struct {
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

// Stats returns current counters. Counts from different sources are read
// independently and may be slightly out of step with each other.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	running := s.started
	startedAt := s.startedAt
	workers := append([]*Worker(nil), s.workers...)
	s.mu.Unlock()

	ctx := context.Background()
	topics, _ := s.index.GetTopicCount(ctx)
	subscribers, _ := s.index.GetSubscriberCount(ctx)

	stats := Stats{
		Running:        running,
		Connections:    s.connections.Load(),
		Accepted:       s.accepted.Load(),
		Rejected:       s.rejected.Load(),
		Publishes:      s.publishes.Load(),
		Deliveries:     s.deliveries.Load(),
		Topics:         topics,
		Subscribers:    subscribers,
		TopicNodes:     s.index.NodeCount(),
		GCSweeps:       s.gcSweeps.Load(),
		GCNodesRemoved: s.gcRemoved.Load(),
		Workers:        make([]WorkerStats, 0, len(workers)),
	}
	if running {
		stats.Uptime = time.Since(startedAt)
	}
	for _, w := range workers {
		stats.Workers = append(stats.Workers, WorkerStats{ID: w.ID(), Connections: w.ConnectionCount()})
	}
	return stats
}

// HealthStatus summarises whether the hub can serve clients
type HealthStatus struct {
	Healthy     bool   `json:"healthy"`
	Running     bool   `json:"running"`
	Address     string `json:"address,omitempty"`
	Connections int64  `json:"connections"`
	Workers     int    `json:"workers"`
	Message     string `json:"message,omitempty"`
}

// Health reports the hub's health
func (s *Server) Health() HealthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := HealthStatus{
		Running:     s.started,
		Healthy:     s.started && !s.closed,
		Connections: s.connections.Load(),
		Workers:     len(s.workers),
	}
	if s.addr != nil {
		status.Address = s.addr.String()
	}
	switch {
	case s.closed:
		status.Message = "hub closed"
	case !s.started:
		status.Message = "hub not started"
	}
	return status
}

// Subscriptions lists every filter currently held in the index
func (s *Server) Subscriptions(ctx context.Context) ([]topicindex.Subscription, error) {
	return s.index.GetAllSubscriptions(ctx)
}
