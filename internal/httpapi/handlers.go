package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"runtime"
	"sync"

	"github.com/rmacdonaldsmith/eventhub-go/internal/hub"
	"github.com/rmacdonaldsmith/eventhub-go/internal/protocol"
	"github.com/rmacdonaldsmith/eventhub-go/pkg/topicindex"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

// maxPublishBody caps the size of a publish request body
const maxPublishBody = 1 << 20

// Hub is the part of the hub the admin API reads from and publishes into
type Hub interface {
	protocol.Publisher
	Stats() hub.Stats
	Health() hub.HealthStatus
	Subscriptions(ctx context.Context) ([]topicindex.Subscription, error)
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	hub    Hub
	logger zerolog.Logger

	procOnce sync.Once
	proc     *process.Process
}

// NewHandlers creates a new handlers instance
func NewHandlers(h Hub, logger zerolog.Logger) *Handlers {
	return &Handlers{
		hub:    h,
		logger: logger,
	}
}

// PublishEvent handles POST /api/v1/events
func (h *Handlers) PublishEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.validateJSON(r); err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req PublishRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPublishBody)).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Topic == "" {
		h.writeError(w, "topic is required", http.StatusBadRequest)
		return
	}

	result, err := protocol.PublishMessage(r.Context(), h.hub, req.Topic, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, topicindex.ErrInvalidTopicName):
			h.writeError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, topicindex.ErrIndexClosed):
			h.writeError(w, "hub is closed", http.StatusServiceUnavailable)
		default:
			h.logger.Error().Err(err).Str("topic", req.Topic).Msg("Publish failed")
			h.writeError(w, "Failed to publish message", http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, PublishResponse{
		ID:         result.ID,
		Topic:      result.Topic,
		Deliveries: result.Deliveries,
	}, http.StatusCreated)
}

// AdminListSubscriptions handles GET /api/v1/admin/subscriptions
func (h *Handlers) AdminListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.hub.Subscriptions(r.Context())
	if err != nil {
		h.writeError(w, "Failed to list subscriptions", http.StatusInternalServerError)
		return
	}
	if subs == nil {
		subs = []topicindex.Subscription{}
	}

	h.writeJSON(w, SubscriptionsResponse{Subscriptions: subs, Count: len(subs)}, http.StatusOK)
}

// AdminGetStats handles GET /api/v1/admin/stats
func (h *Handlers) AdminGetStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Hub:     h.hub.Stats(),
		Process: h.processInfo(),
	}
	h.writeJSON(w, resp, http.StatusOK)
}

// Health handles GET /api/v1/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := h.hub.Health()

	resp := HealthResponse{
		Healthy:     health.Healthy,
		Running:     health.Running,
		Address:     health.Address,
		Connections: health.Connections,
		Workers:     health.Workers,
		Message:     health.Message,
	}

	statusCode := http.StatusOK
	if !health.Healthy {
		statusCode = http.StatusServiceUnavailable
	}
	h.writeJSON(w, resp, statusCode)
}

// processInfo samples resource usage of this process. Fields that cannot be
// read on this platform are left zero; nil means the process is unavailable.
func (h *Handlers) processInfo() *ProcessInfo {
	h.procOnce.Do(func() {
		proc, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			h.logger.Warn().Err(err).Msg("Process metrics unavailable")
			return
		}
		h.proc = proc
	})
	if h.proc == nil {
		return nil
	}

	info := &ProcessInfo{
		PID:        h.proc.Pid,
		Goroutines: runtime.NumGoroutine(),
	}
	if mem, err := h.proc.MemoryInfo(); err == nil {
		info.RSSBytes = mem.RSS
	}
	if cpu, err := h.proc.CPUPercent(); err == nil {
		info.CPUPercent = cpu
	}
	if threads, err := h.proc.NumThreads(); err == nil {
		info.Threads = threads
	}
	return info
}

// Helper methods

// writeError writes an error response as JSON
func (h *Handlers) writeError(w http.ResponseWriter, message string, statusCode int) {
	h.writeJSON(w, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}, statusCode)
}

// writeJSON writes a JSON response
func (h *Handlers) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Debug().Err(err).Msg("Failed to write response")
	}
}

// validateJSON validates that the request has valid JSON content-type
func (h *Handlers) validateJSON(r *http.Request) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return fmt.Errorf("Content-Type must be application/json")
	}
	return nil
}
