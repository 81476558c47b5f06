// Package grpchealth exposes the hub's health over the standard gRPC health
// checking protocol so orchestrators can probe it without speaking JSON-RPC.
package grpchealth

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rmacdonaldsmith/eventhub-go/internal/hub"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the service reported alongside the overall "" status
const ServiceName = "eventhub.Hub"

// ErrAlreadyStarted is returned when Start or Serve is called twice
var ErrAlreadyStarted = errors.New("health server already started")

// StatusSource reports whether the hub can serve clients
type StatusSource interface {
	Health() hub.HealthStatus
}

// Config holds health server configuration
type Config struct {
	Address string
	// Interval is how often the hub status is re-read. Defaults to one second.
	Interval time.Duration
	Logger   zerolog.Logger
}

// Server publishes hub health through grpc_health_v1
type Server struct {
	source   StatusSource
	config   Config
	logger   zerolog.Logger
	health   *health.Server
	grpc     *grpc.Server
	listener net.Listener

	mu      sync.Mutex
	started bool
	stopped bool
	last    healthpb.HealthCheckResponse_ServingStatus
	quit    chan struct{}
	done    chan struct{}
}

// NewServer creates a health server reading from source
func NewServer(source StatusSource, config Config) *Server {
	if config.Interval <= 0 {
		config.Interval = time.Second
	}

	s := &Server{
		source: source,
		config: config,
		logger: config.Logger.With().Str("component", "grpchealth").Logger(),
		health: health.NewServer(),
		grpc:   grpc.NewServer(),
		last:   healthpb.HealthCheckResponse_UNKNOWN,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.Update()
	return s
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	if err := s.Serve(l); err != nil {
		l.Close()
		return err
	}
	return nil
}

// Serve serves on l in the background and starts polling the hub status
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.stopped {
		return ErrAlreadyStarted
	}
	s.started = true
	s.listener = l

	go func() {
		if err := s.grpc.Serve(l); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Error().Err(err).Msg("gRPC health server stopped unexpectedly")
		}
	}()
	go s.poll()

	s.logger.Info().Str("address", l.Addr().String()).Msg("gRPC health listening")
	return nil
}

// Addr returns the bound address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) poll() {
	defer close(s.done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Update()
		case <-s.quit:
			return
		}
	}
}

// Update re-reads the hub status and publishes it
func (s *Server) Update() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.source.Health().Healthy {
		status = healthpb.HealthCheckResponse_SERVING
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	changed := status != s.last
	s.last = status
	s.mu.Unlock()

	if !changed {
		return
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	s.logger.Debug().Str("status", status.String()).Msg("Health status changed")
}

// Stop marks every service NOT_SERVING and stops the gRPC server
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return // Already stopped, idempotent
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	s.health.Shutdown()
	if started {
		close(s.quit)
		<-s.done
	}
	s.grpc.GracefulStop()
}
