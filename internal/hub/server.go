package hub

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rmacdonaldsmith/eventhub-go/internal/topicindex"
	"github.com/rs/zerolog"
)

var (
	// ErrServerClosed is returned when starting a server that was closed
	ErrServerClosed = errors.New("server is closed")
	// ErrNotStarted is returned by operations that need a running server
	ErrNotStarted = errors.New("server is not started")
	// ErrNilHandler is returned when no handler is supplied
	ErrNilHandler = errors.New("handler cannot be nil")
)

// Server owns the listening socket, the worker pool and the shared topic index.
type Server struct {
	config  *Config
	handler Handler
	index   *topicindex.InMemoryTopicIndex
	logger  zerolog.Logger

	readLimit int

	mu        sync.Mutex
	workers   []*Worker
	listenFd  int
	addr      *net.TCPAddr
	started   bool
	closed    bool
	startedAt time.Time

	next        atomic.Uint64
	connections atomic.Int64
	accepted    atomic.Uint64
	rejected    atomic.Uint64
	publishes   atomic.Uint64
	deliveries  atomic.Uint64
	gcSweeps    atomic.Uint64
	gcRemoved   atomic.Uint64
}

// NewServer creates a hub server. Call Start to begin accepting connections.
func NewServer(config *Config, handler Handler) (*Server, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if handler == nil {
		return nil, ErrNilHandler
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	config.SetDefaults()

	s := &Server{
		config:   config,
		handler:  handler,
		index:    topicindex.NewInMemoryTopicIndexWithConfig(topicindex.Config{LazyPrune: config.LazyPrune}),
		logger:   config.Logger.With().Str("component", "hub").Logger(),
		listenFd: -1,
	}
	if l, ok := handler.(InboundLimiter); ok {
		s.readLimit = l.InboundLimit()
	}
	return s, nil
}

// Start binds the listening socket and launches the workers.
// Bind and listen failures are returned here.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServerClosed
	}
	if s.started {
		return nil // Already started, idempotent
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fd, addr, err := listenTCP(s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	workers := make([]*Worker, 0, s.config.Workers)
	for i := 0; i < s.config.Workers; i++ {
		w, err := newWorker(i, s)
		if err != nil {
			for _, started := range workers {
				started.poller.Close()
			}
			closeFd(fd)
			return fmt.Errorf("failed to create worker %d: %w", i, err)
		}
		workers = append(workers, w)
	}
	if err := workers[0].delegateListener(fd); err != nil {
		for _, w := range workers {
			w.poller.Close()
		}
		closeFd(fd)
		return fmt.Errorf("failed to register listener: %w", err)
	}

	s.workers = workers
	s.listenFd = fd
	s.addr = addr
	s.startedAt = time.Now()
	for _, w := range workers {
		go w.run()
	}
	s.started = true

	s.logger.Info().
		Str("address", addr.String()).
		Int("workers", len(workers)).
		Int("maxConnections", s.config.MaxConnections).
		Msg("Hub listening")
	return nil
}

// Stop stops accepting, closes every connection and waits for the workers to exit.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil // Not started, idempotent
	}

	// The listening worker goes first so no admission lands on a stopped worker.
	for _, w := range s.workers {
		w.stop()
		select {
		case <-w.done:
		case <-ctx.Done():
			return fmt.Errorf("timed out stopping worker %d: %w", w.id, ctx.Err())
		}
	}
	closeFd(s.listenFd)
	s.listenFd = -1
	s.started = false

	s.logger.Info().Uint64("accepted", s.accepted.Load()).Msg("Hub stopped")
	return nil
}

// Close stops the server and releases the topic index. A closed server cannot be restarted.
func (s *Server) Close() error {
	if err := s.Stop(context.Background()); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil // Already closed, idempotent
	}
	s.closed = true
	return s.index.Close()
}

// Addr returns the bound listening address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr == nil {
		return nil
	}
	return s.addr
}

// Index returns the shared topic index
func (s *Server) Index() *topicindex.InMemoryTopicIndex {
	return s.index
}

// Workers returns the worker pool
func (s *Server) Workers() []*Worker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Worker(nil), s.workers...)
}

// Running reports whether the server has been started and not stopped
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Publish routes an already-encoded payload to every matching connection and
// returns how many connections it was queued on.
func (s *Server) Publish(ctx context.Context, topic string, payload []byte) (int, error) {
	n, err := s.index.Publish(ctx, topic, payload)
	if err != nil {
		return 0, err
	}
	s.publishes.Add(1)
	s.deliveries.Add(uint64(n))
	s.logger.Trace().Str("topic", topic).Int("deliveries", n).Msg("Published")
	return n, nil
}

// assign hands an accepted descriptor to the next worker in round-robin order,
// or closes it when the server is at capacity.
func (s *Server) assign(from *Worker, fd int, peer string) {
	if max := s.config.MaxConnections; max > 0 && s.connections.Load() >= int64(max) {
		closeFd(fd)
		s.rejected.Add(1)
		from.logger.Warn().Str("peer", peer).Int("maxConnections", max).Msg("Connection refused: at capacity")
		return
	}
	s.connections.Add(1)
	s.accepted.Add(1)

	w := s.workers[int(s.next.Add(1)-1)%len(s.workers)]
	if w == from {
		w.register(fd, peer)
		return
	}
	w.admit(fd, peer)
}

// released is called once per admitted connection when it goes away.
func (s *Server) released() {
	s.connections.Add(-1)
}

// maintenance runs on every worker's tick. Only worker 0 sweeps the index so
// the tree is not walked once per worker.
func (s *Server) maintenance(w *Worker) {
	if w.id != 0 || !s.config.LazyPrune {
		return
	}
	s.gcSweeps.Add(1)
	if removed := s.index.GarbageCollect(); removed > 0 {
		s.gcRemoved.Add(uint64(removed))
		w.logger.Debug().Int("nodes", removed).Msg("Swept empty topic nodes")
	}
}
