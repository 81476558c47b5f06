package hub

import (
	"context"
	"errors"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rmacdonaldsmith/eventhub-go/internal/connection"
	"github.com/rmacdonaldsmith/eventhub-go/internal/netpoll"
	"github.com/rs/zerolog"
)

// errPeerHangup is the teardown cause when the poller reports a hangup with no data.
var errPeerHangup = errors.New("peer hung up")

// errServerStopping is the teardown cause for connections still open at shutdown.
var errServerStopping = errors.New("server stopping")

type admission struct {
	fd   int
	peer string
}

// Worker runs one event loop over one poller and a shard of connections.
//
// Everything not guarded by mu is owned by the worker goroutine. Other
// goroutines reach the worker only through the pending lists and Wake.
type Worker struct {
	id     int
	server *Server
	poller *netpoll.Poller
	logger zerolog.Logger

	shard       map[int]*connection.Connection
	writeArmed  map[int]bool
	contexts    map[int]*HandlerContext
	listenFd    int
	listenPause bool
	scratch     []byte
	events      []netpoll.Event

	mu         sync.Mutex
	admissions []admission
	writable   []*connection.Connection

	size     atomic.Int64
	stopping atomic.Bool
	done     chan struct{}
}

func newWorker(id int, s *Server) (*Worker, error) {
	poller, err := netpoll.New(s.config.MaxEvents)
	if err != nil {
		return nil, err
	}
	return &Worker{
		id:         id,
		server:     s,
		poller:     poller,
		logger:     s.logger.With().Int("worker", id).Logger(),
		shard:      make(map[int]*connection.Connection),
		writeArmed: make(map[int]bool),
		contexts:   make(map[int]*HandlerContext),
		listenFd:   -1,
		scratch:    make([]byte, s.config.ReadBufferSize),
		events:     make([]netpoll.Event, 0, s.config.MaxEvents),
		done:       make(chan struct{}),
	}, nil
}

// ID returns the worker's index in the pool
func (w *Worker) ID() int {
	return w.id
}

// ConnectionCount returns the current shard size. Safe from any goroutine.
func (w *Worker) ConnectionCount() int {
	return int(w.size.Load())
}

// delegateListener makes this worker accept on fd.
func (w *Worker) delegateListener(fd int) error {
	if err := w.poller.Add(fd, netpoll.Readable); err != nil {
		return err
	}
	w.listenFd = fd
	return nil
}

// NotifyWritable queues c for a flush and wakes the worker. The bytes are
// already in c's buffer when this is called.
func (w *Worker) NotifyWritable(c *connection.Connection) {
	w.mu.Lock()
	w.writable = append(w.writable, c)
	w.mu.Unlock()
	w.wake()
}

// admit queues an accepted descriptor for registration by this worker.
func (w *Worker) admit(fd int, peer string) {
	w.mu.Lock()
	w.admissions = append(w.admissions, admission{fd: fd, peer: peer})
	w.mu.Unlock()
	w.wake()
}

func (w *Worker) wake() {
	if err := w.poller.Wake(); err != nil && !errors.Is(err, netpoll.ErrPollerClosed) {
		w.logger.Error().Err(err).Msg("Failed to wake worker")
	}
}

func (w *Worker) stop() {
	w.stopping.Store(true)
	w.wake()
}

func (w *Worker) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)

	interval := w.server.config.MaintenanceInterval
	lastMaintenance := time.Now()

	w.logger.Debug().Msg("Worker started")
	for {
		events, err := w.poller.Wait(w.events[:0], interval)
		if err != nil {
			if errors.Is(err, netpoll.ErrPollerClosed) {
				return
			}
			w.logger.Error().Err(err).Msg("Poller wait failed")
			continue
		}
		if w.stopping.Load() {
			w.shutdown()
			return
		}

		for _, ev := range events {
			switch ev.Fd {
			case w.poller.WakeFd():
				w.poller.DrainWake()
				w.drainPending()
			case w.listenFd:
				w.acceptAll()
			default:
				w.handle(ev)
			}
		}

		if now := time.Now(); now.Sub(lastMaintenance) >= interval {
			lastMaintenance = now
			w.maintenance()
		}
	}
}

// drainPending registers queued admissions and flushes connections that were
// marked write-ready by other goroutines.
func (w *Worker) drainPending() {
	w.mu.Lock()
	admissions := w.admissions
	writable := w.writable
	w.admissions = nil
	w.writable = nil
	w.mu.Unlock()

	for _, a := range admissions {
		w.register(a.fd, a.peer)
	}
	for _, c := range writable {
		if w.shard[c.Fd()] != c {
			continue // torn down since it was queued
		}
		if err := w.flush(c); err != nil {
			w.teardown(c, err)
		}
	}
}

func (w *Worker) acceptAll() {
	for {
		fd, peer, err := acceptConn(w.listenFd)
		switch {
		case err == nil:
			w.server.assign(w, fd, peer)
		case isWouldBlock(err):
			return
		case isTemporaryAccept(err):
			continue
		case isResourceExhausted(err):
			// Stop watching the listener until the next maintenance tick,
			// otherwise a level-triggered poller spins on the pending accept.
			w.logger.Warn().Err(err).Msg("Accept failed: resources exhausted, pausing listener")
			if err := w.poller.Modify(w.listenFd, 0); err == nil {
				w.listenPause = true
			}
			return
		default:
			w.logger.Error().Err(err).Msg("Accept failed")
			return
		}
	}
}

// register sets up a freshly accepted descriptor as a connection in StateInit.
func (w *Worker) register(fd int, peer string) {
	sock, err := connection.NewFDSocket(fd)
	if err != nil {
		w.logger.Error().Err(err).Str("peer", peer).Msg("Failed to prepare socket")
		closeFd(fd)
		w.server.released()
		return
	}

	c := connection.New(sock, peer, w)
	c.SetReadLimit(w.server.readLimit)
	if err := w.poller.Add(fd, netpoll.Readable); err != nil {
		w.logger.Error().Err(err).Str("peer", peer).Msg("Failed to register connection")
		c.Close()
		w.server.released()
		return
	}

	hc := newHandlerContext(w.server, w, c)
	w.shard[fd] = c
	w.contexts[fd] = hc
	w.size.Add(1)

	hc.logger.Debug().Int("fd", fd).Msg("Connection admitted")
	w.server.handler.OnOpen(hc)
}

func (w *Worker) handle(ev netpoll.Event) {
	c, ok := w.shard[ev.Fd]
	if !ok {
		return
	}

	if ev.Events.Has(netpoll.Readable) {
		if err := w.onReadable(c); err != nil {
			w.teardown(c, err)
			return
		}
	}
	if ev.Events.Has(netpoll.Writable) {
		if err := w.flush(c); err != nil {
			w.teardown(c, err)
			return
		}
	}
	if ev.Events.Has(netpoll.Hangup) && !ev.Events.Has(netpoll.Readable) {
		w.teardown(c, errPeerHangup)
	}
}

func (w *Worker) onReadable(c *connection.Connection) error {
	n, readErr := c.ReadAvailable(w.scratch)
	if n > 0 {
		if err := w.server.handler.OnData(w.contexts[c.Fd()]); err != nil {
			return err
		}
	}
	if readErr != nil {
		return readErr
	}
	return w.flush(c)
}

// flush writes what the socket accepts and arms write interest only while
// bytes remain queued.
func (w *Worker) flush(c *connection.Connection) error {
	remaining, err := c.Flush()
	if err != nil {
		return err
	}
	return w.setWriteInterest(c, remaining > 0)
}

func (w *Worker) setWriteInterest(c *connection.Connection, on bool) error {
	fd := c.Fd()
	if w.writeArmed[fd] == on {
		return nil
	}
	events := netpoll.Readable
	if on {
		events |= netpoll.Writable
	}
	if err := w.poller.Modify(fd, events); err != nil {
		return &connection.IOError{Op: "poller modify", Err: err}
	}
	w.writeArmed[fd] = on
	return nil
}

// teardown removes c from the index, the poller and the shard, then closes it.
// Subscriptions go first so no publish can reach c once its socket is gone.
func (w *Worker) teardown(c *connection.Connection, cause error) {
	fd := c.Fd()
	if w.shard[fd] != c {
		return
	}
	hc := w.contexts[fd]

	var ioErr *connection.IOError
	if !errors.As(cause, &ioErr) && !errors.Is(cause, io.EOF) && !errors.Is(cause, errPeerHangup) {
		// Best effort for replies the handler queued before asking to close.
		// The half-close puts a FIN behind them before the socket goes away.
		if remaining, err := c.Flush(); err == nil && remaining == 0 {
			_ = c.CloseWrite()
		}
	}

	removed, err := w.server.index.UnsubscribeAll(context.Background(), c)
	if err != nil {
		hc.logger.Error().Err(err).Msg("Failed to remove subscriptions")
	}
	w.server.handler.OnClose(hc, cause)

	if err := w.poller.Remove(fd); err != nil && !errors.Is(err, netpoll.ErrPollerClosed) {
		hc.logger.Debug().Err(err).Msg("Failed to deregister connection")
	}
	delete(w.shard, fd)
	delete(w.contexts, fd)
	delete(w.writeArmed, fd)
	w.size.Add(-1)
	w.server.released()

	if err := c.Close(); err != nil {
		hc.logger.Debug().Err(err).Msg("Close failed")
	}

	event := hc.logger.Debug()
	if cause != nil && !errors.Is(cause, io.EOF) && !errors.Is(cause, errServerStopping) {
		event = hc.logger.Info().Err(cause)
	}
	event.Int("subscriptions", removed).Msg("Connection closed")
}

func (w *Worker) maintenance() {
	if w.listenPause {
		if err := w.poller.Modify(w.listenFd, netpoll.Readable); err == nil {
			w.listenPause = false
		}
	}
	w.server.maintenance(w)
}

func (w *Worker) shutdown() {
	w.drainPending()
	for _, c := range w.shard {
		w.teardown(c, errServerStopping)
	}
	if err := w.poller.Close(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to close poller")
	}
	w.logger.Debug().Msg("Worker stopped")
}

// Verify that Worker implements connection.Owner at compile time
var _ connection.Owner = (*Worker)(nil)
