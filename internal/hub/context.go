package hub

import (
	"context"

	"github.com/rmacdonaldsmith/eventhub-go/internal/connection"
	"github.com/rs/zerolog"
)

// Handler interprets the bytes of a connection. A worker calls it from its own
// goroutine only, so a Handler never sees two calls for the same connection at once.
type Handler interface {
	// OnOpen is called once the connection is registered with its worker.
	OnOpen(hc *HandlerContext)

	// OnData is called after new inbound bytes were read. It consumes what it can
	// parse from hc.Connection().Inbound(). A returned error tears the connection down.
	OnData(hc *HandlerContext) error

	// OnClose is called during teardown, after the connection's subscriptions
	// were removed and before its socket is closed.
	OnClose(hc *HandlerContext, cause error)
}

// InboundLimiter is implemented by a Handler that bounds how many unconsumed
// bytes a connection may buffer. The limit must leave room for the largest
// unit the handler consumes at once, or the connection is torn down with
// connection.ErrInboundFull.
type InboundLimiter interface {
	InboundLimit() int
}

// HandlerContext bundles what a Handler needs to act on one connection.
type HandlerContext struct {
	server *Server
	worker *Worker
	conn   *connection.Connection
	logger zerolog.Logger
}

func newHandlerContext(s *Server, w *Worker, c *connection.Connection) *HandlerContext {
	return &HandlerContext{
		server: s,
		worker: w,
		conn:   c,
		logger: w.logger.With().Str("conn", c.ID()).Str("peer", c.Peer()).Logger(),
	}
}

func (hc *HandlerContext) Server() *Server                    { return hc.server }
func (hc *HandlerContext) Worker() *Worker                    { return hc.worker }
func (hc *HandlerContext) Connection() *connection.Connection { return hc.conn }

// Logger returns a logger tagged with the worker and connection.
func (hc *HandlerContext) Logger() *zerolog.Logger {
	return &hc.logger
}

// Subscribe registers the connection for filter.
func (hc *HandlerContext) Subscribe(ctx context.Context, filter string) error {
	return hc.server.index.Subscribe(ctx, filter, hc.conn)
}

// Unsubscribe removes the connection's subscription to filter.
func (hc *HandlerContext) Unsubscribe(ctx context.Context, filter string) error {
	return hc.server.index.Unsubscribe(ctx, filter, hc.conn)
}

// UnsubscribeAll removes every subscription the connection holds.
func (hc *HandlerContext) UnsubscribeAll(ctx context.Context) (int, error) {
	return hc.server.index.UnsubscribeAll(ctx, hc.conn)
}

// Subscriptions returns the filters the connection currently holds.
func (hc *HandlerContext) Subscriptions() []string {
	return hc.server.index.SubscriptionsOf(hc.conn)
}

// Publish routes payload to every connection subscribed to topic.
func (hc *HandlerContext) Publish(ctx context.Context, topic string, payload []byte) (int, error) {
	return hc.server.Publish(ctx, topic, payload)
}

// Send queues payload on this connection only.
func (hc *HandlerContext) Send(payload []byte) error {
	return hc.conn.Enqueue(payload)
}
