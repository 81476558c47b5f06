package connection

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rmacdonaldsmith/eventhub-go/pkg/topicindex"
)

// releaseThreshold is the outbound capacity above which a drained buffer is dropped
// instead of being kept for reuse.
const releaseThreshold = 64 * 1024

// Owner is the worker that services a connection. NotifyWritable may be called
// from any goroutine; it must only queue the connection and wake the owner.
type Owner interface {
	NotifyWritable(c *Connection)
}

// Connection is one accepted client socket.
//
// The protocol state and the inbound buffer belong to the owning worker and are
// only touched from its goroutine. The outbound buffer is shared: any goroutine
// may append to it through Enqueue or Deliver, and only the owner drains it.
type Connection struct {
	id         string
	sock       Socket
	peer       string
	acceptedAt time.Time
	owner      Owner

	state      State
	inbound    []byte
	readLimit  int
	attachment any

	mu       sync.Mutex
	outbound []byte
	closed   bool
}

// New creates a connection in StateInit.
func New(sock Socket, peer string, owner Owner) *Connection {
	return &Connection{
		id:         uuid.NewString(),
		sock:       sock,
		peer:       peer,
		acceptedAt: time.Now(),
		owner:      owner,
		state:      StateInit,
	}
}

func (c *Connection) ID() string            { return c.id }
func (c *Connection) Fd() int               { return c.sock.Fd() }
func (c *Connection) Peer() string          { return c.peer }
func (c *Connection) AcceptedAt() time.Time { return c.acceptedAt }
func (c *Connection) Owner() Owner          { return c.owner }

// State returns the protocol state. Owner goroutine only.
func (c *Connection) State() State {
	return c.state
}

// SetState moves the connection to next. Owner goroutine only.
func (c *Connection) SetState(next State) error {
	if c.state == StateClosed {
		return ErrConnectionClosed
	}
	if !CanTransition(c.state, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.state, next)
	}
	c.state = next
	return nil
}

// Attach stores handler-layer session data on the connection.
func (c *Connection) Attach(v any) {
	c.attachment = v
}

// Attachment returns whatever was last stored with Attach.
func (c *Connection) Attachment() any {
	return c.attachment
}

// Deliver appends payload to the outbound buffer. It reports wake=true when the
// buffer was empty before the append, meaning the owner has to be told.
func (c *Connection) Deliver(payload []byte) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, ErrConnectionClosed
	}
	if len(payload) == 0 {
		return false, nil
	}
	wake := len(c.outbound) == 0
	c.outbound = append(c.outbound, payload...)
	return wake, nil
}

// Wake tells the owner this connection has bytes to flush.
func (c *Connection) Wake() {
	if c.owner != nil {
		c.owner.NotifyWritable(c)
	}
}

// Enqueue appends payload to the outbound buffer and wakes the owner if needed.
// Safe to call from any goroutine.
func (c *Connection) Enqueue(payload []byte) error {
	wake, err := c.Deliver(payload)
	if err != nil {
		return err
	}
	if wake {
		c.Wake()
	}
	return nil
}

// Pending returns the number of buffered outbound bytes.
func (c *Connection) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outbound)
}

// Flush makes one non-blocking write attempt and returns the bytes still queued.
// A partial write drops only the written prefix. ErrWouldBlock is not an error;
// any other write failure is returned as *IOError. Owner goroutine only.
func (c *Connection) Flush() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrConnectionClosed
	}
	if len(c.outbound) == 0 {
		return 0, nil
	}

	n, err := c.sock.Write(c.outbound)
	if n > 0 {
		c.outbound = c.outbound[:copy(c.outbound, c.outbound[n:])]
		if len(c.outbound) == 0 && cap(c.outbound) > releaseThreshold {
			c.outbound = nil
		}
	}
	if err != nil && !errors.Is(err, ErrWouldBlock) {
		return len(c.outbound), &IOError{Op: "write", Err: err}
	}
	return len(c.outbound), nil
}

// SetReadLimit bounds how far ReadAvailable grows the inbound buffer. Once the
// unconsumed bytes reach n, reading stops and the rest stays in the kernel
// until the handler consumes. n <= 0 means unbounded. Owner goroutine only.
func (c *Connection) SetReadLimit(n int) {
	c.readLimit = n
}

// ReadAvailable reads until the socket would block, appending to the inbound
// buffer. scratch is the read buffer, normally shared by all of a worker's
// connections. Returns io.EOF when the peer closed. Reading also stops early
// once the read limit is reached; ErrInboundFull means nothing was consumed
// since the buffer filled. Owner goroutine only.
func (c *Connection) ReadAvailable(scratch []byte) (int, error) {
	if c.state == StateClosed {
		return 0, ErrConnectionClosed
	}

	total := 0
	for {
		buf := scratch
		if c.readLimit > 0 {
			room := c.readLimit - len(c.inbound)
			if room <= 0 {
				if total == 0 {
					return 0, ErrInboundFull
				}
				return total, nil
			}
			if room < len(buf) {
				buf = buf[:room]
			}
		}

		n, err := c.sock.Read(buf)
		if n > 0 {
			c.inbound = append(c.inbound, buf[:n]...)
			total += n
		}
		switch {
		case err == nil:
		case errors.Is(err, ErrWouldBlock):
			return total, nil
		case errors.Is(err, io.EOF):
			return total, io.EOF
		default:
			return total, &IOError{Op: "read", Err: err}
		}
	}
}

// Inbound returns the unconsumed inbound bytes. The slice is only valid until
// the next ReadAvailable or Consume.
func (c *Connection) Inbound() []byte {
	return c.inbound
}

// Consume drops the first n inbound bytes.
func (c *Connection) Consume(n int) {
	if n >= len(c.inbound) {
		c.inbound = c.inbound[:0]
		return
	}
	c.inbound = c.inbound[:copy(c.inbound, c.inbound[n:])]
}

// Closed reports whether Close has been called. Safe from any goroutine.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close discards queued output and closes the socket. Later calls are no-ops.
// Owner goroutine only.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.outbound = nil
	c.mu.Unlock()

	c.state = StateClosed
	c.inbound = nil
	return c.sock.Close()
}

// CloseWrite half-closes the socket so the peer reads end of stream after the
// bytes already flushed. Sockets without a half-close are left alone.
func (c *Connection) CloseWrite() error {
	if cw, ok := c.sock.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}

func (c *Connection) String() string {
	return fmt.Sprintf("conn(%s fd=%d peer=%s state=%s)", c.id, c.sock.Fd(), c.peer, c.state)
}

// Verify that Connection implements the Subscriber interface at compile time
var _ topicindex.Subscriber = (*Connection)(nil)
