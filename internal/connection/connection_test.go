package connection

import (
	"errors"
	"io"
	"sync"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSocket accepts at most capacity bytes per Write and would-block once
// capacity is zero. Reads are served from chunks.
type fakeSocket struct {
	mu       sync.Mutex
	capacity int
	written  []byte
	writeErr error
	chunks   [][]byte
	readErr  error
	closed   bool
	writes   int
}

func (s *fakeSocket) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	if s.capacity == 0 {
		return 0, ErrWouldBlock
	}
	n := len(p)
	if n > s.capacity {
		n = s.capacity
	}
	s.written = append(s.written, p[:n]...)
	s.capacity -= n
	if n < len(p) {
		return n, ErrWouldBlock
	}
	return n, nil
}

func (s *fakeSocket) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.chunks) == 0 {
		if s.readErr != nil {
			return 0, s.readErr
		}
		return 0, ErrWouldBlock
	}
	n := copy(p, s.chunks[0])
	if n == len(s.chunks[0]) {
		s.chunks = s.chunks[1:]
	} else {
		s.chunks[0] = s.chunks[0][n:]
	}
	return n, nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSocket) Fd() int { return 7 }

func (s *fakeSocket) allow(n int) {
	s.mu.Lock()
	s.capacity += n
	s.mu.Unlock()
}

func (s *fakeSocket) Written() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.written)
}

type recordingOwner struct {
	mu       sync.Mutex
	notified []*Connection
}

func (o *recordingOwner) NotifyWritable(c *Connection) {
	o.mu.Lock()
	o.notified = append(o.notified, c)
	o.mu.Unlock()
}

func (o *recordingOwner) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.notified)
}

func TestConnection_New(t *testing.T) {
	sock := &fakeSocket{}
	c := New(sock, "127.0.0.1:5000", nil)

	assert.NotEmpty(t, c.ID())
	assert.Equal(t, StateInit, c.State())
	assert.Equal(t, 7, c.Fd())
	assert.Equal(t, "127.0.0.1:5000", c.Peer())
	assert.False(t, c.AcceptedAt().IsZero())
	assert.NotEqual(t, c.ID(), New(sock, "", nil).ID())
}

func TestConnection_SetState_ForwardSequence(t *testing.T) {
	c := New(&fakeSocket{}, "", nil)

	for _, next := range []State{StateHandshakeParse, StateHandshakeOK, StateChannelParse, StateChannelOK} {
		require.NoError(t, c.SetState(next))
		assert.Equal(t, next, c.State())
	}
}

func TestConnection_SetState_RejectsSkipsAndRevisits(t *testing.T) {
	c := New(&fakeSocket{}, "", nil)

	err := c.SetState(StateChannelOK)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateInit, c.State())

	require.NoError(t, c.SetState(StateHandshakeParse))
	assert.ErrorIs(t, c.SetState(StateInit), ErrInvalidTransition)
	assert.ErrorIs(t, c.SetState(StateHandshakeParse), ErrInvalidTransition)
}

func TestConnection_SetState_ClosedIsAbsorbing(t *testing.T) {
	c := New(&fakeSocket{}, "", nil)
	require.NoError(t, c.SetState(StateClosed))

	assert.ErrorIs(t, c.SetState(StateClosed), ErrConnectionClosed)
	assert.ErrorIs(t, c.SetState(StateHandshakeParse), ErrConnectionClosed)
	assert.Equal(t, StateClosed, c.State())
}

func TestConnection_Enqueue_WakesOnlyWhenEmpty(t *testing.T) {
	owner := &recordingOwner{}
	sock := &fakeSocket{}
	c := New(sock, "", owner)

	require.NoError(t, c.Enqueue([]byte("a")))
	require.NoError(t, c.Enqueue([]byte("b")))
	assert.Equal(t, 1, owner.count())
	assert.Equal(t, 2, c.Pending())

	sock.allow(10)
	remaining, err := c.Flush()
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	require.NoError(t, c.Enqueue([]byte("c")))
	assert.Equal(t, 2, owner.count())
}

func TestConnection_Enqueue_EmptyPayload(t *testing.T) {
	owner := &recordingOwner{}
	c := New(&fakeSocket{}, "", owner)

	require.NoError(t, c.Enqueue(nil))
	assert.Equal(t, 0, owner.count())
	assert.Equal(t, 0, c.Pending())
}

func TestConnection_Flush_PartialWritesPreserveOrder(t *testing.T) {
	sock := &fakeSocket{}
	c := New(sock, "", &recordingOwner{})

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, c.Enqueue([]byte(p)))
	}

	// Peer refuses writes: nothing is lost, nothing is an error.
	remaining, err := c.Flush()
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)
	assert.Empty(t, sock.Written())

	sock.allow(1)
	remaining, err = c.Flush()
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)
	assert.Equal(t, "a", sock.Written())

	sock.allow(1)
	remaining, err = c.Flush()
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	sock.allow(5)
	remaining, err = c.Flush()
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
	assert.Equal(t, "abc", sock.Written())

	remaining, err = c.Flush()
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestConnection_Flush_ReleasesLargeBuffer(t *testing.T) {
	sock := &fakeSocket{capacity: 1 << 20}
	c := New(sock, "", nil)

	require.NoError(t, c.Enqueue(make([]byte, releaseThreshold*2)))
	remaining, err := c.Flush()
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	c.mu.Lock()
	assert.Nil(t, c.outbound)
	c.mu.Unlock()
}

func TestConnection_Flush_HardErrorTearsDown(t *testing.T) {
	sock := &fakeSocket{writeErr: syscall.EPIPE}
	c := New(sock, "", &recordingOwner{})
	for _, s := range []State{StateHandshakeParse, StateHandshakeOK, StateChannelParse, StateChannelOK} {
		require.NoError(t, c.SetState(s))
	}

	require.NoError(t, c.Enqueue([]byte("payload")))
	_, err := c.Flush()

	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "write", ioErr.Op)
	assert.ErrorIs(t, err, syscall.EPIPE)

	require.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())
	assert.True(t, sock.closed)

	// A publish racing with teardown is dropped whole.
	assert.ErrorIs(t, c.Enqueue([]byte("late")), ErrConnectionClosed)
	assert.Equal(t, 0, c.Pending())
	_, err = c.Flush()
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestConnection_ConcurrentEnqueueIsWholePayload(t *testing.T) {
	sock := &fakeSocket{capacity: 1 << 20}
	owner := &recordingOwner{}
	c := New(sock, "", owner)

	const writers = 8
	const perWriter = 100
	payload := []byte("0123456789")

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				_ = c.Enqueue(payload)
			}
		}()
	}
	wg.Wait()

	remaining, err := c.Flush()
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	written := sock.Written()
	require.Len(t, written, writers*perWriter*len(payload))
	for i := 0; i < len(written); i += len(payload) {
		assert.Equal(t, string(payload), written[i:i+len(payload)])
	}
}

func TestConnection_ReadAvailable(t *testing.T) {
	sock := &fakeSocket{chunks: [][]byte{[]byte("hello "), []byte("world")}}
	c := New(sock, "", nil)

	n, err := c.ReadAvailable(make([]byte, 4))
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Equal(t, "hello world", string(c.Inbound()))

	c.Consume(6)
	assert.Equal(t, "world", string(c.Inbound()))
	c.Consume(100)
	assert.Empty(t, c.Inbound())
}

func TestConnection_ReadAvailable_EOF(t *testing.T) {
	sock := &fakeSocket{chunks: [][]byte{[]byte("bye")}, readErr: io.EOF}
	c := New(sock, "", nil)

	n, err := c.ReadAvailable(make([]byte, 16))
	assert.Equal(t, 3, n)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "bye", string(c.Inbound()))
}

func TestConnection_ReadAvailable_DrainsPastShortReads(t *testing.T) {
	sock := &fakeSocket{chunks: [][]byte{[]byte("ab"), []byte("cd"), []byte("ef")}, readErr: io.EOF}
	c := New(sock, "", nil)

	n, err := c.ReadAvailable(make([]byte, 64))
	assert.Equal(t, 6, n)
	assert.ErrorIs(t, err, io.EOF, "EOF behind short reads is reported in the same call")
	assert.Equal(t, "abcdef", string(c.Inbound()))
}

func TestConnection_ReadLimit(t *testing.T) {
	sock := &fakeSocket{chunks: [][]byte{[]byte("0123456789")}}
	c := New(sock, "", nil)
	c.SetReadLimit(4)

	n, err := c.ReadAvailable(make([]byte, 64))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "0123", string(c.Inbound()))

	n, err = c.ReadAvailable(make([]byte, 64))
	assert.ErrorIs(t, err, ErrInboundFull)
	assert.Equal(t, 0, n, "a full buffer reads nothing more")

	c.Consume(3)
	n, err = c.ReadAvailable(make([]byte, 64))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "3456", string(c.Inbound()))

	c.SetReadLimit(0)
	n, err = c.ReadAvailable(make([]byte, 2))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "3456789", string(c.Inbound()))
}

func TestConnection_ReadAvailable_HardError(t *testing.T) {
	sock := &fakeSocket{readErr: syscall.ECONNRESET}
	c := New(sock, "", nil)

	_, err := c.ReadAvailable(make([]byte, 16))
	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr))
	assert.Equal(t, "read", ioErr.Op)
	assert.ErrorIs(t, err, syscall.ECONNRESET)
}

func TestConnection_Close_Idempotent(t *testing.T) {
	c := New(&fakeSocket{}, "", nil)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, c.Closed())

	_, err := c.ReadAvailable(make([]byte, 8))
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestConnection_Attachment(t *testing.T) {
	c := New(&fakeSocket{}, "", nil)
	assert.Nil(t, c.Attachment())

	c.Attach("session")
	assert.Equal(t, "session", c.Attachment())
}
