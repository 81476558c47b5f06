package hub

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errQuit = errors.New("client quit")

// lineHandler speaks a newline-delimited test protocol:
//
//	SUB <filter>        -> OK | ERR <reason>
//	UNSUB <filter>      -> OK | ERR <reason>
//	PUB <topic> <text>  -> OK <deliveries>, and "<topic> <text>" to every subscriber
//	QUIT                -> BYE, then the connection is closed
type lineHandler struct {
	mu     sync.Mutex
	opened int
	closed int
	causes []error
}

func (h *lineHandler) OnOpen(hc *HandlerContext) {
	h.mu.Lock()
	h.opened++
	h.mu.Unlock()
}

func (h *lineHandler) OnData(hc *HandlerContext) error {
	c := hc.Connection()
	ctx := context.Background()

	for {
		in := c.Inbound()
		i := bytes.IndexByte(in, '\n')
		if i < 0 {
			return nil
		}
		line := strings.TrimSpace(string(in[:i]))
		c.Consume(i + 1)

		cmd, rest, _ := strings.Cut(line, " ")
		switch cmd {
		case "SUB":
			reply(hc, hc.Subscribe(ctx, rest), "OK")
		case "UNSUB":
			reply(hc, hc.Unsubscribe(ctx, rest), "OK")
		case "PUB":
			topic, text, _ := strings.Cut(rest, " ")
			n, err := hc.Publish(ctx, topic, []byte(topic+" "+text+"\n"))
			reply(hc, err, fmt.Sprintf("OK %d", n))
		case "QUIT":
			hc.Send([]byte("BYE\n"))
			return errQuit
		default:
			hc.Send([]byte("ERR unknown command\n"))
		}
	}
}

func reply(hc *HandlerContext, err error, ok string) {
	if err != nil {
		hc.Send([]byte("ERR " + err.Error() + "\n"))
		return
	}
	hc.Send([]byte(ok + "\n"))
}

func (h *lineHandler) OnClose(hc *HandlerContext, cause error) {
	h.mu.Lock()
	h.closed++
	h.causes = append(h.causes, cause)
	h.mu.Unlock()
}

func (h *lineHandler) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opened, h.closed
}

// limitedLineHandler is a lineHandler that caps unconsumed input per connection.
type limitedLineHandler struct {
	lineHandler
	limit int
}

func (h *limitedLineHandler) InboundLimit() int { return h.limit }

func startTestServer(t *testing.T, config *Config) (*Server, *lineHandler) {
	t.Helper()
	handler := &lineHandler{}
	srv, err := NewServer(config, handler)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Close() })
	return srv, handler
}

type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, srv *Server) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *testClient) send(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(c.t, err)
}

func (c *testClient) readLine() string {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := c.r.ReadString('\n')
	require.NoError(c.t, err)
	return strings.TrimSuffix(line, "\n")
}

func (c *testClient) call(line string) string {
	c.t.Helper()
	c.send(line)
	return c.readLine()
}
