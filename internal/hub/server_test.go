package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rmacdonaldsmith/eventhub-go/internal/connection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return NewConfig("127.0.0.1:0").
		WithWorkers(2).
		WithMaintenanceInterval(20 * time.Millisecond)
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(nil, &lineHandler{})
	assert.Error(t, err)

	_, err = NewServer(testConfig(), nil)
	assert.ErrorIs(t, err, ErrNilHandler)

	_, err = NewServer(NewConfig(""), &lineHandler{})
	assert.ErrorIs(t, err, ErrInvalidListenAddress)
}

func TestServer_StartStop(t *testing.T) {
	srv, err := NewServer(testConfig(), &lineHandler{})
	require.NoError(t, err)

	assert.Nil(t, srv.Addr())
	assert.False(t, srv.Health().Healthy)

	require.NoError(t, srv.Start(context.Background()))
	require.NoError(t, srv.Start(context.Background()), "Start is idempotent")

	require.NotNil(t, srv.Addr())
	assert.True(t, srv.Running())
	assert.Len(t, srv.Workers(), 2)

	health := srv.Health()
	assert.True(t, health.Healthy)
	assert.Equal(t, srv.Addr().String(), health.Address)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	require.NoError(t, srv.Stop(ctx), "Stop is idempotent")
	assert.False(t, srv.Running())

	require.NoError(t, srv.Close())
	assert.ErrorIs(t, srv.Start(context.Background()), ErrServerClosed)
	assert.Equal(t, "hub closed", srv.Health().Message)
}

func TestServer_StartFailsWhenAddressInUse(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	srv, err := NewServer(NewConfig(l.Addr().String()).WithWorkers(1), &lineHandler{})
	require.NoError(t, err)

	err = srv.Start(context.Background())
	assert.Error(t, err)
	assert.False(t, srv.Running())
}

func TestServer_PublishAcrossWorkers(t *testing.T) {
	srv, _ := startTestServer(t, testConfig())

	subscriber := dial(t, srv)
	publisher := dial(t, srv)

	assert.Equal(t, "OK", subscriber.call("SUB chat/+"))

	// Round-robin puts the two connections on different workers.
	require.Eventually(t, func() bool {
		stats := srv.Stats()
		return stats.Workers[0].Connections == 1 && stats.Workers[1].Connections == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, "OK 1", publisher.call("PUB chat/room1 hello"))
	assert.Equal(t, "chat/room1 hello", subscriber.readLine())

	assert.Equal(t, "OK 0", publisher.call("PUB chat/room1/extra hello"))
	assert.Equal(t, "OK 1", publisher.call("PUB chat/room2 again"))
	assert.Equal(t, "chat/room2 again", subscriber.readLine())

	stats := srv.Stats()
	assert.Equal(t, uint64(3), stats.Publishes)
	assert.Equal(t, uint64(2), stats.Deliveries)
	assert.Equal(t, int64(2), stats.Connections)
	assert.Equal(t, 1, stats.Subscribers)
}

func TestServer_ValidationErrorsKeepConnectionOpen(t *testing.T) {
	srv, _ := startTestServer(t, testConfig())
	client := dial(t, srv)

	assert.True(t, strings.HasPrefix(client.call("SUB a/#/b"), "ERR invalid topic filter"))
	assert.True(t, strings.HasPrefix(client.call("PUB a/+ x"), "ERR invalid topic name"))
	assert.True(t, strings.HasPrefix(client.call("UNSUB a/b"), "ERR subscription not found"))
	assert.Equal(t, "OK", client.call("SUB a/b"))
}

func TestServer_DisconnectRemovesSubscriptions(t *testing.T) {
	srv, handler := startTestServer(t, testConfig())

	client := dial(t, srv)
	assert.Equal(t, "OK", client.call("SUB a/b"))
	assert.Equal(t, "OK", client.call("SUB x/#"))
	assert.True(t, srv.Index().HasNode("a/b"))

	client.conn.Close()

	require.Eventually(t, func() bool {
		_, closed := handler.counts()
		return closed == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, srv.Index().NodeCount())
	assert.Equal(t, int64(0), srv.Stats().Connections)

	n, err := srv.Publish(context.Background(), "a/b", []byte("late\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestServer_HandlerErrorFlushesReplyThenCloses(t *testing.T) {
	srv, handler := startTestServer(t, testConfig())
	client := dial(t, srv)

	assert.Equal(t, "OK", client.call("SUB a"))
	assert.Equal(t, "BYE", client.call("QUIT"))

	client.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err := client.r.ReadByte()
	assert.ErrorIs(t, err, io.EOF)

	require.Eventually(t, func() bool {
		_, closed := handler.counts()
		return closed == 1
	}, 2*time.Second, 5*time.Millisecond)

	handler.mu.Lock()
	assert.True(t, errors.Is(handler.causes[0], errQuit))
	handler.mu.Unlock()
	assert.False(t, srv.Index().HasNode("a"))
}

func TestServer_InboundLimitBoundsBuffering(t *testing.T) {
	handler := &limitedLineHandler{limit: 16}
	srv, err := NewServer(testConfig(), handler)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Close() })

	client := dial(t, srv)

	// A batch far larger than the limit is still served line by line.
	var batch strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&batch, "SUB t%d\n", i)
	}
	_, err = client.conn.Write([]byte(batch.String()))
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		require.Equal(t, "OK", client.readLine())
	}
	topics, err := srv.Index().GetTopicCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, topics)

	// A single line that cannot fit is never consumed, so the connection goes.
	client.send(strings.Repeat("x", 64))
	client.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = client.r.ReadByte()
	assert.Error(t, err, "expected EOF or reset")

	require.Eventually(t, func() bool {
		_, closed := handler.counts()
		return closed == 1
	}, 2*time.Second, 5*time.Millisecond)

	handler.mu.Lock()
	assert.ErrorIs(t, handler.causes[0], connection.ErrInboundFull)
	handler.mu.Unlock()
}

func TestServer_MaxConnectionsRefusesExtra(t *testing.T) {
	srv, _ := startTestServer(t, testConfig().WithMaxConnections(1))

	first := dial(t, srv)
	assert.Equal(t, "OK", first.call("SUB a"))

	second := dial(t, srv)
	second.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err := second.r.ReadByte()
	assert.Error(t, err, "refused connection must be closed by the server")

	require.Eventually(t, func() bool {
		return srv.Stats().Rejected == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Capacity frees up once the first client leaves.
	first.conn.Close()
	require.Eventually(t, func() bool {
		return srv.Stats().Connections == 0
	}, 2*time.Second, 5*time.Millisecond)

	third := dial(t, srv)
	assert.Equal(t, "OK", third.call("SUB b"))
}

func TestServer_BackpressurePreservesOrder(t *testing.T) {
	srv, _ := startTestServer(t, testConfig())

	subscriber := dial(t, srv)
	assert.Equal(t, "OK", subscriber.call("SUB bulk"))

	// Publish far more than the socket buffers hold while the subscriber is not reading.
	const messages = 2000
	padding := strings.Repeat("x", 2048)
	for i := 0; i < messages; i++ {
		_, err := srv.Publish(context.Background(), "bulk", []byte(fmt.Sprintf("bulk %d %s\n", i, padding)))
		require.NoError(t, err)
	}

	for i := 0; i < messages; i++ {
		line := subscriber.readLine()
		require.Equal(t, fmt.Sprintf("bulk %d %s", i, padding), line)
	}
}

func TestServer_ManyClientsFanOut(t *testing.T) {
	srv, _ := startTestServer(t, testConfig().WithWorkers(4))

	const clients = 20
	subs := make([]*testClient, clients)
	for i := range subs {
		subs[i] = dial(t, srv)
		filter := "news/#"
		if i%2 == 1 {
			filter = "news/+"
		}
		assert.Equal(t, "OK", subs[i].call("SUB "+filter))
	}

	n, err := srv.Publish(context.Background(), "news/today", []byte("news/today headline\n"))
	require.NoError(t, err)
	assert.Equal(t, clients, n)

	for _, c := range subs {
		assert.Equal(t, "news/today headline", c.readLine())
	}
}

func TestServer_LazyPruneSweptByMaintenance(t *testing.T) {
	srv, _ := startTestServer(t, testConfig().WithLazyPrune(true))

	client := dial(t, srv)
	assert.Equal(t, "OK", client.call("SUB a/b/c"))
	assert.Equal(t, "OK", client.call("UNSUB a/b/c"))

	require.Eventually(t, func() bool {
		return srv.Index().NodeCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	stats := srv.Stats()
	assert.Positive(t, stats.GCSweeps)
	assert.Equal(t, uint64(3), stats.GCNodesRemoved)
}

func TestServer_StopClosesClients(t *testing.T) {
	srv, handler := startTestServer(t, testConfig())

	client := dial(t, srv)
	assert.Equal(t, "OK", client.call("SUB a"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	client.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err := client.r.ReadByte()
	assert.Error(t, err)

	opened, closed := handler.counts()
	assert.Equal(t, opened, closed)
	assert.Equal(t, 0, srv.Index().NodeCount())
}
