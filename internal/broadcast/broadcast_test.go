package broadcast

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()

	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // random port
		NoLog:  true,
		NoSigs: true,
	}
	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server did not start")
	}
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	return server
}

func TestNATSBroadcasterPublishes(t *testing.T) {
	server := startNATSServer(t)

	sub, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer sub.Close()

	received := make(chan *nats.Msg, 1)
	_, err = sub.ChanSubscribe("chat.responses", received)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	b, err := NewNATSBroadcaster(server.ClientURL(), zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	err = b.Broadcast(context.Background(), "chat.responses", []byte(`{"sessionId":"abc"}`))
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, "chat.responses", msg.Subject)
		assert.JSONEq(t, `{"sessionId":"abc"}`, string(msg.Data))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestNoopBroadcaster(t *testing.T) {
	var b Broadcaster = Noop{}
	assert.NoError(t, b.Broadcast(context.Background(), "anything", []byte("x")))
	b.Close()
}
