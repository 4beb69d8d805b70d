package bus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/papercast/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startTestBus(t *testing.T) (*EmbeddedServer, *Client) {
	t.Helper()
	cfg := config.Default().Bus
	cfg.Embedded = true
	cfg.Port = -1
	cfg.StoreDir = t.TempDir()

	srv, err := StartEmbedded(cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)

	cfg.Servers = []string{srv.ClientURL()}
	client, err := Connect(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return srv, client
}

func TestStartEmbeddedDisabled(t *testing.T) {
	srv, err := StartEmbedded(config.BusConfig{}, discardLogger())
	require.NoError(t, err)
	assert.Nil(t, srv)
	srv.Shutdown()
}

func TestConnectRequiresServers(t *testing.T) {
	_, err := Connect(context.Background(), config.BusConfig{}, discardLogger())
	assert.Error(t, err)
}

func TestPublishStatus(t *testing.T) {
	_, client := startTestBus(t)
	assert.True(t, client.Healthy())

	msgs := make(chan *nats.Msg, 1)
	sub, err := client.Conn().ChanSubscribe("papercast.episodes.*.status", msgs)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, client.Conn().Flush())

	client.PublishStatus(context.Background(), StatusEvent{EpisodeID: "01HX", Status: "synthesizing", Percent: 0.5})

	select {
	case msg := <-msgs:
		assert.Equal(t, "papercast.episodes.01HX.status", msg.Subject)
		var ev StatusEvent
		require.NoError(t, json.Unmarshal(msg.Data, &ev))
		assert.Equal(t, "synthesizing", ev.Status)
		assert.False(t, ev.At.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("no status event received")
	}
}

func TestJetStreamAvailable(t *testing.T) {
	_, client := startTestBus(t)
	_, err := client.JetStream().AccountInfo()
	assert.NoError(t, err)
}

func TestNilClientPublishIsNoop(t *testing.T) {
	var c *Client
	c.PublishStatus(context.Background(), StatusEvent{EpisodeID: "x"})
	assert.False(t, c.Healthy())
}
