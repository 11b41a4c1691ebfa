//go:build integration

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	natssrv "github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SHESHU45/UrumiAssignment/internal/model"
)

func startEmbeddedNATS(t *testing.T) string {
	t.Helper()

	srv, err := natssrv.NewServer(&natssrv.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	require.NoError(t, err)

	go srv.Start()
	require.True(t, srv.ReadyForConnections(10*time.Second), "nats server did not become ready")

	t.Cleanup(func() {
		srv.Shutdown()
		srv.WaitForShutdown()
	})

	return fmt.Sprintf("nats://%s", srv.Addr().String())
}

func TestNATSPublisher_PublishesToStatusSubject(t *testing.T) {
	url := startEmbeddedNATS(t)
	ctx := context.Background()

	publisher, err := NewNATSPublisher(ctx, NATSConfig{
		URL:           url,
		Name:          "store-platform-test",
		SubjectPrefix: "store-platform.stores",
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = publisher.Close() })

	// A second publisher reuses the existing stream.
	second, err := NewNATSPublisher(ctx, NATSConfig{URL: url, SubjectPrefix: "store-platform.stores"}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, second.Close())

	conn, err := natsgo.Connect(url)
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	js, err := conn.JetStream()
	require.NoError(t, err)

	require.NoError(t, publisher.PublishStore(ctx, model.Store{
		ID:        "abc12345",
		Name:      "acme",
		Status:    model.StatusProvisioning,
		Namespace: "store-abc12345",
	}))
	require.NoError(t, publisher.PublishStore(ctx, model.Store{
		ID:        "abc12345",
		Name:      "acme",
		Status:    model.StatusReady,
		Namespace: "store-abc12345",
	}))

	msg, err := js.GetLastMsg(defaultStreamName, "store-platform.stores.ready")
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(msg.Data, &event))
	assert.Equal(t, "abc12345", event.Subject)
	assert.Equal(t, storeLifecycleEventType, event.Type)

	info, err := js.StreamInfo(defaultStreamName)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), info.State.Msgs)
}

func TestNATSPublisher_ConnectFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := NewNATSPublisher(ctx, NATSConfig{
		URL:             "nats://127.0.0.1:1",
		SubjectPrefix:   "stores",
		ConnectAttempts: 2,
		ConnectTimeout:  100 * time.Millisecond,
	}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connecting to nats")
}
