package deliver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/anthrax3/sentry/internal/digest"
	"github.com/anthrax3/sentry/internal/personalize"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // Random port
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func testUserDigests(t *testing.T) []personalize.UserDigest {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []digest.Record{
		{Event: digest.Event{ID: "a", GroupID: 1, Filename: "hello.py"}, RuleIDs: []int64{100}, Timestamp: now},
		{Event: digest.Event{ID: "b", GroupID: 2, URL: "http://helloworld.org"}, Timestamp: now.Add(-time.Hour)},
	}
	d := digest.Build(7, records)
	return []personalize.UserDigest{
		{UserID: 1, Digest: d},
		{UserID: 2, Digest: d.Filter(func(e digest.Event) bool { return e.ID == "b" })},
	}
}

func TestPublish(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync("digests.personalized.>")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	pub, err := NewPublisher(nc, "digests.personalized", zap.NewNop())
	require.NoError(t, err)

	digests := testUserDigests(t)
	require.NoError(t, pub.Publish(context.Background(), 7, digests))

	msg1, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "digests.personalized.7.1", msg1.Subject)

	var m Message
	require.NoError(t, json.Unmarshal(msg1.Data, &m))
	assert.Equal(t, digests[0].Digest.ID, m.DigestID)
	assert.Equal(t, int64(7), m.ProjectID)
	assert.Equal(t, int64(1), m.UserID)
	require.Len(t, m.Groups, 2)
	assert.Equal(t, int64(1), m.Groups[0].GroupID)
	require.Len(t, m.Groups[0].Events, 1)
	assert.Equal(t, "a", m.Groups[0].Events[0].ID)
	assert.Equal(t, []int64{100}, m.Groups[0].Events[0].RuleIDs)

	msg2, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "digests.personalized.7.2", msg2.Subject)

	require.NoError(t, json.Unmarshal(msg2.Data, &m))
	assert.Equal(t, int64(2), m.UserID)
	require.Len(t, m.Groups, 1)
	assert.Equal(t, "b", m.Groups[0].Events[0].ID)
}

func TestPublishNoDigests(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	pub, err := NewPublisher(nc, "digests.personalized", zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, pub.Publish(context.Background(), 7, nil))
}

func TestPublishCancelledContext(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	pub, err := NewPublisher(nc, "digests.personalized", zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = pub.Publish(ctx, 7, testUserDigests(t))
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewPublisherValidation(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	_, err = NewPublisher(nil, "digests.personalized", zap.NewNop())
	require.Error(t, err)

	_, err = NewPublisher(nc, "", zap.NewNop())
	require.Error(t, err)
}
