package pubsub_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/fipibank-harvester/internal/bank"
	"github.com/JakeFAU/fipibank-harvester/internal/publisher/pubsub"
)

func newTopic(t *testing.T) (*pstest.Server, *gpubsub.Topic) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := gpubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "batches")
	require.NoError(t, err)
	return srv, topic
}

func TestPublishBatchEvent(t *testing.T) {
	t.Parallel()

	srv, topic := newTopic(t)
	pub := pubsub.New(topic)

	event := bank.BatchEvent{
		RunID:       "run-1",
		GiaType:     bank.GiaEGE,
		SubjectName: "Физика",
		SubjectHash: "H2",
		Inserted:    1,
		InsertedIDs: []string{"D"},
		CommittedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	id, err := pub.Publish(context.Background(), "batches", event)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NoError(t, pub.Close())

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "batch.committed", msgs[0].Attributes["event_type"])
	require.Equal(t, "H2", msgs[0].Attributes["subject_hash"])

	var got bank.BatchEvent
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, event.InsertedIDs, got.InsertedIDs)
	require.Equal(t, event.RunID, got.RunID)
}

func TestPublishWithoutTopic(t *testing.T) {
	t.Parallel()

	_, err := pubsub.New(nil).Publish(context.Background(), "batches", map[string]string{"k": "v"})
	require.ErrorContains(t, err, "not configured")
}

func TestDialRequiresProjectAndTopic(t *testing.T) {
	t.Parallel()

	_, err := pubsub.Dial(context.Background(), "", "batches")
	require.Error(t, err)
}
