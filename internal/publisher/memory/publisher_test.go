package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/fipibank-harvester/internal/bank"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "batches", bank.BatchEvent{
		RunID:       "run-1",
		GiaType:     bank.GiaEGE,
		SubjectHash: "B9AC",
		Inserted:    2,
		InsertedIDs: []string{"P1", "P2"},
	})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)

	id2, err := pub.Publish(context.Background(), "other", map[string]string{"k": "v"})
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "batches", msgs[0].Topic)
	require.Equal(t, "batch.committed", msgs[0].Attributes["event_type"])
	require.Equal(t, "ege", msgs[0].Attributes["gia_type"])
	require.Nil(t, msgs[1].Attributes)
	require.JSONEq(t, `{"k":"v"}`, string(msgs[1].Data))

	msgs[0].Topic = "modified"
	require.Equal(t, "batches", pub.Messages()[0].Topic, "Messages() must return a copy")
}

func TestPublisherBatchEvents(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "batches", bank.BatchEvent{SubjectHash: "H", Skipped: 3})
	require.NoError(t, err)

	events, err := pub.BatchEvents()
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "H", events[0].SubjectHash)
	require.Equal(t, 3, events[0].Skipped)
}

func TestPublisherRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	_, err := New().Publish(context.Background(), "batches", make(chan int))
	require.Error(t, err)
	require.Empty(t, New().Messages())
}
