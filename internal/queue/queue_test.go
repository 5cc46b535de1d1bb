package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	require.NoError(t, q.Publish(ctx, Message{Type: "attendance", Body: []byte(`{"record_id":"r1"}`)}))

	messages, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case msg := <-messages:
		assert.Equal(t, "attendance", msg.Type)
		assert.JSONEq(t, `{"record_id":"r1"}`, string(msg.Body))
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
}

func TestInMemoryPublishCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := NewInMemory(0)
	err := q.Publish(ctx, Message{Type: "attendance"})
	assert.ErrorIs(t, err, context.Canceled)
}
