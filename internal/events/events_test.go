package events

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	e := NewEvent(TypePurchaseCreated, map[string]int64{"purchase_id": 4})

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, TypePurchaseCreated, e.EventType)
	assert.Equal(t, "pos:events:purchase.created", Channel(e.EventType))
	assert.WithinDuration(t, time.Now(), e.OccurredAt, time.Minute)
	assert.NotEqual(t, e.ID, NewEvent(TypePurchaseCreated, nil).ID)
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	require.NoError(t, r.Publish(context.Background(), NewEvent(TypeRefundCreated, nil)))

	got := r.Events()
	require.Len(t, got, 1)
	assert.Equal(t, TypeRefundCreated, got[0].EventType)
}

func TestRedisPublisher_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	defer client.Close()

	err := NewRedisPublisher(client).Publish(context.Background(), NewEvent(TypePurchaseCreated, nil))
	assert.ErrorContains(t, err, "failed to publish event")
}

func TestPublishLogged_SwallowsErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	defer client.Close()

	PublishLogged(context.Background(), NewRedisPublisher(client), logrus.NewEntry(logger), NewEvent(TypeRefundCreated, nil))

	assert.Contains(t, buf.String(), "Failed to publish event")
	assert.Contains(t, buf.String(), TypeRefundCreated)
}
