package storage_test

import (
	"context"
	"pipi/backend/internal/config"
	"pipi/backend/internal/models"
	"pipi/backend/internal/storage"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedisService(t *testing.T) (*storage.Service, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	return storage.NewStorageService(nil, client, logger), mr
}

func TestService_PublishSubscribeActivityEvents(t *testing.T) {
	s, _ := newRedisService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := s.SubscribeActivityEvents(ctx)
	require.NoError(t, err)

	require.NoError(t, s.PublishActivityEvent(ctx, models.ActivityEvent{
		Kind:       models.EventActivityUpdated,
		ActivityID: "a1",
		Activity:   &models.Activity{ID: "a1", Title: "Run club", MaxPeopleNumber: 5},
	}))

	select {
	case ev := <-events:
		assert.Equal(t, models.EventActivityUpdated, ev.Kind)
		assert.Equal(t, "a1", ev.ActivityID)
		require.NotNil(t, ev.Activity)
		assert.Equal(t, "Run club", ev.Activity.Title)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestService_SubscribeSkipsMalformedPayloads(t *testing.T) {
	s, mr := newRedisService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := s.SubscribeActivityEvents(ctx)
	require.NoError(t, err)

	mr.Publish(config.ActivityEventsChannel, "{not json")
	require.NoError(t, s.PublishActivityEvent(ctx, models.ActivityEvent{Kind: models.EventActivityDeleted, ActivityID: "a2"}))

	select {
	case ev := <-events:
		assert.Equal(t, "a2", ev.ActivityID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestService_SubscriptionClosesOnCancel(t *testing.T) {
	s, _ := newRedisService(t)
	ctx, cancel := context.WithCancel(context.Background())

	events, err := s.SubscribeActivityEvents(ctx)
	require.NoError(t, err)

	cancel()

	select {
	case _, open := <-events:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestService_PublishWithoutRedisIsNoop(t *testing.T) {
	s := storage.NewStorageService(nil, nil, nil)

	assert.NoError(t, s.PublishActivityEvent(context.Background(), models.ActivityEvent{ActivityID: "a1"}))
}
