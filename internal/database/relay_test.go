package database

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if mockArgs.Get(0) != nil {
		cmd.SetErr(mockArgs.Error(0))
	} else {
		cmd.SetVal("1234567890-0")
	}
	return cmd
}

func (m *MockRedisClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, err error) error {
	args := m.Called(ctx, id, err)
	return args.Error(0)
}

func availabilityEvent(t *testing.T) *OutboxEvent {
	t.Helper()

	payload, err := json.Marshal(map[string]interface{}{
		"product_id": "B0TEST12345",
		"available":  true,
		"price":      34.99,
	})
	require.NoError(t, err)

	return &OutboxEvent{
		ID:            uuid.New(),
		AggregateType: "product",
		AggregateID:   "B0TEST12345",
		EventType:     EventAvailabilityChanged,
		Payload:       payload,
		TargetStream:  DefaultStream,
		Status:        OutboxStatusPending,
		CreatedAt:     time.Now(),
	}
}

func newMockedRelay(redisClient RedisClient, outbox OutboxRepo) *Relay {
	r := NewRelay(nil, nil, RelayConfig{BatchSize: 10})
	r.redis = redisClient
	r.outbox = outbox
	return r
}

func TestRelayProcessEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes and marks processed", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newMockedRelay(mockRedis, mockOutbox)

		event := availabilityEvent(t)

		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)
		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			return args.Stream == DefaultStream &&
				args.Values.(map[string]interface{})["event_type"] == EventAvailabilityChanged
		})).Return(nil)
		mockOutbox.On("MarkProcessed", ctx, event.ID).Return(nil)

		err := relay.processEvents(ctx)
		require.NoError(t, err)

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("marks failed when publish errors", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newMockedRelay(mockRedis, mockOutbox)

		event := availabilityEvent(t)
		publishErr := errors.New("redis unavailable")

		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)
		mockRedis.On("XAdd", ctx, mock.Anything).Return(publishErr)
		mockOutbox.On("MarkFailed", ctx, event.ID, mock.Anything).Return(nil)

		err := relay.processEvents(ctx)
		require.NoError(t, err)

		mockOutbox.AssertCalled(t, "MarkFailed", ctx, event.ID, mock.Anything)
		mockOutbox.AssertNotCalled(t, "MarkProcessed", ctx, event.ID)
	})

	t.Run("one bad event does not stop the batch", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newMockedRelay(mockRedis, mockOutbox)

		bad := availabilityEvent(t)
		bad.Payload = json.RawMessage(`not json`)
		good := availabilityEvent(t)

		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{bad, good}, nil)
		mockOutbox.On("MarkFailed", ctx, bad.ID, mock.Anything).Return(nil)
		mockRedis.On("XAdd", ctx, mock.Anything).Return(nil)
		mockOutbox.On("MarkProcessed", ctx, good.ID).Return(nil)

		err := relay.processEvents(ctx)
		require.NoError(t, err)

		mockOutbox.AssertCalled(t, "MarkProcessed", ctx, good.ID)
	})

	t.Run("empty outbox is a no-op", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newMockedRelay(mockRedis, mockOutbox)

		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{}, nil)

		err := relay.processEvents(ctx)
		require.NoError(t, err)

		mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
	})
}

func TestRelayStreamDataShape(t *testing.T) {
	ctx := context.Background()

	mockRedis := new(MockRedisClient)
	mockOutbox := new(MockOutboxRepository)
	relay := newMockedRelay(mockRedis, mockOutbox)

	event := availabilityEvent(t)

	var captured *redis.XAddArgs
	mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
		captured = args
		return true
	})).Return(nil)

	require.NoError(t, relay.publish(ctx, event))
	require.NotNil(t, captured)

	values := captured.Values.(map[string]interface{})
	assert.Equal(t, event.AggregateID, values["aggregate_id"])

	var streamData map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &streamData))
	assert.Equal(t, EventAvailabilityChanged, streamData["type"])

	metadata := streamData["metadata"].(map[string]interface{})
	assert.Equal(t, "resale-sync", metadata["source"])
}
