package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tokenscope/internal/interfaces"
)

func TestService_PublishSync(t *testing.T) {
	service := NewService(arbor.NewLogger())
	var calls int32

	handler := func(ctx context.Context, event interfaces.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}
	require.NoError(t, service.Subscribe(interfaces.EventEndpointTracked, handler))
	require.NoError(t, service.Subscribe(interfaces.EventEndpointTracked, handler))

	require.NoError(t, service.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventEndpointTracked}))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	// Other event types do not reach these handlers
	require.NoError(t, service.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventCredentialCaptured}))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestService_PublishSyncErrors(t *testing.T) {
	service := NewService(arbor.NewLogger())
	boom := errors.New("boom")

	require.NoError(t, service.Subscribe(interfaces.EventCredentialCaptured, func(ctx context.Context, event interfaces.Event) error {
		return boom
	}))
	require.NoError(t, service.Subscribe(interfaces.EventCredentialCaptured, func(ctx context.Context, event interfaces.Event) error {
		panic("handler panic")
	}))

	err := service.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventCredentialCaptured})
	assert.ErrorIs(t, err, boom)
}

func TestService_PublishAsync(t *testing.T) {
	service := NewService(arbor.NewLogger())
	received := make(chan interfaces.Event, 1)

	require.NoError(t, service.Subscribe(interfaces.EventCaptureConfigChanged, func(ctx context.Context, event interfaces.Event) error {
		received <- event
		return nil
	}))

	require.NoError(t, service.Publish(context.Background(), interfaces.Event{Type: interfaces.EventCaptureConfigChanged, Payload: "x"}))

	select {
	case event := <-received:
		assert.Equal(t, "x", event.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not called")
	}
}

func TestService_SubscribeNil(t *testing.T) {
	service := NewService(arbor.NewLogger())
	assert.Error(t, service.Subscribe(interfaces.EventEndpointTracked, nil))
}

func TestService_Close(t *testing.T) {
	service := NewService(arbor.NewLogger())
	var calls int32
	require.NoError(t, service.Subscribe(interfaces.EventEndpointTracked, func(ctx context.Context, event interfaces.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))

	require.NoError(t, service.Close())
	require.NoError(t, service.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventEndpointTracked}))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}
