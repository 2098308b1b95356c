package eventbus

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nocalert/core/internal/models"
)

func TestPublish_InvokesAllObserversInOrder(t *testing.T) {
	bus := New(context.Background(), nil)
	var mu sync.Mutex
	var got []string

	bus.Subscribe(func(eventType string, alert *models.Alert) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "a:"+eventType)
	})
	bus.Subscribe(func(eventType string, alert *models.Alert) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, "b:"+eventType)
	})

	bus.Publish("alert_created", &models.Alert{ID: "1"})

	require.Equal(t, []string{"a:alert_created", "b:alert_created"}, got)
}

func TestPublish_PanickingObserverDoesNotBlockOthers(t *testing.T) {
	bus := New(context.Background(), nil)
	var called bool

	bus.Subscribe(func(eventType string, alert *models.Alert) {
		panic("boom")
	})
	bus.Subscribe(func(eventType string, alert *models.Alert) {
		called = true
	})

	require.NotPanics(t, func() {
		bus.Publish("alert_created", &models.Alert{ID: "1"})
	})
	require.True(t, called)
}

type fakeCrossProcess struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (f *fakeCrossProcess) Publish(ctx context.Context, topicName string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return nil
}

func TestPublish_WritesCrossProcessEnvelope(t *testing.T) {
	cross := &fakeCrossProcess{}
	bus := New(context.Background(), cross)

	bus.Publish("alert_resolved", &models.Alert{ID: "42"})

	cross.mu.Lock()
	defer cross.mu.Unlock()
	require.Len(t, cross.payloads, 1)
	require.Contains(t, string(cross.payloads[0]), `"event_type":"alert_resolved"`)
}

type erroringCrossProcess struct{}

func (erroringCrossProcess) Publish(ctx context.Context, topicName string, payload []byte) error {
	return errBoom
}

var errBoom = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

func TestPublish_CrossProcessFailureDoesNotAffectLocalDelivery(t *testing.T) {
	bus := New(context.Background(), erroringCrossProcess{})
	var called bool
	bus.Subscribe(func(eventType string, alert *models.Alert) {
		called = true
	})

	bus.Publish("alert_created", &models.Alert{ID: "1"})
	require.True(t, called)
}

func TestSubscribe_LateSubscriberSeesOnlySubsequentEvents(t *testing.T) {
	bus := New(context.Background(), nil)
	var early, late int

	bus.Subscribe(func(eventType string, alert *models.Alert) { early++ })
	bus.Publish("alert_created", &models.Alert{ID: "1"})

	bus.Subscribe(func(eventType string, alert *models.Alert) { late++ })
	bus.Publish("alert_created", &models.Alert{ID: "2"})

	require.Equal(t, 2, early)
	require.Equal(t, 1, late)
}
