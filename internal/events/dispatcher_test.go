package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/landflow/internal/logger"
	"github.com/stwalsh4118/landflow/internal/metrics"
	"github.com/stwalsh4118/landflow/internal/models"
)

// MockSink is a mock implementation of Sink for testing
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Deliver(ctx context.Context, e Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func testEvent(id string) Event {
	return Event{
		ID:         id,
		Type:       AwardApproved,
		EntityKind: models.KindAward,
		EntityID:   "a-1",
		Actor:      models.Actor{ID: "u-1", Role: models.RoleLandOfficer},
		At:         time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func fastOptions(retries int) Options {
	return Options{QueueSize: 8, MaxRetries: retries, InitialBackoff: time.Millisecond, DeliverTimeout: time.Second}
}

func TestDispatcher_RetriesUntilDelivered(t *testing.T) {
	sink := new(MockSink)
	sink.On("Deliver", mock.Anything, mock.Anything).Return(errors.New("stream unavailable")).Twice()
	sink.On("Deliver", mock.Anything, mock.Anything).Return(nil).Once()

	m := metrics.New(prometheus.NewRegistry())
	d := NewDispatcher(sink, fastOptions(3), logger.New("test"), m)
	go d.Run(context.Background())

	d.Publish(testEvent("e-1"))
	require.NoError(t, d.Close(context.Background()))

	sink.AssertNumberOfCalls(t, "Deliver", 3)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues(metrics.OutcomeOK)))
}

func TestDispatcher_GivesUpAfterMaxRetries(t *testing.T) {
	sink := new(MockSink)
	sink.On("Deliver", mock.Anything, mock.Anything).Return(errors.New("down"))

	m := metrics.New(prometheus.NewRegistry())
	d := NewDispatcher(sink, fastOptions(2), logger.New("test"), m)
	go d.Run(context.Background())

	d.Publish(testEvent("e-1"))
	require.NoError(t, d.Close(context.Background()))

	sink.AssertNumberOfCalls(t, "Deliver", 3)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues(metrics.OutcomeError)))
}

func TestDispatcher_DropsWhenFullOrClosed(t *testing.T) {
	rec := &Recorder{}
	m := metrics.New(prometheus.NewRegistry())
	d := NewDispatcher(rec, Options{QueueSize: 1}, logger.New("test"), m)

	// Not running yet, so the second event does not fit.
	d.Publish(testEvent("e-1"), testEvent("e-2"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDropped))

	go d.Run(context.Background())
	require.NoError(t, d.Close(context.Background()))

	d.Publish(testEvent("e-3"))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsDropped))

	require.Len(t, rec.Events(), 1)
	assert.Equal(t, "e-1", rec.Events()[0].ID)
}

func TestDispatcher_CloseHonoursContext(t *testing.T) {
	d := NewDispatcher(&Recorder{}, Options{}, logger.New("test"), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// Run was never started, so nothing drains the queue.
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
}

func TestNew_BuildsEventFromEntity(t *testing.T) {
	p, err := models.NewParcel("p-1", "42", models.ParcelLocation{Village: "V", District: "D"}, 10, nil, time.Now())
	require.NoError(t, err)
	actor := models.Actor{ID: "u-1", Role: models.RoleLandOfficer}

	e := New(ParcelPossessed, p, actor, p.CreatedAt, map[string]string{"parcelNo": "42"})

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, models.KindParcel, e.EntityKind)
	assert.Equal(t, "p-1", e.EntityID)
	assert.Equal(t, actor, e.Actor)
}
