package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"qrguard/internal/events"
	"qrguard/internal/models"
	"qrguard/internal/observability"
	"qrguard/internal/storage"
)

const prefix = "qrguard.chat."

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Send(ctx context.Context, message string, history []models.ChatTurn) (string, error) {
	args := m.Called(ctx, message, history)
	return args.String(0), args.Error(1)
}

func (m *mockTransport) Close() error {
	return m.Called().Error(0)
}

type widgetFixture struct {
	store     storage.Store
	bus       *events.Bus
	transport *mockTransport
	user      string
	widget    *Widget
}

func newWidgetFixture(t *testing.T) *widgetFixture {
	t.Helper()
	f := &widgetFixture{
		store:     storage.NewMemoryStore(),
		bus:       events.NewBus(nil),
		transport: &mockTransport{},
		user:      "42",
	}
	f.widget = NewWidget(f.store, prefix, func() string { return f.user }, f.transport, f.bus, nil)
	f.widget.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	t.Cleanup(f.widget.Detach)
	return f
}

func TestWidget_SendPersistsBothTurns(t *testing.T) {
	f := newWidgetFixture(t)
	f.transport.On("Send", mock.Anything, "is this link safe?", []models.ChatTurn{}).Return("looks fine", nil).Once()
	sent := testutil.ToFloat64(observability.ChatMessagesTotal.WithLabelValues("sent"))
	received := testutil.ToFloat64(observability.ChatMessagesTotal.WithLabelValues("received"))

	reply, err := f.widget.Send(context.Background(), "  is this link safe?  ")
	require.NoError(t, err)
	assert.Equal(t, RoleAssistant, reply.Role)
	assert.Equal(t, "looks fine", reply.Content)

	transcript, err := f.widget.Transcript(context.Background())
	require.NoError(t, err)
	require.Len(t, transcript, 2)
	assert.Equal(t, RoleUser, transcript[0].Role)
	assert.Equal(t, "is this link safe?", transcript[0].Content)
	assert.NotEmpty(t, transcript[0].ID)
	assert.Equal(t, reply.ID, transcript[1].ID)

	raw, err := f.store.Get(context.Background(), prefix+"42")
	require.NoError(t, err)
	assert.Contains(t, raw, `"role":"assistant"`)

	assert.Equal(t, sent+1, testutil.ToFloat64(observability.ChatMessagesTotal.WithLabelValues("sent")))
	assert.Equal(t, received+1, testutil.ToFloat64(observability.ChatMessagesTotal.WithLabelValues("received")))
	f.transport.AssertExpectations(t)
}

func TestWidget_HistoryForwarded(t *testing.T) {
	f := newWidgetFixture(t)
	f.widget.history = 2
	f.transport.On("Send", mock.Anything, "one", mock.Anything).Return("r1", nil).Once()
	f.transport.On("Send", mock.Anything, "two", []models.ChatTurn{
		{Role: RoleUser, Content: "one"},
		{Role: RoleAssistant, Content: "r1"},
	}).Return("r2", nil).Once()
	f.transport.On("Send", mock.Anything, "three", []models.ChatTurn{
		{Role: RoleUser, Content: "two"},
		{Role: RoleAssistant, Content: "r2"},
	}).Return("r3", nil).Once()

	for _, text := range []string{"one", "two", "three"} {
		_, err := f.widget.Send(context.Background(), text)
		require.NoError(t, err)
	}
	f.transport.AssertExpectations(t)
}

func TestWidget_EmptyMessage(t *testing.T) {
	f := newWidgetFixture(t)

	_, err := f.widget.Send(context.Background(), " \n\t")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	f.transport.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestWidget_TransportFailureKeepsUserMessage(t *testing.T) {
	f := newWidgetFixture(t)
	boom := errors.New("offline")
	f.transport.On("Send", mock.Anything, "hello", mock.Anything).Return("", boom)

	_, err := f.widget.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, boom)

	transcript, err := f.widget.Transcript(context.Background())
	require.NoError(t, err)
	require.Len(t, transcript, 1)
	assert.Equal(t, RoleUser, transcript[0].Role)
}

func TestWidget_AnonymousScope(t *testing.T) {
	f := newWidgetFixture(t)
	f.user = ""
	assert.Equal(t, prefix+"anon", f.widget.Key())
}

func TestWidget_SessionResetPurgesEveryTranscript(t *testing.T) {
	f := newWidgetFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, prefix+"42", `[]`))
	require.NoError(t, f.store.Set(ctx, prefix+"7", `[]`))
	require.NoError(t, f.store.Set(ctx, "qrguard.auth.token", "tok"))
	f.transport.On("Close").Return(nil).Once()

	f.bus.Publish(ctx, events.SessionReset, nil)

	_, err := f.store.Get(ctx, prefix+"42")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = f.store.Get(ctx, prefix+"7")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	tok, err := f.store.Get(ctx, "qrguard.auth.token")
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)
	f.transport.AssertExpectations(t)
}

func TestWidget_ChatCloseCollapses(t *testing.T) {
	f := newWidgetFixture(t)
	f.transport.On("Close").Return(nil).Once()
	f.widget.Open()
	require.True(t, f.widget.IsOpen())

	f.bus.Publish(context.Background(), events.ChatClose, nil)

	assert.False(t, f.widget.IsOpen())
	f.transport.AssertExpectations(t)
}

func TestWidget_ReplyAfterPurgeDropped(t *testing.T) {
	f := newWidgetFixture(t)
	f.transport.On("Close").Return(nil)
	f.transport.On("Send", mock.Anything, "hi", mock.Anything).
		Run(func(args mock.Arguments) {
			// Forced logout while the request is in flight.
			f.bus.Publish(args.Get(0).(context.Context), events.SessionReset, nil)
		}).
		Return("late", nil)

	reply, err := f.widget.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "late", reply.Content)

	transcript, err := f.widget.Transcript(context.Background())
	require.NoError(t, err)
	assert.Empty(t, transcript)
}

func TestWidget_Toggle(t *testing.T) {
	f := newWidgetFixture(t)
	assert.True(t, f.widget.Toggle())
	assert.False(t, f.widget.Toggle())
	f.widget.Open()
	f.widget.Close()
	assert.False(t, f.widget.IsOpen())
}

func TestWidget_ClearAndCorruptTranscript(t *testing.T) {
	f := newWidgetFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, prefix+"42", "{not json"))

	transcript, err := f.widget.Transcript(ctx)
	require.NoError(t, err)
	assert.Empty(t, transcript)

	require.NoError(t, f.widget.Clear(ctx))
	require.NoError(t, f.widget.Clear(ctx), "clearing twice is fine")
	_, err = f.store.Get(ctx, prefix+"42")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestWidget_DetachStopsListening(t *testing.T) {
	f := newWidgetFixture(t)
	f.widget.Open()
	f.widget.Detach()

	f.bus.Publish(context.Background(), events.ChatClose, nil)
	assert.True(t, f.widget.IsOpen())
	f.transport.AssertNotCalled(t, "Close")
}
