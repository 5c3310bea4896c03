package relay

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcall/gateway/internal/realtime"
	"github.com/smartcall/gateway/internal/store"
)

type fakeLogStore struct {
	mu      sync.Mutex
	entries []store.LogEntry
	err     error
}

func (f *fakeLogStore) AppendLogEntry(_ context.Context, e *store.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	e.ID = "log-1"
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeLogStore) Entries() []store.LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.LogEntry(nil), f.entries...)
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (f *fakeBroadcaster) Publish(sessionID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, realtime.Event{Type: event, SessionID: sessionID, Payload: payload})
}

func (f *fakeBroadcaster) Events() []realtime.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]realtime.Event(nil), f.events...)
}

func floatPtr(v float64) *float64 { return &v }

func TestFinalResultPersistedAndBroadcastOnce(t *testing.T) {
	st := &fakeLogStore{}
	hub := &fakeBroadcaster{}
	r := New(st, hub)

	r.Handle(context.Background(), "s1", Result{
		Text:       "こんにちは",
		Confidence: floatPtr(0.9),
		IsFinal:    true,
		Speaker:    store.SpeakerCustomer,
	})

	require.Len(t, st.entries, 1)
	assert.Equal(t, "こんにちは", st.entries[0].Text)
	assert.Equal(t, store.SpeakerCustomer, st.entries[0].Speaker)
	require.NotNil(t, st.entries[0].Confidence)
	assert.Equal(t, 0.9, *st.entries[0].Confidence)

	require.Len(t, hub.events, 1)
	assert.Equal(t, realtime.EventConversationLog, hub.events[0].Type)
}

func TestInterimResultBroadcastNotPersisted(t *testing.T) {
	st := &fakeLogStore{}
	hub := &fakeBroadcaster{}
	r := New(st, hub)

	r.Handle(context.Background(), "s1", Result{Text: "こんに", IsFinal: false, Speaker: store.SpeakerOperator})

	assert.Empty(t, st.entries)
	require.Len(t, hub.events, 1)
	assert.Equal(t, realtime.EventInterim, hub.events[0].Type)

	payload, ok := hub.events[0].Payload.(InterimTranscript)
	require.True(t, ok)
	assert.Equal(t, "こんに", payload.Text)
	assert.Equal(t, store.SpeakerOperator, payload.Speaker)
}

func TestMissingSpeakerDefaultsToCustomer(t *testing.T) {
	st := &fakeLogStore{}
	hub := &fakeBroadcaster{}
	r := New(st, hub)

	r.Handle(context.Background(), "s1", Result{Text: "hello", IsFinal: true})

	require.Len(t, st.entries, 1)
	assert.Equal(t, store.SpeakerCustomer, st.entries[0].Speaker)
}

func TestStoreFailureDropsUtterance(t *testing.T) {
	st := &fakeLogStore{err: errors.New("db down")}
	hub := &fakeBroadcaster{}
	r := New(st, hub)

	r.Handle(context.Background(), "s1", Result{Text: "hello", IsFinal: true})

	assert.Empty(t, st.entries)
	assert.Empty(t, hub.events)
}

func TestEachInterimBroadcastsIndependently(t *testing.T) {
	st := &fakeLogStore{}
	hub := &fakeBroadcaster{}
	r := New(st, hub)

	for _, text := range []string{"こ", "こん", "こんに"} {
		r.Handle(context.Background(), "s1", Result{Text: text, IsFinal: false})
	}

	assert.Empty(t, st.entries)
	require.Len(t, hub.events, 3)
	last, ok := hub.events[2].Payload.(InterimTranscript)
	require.True(t, ok)
	assert.Equal(t, "こんに", last.Text)
}
