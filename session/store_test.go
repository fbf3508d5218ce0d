package session_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/jrsteele09/hourstracker-client/session"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu        sync.Mutex
	sessions  []session.Session
	active    *session.Session
	selects   int
	callbacks map[string]func(session.Event)
}

func newFakeSource(sessions ...session.Session) *fakeSource {
	return &fakeSource{sessions: sessions, callbacks: map[string]func(session.Event){}}
}

func (f *fakeSource) AllSessions() []session.Session { return f.sessions }

func (f *fakeSource) ActiveSession() (session.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active == nil {
		return session.Session{}, false
	}
	return *f.active, true
}

func (f *fakeSource) SelectActiveSession(s session.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selects++
	f.active = &s
}

func (f *fakeSource) AddEventCallback(fn func(session.Event)) string {
	f.callbacks["cb"] = fn
	return "cb"
}

func (f *fakeSource) RemoveEventCallback(id string) { delete(f.callbacks, id) }

func (f *fakeSource) emit(e session.Event) {
	for _, cb := range f.callbacks {
		cb(e)
	}
}

var (
	alice = session.Session{AccountID: "oid-a.tid", Name: "Alice", Username: "alice@example.com"}
	bob   = session.Session{AccountID: "oid-b.tid", Name: "Bob", Username: "bob@example.com"}
)

func TestStore_Initialize(t *testing.T) {
	t.Run("no cached sessions", func(t *testing.T) {
		store := session.NewStore(newFakeSource())
		store.Initialize()

		_, ok := store.Active()
		require.False(t, ok)
	})

	t.Run("first cached session becomes active", func(t *testing.T) {
		src := newFakeSource(alice, bob)
		store := session.NewStore(src)
		store.Initialize()

		active, ok := store.Active()
		require.True(t, ok)
		require.Equal(t, alice, active)
		require.Equal(t, 1, src.selects)
	})

	t.Run("provider active session wins", func(t *testing.T) {
		src := newFakeSource(alice, bob)
		src.active = &bob
		store := session.NewStore(src)
		store.Initialize()

		active, ok := store.Active()
		require.True(t, ok)
		require.Equal(t, bob, active)
	})

	t.Run("second initialize is ignored", func(t *testing.T) {
		src := newFakeSource(alice)
		store := session.NewStore(src)
		store.Initialize()
		store.Initialize()
		require.Equal(t, 1, src.selects)
		require.Len(t, src.callbacks, 1)
	})
}

func TestStore_Events(t *testing.T) {
	src := newFakeSource()
	store := session.NewStore(src)
	store.Initialize()

	src.emit(session.Event{Type: session.LoginSucceeded, Session: &alice})
	active, ok := store.Active()
	require.True(t, ok)
	require.Equal(t, alice, active)

	src.emit(session.Event{Type: session.LoginFailed, Err: errors.New("cancelled")})
	active, ok = store.Active()
	require.True(t, ok)
	require.Equal(t, alice, active)

	src.emit(session.Event{Type: session.LoginSucceeded, Session: &bob})
	active, _ = store.Active()
	require.Equal(t, bob, active)

	src.emit(session.Event{Type: session.LogoutSucceeded, Session: &bob})
	_, ok = store.Active()
	require.False(t, ok)

	store.Close()
	require.Empty(t, src.callbacks)
}

func TestStore_SelectIsIdempotent(t *testing.T) {
	src := newFakeSource()
	store := session.NewStore(src)
	store.Initialize()

	src.emit(session.Event{Type: session.LoginSucceeded, Session: &alice})
	first, _ := store.Active()

	src.emit(session.Event{Type: session.LoginSucceeded, Session: &alice})
	second, _ := store.Active()

	require.Equal(t, first, second)
	require.Equal(t, 1, src.selects)
}
