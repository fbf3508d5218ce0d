package session

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Source is the part of the credential provider the store depends on
type Source interface {
	AllSessions() []Session
	ActiveSession() (Session, bool)
	SelectActiveSession(s Session)
	AddEventCallback(fn func(Event)) string
	RemoveEventCallback(id string)
}

// Store is the process-wide active session slot. It is written only by its
// provider event handler; every other component reads it through Active.
type Store struct {
	source Source

	mu         sync.RWMutex
	active     *Session
	callbackID string
}

// NewStore creates an uninitialised store bound to the credential provider
func NewStore(source Source) *Store {
	return &Store{source: source}
}

// Initialize reads the sessions cached by the provider (e.g. after a redirect
// back from the identity provider), selects the first one as active and
// subscribes to provider events. Calling it again is a no-op.
func (s *Store) Initialize() {
	s.mu.Lock()
	if s.callbackID != "" {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if active, ok := s.source.ActiveSession(); ok {
		s.selectActive(active)
	} else if sessions := s.source.AllSessions(); len(sessions) > 0 {
		s.selectActive(sessions[0])
	}

	id := s.source.AddEventCallback(s.handleEvent)
	s.mu.Lock()
	s.callbackID = id
	s.mu.Unlock()
}

// Close unsubscribes the store from provider events
func (s *Store) Close() {
	s.mu.Lock()
	id := s.callbackID
	s.callbackID = ""
	s.mu.Unlock()
	if id != "" {
		s.source.RemoveEventCallback(id)
	}
}

// Active returns the current session, read fresh on every call
func (s *Store) Active() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return Session{}, false
	}
	return *s.active, true
}

func (s *Store) handleEvent(e Event) {
	switch e.Type {
	case LoginSucceeded:
		if e.Session == nil {
			log.Warn().Msg("[Store handleEvent] login event without session")
			return
		}
		s.selectActive(*e.Session)
	case LogoutSucceeded:
		s.clear()
	case LoginFailed:
		log.Debug().Err(e.Err).Msg("[Store handleEvent] login failed, active session unchanged")
	}
}

func (s *Store) selectActive(session Session) {
	s.mu.Lock()
	if s.active != nil && *s.active == session {
		s.mu.Unlock()
		return
	}
	copied := session
	s.active = &copied
	s.mu.Unlock()

	s.source.SelectActiveSession(session)
	log.Info().Str("account", session.AccountID).Str("username", session.Username).Msg("Active session selected")
}

func (s *Store) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return
	}
	s.active = nil
	log.Info().Msg("Active session cleared")
}
