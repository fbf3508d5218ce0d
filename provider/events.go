package provider

import (
	"github.com/google/uuid"
	"github.com/jrsteele09/hourstracker-client/session"
	"github.com/rs/zerolog/log"
)

// AddEventCallback subscribes fn to provider events and returns its id
func (p *Provider) AddEventCallback(fn func(session.Event)) string {
	id := uuid.New().String()

	p.callbacksMu.Lock()
	defer p.callbacksMu.Unlock()
	p.callbacks = append(p.callbacks, eventCallback{id: id, fn: fn})
	return id
}

// RemoveEventCallback unsubscribes the callback registered under id
func (p *Provider) RemoveEventCallback(id string) {
	p.callbacksMu.Lock()
	defer p.callbacksMu.Unlock()
	for i, cb := range p.callbacks {
		if cb.id == id {
			p.callbacks = append(p.callbacks[:i], p.callbacks[i+1:]...)
			return
		}
	}
}

type eventCallback struct {
	id string
	fn func(session.Event)
}

func (p *Provider) emit(e session.Event) {
	p.callbacksMu.RLock()
	callbacks := make([]eventCallback, len(p.callbacks))
	copy(callbacks, p.callbacks)
	p.callbacksMu.RUnlock()

	log.Debug().Stringer("event", e.Type).Int("subscribers", len(callbacks)).Msg("Provider event")
	for _, cb := range callbacks {
		cb.fn(e)
	}
}
