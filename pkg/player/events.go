// ABOUTME: Player events and observer registration
// ABOUTME: Events are queued onto the scheduler so observers never run under the player lock
package player

import (
	"time"

	"github.com/Resonate-Protocol/resonate-media/pkg/audio"
	"github.com/Resonate-Protocol/resonate-media/pkg/source"
)

// EventKind identifies a player event
type EventKind int

const (
	// EventEOS is sent when the current source finished playing
	EventEOS EventKind = iota

	// EventPlayerEOS is sent when the playlist ran out of sources
	EventPlayerEOS

	// EventNextSource is sent after the player advanced to the next source
	EventNextSource

	// EventMedia carries a timeline event embedded in the audio stream
	EventMedia
)

func (k EventKind) String() string {
	switch k {
	case EventEOS:
		return "eos"
	case EventPlayerEOS:
		return "player_eos"
	case EventNextSource:
		return "next_source"
	case EventMedia:
		return "media"
	default:
		return "unknown"
	}
}

// Event is delivered to observers
type Event struct {
	Kind   EventKind
	Source source.Source
	Time   time.Duration

	// Media is set for EventMedia
	Media *audio.Event
}

// Observer receives player events on the scheduler goroutine
type Observer interface {
	OnPlayerEvent(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

// OnPlayerEvent calls f
func (f ObserverFunc) OnPlayerEvent(ev Event) {
	f(ev)
}

// Subscribe registers o and returns a function that removes it
func (p *Player) Subscribe(o Observer) (unsubscribe func()) {
	p.obsMu.Lock()
	defer p.obsMu.Unlock()
	id := p.nextObserver
	p.nextObserver++
	p.observers[id] = o
	return func() {
		p.obsMu.Lock()
		defer p.obsMu.Unlock()
		delete(p.observers, id)
	}
}

// emit queues ev for delivery; it is safe to call with the player lock held
func (p *Player) emit(ev Event) {
	p.sched.Post(func() {
		p.obsMu.Lock()
		observers := make([]Observer, 0, len(p.observers))
		for _, o := range p.observers {
			observers = append(observers, o)
		}
		p.obsMu.Unlock()

		for _, o := range observers {
			o.OnPlayerEvent(ev)
		}
	})
}
