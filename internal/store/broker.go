package store

import (
	"sync"

	"github.com/playperu/panoround/internal/room"
)

// Broker is an in-process pub/sub for room snapshots, keyed by room ID.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan *room.Room]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan *room.Room]struct{}),
	}
}

// Subscribe returns a channel that receives snapshots of the given room.
func (b *Broker) Subscribe(roomID string) chan *room.Room {
	ch := make(chan *room.Room, 16)
	b.mu.Lock()
	if b.subs[roomID] == nil {
		b.subs[roomID] = make(map[chan *room.Room]struct{})
	}
	b.subs[roomID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel from the room's subscribers.
func (b *Broker) Unsubscribe(roomID string, ch chan *room.Room) {
	b.mu.Lock()
	delete(b.subs[roomID], ch)
	if len(b.subs[roomID]) == 0 {
		delete(b.subs, roomID)
	}
	b.mu.Unlock()
}

// Publish sends a copy of r to every subscriber of the room. A full
// subscriber loses its oldest pending snapshot instead of the new one.
// Callers serialize Publish per room.
func (b *Broker) Publish(r *room.Room) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[r.ID] {
		snap := r.Clone()
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// subscription adapts a broker channel to the Store.Subscribe shape.
func (b *Broker) subscription(roomID string) (<-chan *room.Room, func()) {
	ch := b.Subscribe(roomID)
	var once sync.Once
	return ch, func() { once.Do(func() { b.Unsubscribe(roomID, ch) }) }
}
