package store

import (
	"context"
	"sync"
	"time"

	"github.com/playperu/panoround/internal/room"
)

// Memory keeps rooms in process memory. Every Update holds one lock, so
// read-modify-write is trivially atomic.
type Memory struct {
	mu     sync.Mutex
	rooms  map[string]*room.Room
	broker *Broker
	clock  *Clock
}

func NewMemory(clock *Clock) *Memory {
	if clock == nil {
		clock = NewClock(nil)
	}
	return &Memory{
		rooms:  make(map[string]*room.Room),
		broker: NewBroker(),
		clock:  clock,
	}
}

func (m *Memory) Create(_ context.Context, r *room.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[r.ID]; ok {
		return ErrExists
	}
	c := r.Clone()
	c.Rev = 1
	r.Rev = 1
	m.rooms[r.ID] = c
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*room.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *Memory) Update(ctx context.Context, id string, fn Mutation) (*room.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Rev = cur.Rev + 1
	if len(next.Players) == 0 {
		delete(m.rooms, id)
	} else {
		m.rooms[id] = next
	}
	m.broker.Publish(next)
	return next.Clone(), nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[id]; !ok {
		return ErrNotFound
	}
	delete(m.rooms, id)
	return nil
}

func (m *Memory) DeleteEmpty(_ context.Context, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, r := range m.rooms {
		if len(r.Players) == 0 && r.CreatedAt.Before(cutoff) {
			delete(m.rooms, id)
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *Memory) Subscribe(id string) (<-chan *room.Room, func()) {
	return m.broker.subscription(id)
}

func (m *Memory) Now() time.Time { return m.clock.Now() }

func (m *Memory) Ping(context.Context) error { return nil }
