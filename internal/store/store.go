// Package store is the shared synchronized store every participant
// coordinates through. It holds one document per room and offers point
// reads, a subscription per room, conditional read-modify-write, a server
// timestamp and on-disconnect writes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/playperu/panoround/internal/room"
)

var (
	ErrNotFound = errors.New("room not found")
	ErrExists   = errors.New("room already exists")
	ErrConflict = errors.New("concurrent update")
)

// Mutation edits a private copy of the room. Returning an error aborts the
// write and the error is handed back to the caller unchanged.
type Mutation func(*room.Room) error

type Store interface {
	Create(ctx context.Context, r *room.Room) error
	Get(ctx context.Context, id string) (*room.Room, error)
	// Update runs fn against the current document and commits the result
	// atomically, bumping Rev. A room left with no players is deleted in
	// the same write; subscribers still receive that final snapshot.
	Update(ctx context.Context, id string, fn Mutation) (*room.Room, error)
	Delete(ctx context.Context, id string) error
	// DeleteEmpty removes rooms nobody ever joined that were created
	// before cutoff, and returns their ids.
	DeleteEmpty(ctx context.Context, cutoff time.Time) ([]string, error)
	// Subscribe delivers every committed snapshot of the room. Slow
	// subscribers may skip intermediate snapshots but always receive the
	// latest one.
	Subscribe(id string) (<-chan *room.Room, func())
	// Now is the server timestamp. It never goes backwards and never
	// repeats.
	Now() time.Time
	Ping(ctx context.Context) error
}
