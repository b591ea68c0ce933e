package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playperu/panoround/internal/database"
	"github.com/playperu/panoround/internal/room"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newSQLite(t *testing.T) *SQLite {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, ":memory:")
	require.NoError(t, err)
	// One connection, otherwise each pooled connection sees its own
	// in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := NewSQLite(ctx, db, nil)
	require.NoError(t, err)
	return s
}

func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemory(nil)) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLite(t)) })
}

func seed(t *testing.T, s Store, id string, players ...string) {
	t.Helper()
	r, err := room.New(id, "test", room.ModeClassic, 3, t0)
	require.NoError(t, err)
	for i, p := range players {
		require.NoError(t, r.AddPlayer(&room.Player{ID: p, Name: p, ConnID: "c-" + p}, t0.Add(time.Duration(i)*time.Second)))
	}
	require.NoError(t, s.Create(context.Background(), r))
}

func TestCreateGet(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seed(t, s, "ROOM01", "a", "b")

		r, err := s.Get(ctx, "ROOM01")
		require.NoError(t, err)
		assert.Equal(t, int64(1), r.Rev)
		assert.Len(t, r.Players, 2)
		assert.Equal(t, "a", r.HostID)
		assert.Equal(t, t0.Add(time.Second), r.Players["b"].JoinedAt.UTC())

		other, err := room.New("ROOM01", "", room.ModeClassic, 1, t0)
		require.NoError(t, err)
		assert.ErrorIs(t, s.Create(ctx, other), ErrExists)

		_, err = s.Get(ctx, "NOPE")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestUpdateCommitsAndBumpsRev(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seed(t, s, "ROOM01", "a", "b")

		r, err := s.Update(ctx, "ROOM01", func(r *room.Room) error {
			return r.Start("a", t0.Add(time.Minute), room.Coords{Lat: 1, Lng: 2})
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), r.Rev)

		got, err := s.Get(ctx, "ROOM01")
		require.NoError(t, err)
		assert.Equal(t, room.StatusPlaying, got.Status)
		assert.Equal(t, room.RoundActive, got.RoundState)
		assert.Equal(t, 2, got.ExpectedGuesses)
		assert.Equal(t, room.Coords{Lat: 1, Lng: 2}, *got.Target)
	})
}

func TestUpdateAbortLeavesRoomAlone(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seed(t, s, "ROOM01", "a", "b")

		_, err := s.Update(ctx, "ROOM01", func(r *room.Room) error {
			r.Name = "changed"
			return room.ErrStale
		})
		assert.ErrorIs(t, err, room.ErrStale)

		got, err := s.Get(ctx, "ROOM01")
		require.NoError(t, err)
		assert.Equal(t, "test", got.Name)
		assert.Equal(t, int64(1), got.Rev)

		_, err = s.Update(ctx, "NOPE", func(*room.Room) error { return nil })
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestUpdateIsAtomicUnderContention(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seed(t, s, "ROOM01", "a", "b", "c")
		_, err := s.Update(ctx, "ROOM01", func(r *room.Room) error {
			return r.Start("a", s.Now(), room.Coords{})
		})
		require.NoError(t, err)

		// Every player submits from several goroutines at once.
		var wg sync.WaitGroup
		var mu sync.Mutex
		accepted := 0
		for i := 0; i < 8; i++ {
			for _, p := range []string{"a", "b", "c"} {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := s.Update(ctx, "ROOM01", func(r *room.Room) error {
						return r.SubmitGuess(p, room.Coords{}, s.Now())
					})
					if err == nil {
						mu.Lock()
						accepted++
						mu.Unlock()
					}
				}()
			}
		}
		wg.Wait()

		got, err := s.Get(ctx, "ROOM01")
		require.NoError(t, err)
		assert.Equal(t, 3, accepted)
		assert.Equal(t, 3, got.CurrentGuesses)
		assert.Equal(t, room.RoundEnding, got.RoundState)
		require.NoError(t, got.Check())
	})
}

func TestUpdateDeletesEmptyRoom(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seed(t, s, "ROOM01", "a")

		ch, cancel := s.Subscribe("ROOM01")
		defer cancel()

		_, err := s.Update(ctx, "ROOM01", func(r *room.Room) error { return r.Leave("a") })
		require.NoError(t, err)

		_, err = s.Get(ctx, "ROOM01")
		assert.ErrorIs(t, err, ErrNotFound)

		select {
		case r := <-ch:
			assert.Empty(t, r.Players)
		case <-time.After(time.Second):
			t.Fatal("no final snapshot")
		}
	})
}

func TestDeleteEmptyLobbies(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seed(t, s, "EMPTY1")
		seed(t, s, "FULL01", "a")
		fresh, err := room.New("EMPTY2", "", room.ModeClassic, 3, t0.Add(time.Hour))
		require.NoError(t, err)
		require.NoError(t, s.Create(ctx, fresh))

		ids, err := s.DeleteEmpty(ctx, t0.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, []string{"EMPTY1"}, ids)

		_, err = s.Get(ctx, "EMPTY1")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.Get(ctx, "EMPTY2")
		assert.NoError(t, err, "younger than the cutoff")
		_, err = s.Get(ctx, "FULL01")
		assert.NoError(t, err)

		ids, err = s.DeleteEmpty(ctx, t0.Add(time.Minute))
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestSubscribeDeliversSnapshots(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		seed(t, s, "ROOM01", "a", "b")

		ch, cancel := s.Subscribe("ROOM01")
		defer cancel()

		for i := 0; i < 3; i++ {
			_, err := s.Update(ctx, "ROOM01", func(r *room.Room) error {
				return r.Touch("b", "c-b", s.Now())
			})
			require.NoError(t, err)
		}

		var last int64
		for i := 0; i < 3; i++ {
			select {
			case r := <-ch:
				assert.Greater(t, r.Rev, last)
				last = r.Rev
			case <-time.After(time.Second):
				t.Fatal("missing snapshot")
			}
		}
		assert.Equal(t, int64(4), last)
	})
}

func TestBrokerKeepsLatestForSlowSubscriber(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("R")
	for i := 1; i <= 40; i++ {
		b.Publish(&room.Room{ID: "R", Rev: int64(i)})
	}

	var last int64
	for len(ch) > 0 {
		last = (<-ch).Rev
	}
	assert.Equal(t, int64(40), last)

	b.Unsubscribe("R", ch)
	b.Publish(&room.Room{ID: "R", Rev: 41})
	assert.Empty(t, ch)
}

func TestClockIsStrictlyMonotonic(t *testing.T) {
	frozen := t0
	c := NewClock(func() time.Time { return frozen })

	a := c.Now()
	b := c.Now()
	assert.True(t, b.After(a))

	frozen = t0.Add(-time.Hour)
	assert.True(t, c.Now().After(b), "a source stepping backwards does not move the clock back")
}

func TestHooks(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(nil)
	seed(t, s, "ROOM01", "a", "b")
	h := NewHooks(s, slog.Default())

	h.OnDisconnect("c-a", "ROOM01", func(r *room.Room) error {
		return r.MarkDisconnected("a", "c-a", s.Now())
	})
	require.True(t, h.Pending("c-a"))

	require.NoError(t, h.Fire(ctx, "c-a"))
	assert.False(t, h.Pending("c-a"))

	r, err := s.Get(ctx, "ROOM01")
	require.NoError(t, err)
	assert.Equal(t, room.PlayerDisconnected, r.Players["a"].Status)
	assert.Equal(t, "b", r.HostID)

	// Firing twice, or an unknown connection, is harmless.
	require.NoError(t, h.Fire(ctx, "c-a"))
	require.NoError(t, h.Fire(ctx, "c-zzz"))
}

func TestHooksCancel(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(nil)
	seed(t, s, "ROOM01", "a", "b")
	h := NewHooks(s, slog.Default())

	h.OnDisconnect("c-b", "ROOM01", func(r *room.Room) error {
		return r.MarkDisconnected("b", "c-b", s.Now())
	})
	h.Cancel("c-b")
	require.NoError(t, h.Fire(ctx, "c-b"))

	r, err := s.Get(ctx, "ROOM01")
	require.NoError(t, err)
	assert.Equal(t, room.PlayerOnline, r.Players["b"].Status)
}

func TestHooksStaleWriteIsNotAnError(t *testing.T) {
	s := NewMemory(nil)
	seed(t, s, "ROOM01", "a", "b")
	h := NewHooks(s, slog.Default())

	h.OnDisconnect("c-b", "ROOM01", func(*room.Room) error { return room.ErrStale })
	assert.NoError(t, h.Fire(context.Background(), "c-b"))

	boom := errors.New("boom")
	h.OnDisconnect("c-b", "ROOM01", func(*room.Room) error { return boom })
	assert.ErrorIs(t, h.Fire(context.Background(), "c-b"), boom)
}
