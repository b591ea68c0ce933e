package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playperu/panoround/internal/room"
)

// SQLite keeps each room as a JSONB document in a single table. Updates
// are read-modify-write inside a transaction, fenced on the rev column.
type SQLite struct {
	db     *sql.DB
	mu     sync.Mutex
	broker *Broker
	clock  *Clock
}

func NewSQLite(ctx context.Context, db *sql.DB, clock *Clock) (*SQLite, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS rooms (
		id     TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		rev    INTEGER NOT NULL,
		data   JSONB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("creating table: %w", err)
	}
	if clock == nil {
		clock = NewClock(nil)
	}
	return &SQLite{db: db, broker: NewBroker(), clock: clock}, nil
}

func (s *SQLite) Create(ctx context.Context, r *room.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM rooms WHERE id = ?`, r.ID).Scan(&exists)
	if err == nil {
		return ErrExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	r.Rev = 1
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rooms (id, status, rev, data) VALUES (?, ?, ?, jsonb(?))`,
		r.ID, string(r.Status), r.Rev, string(data),
	)
	return err
}

func (s *SQLite) Get(ctx context.Context, id string) (*room.Room, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT json(data) FROM rooms WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeRoom(data)
}

// Update loads the room, applies fn, and saves it in a transaction.
func (s *SQLite) Update(ctx context.Context, id string, fn Mutation) (*room.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var data string
	var rev int64
	err = tx.QueryRowContext(ctx, `SELECT json(data), rev FROM rooms WHERE id = ?`, id).Scan(&data, &rev)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	r, err := decodeRoom(data)
	if err != nil {
		return nil, err
	}
	if err := fn(r); err != nil {
		return nil, err
	}
	r.Rev = rev + 1

	var res sql.Result
	if len(r.Players) == 0 {
		res, err = tx.ExecContext(ctx, `DELETE FROM rooms WHERE id = ? AND rev = ?`, id, rev)
	} else {
		encoded, merr := json.Marshal(r)
		if merr != nil {
			return nil, merr
		}
		res, err = tx.ExecContext(ctx,
			`UPDATE rooms SET status = ?, rev = ?, data = jsonb(?) WHERE id = ? AND rev = ?`,
			string(r.Status), r.Rev, string(encoded), id, rev,
		)
	}
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrConflict
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.broker.Publish(r)
	return r, nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteEmpty only looks at waiting rooms; a room that has ever had
// players is deleted by the Update that removed the last of them.
func (s *SQLite) DeleteEmpty(ctx context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, rev, json(data) FROM rooms WHERE status = ?`, string(room.StatusWaiting))
	if err != nil {
		return nil, err
	}
	type candidate struct {
		id  string
		rev int64
	}
	var stale []candidate
	for rows.Next() {
		var c candidate
		var data string
		if err := rows.Scan(&c.id, &c.rev, &data); err != nil {
			rows.Close()
			return nil, err
		}
		r, err := decodeRoom(data)
		if err != nil {
			rows.Close()
			return nil, err
		}
		if len(r.Players) == 0 && r.CreatedAt.Before(cutoff) {
			stale = append(stale, c)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var ids []string
	for _, c := range stale {
		res, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = ? AND rev = ?`, c.id, c.rev)
		if err != nil {
			return ids, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			ids = append(ids, c.id)
		}
	}
	return ids, nil
}

func (s *SQLite) Subscribe(id string) (<-chan *room.Room, func()) {
	return s.broker.subscription(id)
}

func (s *SQLite) Now() time.Time { return s.clock.Now() }

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func decodeRoom(data string) (*room.Room, error) {
	var r room.Room
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("decoding room: %w", err)
	}
	if r.Players == nil {
		r.Players = make(map[string]*room.Player)
	}
	return &r, nil
}
