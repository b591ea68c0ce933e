package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playperu/panoround/internal/room"
)

// cleanupGhosts evicts players whose grace window has passed. Only the
// host runs it, and the write re-checks that it still is.
func (c *Client) cleanupGhosts(ctx context.Context) {
	r := c.snapshot()
	if r == nil || r.HostID != c.playerID {
		return
	}
	grace := c.svc.cfg.GracePeriod
	if len(r.Ghosts(c.svc.store.Now(), grace)) == 0 {
		return
	}

	var evicted []string
	_, err := c.update(ctx, func(r *room.Room) error {
		if r.HostID != c.playerID {
			return room.ErrStale
		}
		evicted = r.EvictGhosts(c.svc.store.Now(), grace)
		if len(evicted) == 0 {
			return room.ErrStale
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, room.ErrStale) {
			c.svc.logger.Warn("ghost cleanup failed", "room", c.roomID, "error", err)
		}
		return
	}
	c.telemetry.GhostsEvicted.Add(int64(len(evicted)))
	c.svc.logger.Info("evicted ghost players", "room", c.roomID, "players", evicted)

	// Removing a ghost can complete the round.
	c.checkRound(ctx, c.snapshot())
}

// SweepEmptyRooms deletes lobbies nobody joined within EmptyRoomTTL.
func (s *Service) SweepEmptyRooms(ctx context.Context) ([]string, error) {
	ids, err := s.store.DeleteEmpty(ctx, s.store.Now().Add(-s.cfg.EmptyRoomTTL))
	if err != nil {
		return ids, fmt.Errorf("sweeping empty rooms: %w", err)
	}
	if len(ids) > 0 {
		s.logger.Info("deleted empty rooms", "rooms", ids)
	}
	return ids, nil
}

// RunSweeper calls SweepEmptyRooms every SweepInterval until ctx ends.
func (s *Service) RunSweeper(ctx context.Context) error {
	if s.cfg.SweepInterval <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(s.cfg.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := s.SweepEmptyRooms(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("empty room sweep failed", "error", err)
			}
		}
	}
}
