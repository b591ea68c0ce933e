package engine

import (
	"context"
	"errors"
	"time"

	"github.com/playperu/panoround/internal/room"
)

// checkRound pushes the round forward from whatever state this client sees.
// Any client finishes an ending round. The host expires the round at the
// time limit; everyone else waits out the recovery margin first, so a
// frozen host cannot stall the room.
func (c *Client) checkRound(ctx context.Context, r *room.Room) {
	if r == nil || r.Status != room.StatusPlaying {
		return
	}
	switch r.RoundState {
	case room.RoundEnding:
		c.resolve(ctx, r.RoundVersion)
	case room.RoundActive:
		elapsed := r.Elapsed(c.svc.store.Now())
		margin := c.svc.cfg.RecoveryMargin
		switch {
		case r.HostID == c.playerID && elapsed >= r.TimeLimit:
			c.expire(ctx, r.RoundVersion, r.TimeLimit, false)
		case elapsed >= r.TimeLimit+margin:
			c.expire(ctx, r.RoundVersion, r.TimeLimit+margin, true)
		}
	}
}

func (c *Client) expire(ctx context.Context, version int, after time.Duration, forced bool) {
	r, err := c.update(ctx, func(r *room.Room) error {
		return r.Expire(version, c.svc.store.Now(), after)
	})
	if err != nil {
		if !errors.Is(err, room.ErrStale) {
			c.svc.logger.Warn("round expiry failed", "room", c.roomID, "round", version, "error", err)
		}
		return
	}
	if forced {
		c.telemetry.RoundsForced.Add(1)
		c.svc.logger.Warn("round forced to end", "room", c.roomID, "round", version, "player", c.playerID)
	}
	c.resolve(ctx, r.RoundVersion)
}

func (c *Client) resolve(ctx context.Context, version int) {
	_, err := c.update(ctx, func(r *room.Room) error {
		return r.Resolve(version, c.svc.scorer)
	})
	switch {
	case err == nil:
		c.telemetry.RoundsResolved.Add(1)
		c.svc.logger.Info("round resolved", "room", c.roomID, "round", version)
	case errors.Is(err, room.ErrStale):
	default:
		c.svc.logger.Warn("round resolve failed", "room", c.roomID, "round", version, "error", err)
	}
}
