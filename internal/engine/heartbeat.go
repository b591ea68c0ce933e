package engine

import (
	"context"
	"errors"

	"github.com/playperu/panoround/internal/room"
	"github.com/playperu/panoround/internal/store"
)

// Heartbeat refreshes the player's lastSeen. It returns ErrRemoved once the
// player is gone from the room. A failing store flips the client into the
// unreachable state until a later heartbeat goes through.
func (c *Client) Heartbeat(ctx context.Context) error {
	_, err := c.update(ctx, func(r *room.Room) error {
		return r.Touch(c.playerID, c.connID, c.svc.store.Now())
	})
	switch {
	case err == nil:
		c.telemetry.Heartbeats.Add(1)
		c.setReachable(true)
		return nil
	case errors.Is(err, room.ErrPlayerNotFound), errors.Is(err, store.ErrNotFound):
		return ErrRemoved
	case errors.Is(err, room.ErrStale):
		c.setReachable(true)
		return nil
	default:
		c.setReachable(false)
		return err
	}
}

func (c *Client) setReachable(ok bool) {
	c.mu.Lock()
	changed := c.unreachable == ok
	c.unreachable = !ok
	c.mu.Unlock()
	if !changed {
		return
	}
	if ok {
		c.svc.logger.Info("store reachable again", "room", c.roomID, "player", c.playerID)
		c.notify(Notification{Type: NotifyConnectionRestored, PlayerID: c.playerID})
		return
	}
	c.svc.logger.Warn("store unreachable", "room", c.roomID, "player", c.playerID)
	c.notify(Notification{Type: NotifyConnectionLost, PlayerID: c.playerID})
}
