package engine

import (
	"context"
	"errors"

	"github.com/playperu/panoround/internal/room"
)

// migrateHost runs on every client that sees the host missing. All of them
// compute the same successor, so the conditional write lands once.
func (c *Client) migrateHost(ctx context.Context, r *room.Room) {
	if r.HostPresent() {
		return
	}
	next := r.Successor()
	if next == "" || next == r.HostID {
		return
	}
	from := r.HostID
	_, err := c.update(ctx, func(r *room.Room) error {
		return r.MigrateHost(from, next)
	})
	switch {
	case err == nil:
		c.telemetry.HostMigrations.Add(1)
		c.svc.logger.Info("host migrated", "room", c.roomID, "from", from, "to", next)
	case errors.Is(err, room.ErrStale):
	default:
		c.svc.logger.Warn("host migration failed", "room", c.roomID, "error", err)
	}
}
