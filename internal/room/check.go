package room

import (
	"errors"
	"fmt"
)

// Check verifies the invariants every committed room must satisfy.
func (r *Room) Check() error {
	var errs []error
	if r.CurrentGuesses < 0 || r.CurrentGuesses > r.ExpectedGuesses {
		errs = append(errs, fmt.Errorf("currentGuesses %d outside [0, %d]", r.CurrentGuesses, r.ExpectedGuesses))
	}

	hosts, online := 0, 0
	for _, p := range r.Players {
		if p.Status == PlayerOnline {
			online++
		}
		if p.IsHost != (p.ID == r.HostID) {
			errs = append(errs, fmt.Errorf("player %s isHost=%v disagrees with hostId %q", p.ID, p.IsHost, r.HostID))
		}
		if p.IsHost && p.Status != PlayerDisconnected {
			hosts++
		}
		if p.MovesUsed > r.MoveLimit {
			errs = append(errs, fmt.Errorf("player %s used %d moves, limit %d", p.ID, p.MovesUsed, r.MoveLimit))
		}
	}
	if online > 0 && hosts != 1 {
		errs = append(errs, fmt.Errorf("%d hosts among present players", hosts))
	}
	if online > 0 && !r.HostPresent() {
		errs = append(errs, fmt.Errorf("host %q is not online", r.HostID))
	}
	return errors.Join(errs...)
}
