package room

import (
	"slices"
	"time"
)

// AddPlayer admits a new participant to the lobby. The first player in
// becomes host.
func (r *Room) AddPlayer(p *Player, now time.Time) error {
	if r.Status != StatusWaiting {
		return ErrGameInProgress
	}
	if len(r.Players) >= MaxPlayers {
		return ErrRoomFull
	}
	if _, ok := r.Players[p.ID]; ok {
		return ErrStale
	}
	p.Status = PlayerOnline
	p.JoinedAt = now
	p.LastSeen = now
	p.DisconnectedAt = nil
	p.resetRound()
	r.Players[p.ID] = p
	r.electHost()
	return nil
}

// Reconnect resumes an existing player on a new connection.
func (r *Room) Reconnect(playerID, connID string, now time.Time) error {
	p, ok := r.Players[playerID]
	if !ok {
		return ErrPlayerNotFound
	}
	p.Status = PlayerOnline
	p.ConnID = connID
	p.LastSeen = now
	p.DisconnectedAt = nil
	r.electHost()
	return nil
}

// Touch records a heartbeat. A heartbeat from a connection the player is no
// longer bound to, or for a player already marked gone, is stale.
func (r *Room) Touch(playerID, connID string, now time.Time) error {
	p, ok := r.Players[playerID]
	if !ok {
		return ErrPlayerNotFound
	}
	if p.Status != PlayerOnline || p.ConnID != connID {
		return ErrStale
	}
	p.LastSeen = now
	return nil
}

// MarkDisconnected is the write a disconnect hook fires. It only applies
// while the player is still bound to connID, so a socket closing after its
// player resumed elsewhere changes nothing.
func (r *Room) MarkDisconnected(playerID, connID string, now time.Time) error {
	p, ok := r.Players[playerID]
	if !ok || p.ConnID != connID || p.Status == PlayerDisconnected {
		return ErrStale
	}
	p.Status = PlayerDisconnected
	p.DisconnectedAt = &now
	r.electHost()
	return nil
}

// Leave removes the player after an intentional exit.
func (r *Room) Leave(playerID string) error {
	p, ok := r.Players[playerID]
	if !ok {
		return ErrStale
	}
	p.Status = PlayerOffline
	r.remove(p)
	return nil
}

// EvictGhosts removes every player that has been disconnected for longer
// than grace and returns their ids in join order.
func (r *Room) EvictGhosts(now time.Time, grace time.Duration) []string {
	var evicted []string
	for _, p := range r.Roster() {
		if p.Status != PlayerDisconnected || p.DisconnectedAt == nil {
			continue
		}
		if now.Sub(*p.DisconnectedAt) <= grace {
			continue
		}
		r.remove(p)
		evicted = append(evicted, p.ID)
	}
	return evicted
}

// Ghosts lists disconnected players whose grace window has elapsed.
func (r *Room) Ghosts(now time.Time, grace time.Duration) []string {
	var ids []string
	for _, p := range r.Roster() {
		if p.Status == PlayerDisconnected && p.DisconnectedAt != nil && now.Sub(*p.DisconnectedAt) > grace {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func (r *Room) remove(p *Player) {
	delete(r.Players, p.ID)
	if r.Status == StatusPlaying && r.RoundState == RoundActive && p.InRound {
		r.ActivePlayerCount--
		if !p.HasGuessed {
			r.ExpectedGuesses--
		}
		r.converge()
	}
	r.electHost()
}

// Successor is the host every client computes independently: the online
// player with the earliest joinedAt, id breaking ties. It returns "" when
// nobody is online.
func (r *Room) Successor() string {
	online := make([]*Player, 0, len(r.Players))
	for _, p := range r.Players {
		if p.Status == PlayerOnline {
			online = append(online, p)
		}
	}
	if len(online) == 0 {
		return ""
	}
	return slices.MinFunc(online, joinOrder).ID
}

// HostPresent reports whether the designated host is online.
func (r *Room) HostPresent() bool {
	h, ok := r.Players[r.HostID]
	return ok && h.Status == PlayerOnline
}

// MigrateHost hands authority from the host a client observed missing to
// the successor it computed. Concurrent writers computing the same winner
// collapse into one write; the rest see ErrStale.
func (r *Room) MigrateHost(from, to string) error {
	if r.HostID != from || r.HostPresent() {
		return ErrStale
	}
	if to == "" || r.Successor() != to {
		return ErrStale
	}
	r.setHost(to)
	return nil
}

// electHost keeps hostId on an online player whenever one exists.
func (r *Room) electHost() {
	if !r.HostPresent() {
		if next := r.Successor(); next != "" {
			r.HostID = next
		} else if _, ok := r.Players[r.HostID]; !ok {
			r.HostID = ""
		}
	}
	r.setHost(r.HostID)
}

func (r *Room) setHost(id string) {
	r.HostID = id
	for _, p := range r.Players {
		p.IsHost = p.ID == id
	}
}
