package engine

import "github.com/playperu/panoround/internal/room"

type NotificationType string

const (
	NotifyPlayerJoined       NotificationType = "player_joined"
	NotifyPlayerLeft         NotificationType = "player_left"
	NotifyHostChanged        NotificationType = "host_changed"
	NotifyRoundStarted       NotificationType = "round_started"
	NotifyRoundEnded         NotificationType = "round_ended"
	NotifyGameOver           NotificationType = "game_over"
	NotifyConnectionLost     NotificationType = "connection_lost"
	NotifyConnectionRestored NotificationType = "connection_restored"
)

type Notification struct {
	Type     NotificationType `json:"type"`
	PlayerID string           `json:"playerId,omitempty"`
	Name     string           `json:"name,omitempty"`
	Round    int              `json:"round,omitempty"`
}

// diff derives notifications from two consecutive snapshots. The first
// snapshot a client sees produces none.
func diff(prev, next *room.Room) []Notification {
	if prev == nil {
		return nil
	}
	var out []Notification
	for _, p := range next.Roster() {
		if _, ok := prev.Players[p.ID]; !ok {
			out = append(out, Notification{Type: NotifyPlayerJoined, PlayerID: p.ID, Name: p.Name})
		}
	}
	for _, p := range prev.Roster() {
		if _, ok := next.Players[p.ID]; !ok {
			out = append(out, Notification{Type: NotifyPlayerLeft, PlayerID: p.ID, Name: p.Name})
		}
	}
	if next.HostID != prev.HostID && next.HostID != "" {
		n := Notification{Type: NotifyHostChanged, PlayerID: next.HostID}
		if h, ok := next.Players[next.HostID]; ok {
			n.Name = h.Name
		}
		out = append(out, n)
	}
	if next.RoundVersion > prev.RoundVersion && next.Status == room.StatusPlaying {
		out = append(out, Notification{Type: NotifyRoundStarted, Round: next.CurrentRound})
	}
	if next.Status != prev.Status {
		switch next.Status {
		case room.StatusRoundEnd:
			out = append(out, Notification{Type: NotifyRoundEnded, Round: next.CurrentRound})
		case room.StatusGameOver:
			out = append(out, Notification{Type: NotifyGameOver, Round: next.CurrentRound})
		}
	}
	return out
}
