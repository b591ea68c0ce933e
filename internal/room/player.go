package room

import (
	"slices"
	"time"
)

type PlayerStatus string

const (
	PlayerOnline       PlayerStatus = "online"
	PlayerOffline      PlayerStatus = "offline"
	PlayerDisconnected PlayerStatus = "disconnected"
)

// Branch is a navigation target inside a round's scene. Every round starts
// at BranchStart.
type Branch string

const (
	BranchStart   Branch = "pano0"
	BranchLeft    Branch = "left"
	BranchRight   Branch = "right"
	BranchForward Branch = "forward"
)

func (b Branch) Valid() bool {
	switch b {
	case BranchStart, BranchLeft, BranchRight, BranchForward:
		return true
	}
	return false
}

// Presence is the liveness classification shown to other participants.
type Presence string

const (
	PresenceOnline       Presence = "online"
	PresenceSuspect      Presence = "suspect"
	PresenceOffline      Presence = "offline"
	PresenceDisconnected Presence = "disconnected"
)

type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	SessionHash string `json:"sessionHash,omitempty"`
	ConnID      string `json:"connId,omitempty"`

	Status         PlayerStatus `json:"status"`
	LastSeen       time.Time    `json:"lastSeen"`
	DisconnectedAt *time.Time   `json:"disconnectedAt,omitempty"`
	JoinedAt       time.Time    `json:"joinedAt"`
	IsHost         bool         `json:"isHost"`

	InRound      bool     `json:"inRound"`
	HasGuessed   bool     `json:"hasGuessed"`
	CurrentGuess *Coords  `json:"currentGuess,omitempty"`
	MovesUsed    int      `json:"movesUsed"`
	UsedBranches []Branch `json:"usedBranches,omitempty"`
	Position     Branch   `json:"position"`

	TotalScore  int   `json:"totalScore"`
	RoundScores []int `json:"roundScores,omitempty"`
}

// Presence classifies the player on server time. An online player whose
// last heartbeat is older than threshold is suspect even before the
// disconnect hook confirms the loss.
func (p *Player) Presence(now time.Time, threshold time.Duration) Presence {
	switch p.Status {
	case PlayerOffline:
		return PresenceOffline
	case PlayerDisconnected:
		return PresenceDisconnected
	}
	if now.Sub(p.LastSeen) > threshold {
		return PresenceSuspect
	}
	return PresenceOnline
}

func (p *Player) resetRound() {
	p.HasGuessed = false
	p.CurrentGuess = nil
	p.MovesUsed = 0
	p.UsedBranches = nil
	p.Position = BranchStart
}

func (p *Player) clone() *Player {
	c := *p
	if p.DisconnectedAt != nil {
		t := *p.DisconnectedAt
		c.DisconnectedAt = &t
	}
	if p.CurrentGuess != nil {
		g := *p.CurrentGuess
		c.CurrentGuess = &g
	}
	c.UsedBranches = slices.Clone(p.UsedBranches)
	c.RoundScores = slices.Clone(p.RoundScores)
	return &c
}
