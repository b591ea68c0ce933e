// Package room models one game session and every transition it can make.
//
// All mutations are methods on *Room that run inside a store transaction
// against a private copy of the document. They perform no I/O and take the
// server timestamp as an argument, so the same code drives the in-memory
// store, the SQLite store and the tests.
package room

import (
	"slices"
	"strings"
	"time"
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusRoundEnd Status = "roundEnd"
	StatusGameOver Status = "gameOver"
)

// RoundState is scoped to the current round and reset every round.
type RoundState string

const (
	RoundWaiting RoundState = "waiting"
	RoundActive  RoundState = "active"
	RoundEnding  RoundState = "ending"
	RoundEnded   RoundState = "ended"
)

const (
	MinPlayers = 2
	MaxPlayers = 8

	DefaultTotalRounds = 5
	MaxTotalRounds     = 20
)

type Mode string

const (
	ModeClassic Mode = "classic"
	ModeSpeed   Mode = "speed"
	ModeNoMove  Mode = "nomove"
)

// Rules are the per-round limits a mode imposes.
type Rules struct {
	TimeLimit time.Duration
	MoveLimit int
}

var modeRules = map[Mode]Rules{
	ModeClassic: {TimeLimit: 60 * time.Second, MoveLimit: 3},
	ModeSpeed:   {TimeLimit: 30 * time.Second, MoveLimit: 1},
	ModeNoMove:  {TimeLimit: 60 * time.Second, MoveLimit: 0},
}

func (m Mode) Rules() (Rules, bool) {
	r, ok := modeRules[m]
	return r, ok
}

type Coords struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Room struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Mode      Mode      `json:"mode"`
	CreatedAt time.Time `json:"createdAt"`

	HostID string `json:"hostId"`
	Status Status `json:"status"`

	CurrentRound int        `json:"currentRound"`
	TotalRounds  int        `json:"totalRounds"`
	RoundState   RoundState `json:"roundState"`
	RoundVersion int        `json:"roundVersion"`
	// AdvancedFrom records the roundVersion a next-round request was last
	// applied to, so the same round can never be advanced twice.
	AdvancedFrom int `json:"advancedFrom"`

	ActivePlayerCount int `json:"activePlayerCount"`
	ExpectedGuesses   int `json:"expectedGuesses"`
	CurrentGuesses    int `json:"currentGuesses"`

	RoundStartTime time.Time     `json:"roundStartTime"`
	TimeLimit      time.Duration `json:"timeLimit"`
	MoveLimit      int           `json:"moveLimit"`
	Target         *Coords       `json:"target,omitempty"`

	Players map[string]*Player `json:"players"`

	// Rev is bumped by the store on every committed write.
	Rev int64 `json:"rev"`
}

// New builds a lobby. A zero totalRounds selects DefaultTotalRounds.
func New(id, name string, mode Mode, totalRounds int, now time.Time) (*Room, error) {
	rules, ok := mode.Rules()
	if !ok {
		return nil, ErrUnknownMode
	}
	if totalRounds == 0 {
		totalRounds = DefaultTotalRounds
	}
	if totalRounds < 1 || totalRounds > MaxTotalRounds {
		return nil, ErrInvalidRounds
	}
	return &Room{
		ID:          id,
		Name:        strings.TrimSpace(name),
		Mode:        mode,
		CreatedAt:   now,
		Status:      StatusWaiting,
		TotalRounds: totalRounds,
		RoundState:  RoundWaiting,
		TimeLimit:   rules.TimeLimit,
		MoveLimit:   rules.MoveLimit,
		Players:     make(map[string]*Player),
	}, nil
}

// Clone returns a deep copy.
func (r *Room) Clone() *Room {
	c := *r
	if r.Target != nil {
		t := *r.Target
		c.Target = &t
	}
	c.Players = make(map[string]*Player, len(r.Players))
	for id, p := range r.Players {
		c.Players[id] = p.clone()
	}
	return &c
}

// Public is a copy safe to hand to every participant. Session hashes and
// connection ids are always stripped; the target and submitted guesses
// stay hidden until the round has ended.
func (r *Room) Public() *Room {
	c := r.Clone()
	sealed := c.RoundState != RoundEnded
	if sealed {
		c.Target = nil
	}
	for _, p := range c.Players {
		p.SessionHash = ""
		p.ConnID = ""
		if sealed {
			p.CurrentGuess = nil
		}
	}
	return c
}

// Roster lists players in join order.
func (r *Room) Roster() []*Player {
	ps := make([]*Player, 0, len(r.Players))
	for _, p := range r.Players {
		ps = append(ps, p)
	}
	slices.SortFunc(ps, joinOrder)
	return ps
}

func (r *Room) OnlineCount() int {
	n := 0
	for _, p := range r.Players {
		if p.Status == PlayerOnline {
			n++
		}
	}
	return n
}

// Elapsed is the time since the round started, measured on server time.
func (r *Room) Elapsed(now time.Time) time.Duration {
	return now.Sub(r.RoundStartTime)
}

// Expired reports whether an active round has run past its time limit.
func (r *Room) Expired(now time.Time) bool {
	return r.Status == StatusPlaying && r.RoundState == RoundActive && r.Elapsed(now) >= r.TimeLimit
}

func joinOrder(a, b *Player) int {
	if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
