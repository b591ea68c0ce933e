package room

import (
	"slices"
	"time"
)

// Start moves the lobby into round one. A start against a room that is no
// longer waiting is stale: someone already started it.
func (r *Room) Start(playerID string, now time.Time, target Coords) error {
	if r.HostID != playerID {
		return ErrNotHost
	}
	if r.Status != StatusWaiting {
		return ErrStale
	}
	if r.OnlineCount() < MinPlayers {
		return ErrNotEnoughPlayers
	}
	r.Status = StatusPlaying
	r.CurrentRound = 1
	r.AdvancedFrom = 0
	r.beginRound(now, target)
	return nil
}

// beginRound snapshots the convergence target from the players online right
// now and fences off every write made against the previous round.
func (r *Room) beginRound(now time.Time, target Coords) {
	r.RoundVersion++
	r.RoundState = RoundActive
	r.RoundStartTime = now
	r.Target = &target

	n := 0
	for _, p := range r.Players {
		p.resetRound()
		p.InRound = p.Status == PlayerOnline
		if p.InRound {
			n++
		}
	}
	r.ActivePlayerCount = n
	r.ExpectedGuesses = n
	r.CurrentGuesses = 0
}

// SubmitGuess records the player's guess and bumps the round's counter in
// the same write. Reaching expectedGuesses moves the round to ending.
func (r *Room) SubmitGuess(playerID string, guess Coords, now time.Time) error {
	p, ok := r.Players[playerID]
	if !ok {
		return ErrPlayerNotFound
	}
	if p.HasGuessed {
		return ErrAlreadyGuessed
	}
	// A round the host expired on the clock still reads as time expired.
	if r.Status == StatusPlaying || r.Status == StatusRoundEnd {
		if r.Elapsed(now) > r.TimeLimit {
			return ErrTimeExpired
		}
	}
	if r.Status != StatusPlaying || r.RoundState != RoundActive {
		return ErrRoundNotActive
	}
	if !p.InRound {
		return ErrNotInRound
	}
	if r.CurrentGuesses >= r.ExpectedGuesses {
		return ErrRoundNotActive
	}
	p.HasGuessed = true
	p.CurrentGuess = &guess
	r.CurrentGuesses++
	r.converge()
	return nil
}

func (r *Room) converge() {
	if r.RoundState == RoundActive && r.CurrentGuesses >= r.ExpectedGuesses {
		r.RoundState = RoundEnding
	}
}

// Expire ends an active round whose clock has run for at least after. The
// host calls it with the time limit; the recovery watchdog calls it with the
// limit plus its safety margin. Both are fenced on roundVersion.
func (r *Room) Expire(version int, now time.Time, after time.Duration) error {
	if r.RoundVersion != version || r.Status != StatusPlaying || r.RoundState != RoundActive {
		return ErrStale
	}
	if r.Elapsed(now) < after {
		return ErrStale
	}
	r.RoundState = RoundEnding
	return nil
}

// Resolve scores the round and publishes results in one write.
func (r *Room) Resolve(version int, scorer Scorer) error {
	if r.RoundVersion != version || r.Status != StatusPlaying || r.RoundState != RoundEnding {
		return ErrStale
	}
	for _, p := range r.Players {
		score := 0
		if p.InRound && p.CurrentGuess != nil && r.Target != nil {
			score = scorer.Score(*r.Target, *p.CurrentGuess)
		}
		p.RoundScores = append(p.RoundScores, score)
		p.TotalScore += score
	}
	r.RoundState = RoundEnded
	r.Status = StatusRoundEnd
	return nil
}

// Advance starts the next round, or ends the game after the last one. It
// applies at most once per roundVersion no matter how many requests race.
func (r *Room) Advance(playerID string, version int, now time.Time, target Coords) error {
	if r.HostID != playerID {
		return ErrNotHost
	}
	if r.Status != StatusRoundEnd || r.RoundVersion != version || r.AdvancedFrom == version {
		return ErrStale
	}
	r.AdvancedFrom = version
	if r.CurrentRound >= r.TotalRounds {
		r.Status = StatusGameOver
		return nil
	}
	r.CurrentRound++
	r.Status = StatusPlaying
	r.beginRound(now, target)
	return nil
}

// Restart returns a finished game to the lobby, keeping the room and its
// players. roundVersion is left alone; it never goes backwards.
func (r *Room) Restart(playerID string) error {
	if r.HostID != playerID {
		return ErrNotHost
	}
	if r.Status != StatusGameOver {
		return ErrStale
	}
	r.Status = StatusWaiting
	r.CurrentRound = 0
	r.RoundState = RoundWaiting
	r.AdvancedFrom = 0
	r.ActivePlayerCount = 0
	r.ExpectedGuesses = 0
	r.CurrentGuesses = 0
	r.RoundStartTime = time.Time{}
	r.Target = nil
	for _, p := range r.Players {
		p.resetRound()
		p.InRound = false
		p.TotalScore = 0
		p.RoundScores = nil
	}
	return nil
}

// UseBranch moves the player to b. The first visit to a branch in a round
// costs one move; the start point and branches already taken are free.
// It reports whether a move was charged.
func (r *Room) UseBranch(playerID string, b Branch) (bool, error) {
	if !b.Valid() {
		return false, ErrInvalidBranch
	}
	p, ok := r.Players[playerID]
	if !ok {
		return false, ErrPlayerNotFound
	}
	if r.Status != StatusPlaying || r.RoundState != RoundActive {
		return false, ErrRoundNotActive
	}
	if b == BranchStart || slices.Contains(p.UsedBranches, b) {
		p.Position = b
		return false, nil
	}
	if p.MovesUsed >= r.MoveLimit {
		return false, ErrNoMovesLeft
	}
	p.UsedBranches = append(p.UsedBranches, b)
	p.MovesUsed++
	p.Position = b
	return true, nil
}
