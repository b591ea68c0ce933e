package room

import "errors"

// ErrStale means the transition's precondition no longer holds: someone
// else already performed it. Callers treat it as a no-op.
var ErrStale = errors.New("stale write")

var (
	ErrAlreadyGuessed   = errors.New("already guessed")
	ErrTimeExpired      = errors.New("time expired")
	ErrInFlight         = errors.New("guess in flight")
	ErrNotInRound       = errors.New("player is not part of this round")
	ErrRoundNotActive   = errors.New("round is not active")
	ErrNoMovesLeft      = errors.New("no moves left")
	ErrInvalidBranch    = errors.New("invalid branch")
	ErrNotHost          = errors.New("only the host can do that")
	ErrNotEnoughPlayers = errors.New("not enough players")
	ErrRoomFull         = errors.New("room is full")
	ErrGameInProgress   = errors.New("game already in progress")
	ErrPlayerNotFound   = errors.New("player not found")
	ErrUnknownMode      = errors.New("unknown mode")
	ErrInvalidRounds    = errors.New("invalid number of rounds")
)

var reasons = []struct {
	err    error
	reason string
}{
	{ErrAlreadyGuessed, "already_guessed"},
	{ErrTimeExpired, "time_expired"},
	{ErrInFlight, "in_flight"},
	{ErrNotInRound, "not_in_round"},
	{ErrRoundNotActive, "round_not_active"},
	{ErrNoMovesLeft, "no_moves_left"},
	{ErrInvalidBranch, "invalid_branch"},
	{ErrNotHost, "not_host"},
	{ErrNotEnoughPlayers, "not_enough_players"},
	{ErrRoomFull, "room_full"},
	{ErrGameInProgress, "game_in_progress"},
	{ErrPlayerNotFound, "player_not_found"},
	{ErrUnknownMode, "unknown_mode"},
	{ErrInvalidRounds, "invalid_rounds"},
	{ErrStale, "stale"},
}

// Reason maps a guard error to the short code shown to the UI. It returns
// "" for errors that are not rejections (store failures and the like).
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return ""
}
