package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/playperu/panoround/internal/room"
	"github.com/playperu/panoround/internal/store"
)

// errLeft stops Run after a clean leave.
var errLeft = errors.New("left room")

// Client is one participant's engine instance.
type Client struct {
	svc      *Service
	roomID   string
	playerID string
	connID   string
	token    string

	telemetry *Telemetry
	notes     chan Notification
	changed   chan struct{}

	mu          sync.Mutex
	view        *room.Room
	inflight    bool
	left        bool
	unreachable bool
}

type GuessResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

func newClient(s *Service, roomID, playerID, connID, token string) *Client {
	return &Client{
		svc:       s,
		roomID:    roomID,
		playerID:  playerID,
		connID:    connID,
		token:     token,
		telemetry: NewTelemetry(),
		notes:     make(chan Notification, 64),
		changed:   make(chan struct{}, 1),
	}
}

func (c *Client) PlayerID() string      { return c.playerID }
func (c *Client) RoomID() string        { return c.roomID }
func (c *Client) ConnID() string        { return c.connID }
func (c *Client) Token() string         { return c.token }
func (c *Client) Telemetry() *Telemetry { return c.telemetry }

// Room is the latest public snapshot this client has observed.
func (c *Client) Room() *room.Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.Public()
}

// Players lists the observed players in join order.
func (c *Client) Players() []room.Player {
	roster := c.Room().Roster()
	ps := make([]room.Player, len(roster))
	for i, p := range roster {
		ps[i] = *p
	}
	return ps
}

// Presence classifies a player from this client's view on server time.
func (c *Client) Presence(playerID string) room.Presence {
	p, ok := c.snapshot().Players[playerID]
	if !ok {
		return room.PresenceOffline
	}
	return p.Presence(c.svc.store.Now(), c.svc.cfg.LivenessThreshold)
}

// View is one consistent snapshot for rendering: the public room, the
// server time it was taken at, and every player's presence at that time.
type View struct {
	Room       *room.Room
	ServerTime time.Time
	Presence   map[string]room.Presence
}

func (c *Client) View() View {
	r := c.snapshot()
	now := c.svc.store.Now()
	presence := make(map[string]room.Presence, len(r.Players))
	for id, p := range r.Players {
		presence[id] = p.Presence(now, c.svc.cfg.LivenessThreshold)
	}
	return View{Room: r.Public(), ServerTime: now, Presence: presence}
}

func (c *Client) Notifications() <-chan Notification { return c.notes }

// Changed is signalled whenever a newer snapshot has been observed.
func (c *Client) Changed() <-chan struct{} { return c.changed }

func (c *Client) Left() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.left
}

// SubmitGuess submits the player's guess for the current round. Rejections
// come back as a result with a reason; only store failures are errors.
func (c *Client) SubmitGuess(ctx context.Context, guess room.Coords) (GuessResult, error) {
	c.mu.Lock()
	if c.inflight {
		c.mu.Unlock()
		return c.rejectGuess(room.ErrInFlight), nil
	}
	c.inflight = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.inflight = false
		c.mu.Unlock()
	}()

	r, err := c.update(ctx, func(r *room.Room) error {
		return r.SubmitGuess(c.playerID, guess, c.svc.store.Now())
	})
	if err != nil {
		if room.Reason(err) != "" {
			return c.rejectGuess(err), nil
		}
		return GuessResult{}, fmt.Errorf("submitting guess: %w", err)
	}
	c.telemetry.GuessesAccepted.Add(1)
	if r.RoundState == room.RoundEnding {
		c.resolve(ctx, r.RoundVersion)
	}
	return GuessResult{Accepted: true}, nil
}

func (c *Client) rejectGuess(err error) GuessResult {
	reason := room.Reason(err)
	c.telemetry.reject(reason)
	c.svc.logger.Debug("guess rejected", "room", c.roomID, "player", c.playerID, "reason", reason)
	return GuessResult{Reason: reason}
}

type MoveResult struct {
	Allowed bool   `json:"allowed"`
	Charged bool   `json:"charged"`
	Reason  string `json:"reason,omitempty"`
}

// UseBranch navigates to b. Budget and round-state rejections come back
// as a result with a reason.
func (c *Client) UseBranch(ctx context.Context, b room.Branch) (MoveResult, error) {
	var charged bool
	_, err := c.update(ctx, func(r *room.Room) error {
		var err error
		charged, err = r.UseBranch(c.playerID, b)
		return err
	})
	switch {
	case err == nil:
		if charged {
			c.telemetry.BranchCharges.Add(1)
		}
		return MoveResult{Allowed: true, Charged: charged}, nil
	case errors.Is(err, room.ErrNoMovesLeft), errors.Is(err, room.ErrRoundNotActive):
		return MoveResult{Reason: room.Reason(err)}, nil
	default:
		return MoveResult{}, err
	}
}

// StartGame moves the lobby into round one. Host only.
func (c *Client) StartGame(ctx context.Context) error {
	_, err := c.update(ctx, func(r *room.Room) error {
		return r.Start(c.playerID, c.svc.store.Now(), c.svc.locations.Pick(r.ID, r.RoundVersion+1))
	})
	return ignoreStale(err)
}

// RequestNextRound advances past the round this client last saw ended.
// Duplicate requests for the same round are no-ops. Host only.
func (c *Client) RequestNextRound(ctx context.Context) error {
	version := c.snapshot().RoundVersion
	_, err := c.update(ctx, func(r *room.Room) error {
		return r.Advance(c.playerID, version, c.svc.store.Now(), c.svc.locations.Pick(r.ID, r.RoundVersion+1))
	})
	return ignoreStale(err)
}

// Restart returns a finished game to the lobby. Host only.
func (c *Client) Restart(ctx context.Context) error {
	_, err := c.update(ctx, func(r *room.Room) error {
		return r.Restart(c.playerID)
	})
	return ignoreStale(err)
}

// Leave removes the player for good. The disconnect hook is cancelled
// first so the closing connection does not mark the player disconnected.
func (c *Client) Leave(ctx context.Context) error {
	c.svc.hooks.Cancel(c.connID)
	c.mu.Lock()
	c.left = true
	c.mu.Unlock()

	_, err := c.update(ctx, func(r *room.Room) error {
		return r.Leave(c.playerID)
	})
	if errors.Is(err, room.ErrStale) || errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err == nil {
		c.svc.logger.Info("player left", "room", c.roomID, "player", c.playerID)
	}
	return err
}

// Run drives the client until ctx ends, the player leaves, or the player
// is removed from the room. All timers stop when it returns.
func (c *Client) Run(ctx context.Context) error {
	c.telemetry.Reset()
	updates, unsubscribe := c.svc.store.Subscribe(c.roomID)
	defer unsubscribe()
	defer func() {
		c.svc.logger.Info("session ended", "room", c.roomID, "player", c.playerID, "telemetry", c.telemetry)
	}()

	// Catch up on anything committed before the subscription existed.
	r, err := c.svc.store.Get(ctx, c.roomID)
	if errors.Is(err, store.ErrNotFound) {
		return c.stopReason()
	}
	if err == nil {
		c.observe(r)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case r := <-updates:
				if !c.observe(r) {
					continue
				}
				if err := c.reconcile(ctx); err != nil {
					return err
				}
			}
		}
	})
	g.Go(func() error { return c.timers(ctx) })

	err = g.Wait()
	if errors.Is(err, errLeft) {
		return nil
	}
	return err
}

func (c *Client) timers(ctx context.Context) error {
	heartbeat := time.NewTicker(c.svc.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	tick := time.NewTicker(c.svc.cfg.TickInterval)
	defer tick.Stop()
	cleanup := time.NewTicker(c.svc.cfg.CleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			if err := c.Heartbeat(ctx); errors.Is(err, ErrRemoved) {
				return c.stopReason()
			} else if err != nil && ctx.Err() == nil {
				c.svc.logger.Warn("heartbeat failed", "room", c.roomID, "player", c.playerID, "error", err)
			}
		case <-tick.C:
			if err := c.reconcile(ctx); err != nil {
				return err
			}
		case <-cleanup.C:
			c.cleanupGhosts(ctx)
		}
	}
}

// reconcile reacts to the current view: host migration first, then round
// progress.
func (c *Client) reconcile(ctx context.Context) error {
	r := c.snapshot()
	if _, ok := r.Players[c.playerID]; !ok {
		return c.stopReason()
	}
	c.migrateHost(ctx, r)
	c.checkRound(ctx, c.snapshot())
	return nil
}

func (c *Client) stopReason() error {
	if c.Left() {
		return errLeft
	}
	return ErrRemoved
}

// observe installs r as the view if it is newer than what this client has
// seen, and emits the notifications the change implies.
func (c *Client) observe(r *room.Room) bool {
	c.mu.Lock()
	if c.view != nil && r.Rev <= c.view.Rev {
		c.mu.Unlock()
		return false
	}
	prev := c.view
	c.view = r
	c.mu.Unlock()

	for _, n := range diff(prev, r) {
		c.notify(n)
	}
	select {
	case c.changed <- struct{}{}:
	default:
	}
	return true
}

func (c *Client) snapshot() *room.Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

func (c *Client) notify(n Notification) {
	select {
	case c.notes <- n:
	default:
	}
}

// update runs a conditional write and folds the committed room into the
// view. Stale writes are counted and handed back for the caller to drop.
func (c *Client) update(ctx context.Context, fn store.Mutation) (*room.Room, error) {
	r, err := c.svc.store.Update(ctx, c.roomID, fn)
	if err != nil {
		if errors.Is(err, room.ErrStale) {
			c.telemetry.StaleWrites.Add(1)
			c.svc.logger.Debug("stale write skipped", "room", c.roomID, "player", c.playerID)
		}
		return nil, err
	}
	c.observe(r)
	return r, nil
}

func ignoreStale(err error) error {
	if errors.Is(err, room.ErrStale) {
		return nil
	}
	return err
}
