// Package engine runs one participant's side of a room. Every client runs
// the same logic against its subscribed view of the store: heartbeats,
// host migration, ghost cleanup (while host), and the round watchdog.
// No client talks to another directly.
package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/playperu/panoround/internal/room"
	"github.com/playperu/panoround/internal/store"
)

var (
	ErrNameRequired = errors.New("player name is required")
	ErrRemoved      = errors.New("player is no longer in the room")
)

// Config holds the timing knobs. None of the values encode an invariant;
// they are tuned per deployment.
type Config struct {
	HeartbeatInterval time.Duration
	LivenessThreshold time.Duration
	GracePeriod       time.Duration
	CleanupInterval   time.Duration
	RecoveryMargin    time.Duration
	TickInterval      time.Duration

	// EmptyRoomTTL is how long a lobby nobody joined is kept. SweepInterval
	// is how often the service looks for them.
	EmptyRoomTTL  time.Duration
	SweepInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 3 * time.Second,
		LivenessThreshold: 10 * time.Second,
		GracePeriod:       15 * time.Second,
		CleanupInterval:   10 * time.Second,
		RecoveryMargin:    5 * time.Second,
		TickInterval:      time.Second,
		EmptyRoomTTL:      10 * time.Minute,
		SweepInterval:     time.Minute,
	}
}

type Service struct {
	store     store.Store
	hooks     *store.Hooks
	cfg       Config
	logger    *slog.Logger
	scorer    room.Scorer
	locations Locations
	tokenCost int
}

type Option func(*Service)

func WithScorer(s room.Scorer) Option { return func(svc *Service) { svc.scorer = s } }

// WithLocations replaces the round targets. A nil l keeps the defaults.
func WithLocations(l Locations) Option {
	return func(svc *Service) {
		if l != nil {
			svc.locations = l
		}
	}
}

// WithTokenCost sets the bcrypt cost used for session tokens.
func WithTokenCost(cost int) Option { return func(svc *Service) { svc.tokenCost = cost } }

func NewService(s store.Store, hooks *store.Hooks, cfg Config, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		store:     s,
		hooks:     hooks,
		cfg:       cfg,
		logger:    logger,
		scorer:    room.DefaultScorer,
		locations: DefaultLocations,
		tokenCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type CreateRoomRequest struct {
	Name        string
	Mode        room.Mode
	TotalRounds int
}

// CreateRoom opens an empty lobby and returns its code. The first player
// to join becomes host.
func (s *Service) CreateRoom(ctx context.Context, req CreateRoomRequest) (string, error) {
	mode := req.Mode
	if mode == "" {
		mode = room.ModeClassic
	}
	for range 5 {
		id := newRoomCode()
		r, err := room.New(id, req.Name, mode, req.TotalRounds, s.store.Now())
		if err != nil {
			return "", err
		}
		err = s.store.Create(ctx, r)
		if errors.Is(err, store.ErrExists) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("creating room: %w", err)
		}
		s.logger.Info("room created", "room", id, "mode", mode, "rounds", r.TotalRounds)
		return id, nil
	}
	return "", errors.New("creating room: no free room code")
}

// Room returns the public view of a room.
func (s *Service) Room(ctx context.Context, id string) (*room.Room, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.Public(), nil
}

// Join admits name as a new player, or resumes the player owning
// sessionToken. Either way the returned client is bound to a fresh
// connection with its disconnect hook registered.
func (s *Service) Join(ctx context.Context, roomID, name, sessionToken string) (*Client, error) {
	connID := uuid.NewString()

	if sessionToken != "" {
		playerID, err := s.findSession(ctx, roomID, sessionToken)
		if err != nil {
			return nil, err
		}
		if playerID != "" {
			r, err := s.store.Update(ctx, roomID, func(r *room.Room) error {
				return r.Reconnect(playerID, connID, s.store.Now())
			})
			if err == nil {
				s.logger.Info("player resumed", "room", roomID, "player", playerID)
				return s.attach(r, playerID, connID, sessionToken), nil
			}
			if !errors.Is(err, room.ErrPlayerNotFound) {
				return nil, fmt.Errorf("resuming session: %w", err)
			}
		}
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	token := newToken()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), s.tokenCost)
	if err != nil {
		return nil, fmt.Errorf("hashing session token: %w", err)
	}

	playerID := uuid.NewString()
	r, err := s.store.Update(ctx, roomID, func(r *room.Room) error {
		return r.AddPlayer(&room.Player{
			ID:          playerID,
			Name:        name,
			SessionHash: string(hash),
			ConnID:      connID,
		}, s.store.Now())
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("player joined", "room", roomID, "player", playerID, "name", name)
	return s.attach(r, playerID, connID, token), nil
}

// ConnectionLost fires the disconnect hook registered for connID. It is
// called by the transport when a connection ends without a clean leave.
func (s *Service) ConnectionLost(ctx context.Context, connID string) error {
	return s.hooks.Fire(ctx, connID)
}

func (s *Service) findSession(ctx context.Context, roomID, token string) (string, error) {
	r, err := s.store.Get(ctx, roomID)
	if err != nil {
		return "", err
	}
	for _, p := range r.Players {
		if p.SessionHash == "" {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(p.SessionHash), []byte(token)) == nil {
			return p.ID, nil
		}
	}
	return "", nil
}

func (s *Service) attach(r *room.Room, playerID, connID, token string) *Client {
	s.hooks.OnDisconnect(connID, r.ID, func(r *room.Room) error {
		return r.MarkDisconnected(playerID, connID, s.store.Now())
	})
	c := newClient(s, r.ID, playerID, connID, token)
	c.observe(r)
	return c
}

const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func newRoomCode() string {
	b := make([]byte, 6)
	rand.Read(b)
	for i := range b {
		b[i] = roomCodeAlphabet[int(b[i])%len(roomCodeAlphabet)]
	}
	return string(b)
}

func newToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
