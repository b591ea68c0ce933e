package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/playperu/panoround/internal/room"
)

// Hooks holds the writes connections register to run on the store's side
// when they drop without a clean leave.
type Hooks struct {
	store  Store
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]hook
}

type hook struct {
	roomID string
	fn     Mutation
}

func NewHooks(s Store, logger *slog.Logger) *Hooks {
	return &Hooks{
		store:   s,
		logger:  logger,
		pending: make(map[string]hook),
	}
}

// OnDisconnect registers fn against connID, replacing any earlier hook.
func (h *Hooks) OnDisconnect(connID, roomID string, fn Mutation) {
	h.mu.Lock()
	h.pending[connID] = hook{roomID: roomID, fn: fn}
	h.mu.Unlock()
}

// Cancel drops the hook, typically right before a clean leave.
func (h *Hooks) Cancel(connID string) {
	h.mu.Lock()
	delete(h.pending, connID)
	h.mu.Unlock()
}

// Fire runs and removes the hook registered for connID. Writes whose
// precondition no longer holds are not errors.
func (h *Hooks) Fire(ctx context.Context, connID string) error {
	h.mu.Lock()
	hk, ok := h.pending[connID]
	delete(h.pending, connID)
	h.mu.Unlock()
	if !ok {
		return nil
	}

	_, err := h.store.Update(ctx, hk.roomID, hk.fn)
	if errors.Is(err, room.ErrStale) || errors.Is(err, ErrNotFound) {
		h.logger.Debug("disconnect hook skipped", "room", hk.roomID, "conn", connID, "error", err)
		return nil
	}
	if err != nil {
		return err
	}
	h.logger.Info("disconnect hook fired", "room", hk.roomID, "conn", connID)
	return nil
}

// Pending reports whether a hook is registered for connID.
func (h *Hooks) Pending(connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.pending[connID]
	return ok
}
