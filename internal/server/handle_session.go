package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/panoround/internal/engine"
	"github.com/playperu/panoround/internal/room"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 15 * time.Second
)

var errSessionClosed = errors.New("session closed")

// handleSession joins (or resumes) a player and upgrades to a websocket
// carrying room snapshots out and commands in. A socket that ends without
// a leave command fires the player's disconnect hook.
func handleSession(logger *slog.Logger, svc *engine.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		client, err := svc.Join(r.Context(), chi.URLParam(r, "roomID"), q.Get("name"), q.Get("token"))
		if err != nil {
			writeEngineError(w, logger, err)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			connectionLost(logger, svc, client)
			return
		}
		defer conn.CloseNow()

		s := &session{conn: conn, client: client, logger: logger.With("room", client.RoomID(), "player", client.PlayerID())}
		s.logger.Info("session started")

		err = s.serve(r.Context())
		if !client.Left() {
			connectionLost(logger, svc, client)
		}

		switch {
		case err == nil, errors.Is(err, errSessionClosed), errors.Is(err, context.Canceled):
			conn.Close(websocket.StatusNormalClosure, "")
		case errors.Is(err, engine.ErrRemoved):
			s.write(context.Background(), ServerMessage{Type: msgError, Error: err.Error()})
			conn.Close(websocket.StatusPolicyViolation, "removed from room")
		case websocket.CloseStatus(err) != -1:
			s.logger.Debug("websocket closed by peer", "status", websocket.CloseStatus(err))
		default:
			s.logger.Debug("session ended", "error", err)
			conn.Close(websocket.StatusInternalError, "")
		}
	}
}

func connectionLost(logger *slog.Logger, svc *engine.Service, c *engine.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := svc.ConnectionLost(ctx, c.ConnID()); err != nil {
		logger.Error("disconnect hook failed", "room", c.RoomID(), "player", c.PlayerID(), "error", err)
	}
}

type session struct {
	conn   *websocket.Conn
	client *engine.Client
	logger *slog.Logger
}

func (s *session) serve(ctx context.Context) error {
	if err := s.write(ctx, ServerMessage{Type: msgWelcome, PlayerID: s.client.PlayerID(), Token: s.client.Token()}); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.client.Run(ctx); err != nil {
			return err
		}
		return errSessionClosed
	})
	g.Go(func() error { return s.writeLoop(ctx) })
	g.Go(func() error { return s.readLoop(ctx) })

	return g.Wait()
}

func (s *session) writeLoop(ctx context.Context) error {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		var msg ServerMessage
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.client.Changed():
			v := s.client.View()
			msg = ServerMessage{Type: msgRoom, Room: v.Room, ServerTime: &v.ServerTime, Presence: v.Presence}
		case n := <-s.client.Notifications():
			msg = ServerMessage{Type: msgNotification, Notification: &n}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := s.conn.Ping(pctx)
			cancel()
			if err != nil {
				return err
			}
			continue
		}
		if err := s.write(ctx, msg); err != nil {
			return err
		}
	}
}

// readLoop answers each command with a result. Conn allows Write
// concurrently with the write loop, only Read is single-reader.
func (s *session) readLoop(ctx context.Context) error {
	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, s.conn, &msg); err != nil {
			return err
		}

		res := s.handle(ctx, msg)
		if err := s.write(ctx, ServerMessage{Type: msgResult, Result: &res}); err != nil {
			return err
		}
		if msg.Type == cmdLeave && res.Accepted {
			return errSessionClosed
		}
	}
}

func (s *session) handle(ctx context.Context, msg ClientMessage) CommandResult {
	res := CommandResult{Action: msg.Type}
	var err error

	switch msg.Type {
	case cmdGuess:
		var g engine.GuessResult
		g, err = s.client.SubmitGuess(ctx, room.Coords{Lat: msg.Lat, Lng: msg.Lng})
		res.Accepted, res.Reason = g.Accepted, g.Reason
	case cmdBranch:
		var m engine.MoveResult
		m, err = s.client.UseBranch(ctx, msg.Branch)
		res.Accepted, res.Reason = m.Allowed, m.Reason
	case cmdStart:
		err = s.client.StartGame(ctx)
		res.Accepted = err == nil
	case cmdNext:
		err = s.client.RequestNextRound(ctx)
		res.Accepted = err == nil
	case cmdRestart:
		err = s.client.Restart(ctx)
		res.Accepted = err == nil
	case cmdLeave:
		err = s.client.Leave(ctx)
		res.Accepted = err == nil
	default:
		res.Reason = "unknown_command"
		return res
	}

	if err != nil {
		res.Accepted = false
		res.Reason = room.Reason(err)
		if res.Reason == "" {
			s.logger.Error("command failed", "action", msg.Type, "error", err)
			res.Reason = "internal_error"
		}
	}
	return res
}

func (s *session) write(ctx context.Context, msg ServerMessage) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, s.conn, msg)
}
