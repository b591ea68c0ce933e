package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/playperu/panoround/internal/engine"
	"github.com/playperu/panoround/internal/room"
	"github.com/playperu/panoround/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := store.NewMemory(nil)
	svc := engine.NewService(s, store.NewHooks(s, logger), engine.DefaultConfig(), logger,
		engine.WithTokenCost(bcrypt.MinCost))
	checks := map[string]Checker{"store": CheckerFunc(s.Ping)}

	ts := httptest.NewServer(NewRouter(logger, svc, checks))
	t.Cleanup(ts.Close)
	return ts, s
}

func createRoom(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/rooms", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestCreateAndGetRoom(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := createRoom(t, ts, `{"name":"friday","mode":"speed","totalRounds":3}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created CreateRoomResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.Len(t, created.RoomID, 6)

	got, err := http.Get(ts.URL + "/api/rooms/" + created.RoomID)
	require.NoError(t, err)
	defer got.Body.Close()
	require.Equal(t, http.StatusOK, got.StatusCode)

	var rm room.Room
	require.NoError(t, json.NewDecoder(got.Body).Decode(&rm))
	assert.Equal(t, "friday", rm.Name)
	assert.Equal(t, room.ModeSpeed, rm.Mode)
	assert.Equal(t, 3, rm.TotalRounds)
	assert.Equal(t, room.StatusWaiting, rm.Status)
}

func TestCreateRoomValidation(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"defaults", `{}`, http.StatusCreated},
		{"unknown mode", `{"mode":"blitz"}`, http.StatusBadRequest},
		{"too many rounds", `{"totalRounds":50}`, http.StatusBadRequest},
		{"unknown field", `{"rounds":3}`, http.StatusBadRequest},
		{"not json", `nope`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := createRoom(t, ts, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestGetRoomNotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/rooms/NOPE42")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type wsPeer struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, ts *httptest.Server, roomID, query string) *wsPeer {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/rooms/" + roomID + "/ws?" + query
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return &wsPeer{t: t, conn: conn}
}

// next reads frames until one of type typ arrives.
func (p *wsPeer) next(typ string) ServerMessage {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		var msg ServerMessage
		require.NoError(p.t, wsjson.Read(ctx, p.conn, &msg))
		if msg.Type == typ {
			return msg
		}
	}
}

// waitRoom reads room snapshots until ok accepts one.
func (p *wsPeer) waitRoom(ok func(*room.Room) bool) *room.Room {
	p.t.Helper()
	for {
		msg := p.next(msgRoom)
		if ok(msg.Room) {
			return msg.Room
		}
	}
}

func (p *wsPeer) send(msg ClientMessage) CommandResult {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(p.t, wsjson.Write(ctx, p.conn, msg))
	res := p.next(msgResult)
	require.NotNil(p.t, res.Result)
	return *res.Result
}

func TestSessionPlaysARound(t *testing.T) {
	ts, s := newTestServer(t)

	resp := createRoom(t, ts, `{"mode":"classic","totalRounds":1}`)
	var created CreateRoomResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	ana := dial(t, ts, created.RoomID, "name=ana")
	welcome := ana.next(msgWelcome)
	assert.NotEmpty(t, welcome.PlayerID)
	assert.NotEmpty(t, welcome.Token)

	beto := dial(t, ts, created.RoomID, "name=beto")
	beto.next(msgWelcome)
	ana.waitRoom(func(r *room.Room) bool { return len(r.Players) == 2 })

	assert.Equal(t, CommandResult{Action: cmdStart, Reason: "not_host"}, beto.send(ClientMessage{Type: cmdStart}))
	assert.Equal(t, CommandResult{Action: cmdStart, Accepted: true}, ana.send(ClientMessage{Type: cmdStart}))

	assert.True(t, ana.send(ClientMessage{Type: cmdGuess, Lat: -12, Lng: -77}).Accepted)
	assert.Equal(t, "already_guessed", ana.send(ClientMessage{Type: cmdGuess}).Reason)
	assert.True(t, beto.send(ClientMessage{Type: cmdGuess, Lat: -13, Lng: -72}).Accepted)

	r := beto.waitRoom(func(r *room.Room) bool { return r.Status == room.StatusRoundEnd })
	for _, p := range r.Players {
		assert.Empty(t, p.SessionHash, "snapshots never carry session hashes")
		assert.Len(t, p.RoundScores, 1)
	}

	assert.True(t, ana.send(ClientMessage{Type: cmdNext}).Accepted)
	got, err := s.Get(context.Background(), created.RoomID)
	require.NoError(t, err)
	assert.Equal(t, room.StatusGameOver, got.Status)
}

func TestSessionRoomMessageCarriesClock(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := createRoom(t, ts, `{}`)
	var created CreateRoomResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	ana := dial(t, ts, created.RoomID, "name=ana")
	welcome := ana.next(msgWelcome)
	msg := ana.next(msgRoom)
	require.NotNil(t, msg.ServerTime)
	assert.False(t, msg.ServerTime.IsZero())
	assert.Equal(t, room.PresenceOnline, msg.Presence[welcome.PlayerID])
}

func TestSessionBranchReasons(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := createRoom(t, ts, `{"mode":"speed","totalRounds":1}`)
	var created CreateRoomResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	ana := dial(t, ts, created.RoomID, "name=ana")
	ana.next(msgWelcome)
	beto := dial(t, ts, created.RoomID, "name=beto")
	beto.next(msgWelcome)
	ana.waitRoom(func(r *room.Room) bool { return len(r.Players) == 2 })

	assert.Equal(t, "round_not_active", ana.send(ClientMessage{Type: cmdBranch, Branch: room.BranchLeft}).Reason)
	require.True(t, ana.send(ClientMessage{Type: cmdStart}).Accepted)

	assert.Equal(t, CommandResult{Action: cmdBranch, Accepted: true}, ana.send(ClientMessage{Type: cmdBranch, Branch: room.BranchLeft}))
	assert.Equal(t, CommandResult{Action: cmdBranch, Reason: "no_moves_left"}, ana.send(ClientMessage{Type: cmdBranch, Branch: room.BranchRight}))
	assert.Equal(t, "invalid_branch", ana.send(ClientMessage{Type: cmdBranch, Branch: "up"}).Reason)
}

func TestSessionDropAndResume(t *testing.T) {
	ts, s := newTestServer(t)
	ctx := context.Background()

	resp := createRoom(t, ts, `{}`)
	var created CreateRoomResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	ana := dial(t, ts, created.RoomID, "name=ana")
	ana.next(msgWelcome)
	beto := dial(t, ts, created.RoomID, "name=beto")
	welcome := beto.next(msgWelcome)

	// The socket dies without a leave command.
	beto.conn.CloseNow()
	ana.waitRoom(func(r *room.Room) bool {
		p, ok := r.Players[welcome.PlayerID]
		return ok && p.Status == room.PlayerDisconnected
	})

	again := dial(t, ts, created.RoomID, "token="+welcome.Token)
	resumed := again.next(msgWelcome)
	assert.Equal(t, welcome.PlayerID, resumed.PlayerID)

	require.Eventually(t, func() bool {
		r, err := s.Get(ctx, created.RoomID)
		return err == nil && r.Players[welcome.PlayerID].Status == room.PlayerOnline
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSessionLeave(t *testing.T) {
	ts, s := newTestServer(t)
	ctx := context.Background()

	resp := createRoom(t, ts, `{}`)
	var created CreateRoomResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	ana := dial(t, ts, created.RoomID, "name=ana")
	ana.next(msgWelcome)
	beto := dial(t, ts, created.RoomID, "name=beto")
	beto.next(msgWelcome)

	assert.True(t, ana.send(ClientMessage{Type: cmdLeave}).Accepted)
	r := beto.waitRoom(func(r *room.Room) bool { return len(r.Players) == 1 })
	for _, p := range r.Players {
		assert.True(t, p.IsHost)
	}

	got, err := s.Get(ctx, created.RoomID)
	require.NoError(t, err)
	assert.Len(t, got.Players, 1)
}

func TestSessionRejectedBeforeUpgrade(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/rooms/NOPE42/ws?name=ana")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	created := createRoom(t, ts, `{}`)
	var body CreateRoomResponse
	require.NoError(t, json.NewDecoder(created.Body).Decode(&body))

	resp, err = http.Get(ts.URL + "/api/rooms/" + body.RoomID + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

type mockChecker struct{ err error }

func (m mockChecker) Check(_ context.Context) error { return m.err }

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]Checker
		wantStatus int
		wantBody   map[string]string
	}{
		{
			name:       "healthy",
			checks:     map[string]Checker{"store": mockChecker{}},
			wantStatus: http.StatusOK,
			wantBody:   map[string]string{"store": "ok"},
		},
		{
			name:       "store down",
			checks:     map[string]Checker{"store": mockChecker{err: errors.New("locked")}},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   map[string]string{"store": "error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handleHealth(slog.New(slog.NewTextHandler(io.Discard, nil)), tt.checks)

			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			rec := httptest.NewRecorder()
			h(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var body HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decoding response: %v", err)
			}
			for name, want := range tt.wantBody {
				if got := body[name].Status; got != want {
					t.Errorf("%s status = %q, want %q", name, got, want)
				}
			}
		})
	}
}
