package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/panoround/internal/room"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Panoround API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Rooms and live sessions for the panorama guessing game.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Reports whether the room store is reachable.")
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// POST /api/rooms
	createRoom, _ := r.NewOperationContext(http.MethodPost, "/api/rooms")
	createRoom.SetSummary("Create room")
	createRoom.SetDescription("Opens an empty lobby. The first player to connect becomes host.")
	createRoom.AddReqStructure(CreateRoomRequest{})
	createRoom.AddRespStructure(CreateRoomResponse{}, openapi.WithHTTPStatus(http.StatusCreated))
	createRoom.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(createRoom)

	// GET /api/rooms/{roomID}
	type roomPath struct {
		RoomID string `path:"roomID"`
	}
	getRoom, _ := r.NewOperationContext(http.MethodGet, "/api/rooms/{roomID}")
	getRoom.SetSummary("Get room")
	getRoom.SetDescription("Returns the public room document.")
	getRoom.AddReqStructure(roomPath{})
	getRoom.AddRespStructure(room.Room{}, openapi.WithHTTPStatus(http.StatusOK))
	getRoom.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getRoom)

	// GET /api/rooms/{roomID}/ws
	type sessionQuery struct {
		RoomID string `path:"roomID"`
		Name   string `query:"name" description:"Display name for a new player."`
		Token  string `query:"token" description:"Session token to resume an existing player."`
	}
	session, _ := r.NewOperationContext(http.MethodGet, "/api/rooms/{roomID}/ws")
	session.SetSummary("Room session")
	session.SetDescription("Joins or resumes a player and upgrades to a WebSocket. " +
		"The server sends ServerMessage frames; the client sends ClientMessage commands.")
	session.AddReqStructure(sessionQuery{})
	session.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols))
	session.AddRespStructure(ServerMessage{}, openapi.WithHTTPStatus(http.StatusOK))
	session.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	session.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(session)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
