package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/panoround/internal/engine"
	"github.com/playperu/panoround/internal/room"
)

type CreateRoomRequest struct {
	Name        string    `json:"name"`
	Mode        room.Mode `json:"mode,omitempty" enum:"classic,speed,nomove"`
	TotalRounds int       `json:"totalRounds,omitempty" minimum:"1" maximum:"20"`
}

type CreateRoomResponse struct {
	RoomID string `json:"roomId"`
}

func handleCreateRoom(logger *slog.Logger, svc *engine.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRoomRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		id, err := svc.CreateRoom(r.Context(), engine.CreateRoomRequest{
			Name:        req.Name,
			Mode:        req.Mode,
			TotalRounds: req.TotalRounds,
		})
		if err != nil {
			writeEngineError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, CreateRoomResponse{RoomID: id})
	}
}

func handleGetRoom(logger *slog.Logger, svc *engine.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rm, err := svc.Room(r.Context(), chi.URLParam(r, "roomID"))
		if err != nil {
			writeEngineError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, rm)
	}
}
