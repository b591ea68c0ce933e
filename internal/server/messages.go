package server

import (
	"time"

	"github.com/playperu/panoround/internal/engine"
	"github.com/playperu/panoround/internal/room"
)

// Commands a client sends over the session socket.
const (
	cmdGuess   = "guess"
	cmdBranch  = "branch"
	cmdStart   = "start"
	cmdNext    = "next"
	cmdRestart = "restart"
	cmdLeave   = "leave"
)

// Message types the server sends.
const (
	msgWelcome      = "welcome"
	msgRoom         = "room"
	msgNotification = "notification"
	msgResult       = "result"
	msgError        = "error"
)

type ClientMessage struct {
	Type   string      `json:"type" enum:"guess,branch,start,next,restart,leave"`
	Lat    float64     `json:"lat,omitempty"`
	Lng    float64     `json:"lng,omitempty"`
	Branch room.Branch `json:"branch,omitempty" enum:"pano0,left,right,forward"`
}

type ServerMessage struct {
	Type         string                   `json:"type" enum:"welcome,room,notification,result,error"`
	PlayerID     string                   `json:"playerId,omitempty"`
	Token        string                   `json:"token,omitempty"`
	Room         *room.Room               `json:"room,omitempty"`
	ServerTime   *time.Time               `json:"serverTime,omitempty"`
	Presence     map[string]room.Presence `json:"presence,omitempty"`
	Notification *engine.Notification     `json:"notification,omitempty"`
	Result       *CommandResult           `json:"result,omitempty"`
	Error        string                   `json:"error,omitempty"`
}

type CommandResult struct {
	Action   string `json:"action"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}
