package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/moltchess/arena/pkg/messages"
	"github.com/moltchess/arena/pkg/server"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,

	// Agents connect from anywhere; sessions are authenticated by key,
	// not origin.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// handlePlay upgrades an agent connection, authenticates it and runs
// the session read loop.
func (app *application) handlePlay(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		app.Logger.Error("Failed to upgrade to WebSocket", zap.Error(err))
		return
	}

	conn := server.NewConnection(ws, app.Logger)
	go conn.WritePump()

	key := r.URL.Query().Get("api_key")
	if key == "" {
		timeout := time.Duration(app.Config.AuthTimeoutSeconds) * time.Second
		msg, err := conn.ReadAuth(timeout)
		if err != nil || msg.Action != messages.ActionAuth || msg.APIKey == "" {
			_ = conn.SendJSON(messages.NewError("authentication required"))
			conn.Close(messages.CloseAuthFailed, "authentication failed")
			return
		}
		key = msg.APIKey
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	agent, err := app.Store.AgentBySessionKey(ctx, key)
	cancel()
	if err != nil {
		_ = conn.SendJSON(messages.NewError("invalid session key"))
		conn.Close(messages.CloseAuthFailed, "authentication failed")
		return
	}

	app.Logger.Info("agent session established",
		zap.String("agent_id", agent.ID),
		zap.String("remote_addr", r.RemoteAddr))

	app.Arena.Connect(agent, conn)

	conn.ReadLoop(func(msg messages.Inbound) {
		app.Arena.HandleAction(agent.ID, msg)
	})

	app.Arena.Disconnect(agent.ID, conn)
	conn.Close(websocket.CloseNormalClosure, "")
}

// handleWatch attaches a spectator to a live game.
func (app *application) handleWatch(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["game_id"]

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		app.Logger.Error("Failed to upgrade to WebSocket", zap.Error(err))
		return
	}

	conn := server.NewConnection(ws, app.Logger)
	go conn.WritePump()

	if err := app.Arena.Spectate(gameID, conn); err != nil {
		_ = conn.SendJSON(messages.NewError(err.Error()))
		conn.Close(websocket.CloseNormalClosure, err.Error())
		return
	}

	// Spectators are read-mostly; the loop only answers pings.
	conn.ReadLoop(func(msg messages.Inbound) {
		if msg.Action == messages.ActionPing {
			_ = conn.SendJSON(messages.Pong{Event: messages.EventPong})
		}
	})

	app.Arena.Unwatch(gameID, conn)
	conn.Close(websocket.CloseNormalClosure, "")
}
