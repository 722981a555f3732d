// internal/handlers/duel_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/riposte-game/riposte/internal/auth"
	"github.com/riposte-game/riposte/internal/game"
	"github.com/riposte-game/riposte/internal/middleware"
	"github.com/riposte-game/riposte/internal/models"
)

// DuelMessage is the structure for incoming WebSocket messages on a duel
// connection.
type DuelMessage struct {
	Type string `json:"type"`

	// Move carries the throw for "move" messages: "rock", "paper" or
	// "scissors".
	Move string `json:"move,omitempty"`
}

// DuelWSHandler upgrades the HTTP connection to WebSocket for one duel.
// It authenticates the caller, registers the connection for event fan-out
// and runs the read loop. Spectators connect the same way; only seated
// participants may submit moves.
func DuelWSHandler(logger *logrus.Logger, ms *MatchServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Extract duel ID from URL path: /duel/ws/{duel_id}
		idStr := strings.TrimPrefix(r.URL.Path, "/duel/ws/")
		if i := strings.Index(idStr, "/"); i >= 0 {
			idStr = idStr[:i]
		}
		duelID, err := uuid.Parse(idStr)
		if err != nil {
			http.Error(w, "invalid duel_id format (/duel/ws/{duel_id})", http.StatusBadRequest)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"duel"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("WebSocket accept error for duel %s: %v", duelID, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "internal server error during handler exit")

		if c.Subprotocol() != "duel" {
			c.Close(BadSubprotocolError, "client must use the 'duel' subprotocol")
			return
		}

		d, ok := ms.Duels.GetDuel(duelID)
		if !ok {
			c.Close(InvalidDuelIDError, "duel not found")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		sess, err := auth.SessionFromRequest(r)
		if err != nil {
			logger.Warnf("WebSocket auth failed for duel %s: %v", duelID, err)
			c.Close(InvalidAuthTokenError, "authentication failed")
			return
		}

		ms.registerConn(duelID, c)
		defer ms.unregisterConn(duelID, c)

		// A fresh connection gets the current snapshot so a reconnecting
		// participant can redraw the board mid-duel.
		sendWsMessage(r.Context(), c, map[string]interface{}{
			"type": "snapshot",
			"duel": d.Snapshot(),
		})

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		readErr := readDuelMessages(ctx, c, d, sess.ParticipantID, logger)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, readErr)
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// readDuelMessages reads client messages until the connection drops. Moves
// are validated by the duel itself; errors flow back to the client without
// closing the connection.
func readDuelMessages(ctx context.Context, c *websocket.Conn, d *game.Duel, participantID uuid.UUID, logger *logrus.Logger) error {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return nil
			}
			if strings.Contains(err.Error(), "context canceled") {
				return nil
			}
			return err
		}
		if msgType != websocket.MessageText {
			continue
		}

		var msg DuelMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sendWsError(ctx, c, "invalid JSON format")
			continue
		}

		switch msg.Type {
		case "move":
			if err := d.SubmitMove(participantID, models.Move(msg.Move)); err != nil {
				logger.Debugf("rejected move %q from %s in duel %s: %v", msg.Move, participantID, d.ID, err)
				sendWsError(ctx, c, err.Error())
			}
		case "ping":
			sendWsMessage(ctx, c, map[string]string{"type": "pong"})
		default:
			sendWsError(ctx, c, fmt.Sprintf("unknown message type: %s", msg.Type))
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

// sendWsMessage marshals a message and sends it to the WebSocket client with
// a write timeout.
func sendWsMessage(ctx context.Context, c *websocket.Conn, message interface{}) {
	if c == nil {
		return
	}
	msgBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("error marshaling websocket message: %v", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Write(writeCtx, websocket.MessageText, msgBytes); err != nil {
		status := websocket.CloseStatus(err)
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
			log.Printf("error writing websocket message: %v (status: %d)", err, status)
		}
	}
}

// sendWsError sends a structured error message to the client.
func sendWsError(ctx context.Context, c *websocket.Conn, reason string) {
	sendWsMessage(ctx, c, map[string]string{"type": "error", "message": reason})
}
