// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes used by the duel handler. These provide more
// specific reasons for closure than standard codes.
const (
	BadSubprotocolError   websocket.StatusCode = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError websocket.StatusCode = 3001 // Provided auth token was invalid or expired.
	InvalidDuelIDError    websocket.StatusCode = 3002 // Target duel ID in the WS URL does not exist or is invalid.
)
