// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the room, dashboard and lobby
// handlers. These give clients a more specific reason than the standard
// codes.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError = 3001 // Provided auth token was invalid or expired.
	InvalidRoomIDError    = 3002 // Target room in the WS URL does not exist or is malformed.
)
