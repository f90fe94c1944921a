package handlers

// Custom WebSocket close codes used by the game endpoint. These give clients a
// more specific reason for closure than the standard codes.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError = 3001 // Auth token was invalid and a guest identity could not be minted.
	InvalidRoomIDError    = 3002 // Target room in the WS URL does not exist or is malformed.
)
