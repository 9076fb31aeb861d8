package trainerdto

// RequestMeta identifies the caller on every service operation. SessionID is
// the transport channel (socket id, chat room), Trainee the display identity
// that gets hashed before storage or routing.
type RequestMeta struct {
	SessionID string
	Trainee   string
}

type StartDrillResponse struct {
	State   *SessionState
	Resumed bool
}
