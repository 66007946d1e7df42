package service

// Notification event kinds delivered through the Broadcaster (outbound
// notify hook). Delivery is at-least-once; payloads always carry the
// (game, turn, phase) keys needed for idempotent handling downstream.
const (
	EventTurnProcessed    = "TURN_PROCESSED"
	EventDeadlineReminder = "DEADLINE_REMINDER"
	EventGameCreated      = "GAME_CREATED"
	EventGameJoined       = "GAME_JOINED"
	EventPlayerReplaced   = "PLAYER_REPLACED"
	EventGameCompleted    = "GAME_COMPLETED"
	EventMessage          = "MESSAGE"

	// Supplemental transport-level events, not part of the core notify
	// vocabulary: useful to a live WebSocket client but not required by
	// any external collaborator driving the core programmatically.
	eventPhaseChanged = "phase_changed"
	eventDrawVote     = "draw_vote"
	eventPlayerReady  = "player_ready"
)
