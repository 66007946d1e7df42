package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/harrowgate/concordat/internal/model"
)

// UserRepository defines user data operations.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByProviderID(ctx context.Context, provider, providerID string) (*model.User, error)
	Upsert(ctx context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error)
	UpdateDisplayName(ctx context.Context, id, displayName string) error
}

// GameRepository defines game and player data operations.
type GameRepository interface {
	Create(ctx context.Context, name, creatorID, turnDur, retreatDur, buildDur, powerAssignment string) (*model.Game, error)
	FindByID(ctx context.Context, id string) (*model.Game, error)
	ListOpen(ctx context.Context) ([]model.Game, error)
	ListByUser(ctx context.Context, userID string) ([]model.Game, error)
	ListFinished(ctx context.Context) ([]model.Game, error)
	SearchFinished(ctx context.Context, search string) ([]model.Game, error)
	JoinGame(ctx context.Context, gameID, userID string) error
	JoinGameAsBot(ctx context.Context, gameID, userID, difficulty string) error
	ReplaceBot(ctx context.Context, gameID, newUserID string) error
	PlayerCount(ctx context.Context, gameID string) (int, error)
	AssignPowers(ctx context.Context, gameID string, assignments map[string]string) error
	ListActive(ctx context.Context) ([]model.Game, error)
	SetFinished(ctx context.Context, gameID, winner string) error
	Delete(ctx context.Context, gameID string) error
	UpdateBotDifficulty(ctx context.Context, gameID, botUserID, difficulty string) error
	UpdatePlayerPower(ctx context.Context, gameID, userID, power string) error
	// QuitGame converts an active game's human seat into a bot seat, keeping
	// the assigned power so the adjudicator has no gap to fill.
	QuitGame(ctx context.Context, gameID, userID, difficulty string) error
	// ReplacePlayerAtPower hands a bot-controlled power back to a human. It
	// fails if the seat at that power is not currently bot-controlled.
	ReplacePlayerAtPower(ctx context.Context, gameID, power, newUserID string) error
}

// PhaseRepository defines phase and order data operations.
type PhaseRepository interface {
	CreatePhase(ctx context.Context, gameID string, year int, season, phaseType string, stateBefore json.RawMessage, deadline time.Time) (*model.Phase, error)
	CurrentPhase(ctx context.Context, gameID string) (*model.Phase, error)
	ListPhases(ctx context.Context, gameID string) ([]model.Phase, error)
	ResolvePhase(ctx context.Context, phaseID string, stateAfter json.RawMessage) error
	SetDeadline(ctx context.Context, phaseID string, deadline time.Time) error
	SaveOrders(ctx context.Context, orders []model.Order) error
	OrdersByPhase(ctx context.Context, phaseID string) ([]model.Order, error)
	ListExpired(ctx context.Context) ([]model.Phase, error)
	// ListDueForReminder returns the current unresolved phase of every active
	// game whose deadline falls within `within` of now but has not yet passed.
	ListDueForReminder(ctx context.Context, within time.Duration) ([]model.Phase, error)
}

// MessageRepository defines message data operations.
type MessageRepository interface {
	Create(ctx context.Context, gameID, senderID, recipientID, content, phaseID string) (*model.Message, error)
	ListByGame(ctx context.Context, gameID, userID string) ([]model.Message, error)
}

// GameCache defines live game state operations (Redis).
type GameCache interface {
	SetGameState(ctx context.Context, gameID string, state json.RawMessage) error
	GetGameState(ctx context.Context, gameID string) (json.RawMessage, error)
	SetOrders(ctx context.Context, gameID, power string, orders json.RawMessage) error
	GetOrders(ctx context.Context, gameID, power string) (json.RawMessage, error)
	GetAllOrders(ctx context.Context, gameID string, powers []string) (map[string]json.RawMessage, error)
	MarkReady(ctx context.Context, gameID, power string) error
	UnmarkReady(ctx context.Context, gameID, power string) error
	ReadyCount(ctx context.Context, gameID string) (int64, error)
	ReadyPowers(ctx context.Context, gameID string) ([]string, error)
	SetTimer(ctx context.Context, gameID string, deadline time.Time) error
	ClearTimer(ctx context.Context, gameID string) error
	AddDrawVote(ctx context.Context, gameID, power string) error
	RemoveDrawVote(ctx context.Context, gameID, power string) error
	DrawVoteCount(ctx context.Context, gameID string) (int64, error)
	DrawVotePowers(ctx context.Context, gameID string) ([]string, error)
	ClearPhaseData(ctx context.Context, gameID string, powers []string) error
	DeleteGameData(ctx context.Context, gameID string, powers []string) error
	// TryMarkReminderSent records that a DEADLINE_REMINDER was emitted for
	// this (game, phase) pair. Returns true only the first time it's called
	// for a given phaseID, so a reminder fires exactly once per deadline
	// even though the scheduler rechecks on every tick.
	TryMarkReminderSent(ctx context.Context, gameID, phaseID string, ttl time.Duration) (bool, error)
}
