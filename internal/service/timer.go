package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/harrowgate/concordat/internal/model"
	"github.com/harrowgate/concordat/internal/repository"
)

// reminderTTL bounds how long a reminder's once-only flag lives in the
// cache; it only needs to outlive the window between the reminder firing
// and the phase's eventual resolution.
const reminderTTL = 24 * time.Hour

// TimerListener listens for Redis keyspace notifications on expired timer
// keys and triggers phase resolution when a game's timer expires. It also
// runs a polling fallback (deadline expiry and pre-deadline reminders) on a
// fixed tick so expiry fires even when keyspace notifications are
// unavailable or dropped.
type TimerListener struct {
	rdb       *redis.Client
	phaseSvc  *PhaseService
	phaseRepo repository.PhaseRepository
	cache     repository.GameCache

	tickInterval      time.Duration
	reminderThreshold time.Duration
}

// NewTimerListener creates a TimerListener. tickInterval governs the polling
// fallback cadence (recommended 30s); reminderThreshold is how far ahead of
// a deadline DEADLINE_REMINDER fires (recommended 10m).
func NewTimerListener(
	rdb *redis.Client,
	phaseSvc *PhaseService,
	phaseRepo repository.PhaseRepository,
	cache repository.GameCache,
	tickInterval, reminderThreshold time.Duration,
) *TimerListener {
	if tickInterval <= 0 {
		tickInterval = 30 * time.Second
	}
	if reminderThreshold <= 0 {
		reminderThreshold = 10 * time.Minute
	}
	return &TimerListener{
		rdb:               rdb,
		phaseSvc:          phaseSvc,
		phaseRepo:         phaseRepo,
		cache:             cache,
		tickInterval:      tickInterval,
		reminderThreshold: reminderThreshold,
	}
}

// Start begins listening for expired key events and runs the periodic tick.
func (t *TimerListener) Start(ctx context.Context) {
	go t.listenKeyspace(ctx)
	t.tick(ctx)
}

// ProcessMissedDeadlines resolves every phase whose deadline has already
// passed. Called once at startup, before the periodic tick begins, so a
// restart doesn't leave overdue games waiting a full tick interval.
func (t *TimerListener) ProcessMissedDeadlines(ctx context.Context) {
	t.checkExpiredPhases(ctx)
}

// listenKeyspace subscribes to Redis keyspace notifications for expired keys.
func (t *TimerListener) listenKeyspace(ctx context.Context) {
	pubsub := t.rdb.PSubscribe(ctx, "__keyevent@0__:expired")
	defer pubsub.Close()

	log.Info().Msg("Timer listener started, listening for expired keys")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			t.handleExpiry(ctx, msg.Payload)
		}
	}
}

// tick periodically checks for phases past their deadline and for phases
// approaching their deadline that need a reminder.
func (t *TimerListener) tick(ctx context.Context) {
	ticker := time.NewTicker(t.tickInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", t.tickInterval).Msg("Phase deadline ticker started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Phase deadline ticker stopped")
			return
		case <-ticker.C:
			t.checkExpiredPhases(ctx)
			t.checkReminders(ctx)
		}
	}
}

// checkExpiredPhases finds active phases past their deadline and resolves
// them in ascending-deadline order, so the oldest-overdue game is processed
// first within a tick. A failure on one game is logged and does not stop
// the others from being processed.
func (t *TimerListener) checkExpiredPhases(ctx context.Context) {
	phases, err := t.phaseRepo.ListExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list expired phases")
		return
	}
	// ListExpired's DISTINCT ON (game_id) forces its ORDER BY to lead with
	// game_id, so the rows come back grouped by game rather than by
	// deadline. Re-sort here to get ascending-deadline processing order.
	sortPhasesByDeadline(phases)
	if len(phases) > 0 {
		log.Info().Int("count", len(phases)).Msg("Tick found expired phases")
	}
	for _, p := range phases {
		log.Info().Str("gameId", p.GameID).Str("phaseType", p.PhaseType).
			Int("year", p.Year).Str("season", p.Season).
			Time("deadline", p.Deadline).Msg("Resolving expired phase")
		if err := t.phaseSvc.ResolvePhase(ctx, p.GameID); err != nil {
			log.Error().Err(err).Str("gameId", p.GameID).Msg("Phase resolution failed")
		}
	}
}

// checkReminders finds phases within reminderThreshold of their deadline
// and emits DEADLINE_REMINDER once per (game, phase).
func (t *TimerListener) checkReminders(ctx context.Context) {
	phases, err := t.phaseRepo.ListDueForReminder(ctx, t.reminderThreshold)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list phases due for reminder")
		return
	}
	for _, p := range phases {
		sent, err := t.cache.TryMarkReminderSent(ctx, p.GameID, p.ID, reminderTTL)
		if err != nil {
			log.Error().Err(err).Str("gameId", p.GameID).Msg("Failed to mark reminder sent")
			continue
		}
		if !sent {
			continue // already reminded for this deadline
		}
		log.Info().Str("gameId", p.GameID).Time("deadline", p.Deadline).Msg("Emitting deadline reminder")
		t.phaseSvc.broadcaster.BroadcastGameEvent(p.GameID, EventDeadlineReminder, map[string]any{
			"phase_id": p.ID,
			"year":     p.Year,
			"season":   p.Season,
			"type":     p.PhaseType,
			"deadline": p.Deadline.Format(time.RFC3339),
		})
	}
}

// sortPhasesByDeadline orders phases by ascending deadline in place, so the
// longest-overdue game is resolved first within a tick (spec §5/§4.6).
func sortPhasesByDeadline(phases []model.Phase) {
	sort.Slice(phases, func(i, j int) bool {
		return phases[i].Deadline.Before(phases[j].Deadline)
	})
}

// handleExpiry processes an expired key. Only acts on game timer keys.
func (t *TimerListener) handleExpiry(ctx context.Context, key string) {
	if !strings.HasPrefix(key, "game:") || !strings.HasSuffix(key, ":timer") {
		return
	}

	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 {
		return
	}
	gameID := parts[1]

	log.Info().Str("gameId", gameID).Msg("Timer expired, triggering phase resolution")
	if err := t.phaseSvc.ResolvePhase(ctx, gameID); err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("Phase resolution failed after timer expiry")
	}
}
