package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/metrics"
)

// SessionEvent is the payload of sessionStarted / sessionEnded broadcasts.
type SessionEvent struct {
	SessionID string `json:"sessionId"`
}

// SweepReport summarizes one pass over the registry.
type SweepReport struct {
	Evaluated   int
	Transitions int
	Failures    int
}

// Scheduler advances session status by the minute of day.
type Scheduler struct {
	sessions SessionRepository
	rooms    Broadcaster
	events   EventPublisher
	log      *zap.Logger
	interval time.Duration
	loc      *time.Location
	now      func() time.Time
}

func NewScheduler(sessions SessionRepository, rooms Broadcaster, events EventPublisher, log *zap.Logger, interval time.Duration, loc *time.Location) *Scheduler {
	if rooms == nil {
		rooms = nopBroadcaster{}
	}
	if events == nil {
		events = nopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		sessions: sessions,
		rooms:    rooms,
		events:   events,
		log:      log,
		interval: interval,
		loc:      loc,
		now:      time.Now,
	}
}

// Run sweeps immediately and then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("lifecycle scheduler started", zap.Duration("interval", s.interval), zap.String("timezone", s.loc.String()))
	s.Sweep(ctx, s.now())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("lifecycle scheduler stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx, s.now())
		}
	}
}

// Sweep evaluates every not-yet-ended session against now. A failing
// session is logged and skipped; the rest of the sweep continues.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) SweepReport {
	metrics.SweepsTotal.Inc()
	var report SweepReport

	sessions, err := s.sessions.ListSessionsByStatus(ctx, domain.StatusNotStarted, domain.StatusStarted)
	if err != nil {
		s.log.Error("list sessions for sweep", zap.Error(err))
		report.Failures++
		return report
	}

	local := now.In(s.loc)
	minute := domain.MinuteOf(local)
	for _, session := range sessions {
		report.Evaluated++
		changed, err := s.evaluate(ctx, session, minute, now)
		if err != nil {
			report.Failures++
			metrics.SweepFailuresTotal.Inc()
			s.log.Error("evaluate session",
				zap.String("sessionId", session.ID),
				zap.String("status", string(session.Status)),
				zap.Error(err),
			)
			continue
		}
		if changed {
			report.Transitions++
		}
	}
	return report
}

func (s *Scheduler) evaluate(ctx context.Context, session domain.Session, minute domain.TimeOfDay, now time.Time) (changed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic evaluating session: %v", r)
		}
	}()

	next, ok := domain.NextStatus(session.Status, session.Window, minute)
	if !ok {
		return false, nil
	}
	// A full-day window ends on the next day's occurrence of its start minute,
	// not on a second sweep within the minute it started.
	if next == domain.StatusEnded && session.Window.Start == session.Window.End && now.Sub(session.UpdatedAt) < time.Minute {
		return false, nil
	}
	advanced, err := s.sessions.AdvanceStatus(ctx, session.ID, session.Status, next, now)
	if err != nil {
		return false, err
	}
	if !advanced {
		// Someone else moved it first.
		return false, nil
	}

	metrics.TransitionsTotal.WithLabelValues(string(next)).Inc()
	event, topic := EventSessionStarted, TopicSessionStarted
	if next == domain.StatusEnded {
		event, topic = EventSessionEnded, TopicSessionEnded
	}
	s.rooms.Broadcast(session.ID, event, SessionEvent{SessionID: session.ID})
	if err := s.events.Publish(ctx, topic, SessionEvent{SessionID: session.ID}); err != nil {
		s.log.Warn("publish lifecycle event", zap.String("sessionId", session.ID), zap.Error(err))
	}
	s.log.Info("session status advanced",
		zap.String("sessionId", session.ID),
		zap.String("from", string(session.Status)),
		zap.String("to", string(next)),
		zap.Stringer("window", session.Window),
	)
	return true, nil
}
