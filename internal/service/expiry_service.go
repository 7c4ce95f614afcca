package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

const (
	sweepBatchSize = 500
	sweepTimeout   = 50 * time.Second
	endingSoonKey  = "ending-soon:"
)

type sessionSweeper interface {
	SweepExpired(ctx context.Context, now time.Time, limit int) (int, []models.Appointment, error)
}

type claimStore interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type sweepObserver interface {
	ObserveSweep(duration time.Duration)
}

// SweepResult summarises one expiry pass.
type SweepResult struct {
	Scanned    int `json:"scanned"`
	Changed    int `json:"changed"`
	EndingSoon int `json:"ending_soon"`
}

// ExpiryService periodically reconciles open sessions so expiry does not depend on reads.
// It also warns tutors shortly before a running session ends.
type ExpiryService struct {
	sessions sessionSweeper
	claims   claimStore
	notifier notifier
	metrics  sweepObserver
	policy   SessionPolicy
	schedule string
	logger   *zap.Logger
	now      func() time.Time

	cron *cron.Cron
}

// NewExpiryService constructs the sweeper. claims and notifier may be nil to skip warnings.
func NewExpiryService(sessions sessionSweeper, claims claimStore, n notifier, metrics sweepObserver, policy SessionPolicy, schedule string, logger *zap.Logger) *ExpiryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if schedule == "" {
		schedule = "@every 1m"
	}
	return &ExpiryService{
		sessions: sessions,
		claims:   claims,
		notifier: n,
		metrics:  metrics,
		policy:   policy,
		schedule: schedule,
		logger:   logger,
		now:      time.Now,
	}
}

// Start registers the sweep on its cron schedule and begins running it.
func (s *ExpiryService) Start() error {
	if s.cron != nil {
		return nil
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, s.tick); err != nil {
		return fmt.Errorf("schedule expiry sweep %q: %w", s.schedule, err)
	}
	s.cron = c
	c.Start()
	s.logger.Info("expiry sweep scheduled", zap.String("schedule", s.schedule))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish or ctx to end.
func (s *ExpiryService) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("expiry sweep still running at shutdown")
	}
	s.cron = nil
}

func (s *ExpiryService) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("expiry sweep failed", zap.Error(err))
	}
}

// RunOnce performs a single sweep.
func (s *ExpiryService) RunOnce(ctx context.Context) (SweepResult, error) {
	started := time.Now()
	now := s.now()
	changed, appts, err := s.sessions.SweepExpired(ctx, now, sweepBatchSize)
	if s.metrics != nil {
		s.metrics.ObserveSweep(time.Since(started))
	}
	result := SweepResult{Scanned: len(appts), Changed: changed}
	if err != nil {
		return result, err
	}
	for i := range appts {
		if s.warnEndingSoon(ctx, &appts[i], now) {
			result.EndingSoon++
		}
	}
	if result.Changed > 0 || result.EndingSoon > 0 {
		s.logger.Info("expiry sweep finished",
			zap.Int("scanned", result.Scanned),
			zap.Int("changed", result.Changed),
			zap.Int("ending_soon", result.EndingSoon))
	}
	return result, nil
}

// warnEndingSoon notifies the tutor once per session when it is about to end.
func (s *ExpiryService) warnEndingSoon(ctx context.Context, appt *models.Appointment, now time.Time) bool {
	if s.claims == nil || s.notifier == nil || appt.Status != models.StatusStarted {
		return false
	}
	if !s.policy.EndingSoon(appt, now) {
		return false
	}
	won, err := s.claims.Claim(ctx, endingSoonKey+appt.ID, 2*s.policy.EndingSoonLead)
	if err != nil {
		s.logger.Warn("ending soon claim failed", zap.String("appointment_id", appt.ID), zap.Error(err))
		return false
	}
	if !won {
		return false
	}
	s.notifier.Notify(ctx, Notice{
		RecipientID:   appt.TutorID,
		Type:          models.NotificationSessionEndingSoon,
		AppointmentID: appt.ID,
		Payload:       appointmentPayload(appt),
	})
	return true
}
