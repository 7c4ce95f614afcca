package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

// AnalyticsRepository describes the persistence layer required by AnalyticsService.
type AnalyticsRepository interface {
	StatusCounts(ctx context.Context, filter models.AnalyticsFilter) ([]models.StatusCount, error)
	SubjectCounts(ctx context.Context, filter models.AnalyticsFilter, limit int) ([]models.SubjectCount, error)
	ScoreSamples(ctx context.Context, filter models.AnalyticsFilter) ([]models.ScoreSample, error)
	SurveyRatings(ctx context.Context, filter models.AnalyticsFilter) ([]models.Evaluation, error)
}

// AnalyticsService provides read-optimised access to analytics datasets with cache integration.
type AnalyticsService struct {
	repo    AnalyticsRepository
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewAnalyticsService constructs an analytics service.
func NewAnalyticsService(repo AnalyticsRepository, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{repo: repo, cache: cache, metrics: metrics, logger: logger, now: time.Now}
}

// Overview returns the admin dashboard aggregates. The boolean indicates whether data originated from cache.
func (s *AnalyticsService) Overview(ctx context.Context, filter models.AnalyticsFilter) (*models.AnalyticsOverview, bool, error) {
	var out models.AnalyticsOverview
	hit, err := s.cached(ctx, analyticsCacheKey("overview", filter), &out, func() (interface{}, error) {
		statuses, err := s.repo.StatusCounts(ctx, filter)
		if err != nil {
			return nil, err
		}
		subjects, err := s.repo.SubjectCounts(ctx, filter, 10)
		if err != nil {
			return nil, err
		}
		samples, err := s.repo.ScoreSamples(ctx, filter)
		if err != nil {
			return nil, err
		}
		overview := models.AnalyticsOverview{ByStatus: statuses, BySubject: subjects, GeneratedAt: s.now().UTC()}
		completed := 0
		for _, sc := range statuses {
			overview.TotalSessions += sc.Count
			if sc.Status == models.StatusCompleted {
				completed = sc.Count
			}
		}
		if overview.TotalSessions > 0 {
			overview.CompletionRate = RoundPercent(float64(completed) / float64(overview.TotalSessions) * 100)
		}
		overview.AverageImprovement, _ = AverageImprovement(samples)
		return overview, nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, hit, nil
}

// Leaderboard ranks tutors or tutees by their average improvement, best first.
func (s *AnalyticsService) Leaderboard(ctx context.Context, role models.UserRole, filter models.AnalyticsFilter, limit int) ([]models.LeaderboardEntry, bool, error) {
	if role != models.RoleTutor && role != models.RoleTutee {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "role must be TUTOR or TUTEE")
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	var out []models.LeaderboardEntry
	key := analyticsCacheKey(fmt.Sprintf("leaderboard:%s:%d", strings.ToLower(string(role)), limit), filter)
	hit, err := s.cached(ctx, key, &out, func() (interface{}, error) {
		samples, err := s.repo.ScoreSamples(ctx, filter)
		if err != nil {
			return nil, err
		}
		return RankImprovement(samples, role, limit), nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, hit, nil
}

// Satisfaction averages every survey question, skipping N/A answers.
func (s *AnalyticsService) Satisfaction(ctx context.Context, filter models.AnalyticsFilter) (*models.SatisfactionSummary, bool, error) {
	var out models.SatisfactionSummary
	hit, err := s.cached(ctx, analyticsCacheKey("satisfaction", filter), &out, func() (interface{}, error) {
		rows, err := s.repo.SurveyRatings(ctx, filter)
		if err != nil {
			return nil, err
		}
		tutor := make([][]int64, 0, len(rows))
		org := make([][]int64, 0, len(rows))
		for _, row := range rows {
			tutor = append(tutor, row.TutorRatings)
			org = append(org, row.OrganizationRatings)
		}
		summary := models.SatisfactionSummary{Responses: len(rows)}
		summary.TutorAverages, summary.TutorOverall = averageRatings(tutor)
		summary.OrganizationAverages, summary.OrganizationOverall = averageRatings(org)
		return summary, nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, hit, nil
}

// Personal summarises the viewer's own sessions. Only tutors and tutees have personal stats.
func (s *AnalyticsService) Personal(ctx context.Context, viewer Viewer, filter models.AnalyticsFilter) (*models.PersonalStats, bool, error) {
	switch viewer.Role {
	case models.RoleTutor:
		filter.TutorID, filter.TuteeID = viewer.UserID, ""
	case models.RoleTutee:
		filter.TuteeID, filter.TutorID = viewer.UserID, ""
	default:
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "personal stats are available to tutors and tutees")
	}
	var out models.PersonalStats
	hit, err := s.cached(ctx, analyticsCacheKey("personal", filter), &out, func() (interface{}, error) {
		statuses, err := s.repo.StatusCounts(ctx, filter)
		if err != nil {
			return nil, err
		}
		samples, err := s.repo.ScoreSamples(ctx, filter)
		if err != nil {
			return nil, err
		}
		stats := models.PersonalStats{UserID: viewer.UserID, Role: viewer.Role, ByStatus: statuses, Improvements: []models.ScoreTrend{}}
		for _, sc := range statuses {
			if sc.Status == models.StatusCompleted {
				stats.CompletedSessions = sc.Count
			}
		}
		stats.AverageImprovement, _ = AverageImprovement(samples)
		for _, sample := range samples {
			stats.Improvements = append(stats.Improvements, models.ScoreTrend{
				AppointmentID: sample.AppointmentID,
				Date:          sample.SessionDate,
				Subject:       sample.Subject,
				Improvement:   RoundPercent(Improvement(sample.PreTestScore, sample.PostTestScore, sample.PreTestTotal)),
			})
		}
		return stats, nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out, hit, nil
}

// Invalidate drops every cached analytics payload.
func (s *AnalyticsService) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, "analytics:*")
}

// SystemMetrics returns system instrumentation snapshot.
func (s *AnalyticsService) SystemMetrics() models.AnalyticsSystemMetrics {
	if s.metrics == nil {
		return models.AnalyticsSystemMetrics{}
	}
	return s.metrics.Snapshot()
}

// cached fills dest from the cache or from load. Cache read failures fall through to load.
func (s *AnalyticsService) cached(ctx context.Context, key string, dest interface{}, load func() (interface{}, error)) (bool, error) {
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, key, dest); err == nil && hit {
			return true, nil
		}
	}
	start := time.Now()
	value, err := load()
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute analytics")
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("analytics_"+strings.SplitN(strings.TrimPrefix(key, "analytics:"), ":", 2)[0], time.Since(start))
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, value, 0); err != nil {
			s.logger.Warn("cache analytics", zap.String("key", key), zap.Error(err))
		}
	}
	assignAnalytics(dest, value)
	return false, nil
}

func assignAnalytics(dest, value interface{}) {
	switch d := dest.(type) {
	case *models.AnalyticsOverview:
		*d = value.(models.AnalyticsOverview)
	case *[]models.LeaderboardEntry:
		*d = value.([]models.LeaderboardEntry)
	case *models.SatisfactionSummary:
		*d = value.(models.SatisfactionSummary)
	case *models.PersonalStats:
		*d = value.(models.PersonalStats)
	}
}

// RankImprovement groups samples by tutor or tutee and ranks them by average improvement.
// Ties go to the participant with more sessions, then by name.
func RankImprovement(samples []models.ScoreSample, role models.UserRole, limit int) []models.LeaderboardEntry {
	type acc struct {
		name  string
		sum   float64
		count int
	}
	groups := make(map[string]*acc)
	for _, sample := range samples {
		id, name := sample.TutorID, sample.TutorName
		if role == models.RoleTutee {
			id, name = sample.TuteeID, sample.TuteeName
		}
		g, ok := groups[id]
		if !ok {
			g = &acc{name: name}
			groups[id] = g
		}
		g.sum += Improvement(sample.PreTestScore, sample.PostTestScore, sample.PreTestTotal)
		g.count++
	}
	entries := make([]models.LeaderboardEntry, 0, len(groups))
	for id, g := range groups {
		entries = append(entries, models.LeaderboardEntry{
			UserID:             id,
			FullName:           g.name,
			Sessions:           g.count,
			AverageImprovement: RoundPercent(g.sum / float64(g.count)),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.AverageImprovement != b.AverageImprovement {
			return a.AverageImprovement > b.AverageImprovement
		}
		if a.Sessions != b.Sessions {
			return a.Sessions > b.Sessions
		}
		return a.FullName < b.FullName
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// averageRatings returns the per-question and overall mean of the answered (non-zero) ratings.
func averageRatings(responses [][]int64) ([]float64, float64) {
	sums := make([]float64, models.SurveyQuestionCount)
	counts := make([]int, models.SurveyQuestionCount)
	var total float64
	var answered int
	for _, ratings := range responses {
		for i, r := range ratings {
			if i >= models.SurveyQuestionCount || r <= 0 {
				continue
			}
			sums[i] += float64(r)
			counts[i]++
			total += float64(r)
			answered++
		}
	}
	averages := make([]float64, models.SurveyQuestionCount)
	for i := range averages {
		if counts[i] > 0 {
			averages[i] = RoundPercent(sums[i] / float64(counts[i]))
		}
	}
	if answered == 0 {
		return averages, 0
	}
	return averages, RoundPercent(total / float64(answered))
}

func analyticsCacheKey(kind string, filter models.AnalyticsFilter) string {
	parts := []string{kind, formatDate(filter.DateFrom), formatDate(filter.DateTo), filter.TutorID, filter.TuteeID}
	var builder strings.Builder
	builder.Grow(64)
	builder.WriteString("analytics")
	for _, part := range parts {
		builder.WriteByte(':')
		if part == "" {
			part = "-"
		}
		builder.WriteString(part)
	}
	return builder.String()
}

func formatDate(d *models.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}
