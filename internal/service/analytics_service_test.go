package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

type mockAnalyticsRepo struct {
	statuses    []models.StatusCount
	subjects    []models.SubjectCount
	samples     []models.ScoreSample
	ratings     []models.Evaluation
	statusCalls int
	lastFilter  models.AnalyticsFilter
	samplesErr  error
}

func (m *mockAnalyticsRepo) StatusCounts(_ context.Context, filter models.AnalyticsFilter) ([]models.StatusCount, error) {
	m.statusCalls++
	m.lastFilter = filter
	return m.statuses, nil
}

func (m *mockAnalyticsRepo) SubjectCounts(_ context.Context, _ models.AnalyticsFilter, _ int) ([]models.SubjectCount, error) {
	return m.subjects, nil
}

func (m *mockAnalyticsRepo) ScoreSamples(_ context.Context, filter models.AnalyticsFilter) ([]models.ScoreSample, error) {
	m.lastFilter = filter
	if m.samplesErr != nil {
		return nil, m.samplesErr
	}
	return m.samples, nil
}

func (m *mockAnalyticsRepo) SurveyRatings(_ context.Context, _ models.AnalyticsFilter) ([]models.Evaluation, error) {
	return m.ratings, nil
}

type stubCacheRepo struct {
	store       map[string][]byte
	invalidated []string
}

func (s *stubCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	return nil
}

func (s *stubCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	s.invalidated = append(s.invalidated, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range s.store {
		if strings.HasPrefix(key, prefix) {
			delete(s.store, key)
		}
	}
	return nil
}

func sample(tutor, tutee string, pre, post float64, total *float64) models.ScoreSample {
	return models.ScoreSample{
		AppointmentID: tutor + "-" + tutee,
		TutorID:       tutor,
		TutorName:     strings.ToUpper(tutor),
		TuteeID:       tutee,
		TuteeName:     strings.ToUpper(tutee),
		Subject:       "Math",
		PreTestScore:  pre,
		PostTestScore: post,
		PreTestTotal:  total,
		SessionDate:   models.NewDate(2026, time.March, 2),
	}
}

func TestAnalyticsOverviewIsCachedUntilInvalidated(t *testing.T) {
	ten := 10.0
	repo := &mockAnalyticsRepo{
		statuses: []models.StatusCount{{Status: models.StatusCompleted, Count: 3}, {Status: models.StatusPending, Count: 1}},
		subjects: []models.SubjectCount{{Subject: "Math", Count: 4}},
		samples:  []models.ScoreSample{sample("t1", "s1", 6, 9, &ten), sample("t1", "s2", 0, 5, nil)},
	}
	cacheRepo := &stubCacheRepo{}
	svc := NewAnalyticsService(repo, NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true), nil, zap.NewNop())
	ctx := context.Background()

	overview, hit, err := svc.Overview(ctx, models.AnalyticsFilter{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 4, overview.TotalSessions)
	assert.Equal(t, 75.0, overview.CompletionRate)
	assert.Equal(t, 65.0, overview.AverageImprovement)

	_, hit, err = svc.Overview(ctx, models.AnalyticsFilter{})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, repo.statusCalls)

	require.NoError(t, svc.Invalidate(ctx))
	assert.Equal(t, []string{"analytics:*"}, cacheRepo.invalidated)
	_, hit, err = svc.Overview(ctx, models.AnalyticsFilter{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, repo.statusCalls)
}

func TestAnalyticsErrorIsInternal(t *testing.T) {
	repo := &mockAnalyticsRepo{samplesErr: assert.AnError}
	svc := NewAnalyticsService(repo, NewCacheService(nil, nil, time.Minute, zap.NewNop(), false), nil, nil)

	_, _, err := svc.Overview(context.Background(), models.AnalyticsFilter{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
}

func TestAnalyticsLeaderboardRanksByAverageImprovement(t *testing.T) {
	repo := &mockAnalyticsRepo{samples: []models.ScoreSample{
		sample("t1", "s1", 5, 5, nil),
		sample("t2", "s1", 4, 8, nil),
		sample("t2", "s2", 5, 5, nil),
		sample("t3", "s3", 5, 10, nil),
	}}
	svc := NewAnalyticsService(repo, nil, nil, nil)

	board, _, err := svc.Leaderboard(context.Background(), models.RoleTutor, models.AnalyticsFilter{}, 0)
	require.NoError(t, err)
	require.Len(t, board, 3)
	assert.Equal(t, "t3", board[0].UserID)
	assert.Equal(t, 100.0, board[0].AverageImprovement)
	assert.Equal(t, "t2", board[1].UserID)
	assert.Equal(t, 50.0, board[1].AverageImprovement)
	assert.Equal(t, 2, board[1].Sessions)
	assert.Equal(t, 3, board[2].Rank)

	tutees, _, err := svc.Leaderboard(context.Background(), models.RoleTutee, models.AnalyticsFilter{}, 1)
	require.NoError(t, err)
	require.Len(t, tutees, 1)
	assert.Equal(t, "s3", tutees[0].UserID)

	_, _, err = svc.Leaderboard(context.Background(), models.RoleAdmin, models.AnalyticsFilter{}, 0)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestAnalyticsSatisfactionSkipsNotApplicable(t *testing.T) {
	repo := &mockAnalyticsRepo{ratings: []models.Evaluation{
		{TutorRatings: pq.Int64Array{5, 4, 0, 3, 5}, OrganizationRatings: pq.Int64Array{4, 4, 4, 4, 4}},
		{TutorRatings: pq.Int64Array{3, 0, 0, 5, 5}, OrganizationRatings: pq.Int64Array{2, 0, 4, 4, 4}},
	}}
	svc := NewAnalyticsService(repo, nil, nil, nil)

	summary, _, err := svc.Satisfaction(context.Background(), models.AnalyticsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Responses)
	assert.Equal(t, []float64{4, 4, 0, 4, 5}, summary.TutorAverages)
	assert.Equal(t, 4.29, summary.TutorOverall)
	assert.Equal(t, []float64{3, 4, 4, 4, 4}, summary.OrganizationAverages)
	assert.Equal(t, 3.78, summary.OrganizationOverall)
}

func TestAnalyticsPersonalScopesToViewer(t *testing.T) {
	ten := 10.0
	repo := &mockAnalyticsRepo{
		statuses: []models.StatusCount{{Status: models.StatusCompleted, Count: 1}},
		samples:  []models.ScoreSample{sample("t1", "s1", 6, 9, &ten)},
	}
	svc := NewAnalyticsService(repo, nil, nil, nil)

	stats, _, err := svc.Personal(context.Background(), Viewer{UserID: "s1", Role: models.RoleTutee}, models.AnalyticsFilter{TutorID: "x"})
	require.NoError(t, err)
	assert.Equal(t, "s1", repo.lastFilter.TuteeID)
	assert.Empty(t, repo.lastFilter.TutorID)
	assert.Equal(t, 1, stats.CompletedSessions)
	require.Len(t, stats.Improvements, 1)
	assert.Equal(t, 30.0, stats.Improvements[0].Improvement)

	_, _, err = svc.Personal(context.Background(), Viewer{UserID: "a", Role: models.RoleAdmin}, models.AnalyticsFilter{})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}
