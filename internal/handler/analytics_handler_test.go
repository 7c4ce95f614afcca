package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/middleware"
	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/service"
)

type analyticsRepoStub struct {
	samples    []models.ScoreSample
	lastFilter models.AnalyticsFilter
}

func (s *analyticsRepoStub) StatusCounts(context.Context, models.AnalyticsFilter) ([]models.StatusCount, error) {
	return nil, nil
}

func (s *analyticsRepoStub) SubjectCounts(context.Context, models.AnalyticsFilter, int) ([]models.SubjectCount, error) {
	return nil, nil
}

func (s *analyticsRepoStub) ScoreSamples(_ context.Context, filter models.AnalyticsFilter) ([]models.ScoreSample, error) {
	s.lastFilter = filter
	return s.samples, nil
}

func (s *analyticsRepoStub) SurveyRatings(context.Context, models.AnalyticsFilter) ([]models.Evaluation, error) {
	return nil, nil
}

func TestAnalyticsHandlerLeaderboard(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &analyticsRepoStub{samples: []models.ScoreSample{
		{TutorID: "t1", TutorName: "Ana", TuteeID: "s1", PreTestScore: 4, PostTestScore: 8},
		{TutorID: "t2", TutorName: "Ben", TuteeID: "s2", PreTestScore: 5, PostTestScore: 6},
	}}
	handler := NewAnalyticsHandler(service.NewAnalyticsService(repo, nil, nil, nil))

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/analytics/leaderboard?role=TUTOR&date_from=2026-01-01", nil)

	handler.Leaderboard(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []models.LeaderboardEntry `json:"data"`
		Meta map[string]interface{}    `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, "t1", body.Data[0].UserID)
	assert.Equal(t, false, body.Meta["cache_hit"])
	require.NotNil(t, repo.lastFilter.DateFrom)
	assert.Equal(t, "2026-01-01", repo.lastFilter.DateFrom.String())
}

func TestAnalyticsHandlerRejectsBadInput(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAnalyticsHandler(service.NewAnalyticsService(&analyticsRepoStub{}, nil, nil, nil))

	for _, target := range []string{
		"/analytics/leaderboard?role=ADMIN",
		"/analytics/leaderboard?role=TUTOR&date_to=31-12-2026",
	} {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		c.Request = httptest.NewRequest(http.MethodGet, target, nil)
		handler.Leaderboard(c)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestAnalyticsHandlerMeScopesToCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &analyticsRepoStub{}
	handler := NewAnalyticsHandler(service.NewAnalyticsService(repo, nil, nil, nil))

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/analytics/me?tutor_id=someone-else", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "tutee-1", Role: models.RoleTutee})

	handler.Me(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tutee-1", repo.lastFilter.TuteeID)
	assert.Empty(t, repo.lastFilter.TutorID)
}
