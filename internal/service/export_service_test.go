package service

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/pkg/storage"
)

type sessionSourceStub struct {
	items   []models.Appointment
	filters []models.AppointmentFilter
}

func (s *sessionSourceStub) List(_ context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	s.filters = append(s.filters, filter)
	start := (filter.Page - 1) * filter.PageSize
	if start >= len(s.items) {
		return nil, len(s.items), nil
	}
	end := start + filter.PageSize
	if end > len(s.items) {
		end = len(s.items)
	}
	return s.items[start:end], len(s.items), nil
}

type scoreSourceStub struct {
	samples    []models.ScoreSample
	lastFilter models.AnalyticsFilter
}

func (s *scoreSourceStub) ScoreSamples(_ context.Context, filter models.AnalyticsFilter) ([]models.ScoreSample, error) {
	s.lastFilter = filter
	return s.samples, nil
}

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.LocalStorage, *scoreSourceStub) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	ten := 10.0
	sessions := &sessionSourceStub{items: []models.Appointment{{
		ID: "a1", TutorName: "Tina", TuteeName: "Sam", Subject: "Math", Topic: "Fractions",
		SessionDate: models.NewDate(2026, time.March, 2), StartTime: "08:00", EndTime: "09:00",
		Mode: models.ModeOnline, Status: models.StatusCompleted,
	}}}
	scores := &scoreSourceStub{samples: []models.ScoreSample{sample("t1", "s1", 6, 9, &ten), sample("t2", "s1", 5, 10, nil)}}
	cfg := ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}
	return NewExportService(sessions, scores, store, signer, cfg, zap.NewNop()), store, scores
}

func readExport(t *testing.T, store *storage.LocalStorage, rel string) string {
	t.Helper()
	data, err := os.ReadFile(store.Path(rel))
	require.NoError(t, err)
	return string(data)
}

func TestExportServiceGenerateEvaluationCSV(t *testing.T) {
	svc, store, scores := newExportServiceForTest(t)
	job := &models.ReportJob{
		ID:     "job-1",
		Type:   models.ReportTypeEvaluations,
		Params: models.ReportJobParams{Format: models.ReportFormatCSV, DateFrom: "2026-03-01"},
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	assert.Contains(t, result.URL, "/api/v1/export/")
	assert.True(t, strings.HasSuffix(result.RelativePath, ".csv"))
	require.NotNil(t, scores.lastFilter.DateFrom)

	body := readExport(t, store, result.RelativePath)
	assert.Contains(t, body, "Pre-test,Post-test,Improvement (%)")
	assert.Contains(t, body, "6/10,9,30.00")
}

func TestExportServiceGenerateLeaderboardCSV(t *testing.T) {
	svc, store, _ := newExportServiceForTest(t)
	tutee := models.RoleTutee
	job := &models.ReportJob{
		ID:     "job-2",
		Type:   models.ReportTypeLeaderboard,
		Params: models.ReportJobParams{Format: models.ReportFormatCSV, Role: &tutee},
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)

	body := readExport(t, store, result.RelativePath)
	assert.Contains(t, body, "1,S1,2,65.00")
}

func TestExportServiceGenerateSessionsPDF(t *testing.T) {
	svc, store, _ := newExportServiceForTest(t)
	job := &models.ReportJob{
		ID:     "job-3",
		Type:   models.ReportTypeSessions,
		Params: models.ReportJobParams{Format: models.ReportFormatPDF},
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, models.ReportFormatPDF, result.Format)

	info, err := os.Stat(store.Path(result.RelativePath))
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestExportServiceRejectsBadDate(t *testing.T) {
	svc, _, _ := newExportServiceForTest(t)
	_, err := svc.Generate(context.Background(), &models.ReportJob{
		ID:     "job-4",
		Type:   models.ReportTypeSessions,
		Params: models.ReportJobParams{Format: models.ReportFormatCSV, DateFrom: "03/01/2026"},
	})
	require.Error(t, err)
}
