package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/pkg/export"
	"github.com/noah-isme/tutorhub-api/pkg/storage"
)

const exportPageSize = 500

type scoreSampleSource interface {
	ScoreSamples(ctx context.Context, filter models.AnalyticsFilter) ([]models.ScoreSample, error)
}

type sessionSource interface {
	List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService builds report datasets and persists rendered files.
type ExportService struct {
	sessions sessionSource
	samples  scoreSampleSource
	storage  fileStorage
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
	cfg      ExportConfig
	now      func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(sessions sessionSource, samples scoreSampleSource, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		sessions: sessions,
		samples:  samples,
		storage:  files,
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Generate builds dataset according to job definition and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	renderer, err := export.ForFormat(string(job.Params.Format))
	if err != nil {
		return nil, err
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}
	payload, err := renderer.Render(dataset, title)
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(job, renderer.Extension()), payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/export/%s", signedURL, token)
	s.logger.Info("report rendered", zap.String("job_id", job.ID), zap.String("path", relPath), zap.Int("rows", len(dataset.Rows)))

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob, ext string) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	rangePart := "all"
	if job.Params.DateFrom != "" || job.Params.DateTo != "" {
		rangePart = sanitizeFilename(job.Params.DateFrom) + "_" + sanitizeFilename(job.Params.DateTo)
	}
	return fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(string(job.Type)), rangePart, timestamp, ext)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	filter, err := reportFilter(job.Params)
	if err != nil {
		return export.Dataset{}, "", err
	}
	switch job.Type {
	case models.ReportTypeSessions:
		return s.buildSessionDataset(ctx, job.Params, filter)
	case models.ReportTypeEvaluations:
		return s.buildEvaluationDataset(ctx, job.Params, filter)
	case models.ReportTypeLeaderboard:
		return s.buildLeaderboardDataset(ctx, job.Params, filter)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildSessionDataset(ctx context.Context, params models.ReportJobParams, filter models.AnalyticsFilter) (export.Dataset, string, error) {
	listFilter := models.AppointmentFilter{
		TutorID:   filter.TutorID,
		DateFrom:  filter.DateFrom,
		DateTo:    filter.DateTo,
		PageSize:  exportPageSize,
		SortOrder: "asc",
	}
	headers := []string{"Date", "Time", "Tutor", "Tutee", "Subject", "Topic", "Mode", "Status"}
	rows := make([]map[string]string, 0)
	for page := 1; ; page++ {
		listFilter.Page = page
		batch, total, err := s.sessions.List(ctx, listFilter)
		if err != nil {
			return export.Dataset{}, "", err
		}
		for _, appt := range batch {
			rows = append(rows, map[string]string{
				"Date":    appt.SessionDate.String(),
				"Time":    timeRange(appt.StartTime, appt.EndTime),
				"Tutor":   appt.TutorName,
				"Tutee":   appt.TuteeName,
				"Subject": appt.Subject,
				"Topic":   appt.Topic,
				"Mode":    string(appt.Mode),
				"Status":  string(appt.Status),
			})
		}
		if len(batch) == 0 || page*exportPageSize >= total {
			break
		}
	}
	return export.Dataset{Headers: headers, Rows: rows}, reportTitle("Session Report", params), nil
}

func (s *ExportService) buildEvaluationDataset(ctx context.Context, params models.ReportJobParams, filter models.AnalyticsFilter) (export.Dataset, string, error) {
	samples, err := s.samples.ScoreSamples(ctx, filter)
	if err != nil {
		return export.Dataset{}, "", err
	}
	headers := []string{"Date", "Tutor", "Tutee", "Subject", "Pre-test", "Post-test", "Improvement (%)"}
	rows := make([]map[string]string, 0, len(samples))
	for _, sample := range samples {
		pre := formatScore(sample.PreTestScore)
		if sample.PreTestTotal != nil {
			pre += "/" + formatScore(*sample.PreTestTotal)
		}
		rows = append(rows, map[string]string{
			"Date":            sample.SessionDate.String(),
			"Tutor":           sample.TutorName,
			"Tutee":           sample.TuteeName,
			"Subject":         sample.Subject,
			"Pre-test":        pre,
			"Post-test":       formatScore(sample.PostTestScore),
			"Improvement (%)": fmt.Sprintf("%.2f", RoundPercent(Improvement(sample.PreTestScore, sample.PostTestScore, sample.PreTestTotal))),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}, reportTitle("Evaluation Report", params), nil
}

func (s *ExportService) buildLeaderboardDataset(ctx context.Context, params models.ReportJobParams, filter models.AnalyticsFilter) (export.Dataset, string, error) {
	role := models.RoleTutor
	if params.Role != nil && *params.Role == models.RoleTutee {
		role = models.RoleTutee
	}
	samples, err := s.samples.ScoreSamples(ctx, filter)
	if err != nil {
		return export.Dataset{}, "", err
	}
	entries := RankImprovement(samples, role, 0)
	headers := []string{"Rank", "Name", "Sessions", "Average Improvement (%)"}
	rows := make([]map[string]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, map[string]string{
			"Rank":                    strconv.Itoa(entry.Rank),
			"Name":                    entry.FullName,
			"Sessions":                strconv.Itoa(entry.Sessions),
			"Average Improvement (%)": fmt.Sprintf("%.2f", entry.AverageImprovement),
		})
	}
	label := "Tutor"
	if role == models.RoleTutee {
		label = "Tutee"
	}
	return export.Dataset{Headers: headers, Rows: rows}, reportTitle(label+" Leaderboard", params), nil
}

func reportFilter(params models.ReportJobParams) (models.AnalyticsFilter, error) {
	var filter models.AnalyticsFilter
	if params.DateFrom != "" {
		d, err := models.ParseDate(params.DateFrom)
		if err != nil {
			return filter, fmt.Errorf("parse dateFrom: %w", err)
		}
		filter.DateFrom = &d
	}
	if params.DateTo != "" {
		d, err := models.ParseDate(params.DateTo)
		if err != nil {
			return filter, fmt.Errorf("parse dateTo: %w", err)
		}
		filter.DateTo = &d
	}
	if params.TutorID != nil {
		filter.TutorID = *params.TutorID
	}
	return filter, nil
}

func reportTitle(base string, params models.ReportJobParams) string {
	switch {
	case params.DateFrom != "" && params.DateTo != "":
		return fmt.Sprintf("%s %s to %s", base, params.DateFrom, params.DateTo)
	case params.DateFrom != "":
		return fmt.Sprintf("%s from %s", base, params.DateFrom)
	case params.DateTo != "":
		return fmt.Sprintf("%s until %s", base, params.DateTo)
	}
	return base
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
