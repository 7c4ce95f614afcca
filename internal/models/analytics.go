package models

import "time"

// AnalyticsFilter scopes analytics aggregates by session date and participant.
type AnalyticsFilter struct {
	DateFrom *Date
	DateTo   *Date
	TutorID  string
	TuteeID  string
}

// StatusCount is the number of sessions in one status.
type StatusCount struct {
	Status AppointmentStatus `db:"status" json:"status"`
	Count  int               `db:"count" json:"count"`
}

// SubjectCount is the number of sessions booked for one subject.
type SubjectCount struct {
	Subject string `db:"subject" json:"subject"`
	Count   int    `db:"count" json:"count"`
}

// ScoreSample is the raw material for one improvement figure.
type ScoreSample struct {
	AppointmentID string   `db:"appointment_id" json:"appointment_id"`
	TutorID       string   `db:"tutor_id" json:"tutor_id"`
	TutorName     string   `db:"tutor_name" json:"tutor_name"`
	TuteeID       string   `db:"tutee_id" json:"tutee_id"`
	TuteeName     string   `db:"tutee_name" json:"tutee_name"`
	Subject       string   `db:"subject" json:"subject"`
	PreTestScore  float64  `db:"pre_test_score" json:"pre_test_score"`
	PostTestScore float64  `db:"post_test_score" json:"post_test_score"`
	PreTestTotal  *float64 `db:"pre_test_total" json:"pre_test_total,omitempty"`
	SessionDate   Date     `db:"session_date" json:"date"`
}

// LeaderboardEntry ranks a tutor or tutee by average improvement.
type LeaderboardEntry struct {
	Rank               int     `json:"rank"`
	UserID             string  `json:"user_id"`
	FullName           string  `json:"full_name"`
	Sessions           int     `json:"sessions"`
	AverageImprovement float64 `json:"average_improvement"`
}

// SatisfactionSummary averages survey answers per question, ignoring N/A.
type SatisfactionSummary struct {
	Responses            int       `json:"responses"`
	TutorAverages        []float64 `json:"tutor_averages"`
	OrganizationAverages []float64 `json:"organization_averages"`
	TutorOverall         float64   `json:"tutor_overall"`
	OrganizationOverall  float64   `json:"organization_overall"`
}

// AnalyticsOverview is the admin dashboard payload.
type AnalyticsOverview struct {
	TotalSessions      int            `json:"total_sessions"`
	ByStatus           []StatusCount  `json:"by_status"`
	BySubject          []SubjectCount `json:"by_subject"`
	AverageImprovement float64        `json:"average_improvement"`
	CompletionRate     float64        `json:"completion_rate"`
	GeneratedAt        time.Time      `json:"generated_at"`
}

// PersonalStats summarises one tutor's or tutee's sessions.
type PersonalStats struct {
	UserID             string        `json:"user_id"`
	Role               UserRole      `json:"role"`
	ByStatus           []StatusCount `json:"by_status"`
	CompletedSessions  int           `json:"completed_sessions"`
	AverageImprovement float64       `json:"average_improvement"`
	Improvements       []ScoreTrend  `json:"improvements"`
}

// ScoreTrend is one session's improvement, oldest first.
type ScoreTrend struct {
	AppointmentID string  `json:"appointment_id"`
	Date          Date    `json:"date"`
	Subject       string  `json:"subject"`
	Improvement   float64 `json:"improvement"`
}

// AnalyticsSystemMetrics represents system level analytics captured from instrumentation.
type AnalyticsSystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	Transitions              uint64    `json:"transitions"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
