package models

import (
	"time"

	"github.com/lib/pq"
)

// SurveyQuestionCount is the number of questions in each satisfaction survey.
const SurveyQuestionCount = 5

// RatingNotApplicable marks a survey question the tutee chose not to answer.
const RatingNotApplicable = 0

// Evaluation holds the tutor's scoring and the tutee's satisfaction survey for one appointment.
type Evaluation struct {
	ID                  string        `db:"id" json:"id"`
	AppointmentID       string        `db:"appointment_id" json:"appointment_id"`
	PreTestScore        *float64      `db:"pre_test_score" json:"pre_test_score,omitempty"`
	PostTestScore       *float64      `db:"post_test_score" json:"post_test_score,omitempty"`
	PreTestTotal        *float64      `db:"pre_test_total" json:"pre_test_total,omitempty"`
	PostTestTotal       *float64      `db:"post_test_total" json:"post_test_total,omitempty"`
	TutorNotes          *string       `db:"tutor_notes" json:"tutor_notes,omitempty"`
	TutorRatings        pq.Int64Array `db:"tutor_ratings" json:"tutor_ratings"`
	OrganizationRatings pq.Int64Array `db:"organization_ratings" json:"organization_ratings"`
	Comment             *string       `db:"comment" json:"comment,omitempty"`
	SubmittedAt         *time.Time    `db:"submitted_at" json:"submitted_at,omitempty"`
	CreatedAt           time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time     `db:"updated_at" json:"updated_at"`
}

// HasScores reports whether both pre and post scores are recorded.
func (e *Evaluation) HasScores() bool {
	return e != nil && e.PreTestScore != nil && e.PostTestScore != nil
}

// SurveyComplete reports whether both five-question surveys are fully answered (0 counts as N/A).
func (e *Evaluation) SurveyComplete() bool {
	return e != nil && completeRatings(e.TutorRatings) && completeRatings(e.OrganizationRatings)
}

func completeRatings(r []int64) bool {
	if len(r) != SurveyQuestionCount {
		return false
	}
	for _, v := range r {
		if v < RatingNotApplicable || v > 5 {
			return false
		}
	}
	return true
}

// EvaluationRecord joins an evaluation with its session for reporting.
type EvaluationRecord struct {
	Evaluation
	TutorID     string `db:"tutor_id" json:"tutor_id"`
	TuteeID     string `db:"tutee_id" json:"tutee_id"`
	TutorName   string `db:"tutor_name" json:"tutor_name"`
	TuteeName   string `db:"tutee_name" json:"tutee_name"`
	Subject     string `db:"subject" json:"subject"`
	SessionDate Date   `db:"session_date" json:"date"`
}
