package models

import (
	"strings"
	"time"
)

// AppointmentStatus is the lifecycle state of a tutoring session.
type AppointmentStatus string

const (
	StatusPending          AppointmentStatus = "pending"
	StatusConfirmed        AppointmentStatus = "confirmed"
	StatusStarted          AppointmentStatus = "started"
	StatusAwaitingFeedback AppointmentStatus = "awaiting_feedback"
	StatusCompleted        AppointmentStatus = "completed"
	StatusDeclined         AppointmentStatus = "declined"
	StatusCancelled        AppointmentStatus = "cancelled"
)

// AllAppointmentStatuses lists every status in lifecycle order.
var AllAppointmentStatuses = []AppointmentStatus{
	StatusPending,
	StatusConfirmed,
	StatusStarted,
	StatusAwaitingFeedback,
	StatusCompleted,
	StatusDeclined,
	StatusCancelled,
}

// ParseAppointmentStatus normalises case and separators ("Awaiting Feedback" → awaiting_feedback).
func ParseAppointmentStatus(raw string) (AppointmentStatus, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)
	if normalized == "canceled" {
		normalized = string(StatusCancelled)
	}
	for _, s := range AllAppointmentStatuses {
		if string(s) == normalized {
			return s, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transition can leave s.
func (s AppointmentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusDeclined || s == StatusCancelled
}

// SessionMode is how a session is held.
type SessionMode string

const (
	ModeOnline     SessionMode = "Online"
	ModeFaceToFace SessionMode = "Face-to-Face"
)

// ParseSessionMode accepts any casing of "online" or "face-to-face".
func ParseSessionMode(raw string) (SessionMode, bool) {
	switch strings.ToLower(strings.NewReplacer("_", "-", " ", "-").Replace(strings.TrimSpace(raw))) {
	case "online":
		return ModeOnline, true
	case "face-to-face", "f2f", "onsite":
		return ModeFaceToFace, true
	}
	return "", false
}

// Appointment is a tutoring session between one tutor and one tutee.
type Appointment struct {
	ID                 string            `db:"id" json:"id"`
	TutorID            string            `db:"tutor_id" json:"tutor_id"`
	TuteeID            string            `db:"tutee_id" json:"tutee_id"`
	SessionDate        Date              `db:"session_date" json:"date"`
	StartTime          string            `db:"start_time" json:"start_time"`
	EndTime            string            `db:"end_time" json:"end_time"`
	Subject            string            `db:"subject" json:"subject"`
	Topic              string            `db:"topic" json:"topic"`
	Mode               SessionMode       `db:"mode" json:"mode"`
	SessionLocation    *string           `db:"session_location" json:"session_location,omitempty"`
	NumberOfTutees     int               `db:"number_of_tutees" json:"number_of_tutees"`
	Status             AppointmentStatus `db:"status" json:"status"`
	TutorDeclineReason *string           `db:"tutor_decline_reason" json:"tutor_decline_reason,omitempty"`
	TuteeDeclineReason *string           `db:"tutee_decline_reason" json:"tutee_decline_reason,omitempty"`
	ResourceLink       *string           `db:"resource_link" json:"resource_link,omitempty"`
	ResourceNote       *string           `db:"resource_note" json:"resource_note,omitempty"`
	OnlineLink         *string           `db:"online_link" json:"online_link,omitempty"`
	FileLink           *string           `db:"file_link" json:"file_link,omitempty"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time         `db:"updated_at" json:"updated_at"`

	TutorName       string  `db:"tutor_name" json:"tutor_name,omitempty"`
	TuteeName       string  `db:"tutee_name" json:"tutee_name,omitempty"`
	TutorOnlineLink *string `db:"tutor_online_link" json:"-"`
	TutorFileLink   *string `db:"tutor_file_link" json:"-"`
	HasEvaluation   bool    `db:"has_evaluation" json:"has_evaluation"`
	SurveySubmitted bool    `db:"survey_submitted" json:"survey_submitted"`
}

// InheritTutorLinks fills empty session links from the tutor's profile.
func (a *Appointment) InheritTutorLinks() {
	if isBlank(a.OnlineLink) && !isBlank(a.TutorOnlineLink) {
		link := *a.TutorOnlineLink
		a.OnlineLink = &link
	}
	if isBlank(a.FileLink) && !isBlank(a.TutorFileLink) {
		link := *a.TutorFileLink
		a.FileLink = &link
	}
}

// IsParty reports whether userID is the tutor or the tutee of the session.
func (a *Appointment) IsParty(userID string) bool {
	return userID != "" && (a.TutorID == userID || a.TuteeID == userID)
}

func isBlank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

// AppointmentFilter scopes appointment listings.
type AppointmentFilter struct {
	TutorID   string
	TuteeID   string
	Statuses  []AppointmentStatus
	DateFrom  *Date
	DateTo    *Date
	Search    string
	Page      int
	PageSize  int
	SortOrder string
}

// AppointmentStatusUpdate describes a guarded status write.
type AppointmentStatusUpdate struct {
	ID                 string
	From               AppointmentStatus
	To                 AppointmentStatus
	SessionLocation    *string
	TutorDeclineReason *string
	TuteeDeclineReason *string
	UpdatedAt          time.Time
}

// AppointmentScheduleUpdate reschedules a pending session.
type AppointmentScheduleUpdate struct {
	ID          string
	SessionDate Date
	StartTime   string
	EndTime     string
	UpdatedAt   time.Time
}
