package models

import "time"

// AnnouncementAudience defines who can see an announcement.
type AnnouncementAudience string

const (
	AnnouncementAudienceAll    AnnouncementAudience = "ALL"
	AnnouncementAudienceTutors AnnouncementAudience = "TUTORS"
	AnnouncementAudienceTutees AnnouncementAudience = "TUTEES"
)

// AudiencesFor lists the audiences a role may read.
func AudiencesFor(role UserRole) []AnnouncementAudience {
	switch role {
	case RoleTutor:
		return []AnnouncementAudience{AnnouncementAudienceAll, AnnouncementAudienceTutors}
	case RoleTutee:
		return []AnnouncementAudience{AnnouncementAudienceAll, AnnouncementAudienceTutees}
	default:
		return []AnnouncementAudience{AnnouncementAudienceAll, AnnouncementAudienceTutors, AnnouncementAudienceTutees}
	}
}

// Announcement represents a persisted announcement row.
type Announcement struct {
	ID          string               `db:"id" json:"id"`
	Title       string               `db:"title" json:"title"`
	Content     string               `db:"content" json:"content"`
	Audience    AnnouncementAudience `db:"audience" json:"audience"`
	IsPinned    bool                 `db:"is_pinned" json:"is_pinned"`
	PublishedAt time.Time            `db:"published_at" json:"published_at"`
	ExpiresAt   *time.Time           `db:"expires_at" json:"expires_at,omitempty"`
	CreatedBy   *string              `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time            `db:"updated_at" json:"updated_at"`
}

// AnnouncementFilter allows listing announcements.
type AnnouncementFilter struct {
	Audiences     []AnnouncementAudience
	ActiveAt      *time.Time
	IncludePinned bool
	Page          int
	PageSize      int
}
