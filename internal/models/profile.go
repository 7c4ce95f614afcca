package models

import (
	"time"

	"github.com/lib/pq"
)

// Profile carries the public-facing details of a user.
type Profile struct {
	UserID         string         `db:"user_id" json:"user_id"`
	Specialization pq.StringArray `db:"specialization" json:"specialization"`
	Bio            string         `db:"bio" json:"bio"`
	OnlineLink     *string        `db:"online_link" json:"online_link,omitempty"`
	FileLink       *string        `db:"file_link" json:"file_link,omitempty"`
	ImageKey       *string        `db:"image_key" json:"-"`
	ImageURL       *string        `db:"image_url" json:"image_url,omitempty"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`

	FullName string   `db:"full_name" json:"full_name"`
	Email    string   `db:"email" json:"email"`
	Role     UserRole `db:"role" json:"role"`
}

// TutorFilter scopes the tutor directory.
type TutorFilter struct {
	Subject  string
	Search   string
	Page     int
	PageSize int
}
