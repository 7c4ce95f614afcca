package models

import "time"

// Event is an organisation-wide happening shown on the landing page.
type Event struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	EventDate   time.Time `db:"event_date" json:"event_date"`
	Venue       string    `db:"venue" json:"venue"`
	ImageKey    *string   `db:"image_key" json:"-"`
	ImageURL    *string   `db:"image_url" json:"image_url,omitempty"`
	CreatedBy   *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// EventFilter scopes event listings.
type EventFilter struct {
	UpcomingFrom *time.Time
	Page         int
	PageSize     int
}
