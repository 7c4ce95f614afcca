package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

// profileSelect reads a user with their optional profile row.
const profileSelect = `SELECT u.id AS user_id, COALESCE(p.specialization, '{}') AS specialization, COALESCE(p.bio, '') AS bio,
p.online_link, p.file_link, p.image_key, p.image_url, COALESCE(p.updated_at, u.updated_at) AS updated_at,
u.full_name, u.email, u.role
FROM users u LEFT JOIN profiles p ON p.user_id = u.id`

// ProfileRepository persists public user profiles and serves the tutor directory.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository constructs the repository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// FindByUser returns the profile view of an active user or sql.ErrNoRows.
func (r *ProfileRepository) FindByUser(ctx context.Context, userID string) (*models.Profile, error) {
	query := profileSelect + " WHERE u.id = $1 AND u.active = TRUE"
	var profile models.Profile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return &profile, nil
}

// Upsert stores the editable profile fields, creating the row on first save.
func (r *ProfileRepository) Upsert(ctx context.Context, profile *models.Profile) error {
	profile.UpdatedAt = time.Now().UTC()
	if profile.Specialization == nil {
		profile.Specialization = []string{}
	}
	const query = `INSERT INTO profiles (user_id, specialization, bio, online_link, file_link, updated_at)
VALUES (:user_id, :specialization, :bio, :online_link, :file_link, :updated_at)
ON CONFLICT (user_id) DO UPDATE SET specialization = EXCLUDED.specialization, bio = EXCLUDED.bio,
online_link = EXCLUDED.online_link, file_link = EXCLUDED.file_link, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// SetImage records a new profile picture and returns the key it replaced, if any.
func (r *ProfileRepository) SetImage(ctx context.Context, userID, key, url string) (*string, error) {
	var previous *string
	if err := r.db.GetContext(ctx, &previous, `SELECT image_key FROM profiles WHERE user_id = $1`, userID); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read profile image: %w", err)
	}
	const query = `INSERT INTO profiles (user_id, image_key, image_url, updated_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE SET image_key = EXCLUDED.image_key, image_url = EXCLUDED.image_url, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, userID, key, url, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("update profile image: %w", err)
	}
	return previous, nil
}

// ListTutors returns active tutors, optionally narrowed by specialization and name.
func (r *ProfileRepository) ListTutors(ctx context.Context, filter models.TutorFilter) ([]models.Profile, int, error) {
	conditions := []string{"u.role = 'TUTOR'", "u.active = TRUE"}
	args := []interface{}{}
	if filter.Subject != "" {
		args = append(args, filter.Subject)
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(p.specialization)", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("LOWER(u.full_name) LIKE $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")
	page, pageSize := normalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("%s%s ORDER BY u.full_name ASC LIMIT %d OFFSET %d", profileSelect, where, pageSize, (page-1)*pageSize)
	var tutors []models.Profile
	if err := r.db.SelectContext(ctx, &tutors, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list tutors: %w", err)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM users u LEFT JOIN profiles p ON p.user_id = u.id" + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count tutors: %w", err)
	}
	return tutors, total, nil
}
