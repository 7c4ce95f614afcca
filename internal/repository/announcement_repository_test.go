package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

func TestAnnouncementListForTutee(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnnouncementRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "title", "content", "audience", "is_pinned", "published_at", "expires_at", "created_by", "created_at", "updated_at"}).
		AddRow("an1", "Exam week", "Bring pencils", "TUTEES", true, now, nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM announcements WHERE published_at <= $1 AND (expires_at IS NULL OR expires_at > $1) AND audience = ANY($2) ORDER BY is_pinned DESC")).
		WithArgs(now, sqlmock.AnyArg()).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM announcements WHERE")).
		WithArgs(now, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.AnnouncementFilter{
		Audiences:     models.AudiencesFor(models.RoleTutee),
		ActiveAt:      &now,
		IncludePinned: true,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.AnnouncementAudienceTutees, items[0].Audience)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnnouncementDeleteMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnnouncementRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM announcements WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "missing"), sql.ErrNoRows)
}
