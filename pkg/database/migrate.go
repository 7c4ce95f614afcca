package database

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
)

// Migrator applies goose migrations from an embedded filesystem.
type Migrator struct {
	db   *sqlx.DB
	fsys fs.FS
	dir  string
}

// NewMigrator binds the migrations found at dir inside fsys.
func NewMigrator(db *sqlx.DB, fsys fs.FS, dir string) *Migrator {
	if dir == "" {
		dir = "."
	}
	return &Migrator{db: db, fsys: fsys, dir: dir}
}

func (m *Migrator) prepare() error {
	goose.SetBaseFS(m.fsys)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.prepare(); err != nil {
		return err
	}
	return goose.UpContext(ctx, m.db.DB, m.dir)
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.prepare(); err != nil {
		return err
	}
	return goose.DownContext(ctx, m.db.DB, m.dir)
}

// Status logs the applied state of every migration.
func (m *Migrator) Status(ctx context.Context) error {
	if err := m.prepare(); err != nil {
		return err
	}
	return goose.StatusContext(ctx, m.db.DB, m.dir)
}
