// Package dbtest opens throwaway databases for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/helpinghand/helpinghand/internal/db"
	"github.com/helpinghand/helpinghand/internal/logging"
)

// New returns a migrated SQLite database stored under t.TempDir(). A file
// is used instead of :memory: so every pooled connection sees the same data.
func New(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000&_journal_mode=WAL"
	d, err := db.Open(context.Background(), db.Options{
		Driver: "sqlite",
		DSN:    dsn,
		Logger: logging.Discard(),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(d) })
	return d
}

// User inserts a user with the given role and returns it.
func User(t testing.TB, d *gorm.DB, name string, role db.Role) db.User {
	t.Helper()
	u := db.User{
		Name:         name,
		Email:        name + "@example.org",
		PasswordHash: "x",
		Role:         role,
	}
	if err := d.Create(&u).Error; err != nil {
		t.Fatalf("failed to create user %s: %v", name, err)
	}
	return u
}
