package repo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-social-backend/internal/domain"
)

// newRepoDB opens a migrated temp-file database for one test.
func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "repo.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// seedProfile inserts an account+profile pair and returns the profile.
func seedProfile(t *testing.T, db *gorm.DB, id, username string) *domain.Profile {
	t.Helper()
	acct := &domain.Account{ID: id, Email: username + "@example.com", PasswordHash: "x"}
	prof := &domain.Profile{Username: username, Name: strings.ToUpper(username[:1]) + username[1:]}
	if err := CreateAccountWithProfile(context.Background(), db, acct, prof); err != nil {
		t.Fatalf("seed profile %s: %v", username, err)
	}
	return prof
}

// seedPost inserts a post with an explicit creation time.
func seedPost(t *testing.T, db *gorm.DB, id, authorID, content string, at time.Time) {
	t.Helper()
	p := &domain.Post{ID: id, AuthorID: authorID, Content: content, CreatedAt: at, UpdatedAt: at}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed post %s: %v", id, err)
	}
}

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "does-not-exist", "app.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}
	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open("mysql", "", ""); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestOpenSQLite_PragmasPoolAndMigrate(t *testing.T) {
	db := newRepoDB(t)

	var journalMode string
	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if strings.ToLower(journalMode) != "wal" {
		t.Fatalf("expected journal_mode=wal, got %q", journalMode)
	}
	var fkOn int
	if err := db.Raw("PRAGMA foreign_keys;").Row().Scan(&fkOn); err != nil {
		t.Fatalf("PRAGMA foreign_keys: %v", err)
	}
	if fkOn != 1 {
		t.Fatalf("expected foreign_keys=1, got %d", fkOn)
	}

	sqlDB, _ := db.DB()
	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 10 {
		t.Fatalf("expected MaxOpenConnections=10, got %d", stats.MaxOpenConnections)
	}

	m := db.Migrator()
	for _, tbl := range []any{&domain.Account{}, &domain.Profile{}, &domain.Post{}, &domain.PostLike{},
		&domain.PostComment{}, &domain.Follow{}, &domain.Message{}, &domain.Notification{},
		&domain.RefreshToken{}, &domain.Idempotency{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	// Foreign keys are enforced: a post needs an existing author.
	err := db.Create(&domain.Post{ID: "p-orphan", AuthorID: "nobody", Content: "x"}).Error
	if err == nil {
		t.Fatalf("expected FK violation for orphan post")
	}
}

func TestInstrument_RegistersPlugin(t *testing.T) {
	db := newRepoDB(t)
	if err := Instrument(db); err != nil {
		t.Fatalf("Instrument: %v", err)
	}
	seedProfile(t, db, "u1", "alice")
}

func TestIsDuplicate(t *testing.T) {
	dups := []string{
		"UNIQUE constraint failed: profiles.username",
		"constraint failed: UNIQUE constraint failed (2067)",
		`duplicate key value violates unique constraint "ux_x"`,
		"ERROR: something (SQLSTATE 23505)",
	}
	for _, msg := range dups {
		if !IsDuplicate(errString(msg)) {
			t.Fatalf("IsDuplicate(%q) = false; want true", msg)
		}
	}
	if IsDuplicate(errString("FOREIGN KEY constraint failed")) {
		t.Fatalf("FK violation is not a duplicate")
	}
	if IsDuplicate(nil) {
		t.Fatalf("nil is not a duplicate")
	}
	if !IsDuplicate(gorm.ErrDuplicatedKey) || !IsDuplicate(ErrDuplicate) {
		t.Fatalf("sentinels should be duplicates")
	}
}

type errString string

func (e errString) Error() string { return string(e) }

func TestLikePattern_EscapesWildcards(t *testing.T) {
	if got := likePattern("50%_Off"); got != `%50\%\_off%` {
		t.Fatalf("likePattern = %q", got)
	}
}

// Compile-time guard to ensure signature stability.
var _ func(string) (*gorm.DB, error) = OpenSQLite
