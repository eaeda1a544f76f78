package usage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	dbpkg "github.com/qingcheng-ai/QingchengAPI/internal/db"
	"github.com/qingcheng-ai/QingchengAPI/internal/models"
	"gorm.io/gorm"
)

func openRetentionDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:retention_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := dbpkg.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func TestCleanupOnceDeletesExpiredInvocations(t *testing.T) {
	conn := openRetentionDB(t)
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

	for i, age := range []time.Duration{0, 24 * time.Hour, 40 * 24 * time.Hour, 200 * 24 * time.Hour} {
		row := models.Invocation{
			UserID:      uint64(i + 1),
			Task:        "image",
			Model:       "gemini-2.5-flash-image",
			RequestedAt: now.Add(-age),
		}
		if errCreate := conn.Create(&row).Error; errCreate != nil {
			t.Fatalf("create invocation: %v", errCreate)
		}
	}

	cleaner := NewRetentionCleaner(conn, 30)
	cleaner.now = func() time.Time { return now }
	cleaner.batchSize = 1

	if deleted := cleaner.CleanupOnce(context.Background()); deleted != 2 {
		t.Fatalf("expected 2 rows deleted, got %d", deleted)
	}
	var remaining int64
	if errCount := conn.Model(&models.Invocation{}).Count(&remaining).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if remaining != 2 {
		t.Fatalf("expected 2 rows kept, got %d", remaining)
	}
}

func TestNewRetentionCleanerDisabled(t *testing.T) {
	if NewRetentionCleaner(nil, 30) != nil {
		t.Fatalf("expected nil cleaner without a database")
	}
	conn := openRetentionDB(t)
	cleaner := NewRetentionCleaner(conn, 0)
	if cleaner != nil {
		t.Fatalf("expected nil cleaner when retention is disabled")
	}
	cleaner.Start(context.Background())
	if cleaner.CleanupOnce(context.Background()) != 0 {
		t.Fatalf("nil cleaner must be a no-op")
	}
}
