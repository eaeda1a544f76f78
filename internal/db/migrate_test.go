package db

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/qingcheng-ai/QingchengAPI/internal/models"
	"gorm.io/gorm"
)

func openMigratedSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:migrate_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func TestMigrateSQLiteCreatesLedgerTables(t *testing.T) {
	conn := openMigratedSQLite(t)

	for _, table := range []string{"users", "device_usages", "orders", "used_codes", "redemption_logs", "settings", "invocations"} {
		if !conn.Migrator().HasTable(table) {
			t.Fatalf("missing table %s", table)
		}
	}
	for _, column := range []string{"credits", "device_suffix", "referred_by"} {
		if !conn.Migrator().HasColumn("users", column) {
			t.Fatalf("users missing column %s", column)
		}
	}
	if !conn.Migrator().HasIndex(&models.RedemptionLog{}, "idx_redemption_device_month") {
		t.Fatalf("redemption_logs missing device/month unique index")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	conn := openMigratedSQLite(t)
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("second migrate: %v", errMigrate)
	}
}

func TestIsUniqueViolationOnDuplicateUsedCode(t *testing.T) {
	conn := openMigratedSQLite(t)

	if errCreate := conn.Create(&models.UsedCode{Code: "15AB28XYZ", UserID: 1}).Error; errCreate != nil {
		t.Fatalf("first insert: %v", errCreate)
	}
	errDup := conn.Create(&models.UsedCode{Code: "15AB28XYZ", UserID: 2}).Error
	if errDup == nil {
		t.Fatalf("expected duplicate insert to fail")
	}
	if !IsUniqueViolation(errDup) {
		t.Fatalf("expected unique violation, got %v", errDup)
	}
	if IsUniqueViolation(gorm.ErrRecordNotFound) {
		t.Fatalf("record not found must not count as unique violation")
	}
}

func TestDetectDialectFromDSN(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost:5432/qc":    DialectPostgres,
		"host=localhost user=qc dbname=qc":    DialectPostgres,
		"file:data/qc.db":                     DialectSQLite,
		"sqlite://data/qc.db":                 DialectSQLite,
		"qc.db":                               DialectSQLite,
	}
	for dsn, want := range cases {
		got, err := detectDialectFromDSN(dsn)
		if err != nil {
			t.Fatalf("detect %q: %v", dsn, err)
		}
		if got != want {
			t.Fatalf("detect %q: expected %s, got %s", dsn, want, got)
		}
	}
	if _, err := detectDialectFromDSN("mysql://root@localhost/qc"); err == nil {
		t.Fatalf("expected mysql dsn to be rejected")
	}
}

func TestParseSQLiteDSN(t *testing.T) {
	memory := parseSQLiteDSN("file:test?mode=memory&cache=shared")
	if memory.Path != "" {
		t.Fatalf("expected no path for memory dsn, got %q", memory.Path)
	}
	if !strings.Contains(memory.Value, "cache=shared") || !strings.Contains(memory.Value, "mode=memory") {
		t.Fatalf("caller params dropped: %s", memory.Value)
	}

	file := parseSQLiteDSN("sqlite://data/qc.db?_pragma=busy_timeout(100)")
	if file.Path != "data/qc.db" {
		t.Fatalf("unexpected path %q", file.Path)
	}
	if !strings.HasPrefix(file.Value, "file:data/qc.db?") {
		t.Fatalf("unexpected dsn %q", file.Value)
	}
	values, errParse := url.ParseQuery(strings.SplitN(file.Value, "?", 2)[1])
	if errParse != nil {
		t.Fatalf("parse query: %v", errParse)
	}
	pragmas := values["_pragma"]
	if len(pragmas) != len(sqlitePragmas) {
		t.Fatalf("expected %d pragmas, got %v", len(sqlitePragmas), pragmas)
	}
	for _, pragma := range pragmas {
		if strings.HasPrefix(pragma, "busy_timeout") && pragma != "busy_timeout(100)" {
			t.Fatalf("caller busy_timeout overridden: %v", pragmas)
		}
	}

	if bare := parseSQLiteDSN("qc.db"); bare.Path != "qc.db" {
		t.Fatalf("unexpected bare path %q", bare.Path)
	}
}

func TestOpenSQLiteFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "qc.db")
	conn, errOpen := Open("file:" + path)
	if errOpen != nil {
		t.Fatalf("open: %v", errOpen)
	}
	sqlDB, _ := conn.DB()
	defer func() { _ = sqlDB.Close() }()

	if !IsSQLite(conn) {
		t.Fatalf("expected sqlite dialect, got %s", DialectName(conn))
	}
	var mode string
	if errRaw := conn.Raw("PRAGMA journal_mode").Scan(&mode).Error; errRaw != nil {
		t.Fatalf("journal mode: %v", errRaw)
	}
	if !strings.EqualFold(mode, "wal") {
		t.Fatalf("expected WAL journal mode, got %q", mode)
	}
}
