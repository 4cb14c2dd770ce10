package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/eventos/apiserver/internal/db"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// OpenInMemoryDB opens a private in-memory sqlite database with the schema applied.
// The database is closed when the test finishes.
func OpenInMemoryDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString()[:8])
	gdb, err := db.OpenSQLite(dsn, zerolog.Nop())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })
	return gdb
}

// CountRows returns the number of rows in table.
func CountRows(t *testing.T, gdb *gorm.DB, table string) int64 {
	t.Helper()

	var count int64
	if err := gdb.Table(table).Count(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}
