package dbtest

import (
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stackit/internal/db"
)

// Open 为测试创建一个迁移好的 SQLite 文件库。
// 只开放一个连接：SQLite 单写者，多个 goroutine 在连接上排队。
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "stackit_test.db") + "?_busy_timeout=5000&_foreign_keys=on"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("get test database: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return conn
}
