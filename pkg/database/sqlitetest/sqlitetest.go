// Package sqlitetest 为测试提供迁移完成的内存 SQLite 数据库，仅应被 _test.go 引用。
package sqlitetest

import (
	"fmt"
	"sync/atomic"

	"histai-go/pkg/database"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var memCounter int64

// Open 打开一个独立的内存 SQLite 数据库并完成迁移。
func Open() (*gorm.DB, error) {
	n := atomic.AddInt64(&memCounter, 1)
	dsn := fmt.Sprintf("file:histai_%d?mode=memory&cache=shared", n)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: database.NowUTC,
	})
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
