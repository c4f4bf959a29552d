package database

import (
	"histai-go/internal/config"
	"histai-go/internal/model"
	"histai-go/pkg/log"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitMySQL 初始化 MySQL 数据库连接，并按配置执行自动迁移
func InitMySQL(cfg config.MySQLConfig) {
	var err error
	DB, err = gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: NowUTC,
	})
	if err != nil {
		log.Fatal("failed to connect database", err)
	}

	// 配置连接池
	sqlDB, err := DB.DB()
	if err != nil {
		log.Fatal("failed to get sql.DB", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if cfg.AutoMigrate {
		if err := Migrate(DB); err != nil {
			log.Fatal("failed to migrate database", err)
		}
	}

	log.Info("MySQL database connected successfully")
}

// Migrate 创建或更新全部业务表
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(model.All()...)
}

// NowUTC 统一以 UTC 记录时间戳，日配额按 UTC 零点计算
func NowUTC() time.Time {
	return time.Now().UTC()
}
