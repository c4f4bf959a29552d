// Package main 按 Telegram ID 把用户设为管理员。
//
// 用法: make-admin --telegram-id 123456789
package main

import (
	"errors"
	"os"

	"histai-go/internal/config"
	"histai-go/internal/repository"
	"histai-go/internal/service"
	"histai-go/pkg/database"
	"histai-go/pkg/log"

	flag "github.com/spf13/pflag"
)

func main() {
	configPath := flag.StringP("config", "c", "./configs/config.yaml", "配置文件路径")
	telegramID := flag.Int64("telegram-id", 0, "用户的 Telegram ID")
	flag.Parse()
	if *telegramID == 0 {
		flag.Usage()
		os.Exit(2)
	}

	config.Init(*configPath)
	cfg := config.Conf
	log.Init(cfg.Log.Level, "console", "")
	defer log.Sync()

	database.InitMySQL(cfg.Database.MySQL)

	user, err := service.GrantAdminByTelegramID(repository.NewUserRepository(database.DB), *telegramID)
	if errors.Is(err, service.ErrUserNotFound) {
		log.Fatalf("未找到 Telegram ID 为 %d 的用户, 请先登录一次", *telegramID)
	}
	if err != nil {
		log.Fatal("设置管理员失败", err)
	}

	log.Infof("用户 %s (telegramID: %d) 已成为管理员", user.DisplayName(), user.TelegramID)
}
