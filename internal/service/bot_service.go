package service

import (
	"context"
	"errors"
	"fmt"

	"histai-go/pkg/log"
	"histai-go/pkg/telegram"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// botIssuerID 表示由 Bot 为管理员会话签发的 token
const botIssuerID = 0

// Messenger 向 Telegram 会话发送消息。
type Messenger interface {
	SendMessage(chatID int64, text string) error
}

// BotService 处理 Telegram webhook 推送的更新。
type BotService interface {
	HandleUpdate(ctx context.Context, update *tgbotapi.Update) error
}

type botService struct {
	messenger   Messenger
	admin       AdminService
	adminChatID int64
	channelID   string
}

// NewBotService 创建一个新的 BotService 实例。
func NewBotService(messenger Messenger, admin AdminService, adminChatID int64, channelID string) BotService {
	return &botService{
		messenger:   messenger,
		admin:       admin,
		adminChatID: adminChatID,
		channelID:   channelID,
	}
}

func (s *botService) HandleUpdate(ctx context.Context, update *tgbotapi.Update) error {
	cmd, fromID, chatID, err := telegram.Command(update)
	if errors.Is(err, telegram.ErrNotCommand) {
		return nil
	}
	log.Infof("[BotService] 收到命令 /%s, from: %d, chat: %d", cmd, fromID, chatID)

	switch cmd {
	case "admin":
		if s.adminChatID == 0 || chatID != s.adminChatID {
			return s.messenger.SendMessage(chatID, "❌ У вас нет доступа к этой команде.")
		}
		tok, err := s.admin.IssueAccessToken(ctx, botIssuerID)
		if err != nil {
			log.Errorf("[BotService] 签发管理后台 token 失败: %v", err)
			return s.messenger.SendMessage(chatID, "Не удалось создать ссылку, попробуйте позже.")
		}
		text := fmt.Sprintf("🔐 Ссылка на админ-панель\n\nСсылка действительна до %s UTC\n\n%s",
			tok.ExpiresAt.Format("2006-01-02 15:04"), tok.URL)
		return s.messenger.SendMessage(chatID, text)
	case "start":
		text := "Привет! Здесь можно создать портрет исторической личности."
		if s.channelID != "" {
			text += "\n\nПодпишитесь на канал, чтобы начать: " + telegram.ChannelLink(s.channelID)
		}
		return s.messenger.SendMessage(chatID, text)
	}
	return nil
}
