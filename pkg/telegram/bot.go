package telegram

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"histai-go/internal/config"
	"histai-go/pkg/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// 订阅状态中视为已订阅的取值
var subscribedStatuses = map[string]bool{
	"member":        true,
	"administrator": true,
	"creator":       true,
}

// Bot 封装 Bot API，不在启动时调用 getMe，避免 token 缺失时阻塞启动。
type Bot struct {
	api *tgbotapi.BotAPI
}

// NewBot 创建 Bot 客户端；未配置 token 时返回的 Bot 不可用。
func NewBot(cfg config.TelegramConfig) *Bot {
	if cfg.BotToken == "" {
		return &Bot{}
	}
	api := &tgbotapi.BotAPI{
		Token:  cfg.BotToken,
		Client: &http.Client{Timeout: 15 * time.Second},
		Buffer: 100,
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	api.SetAPIEndpoint(endpoint)
	return &Bot{api: api}
}

// Configured 返回 Bot 是否可用
func (b *Bot) Configured() bool { return b.api != nil }

// ChatMemberStatus 调用 getChatMember 返回成员状态。
func (b *Bot) ChatMemberStatus(channelID string, userID int64) (string, error) {
	if b.api == nil {
		return "", ErrNoBotToken
	}
	chat := tgbotapi.ChatConfigWithUser{UserID: userID}
	if id, err := strconv.ParseInt(channelID, 10, 64); err == nil {
		chat.ChatID = id
	} else {
		chat.SuperGroupUsername = channelID
	}

	start := time.Now()
	member, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{ChatConfigWithUser: chat})
	if err != nil {
		metrics.ObserveProviderCall("telegram", "getChatMember", "error", time.Since(start))
		return "", fmt.Errorf("getChatMember: %w", err)
	}
	metrics.ObserveProviderCall("telegram", "getChatMember", "ok", time.Since(start))
	return member.Status, nil
}

// IsSubscribed 判断用户是否为频道成员
func (b *Bot) IsSubscribed(channelID string, userID int64) (bool, error) {
	status, err := b.ChatMemberStatus(channelID, userID)
	if err != nil {
		return false, err
	}
	return subscribedStatuses[status], nil
}

// SendMessage 发送一条纯文本消息
func (b *Bot) SendMessage(chatID int64, text string) error {
	if b.api == nil {
		return ErrNoBotToken
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	start := time.Now()
	_, err := b.api.Send(msg)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ObserveProviderCall("telegram", "sendMessage", status, time.Since(start))
	return err
}

// ChannelLink 由频道 ID 生成 t.me 链接
func ChannelLink(channelID string) string {
	return "https://t.me/" + strings.TrimPrefix(channelID, "@")
}

// ErrNotCommand 表示更新中没有可处理的命令
var ErrNotCommand = errors.New("telegram: update is not a command")

// Command 从 Update 中提取命令名、发送者与会话
func Command(u *tgbotapi.Update) (cmd string, fromID, chatID int64, err error) {
	if u == nil || u.Message == nil || !u.Message.IsCommand() {
		return "", 0, 0, ErrNotCommand
	}
	if u.Message.From != nil {
		fromID = u.Message.From.ID
	}
	return u.Message.Command(), fromID, u.Message.Chat.ID, nil
}
