package service

import (
	"fmt"
	"time"

	"histai-go/internal/config"
	"histai-go/internal/model"
	"histai-go/internal/repository"
	"histai-go/pkg/log"
	"histai-go/pkg/telegram"
	"histai-go/pkg/token"
)

// LoginResult 是登录成功后的返回内容
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	User         *model.User
}

// UserService 接口定义了所有与用户和登录相关的业务操作。
type UserService interface {
	LoginWithTelegram(data telegram.LoginData) (*LoginResult, error)
	RefreshToken(refreshTokenString string) (newAccessToken, newRefreshToken string, err error)
	GetProfile(userID uint) (*model.User, error)
}

// userService 是 UserService 接口的实现。
type userService struct {
	userRepo   repository.UserRepository
	jwtManager *token.JWTManager
	tgCfg      config.TelegramConfig
	now        func() time.Time
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo repository.UserRepository, jwtManager *token.JWTManager, tgCfg config.TelegramConfig) UserService {
	return &userService{
		userRepo:   userRepo,
		jwtManager: jwtManager,
		tgCfg:      tgCfg,
		now:        time.Now,
	}
}

// LoginWithTelegram 校验 Login Widget 签名，创建或更新用户并签发 token。
func (s *userService) LoginWithTelegram(data telegram.LoginData) (*LoginResult, error) {
	// 1. 校验签名与时效
	if s.tgCfg.SkipAuthVerification {
		log.Warnf("[UserService] 已跳过 Telegram 登录签名校验, telegramID: %d", data.ID)
	} else if err := telegram.VerifyLogin(data, s.tgCfg.BotToken, s.tgCfg.AuthMaxAge, s.now()); err != nil {
		log.Warnf("[UserService] Telegram 登录校验失败, telegramID: %d, error: %v", data.ID, err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidTelegramAuth, err)
	}

	// 2. 按 Telegram ID 创建或更新用户
	user, err := s.userRepo.FindByTelegramID(data.ID)
	switch {
	case repository.IsNotFound(err):
		user = &model.User{
			TelegramID: data.ID,
			Username:   data.Username,
			FirstName:  data.FirstName,
			LastName:   data.LastName,
			PhotoURL:   data.PhotoURL,
		}
		if err := s.userRepo.Create(user); err != nil {
			return nil, fmt.Errorf("创建用户失败: %w", err)
		}
		log.Infof("[UserService] 新用户注册, telegramID: %d, userID: %d", data.ID, user.ID)
	case err != nil:
		return nil, err
	default:
		user.Username = data.Username
		user.FirstName = data.FirstName
		user.LastName = data.LastName
		user.PhotoURL = data.PhotoURL
		if err := s.userRepo.Update(user); err != nil {
			return nil, fmt.Errorf("更新用户失败: %w", err)
		}
	}

	// 3. 签发 token
	accessToken, err := s.jwtManager.GenerateToken(user.ID, user.TelegramID, user.IsAdmin)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID, user.TelegramID, user.IsAdmin)
	if err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: accessToken, RefreshToken: refreshToken, User: user}, nil
}

// RefreshToken 使用 refresh token 换取新的 token 对，管理员标记以数据库为准。
func (s *userService) RefreshToken(refreshTokenString string) (string, string, error) {
	claims, err := s.jwtManager.VerifyRefreshToken(refreshTokenString)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidRefreshToken, err)
	}
	user, err := s.GetProfile(claims.UserID)
	if err != nil {
		return "", "", err
	}
	newAccessToken, err := s.jwtManager.GenerateToken(user.ID, user.TelegramID, user.IsAdmin)
	if err != nil {
		return "", "", err
	}
	newRefreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID, user.TelegramID, user.IsAdmin)
	if err != nil {
		return "", "", err
	}
	return newAccessToken, newRefreshToken, nil
}

// GetProfile 根据 ID 获取用户。
func (s *userService) GetProfile(userID uint) (*model.User, error) {
	user, err := s.userRepo.FindByID(userID)
	if repository.IsNotFound(err) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
