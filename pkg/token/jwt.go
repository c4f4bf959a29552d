// Package token 提供了用于生成和验证 JSON Web Tokens (JWT) 的功能。
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// token 类型，防止 refresh token 被当作 access token 使用
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var ErrWrongTokenType = errors.New("token type mismatch")

// JWTManager 负责管理 JWT 的生成和验证。
type JWTManager struct {
	secretKey       []byte
	accessTokenDur  time.Duration
	refreshTokenDur time.Duration
}

// CustomClaims 定义了我们在 JWT 中存储的自定义数据。
type CustomClaims struct {
	UserID     uint   `json:"userId"`
	TelegramID int64  `json:"telegramId"`
	IsAdmin    bool   `json:"isAdmin"`
	TokenType  string `json:"tokenType"`
	jwt.RegisteredClaims
}

// NewJWTManager 创建一个新的 JWTManager 实例。
// accessTokenExpireHours: access token 的过期时间（小时）。
// refreshTokenExpireDays: refresh token 的过期时间（天）。
func NewJWTManager(secret string, accessTokenExpireHours, refreshTokenExpireDays int) *JWTManager {
	return &JWTManager{
		secretKey:       []byte(secret),
		accessTokenDur:  time.Hour * time.Duration(accessTokenExpireHours),
		refreshTokenDur: time.Duration(refreshTokenExpireDays) * 24 * time.Hour,
	}
}

// GenerateToken 生成一个新的 access token。
func (m *JWTManager) GenerateToken(userID uint, telegramID int64, isAdmin bool) (string, error) {
	return m.sign(userID, telegramID, isAdmin, TypeAccess, m.accessTokenDur)
}

// GenerateRefreshToken 生成一个新的 refresh token，有效期更长。
func (m *JWTManager) GenerateRefreshToken(userID uint, telegramID int64, isAdmin bool) (string, error) {
	return m.sign(userID, telegramID, isAdmin, TypeRefresh, m.refreshTokenDur)
}

func (m *JWTManager) sign(userID uint, telegramID int64, isAdmin bool, tokenType string, dur time.Duration) (string, error) {
	now := time.Now()
	claims := CustomClaims{
		UserID:     userID,
		TelegramID: telegramID,
		IsAdmin:    isAdmin,
		TokenType:  tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(dur)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// VerifyToken 验证给定的 token 字符串，有效时返回 CustomClaims。
func (m *JWTManager) VerifyToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 检查签名方法是否为 HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// VerifyAccessToken 验证 token 并要求其为 access 类型。
func (m *JWTManager) VerifyAccessToken(tokenString string) (*CustomClaims, error) {
	claims, err := m.VerifyToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TypeAccess {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// VerifyRefreshToken 验证 token 并要求其为 refresh 类型。
func (m *JWTManager) VerifyRefreshToken(tokenString string) (*CustomClaims, error) {
	claims, err := m.VerifyToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TypeRefresh {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// GenerateRandomString generates a random hex string from length random bytes.
func GenerateRandomString(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("fallback%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
