// Package telegram 封装 Telegram 登录校验与 Bot API 调用。
package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidHash = errors.New("telegram: login hash mismatch")
	ErrAuthExpired = errors.New("telegram: auth_date is too old")
	ErrNoBotToken  = errors.New("telegram: bot token is not set")
)

// LoginData 是 Telegram Login Widget 回传的字段
type LoginData struct {
	ID        int64  `json:"id" binding:"required"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	PhotoURL  string `json:"photo_url"`
	AuthDate  int64  `json:"auth_date" binding:"required"`
	Hash      string `json:"hash" binding:"required"`
}

// DataCheckString 按键名排序拼接非空字段，每行 key=value，不含 hash。
func (d LoginData) DataCheckString() string {
	fields := map[string]string{
		"id":         strconv.FormatInt(d.ID, 10),
		"first_name": d.FirstName,
		"last_name":  d.LastName,
		"username":   d.Username,
		"photo_url":  d.PhotoURL,
		"auth_date":  strconv.FormatInt(d.AuthDate, 10),
	}
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+fields[k])
	}
	return strings.Join(lines, "\n")
}

// Sign 计算 HMAC-SHA256(data_check_string)，密钥为 SHA256(botToken)。
func (d LoginData) Sign(botToken string) string {
	secret := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(d.DataCheckString()))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyLogin 校验签名与 auth_date 时效；maxAge <= 0 时不检查时效。
func VerifyLogin(d LoginData, botToken string, maxAge time.Duration, now time.Time) error {
	if botToken == "" {
		return ErrNoBotToken
	}
	expected := d.Sign(botToken)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(d.Hash))) {
		return ErrInvalidHash
	}
	if maxAge > 0 && now.Sub(time.Unix(d.AuthDate, 0)) > maxAge {
		return ErrAuthExpired
	}
	return nil
}
