// Package personinfo 提供历史人物名称清洗、校验以及从检索文本中提取信息的启发式方法。
package personinfo

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	bracketRe    = regexp.MustCompile(`\([^)]*\)`)
	bracketInfo  = regexp.MustCompile(`\(([^)]+)\)`)
	spacesRe     = regexp.MustCompile(`\s+`)
	nameCharsRe  = regexp.MustCompile(`^[a-zA-Zа-яА-ЯёЁ\s\-'.,()]+$`)
	queryCharsRe = regexp.MustCompile(`^[a-zA-Zа-яА-ЯёЁ\s\-'.,]+$`)
	digitRe      = regexp.MustCompile(`\d`)
)

// 校验错误
var (
	ErrNameTooShort   = errors.New("имя должно быть не менее 2 символов")
	ErrNameTooLong    = errors.New("имя слишком длинное")
	ErrNameCharacters = errors.New("недопустимые символы в имени")
	ErrQueryTooShort  = errors.New("поисковый запрос должен быть не менее 2 символов")
	ErrQueryTooLong   = errors.New("поисковый запрос слишком длинный")
	ErrQueryChars     = errors.New("недопустимые символы")
)

// ExtractPersonName 去掉括号内的附加信息、多余空白和 markdown 星号。
// "Уинстон Черчилль (премьер-министр)" -> "Уинстон Черчилль"
func ExtractPersonName(fullName string) string {
	cleaned := bracketRe.ReplaceAllString(fullName, "")
	cleaned = spacesRe.ReplaceAllString(strings.TrimSpace(cleaned), " ")
	cleaned = strings.ReplaceAll(cleaned, "*", "")
	return strings.TrimSpace(cleaned)
}

// ExtractAdditionalInfo 返回所有括号内容，以 ", " 连接；没有则返回空串。
func ExtractAdditionalInfo(fullName string) string {
	matches := bracketInfo.FindAllStringSubmatch(fullName, -1)
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		if s := strings.TrimSpace(m[1]); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// FullNameForGeneration 返回清洗后的名称，附带括号信息（如有）。
func FullNameForGeneration(fullName string) string {
	name := ExtractPersonName(fullName)
	if info := ExtractAdditionalInfo(fullName); info != "" {
		return name + " (" + info + ")"
	}
	return name
}

// CleanMarkdown 去除 markdown 格式符号。
func CleanMarkdown(s string) string {
	r := strings.NewReplacer("**", "", "*", "", "_", "", "`", "", "[", "", "]", "", "#", "")
	return strings.TrimSpace(r.Replace(s))
}

// ValidatePersonName 校验用户输入的人物名称，返回清洗后的名称。
func ValidatePersonName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(name)
	if n < 2 {
		return "", ErrNameTooShort
	}
	if n > 200 {
		return "", ErrNameTooLong
	}
	name = CleanMarkdown(name)
	if utf8.RuneCountInString(name) < 2 {
		return "", ErrNameTooShort
	}
	if !nameCharsRe.MatchString(name) {
		return "", ErrNameCharacters
	}
	return name, nil
}

// ValidateSearchQuery 校验搜索关键字。
func ValidateSearchQuery(q string) error {
	n := utf8.RuneCountInString(q)
	if n < 2 {
		return ErrQueryTooShort
	}
	if n > 100 {
		return ErrQueryTooLong
	}
	if !queryCharsRe.MatchString(q) {
		return ErrQueryChars
	}
	return nil
}

// DisplayName 名称中带数字（如 "Николай 2"）时附加时代以便区分。
func DisplayName(name, era string) string {
	if era != "" && digitRe.MatchString(name) {
		return name + " (" + era + ")"
	}
	return name
}

// ClientIP 从代理头中提取客户端 IP。
func ClientIP(forwardedFor, realIP string) string {
	if forwardedFor != "" {
		if first := strings.TrimSpace(strings.Split(forwardedFor, ",")[0]); first != "" {
			return first
		}
	}
	if realIP != "" {
		return strings.TrimSpace(realIP)
	}
	return "unknown"
}
