package personinfo

import (
	"regexp"
	"strings"
)

// Suggestion 是自动补全的一条候选。
type Suggestion struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Era         string `json:"era"`
	Source      string `json:"source"`
}

// 候选来源
const (
	SourceDatabase = "database"
	SourceInternet = "perplexity"
)

var (
	listLineRe = regexp.MustCompile(`^[-•]\s*(.+?)(?:\s+-\s+(.+?))?(?:\s*,\s*(.+?))?$`)
	idRe       = regexp.MustCompile(`^(.+?)\s*\((.+?)\)$`)
	bulletRe   = regexp.MustCompile(`^[-•]\s*`)
)

// ParseSuggestions 解析形如 "- Николай II (второй) - 19th Century, Russia" 的列表，
// 只保留名称包含 query 的条目。
func ParseSuggestions(content, query string) []Suggestion {
	q := strings.ToLower(query)
	var out []Suggestion
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		line = CleanMarkdownKeepBrackets(line)
		if m := listLineRe.FindStringSubmatch(line); m != nil {
			full := strings.TrimSpace(m[1])
			name, display := full, full
			if nm := idRe.FindStringSubmatch(full); nm != nil {
				name = strings.TrimSpace(nm[1])
				display = name + " (" + strings.TrimSpace(nm[2]) + ")"
			}
			if strings.Contains(strings.ToLower(name), q) {
				out = append(out, Suggestion{Name: name, DisplayName: display, Era: strings.TrimSpace(m[2]), Source: SourceInternet})
			}
			continue
		}
		name := strings.TrimSpace(bulletRe.ReplaceAllString(line, ""))
		if len([]rune(name)) > 2 && strings.Contains(strings.ToLower(name), q) {
			out = append(out, Suggestion{Name: name, DisplayName: name, Source: SourceInternet})
		}
	}
	return out
}

// CleanMarkdownKeepBrackets 去掉加粗与反引号，保留列表符号和括号。
func CleanMarkdownKeepBrackets(s string) string {
	return strings.NewReplacer("**", "", "`", "").Replace(s)
}

// MergeSuggestions 按名称（忽略大小写）去重合并，并截断到 limit。
func MergeSuggestions(limit int, groups ...[]Suggestion) []Suggestion {
	seen := make(map[string]struct{})
	out := make([]Suggestion, 0, limit)
	for _, g := range groups {
		for _, s := range g {
			key := strings.ToLower(s.Name)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, s)
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}
