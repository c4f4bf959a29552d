package personinfo

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Info 是从检索结果中解析出的人物信息。
type Info struct {
	Name        string
	Description string
	Era         string
	Appearance  string
	Country     string
	BirthYear   *int
	DeathYear   *int
}

type keywordRule struct {
	keywords []string
	value    string
}

var eraRules = []keywordRule{
	{[]string{"ancient", "antiquity", " bc", "bce", "before christ"}, "Ancient"},
	{[]string{"medieval", "middle ages", "middle age"}, "Medieval"},
	{[]string{"renaissance", "15th century", "16th century"}, "Renaissance"},
	{[]string{"17th century", "1600s"}, "17th Century"},
	{[]string{"18th century", "1700s"}, "18th Century"},
	{[]string{"19th century", "1800s"}, "19th Century"},
	{[]string{"20th century", "1900s", "world war"}, "20th Century"},
	{[]string{"21st century", "2000s"}, "21st Century"},
	{[]string{"modern", "contemporary"}, "Modern"},
}

var countryRules = []keywordRule{
	{[]string{"france", "french"}, "France"},
	{[]string{"england", "english", "britain", "british"}, "England"},
	{[]string{"germany", "german"}, "Germany"},
	{[]string{"italy", "italian"}, "Italy"},
	{[]string{"spain", "spanish"}, "Spain"},
	{[]string{"russia", "russian"}, "Russia"},
	{[]string{"greece", "greek"}, "Greece"},
	{[]string{"egypt", "egyptian"}, "Egypt"},
	{[]string{"china", "chinese"}, "China"},
	{[]string{"japan", "japanese"}, "Japan"},
	{[]string{"india", "indian"}, "India"},
	{[]string{"america", "american", "united states", "usa"}, "United States"},
}

var categoryRules = []keywordRule{
	{[]string{"king", "queen", "emperor", "empress", "tsar", "president", "ruler"}, "Politician"},
	{[]string{"artist", "painter", "sculptor", "musician", "composer", "writer", "poet"}, "Artist"},
	{[]string{"scientist", "physicist", "mathematician", "inventor", "philosopher"}, "Scientist"},
	{[]string{"general", "commander", "military", "warrior", "soldier"}, "Military"},
}

var appearanceKeywords = []string{"appearance", "looked like", "physical", "portrait", "depicted"}

var yearRe = regexp.MustCompile(`\b(1[0-9]{3}|20[0-9]{2})\b`)

// UnknownEra 无法识别时代时的默认值
const UnknownEra = "Unknown"

// 年份差超过该值时认为不是生卒年
const maxLifespan = 120

func matchRule(lower string, rules []keywordRule) string {
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.value
			}
		}
	}
	return ""
}

// IndicatesNotFound 判断检索回答是否表明人物不存在。
func IndicatesNotFound(content string) bool {
	lower := strings.ToLower(content)
	for _, phrase := range []string{"not found", "not a real", "cannot find", "no information"} {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return strings.Contains(lower, "not") && strings.Contains(lower, "historical figure")
}

// Parse 从检索回答中提取描述、时代、国家、生卒年和外貌片段。
func Parse(name, content string) Info {
	info := Info{
		Name:        name,
		Description: description(content),
		Era:         UnknownEra,
		Appearance:  "Historical figure",
	}
	lower := strings.ToLower(content)
	if era := matchRule(lower, eraRules); era != "" {
		info.Era = era
	}
	info.Country = matchRule(lower, countryRules)
	info.BirthYear, info.DeathYear = lifeYears(content, time.Now().Year())

	for _, kw := range appearanceKeywords {
		// 在原文上定位，ToLower 可能改变字节长度（如 "İ"）
		idx := indexFold(content, kw)
		if idx < 0 {
			continue
		}
		snippet := truncateBytes(content[idx:], 200)
		if len(snippet) > 20 {
			info.Appearance = truncateBytes(snippet, 150)
		}
	}
	return info
}

// indexFold 返回 substr 在 s 中首次出现（忽略大小写）的字节偏移，未找到返回 -1。
func indexFold(s, substr string) int {
	for i := range s {
		if hasPrefixFold(s[i:], substr) {
			return i
		}
	}
	return -1
}

func hasPrefixFold(s, prefix string) bool {
	for _, pr := range prefix {
		r, size := utf8.DecodeRuneInString(s)
		if size == 0 || !strings.EqualFold(string(r), string(pr)) {
			return false
		}
		s = s[size:]
	}
	return true
}

// Category 根据描述中的关键词推断人物分类，无法判断返回空串。
func Category(info Info) string {
	return matchRule(strings.ToLower(info.Description), categoryRules)
}

// description 截取不超过 500 个字符，尽量在句末截断。
func description(content string) string {
	desc := strings.TrimSpace(truncateRunes(content, 500))
	if end := lastSentenceEnd(desc); end > 100 {
		desc = strings.TrimSpace(desc[:end+1])
	}
	if len([]rune(desc)) < 100 {
		desc = strings.TrimSpace(truncateRunes(content, 800))
		if end := strings.LastIndex(desc, "."); end > 100 {
			desc = strings.TrimSpace(desc[:end+1])
		}
	}
	if len([]rune(desc)) < 50 {
		desc = strings.TrimSpace(truncateRunes(content, 500))
	}
	return desc
}

func lastSentenceEnd(s string) int {
	end := -1
	for _, p := range []string{".", "!", "?"} {
		if i := strings.LastIndex(s, p); i > end {
			end = i
		}
	}
	return end
}

// lifeYears 取 1000..maxYear 范围内的最小与最大年份；跨度过大时取第一对相邻且接近的年份。
func lifeYears(content string, maxYear int) (*int, *int) {
	var years []int
	for _, m := range yearRe.FindAllString(content, -1) {
		y, err := strconv.Atoi(m)
		if err == nil && y >= 1000 && y <= maxYear {
			years = append(years, y)
		}
	}
	switch len(years) {
	case 0:
		return nil, nil
	case 1:
		return intPtr(years[0]), nil
	}
	sort.Ints(years)
	birth, death := years[0], years[len(years)-1]
	if death-birth > maxLifespan {
		for i := 0; i < len(years)-1; i++ {
			if years[i+1]-years[i] < maxLifespan {
				birth, death = years[i], years[i+1]
				break
			}
		}
	}
	return intPtr(birth), intPtr(death)
}

func intPtr(v int) *int { return &v }

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// truncateBytes 在不拆开多字节字符的前提下按字节截断。
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
