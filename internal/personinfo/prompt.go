package personinfo

import (
	"fmt"
	"strings"
)

// QualitySuffix 追加在模型生成的提示词之后
const QualitySuffix = ", high quality, detailed, professional photography, 8k resolution, historical accuracy"

// PromptSystem 是生成图像提示词时的系统指令
const PromptSystem = `You are an expert at creating detailed prompts for AI image generation.
Create a detailed, vivid description of a historical person that will be used to generate a realistic portrait.
Focus on physical appearance, clothing, setting, and historical accuracy.`

// PromptRequest 构造请求模型编写提示词的用户消息。
func PromptRequest(info Info, style string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a detailed image generation prompt for %s,\na historical figure from the %s era.\n\n", info.Name, info.Era)
	fmt.Fprintf(&b, "Information about the person:\n%s\n\nEra: %s\n", info.Description, info.Era)
	if info.Country != "" {
		fmt.Fprintf(&b, "Country: %s\n", info.Country)
	}
	if info.BirthYear != nil {
		fmt.Fprintf(&b, "Born: %d\n", *info.BirthYear)
	}
	fmt.Fprintf(&b, "\nStyle: %s\n\n", style)
	b.WriteString(`Create a detailed prompt (2-3 sentences) that describes:
- Physical appearance and facial features
- Clothing and attire appropriate for the era
- Setting and background
- Lighting and mood
- Historical accuracy

The prompt should be in English and suitable for AI image generation models like Flux or Stable Diffusion.`)
	return b.String()
}

// WithQualitySuffix 为模型输出的提示词追加质量后缀。
func WithQualitySuffix(prompt string) string {
	return strings.TrimSpace(prompt) + QualitySuffix
}

// FallbackPrompt 在所有模型都不可用时使用的模板提示词。
func FallbackPrompt(info Info) string {
	return fmt.Sprintf("A realistic portrait of %s, a historical figure from the %s era, "+
		"detailed facial features, period-appropriate clothing, professional photography, high quality, 8k resolution",
		info.Name, info.Era)
}

// SearchPrompt 构造检索人物资料的问题。
func SearchPrompt(personName string) string {
	return fmt.Sprintf(`Find and provide detailed information about the person named "%s".
This could be a historical figure, politician, leader, artist, scientist, or any notable person from any time period.

Please provide:
1. Full name (including full first and last name if available)
2. Brief biography (3-5 sentences with key facts about their life, achievements, and significance)
3. Historical era/period (e.g., Ancient, Medieval, Renaissance, 19th Century, 20th Century, Modern, Contemporary, etc.)
4. Physical appearance description (if available from historical records, portraits, photographs, or descriptions)
5. Country/region of origin and where they lived or worked
6. Birth year and death year (if known, use BCE/BC for ancient dates)
7. Notable characteristics, profession, achievements, and role in history
8. Typical clothing or attire for their era and status (if known)

If you find this person, provide comprehensive information. If this person is not found or not a real historical figure, please clearly state that.
Format your response as a detailed, structured description suitable for AI image generation.`, personName)
}

// SearchSystem 是检索人物资料时的系统指令
const SearchSystem = "You are a helpful assistant that provides detailed information about historical figures, politicians, leaders, and notable people for AI image generation. Always try to find information about the person, even if the name is incomplete or in a different language."

// SuggestPrompt 构造自动补全候选列表的问题。
func SuggestPrompt(query string, limit int) string {
	return fmt.Sprintf(`List %d different historical figures, politicians, leaders, or notable people whose name starts with or contains "%s".

For each person, provide:
1. Full name (with numbers or additional identifiers if applicable, e.g., "Николай II", "Николай I", "Николай Кондратьев")
2. Brief identifier in parentheses if needed (e.g., "(второй)", "(первый)", "(экономист)")
3. Era or time period
4. Country if known

Format as a list, one person per line, like:
- Николай II (второй) - 19th-20th Century, Russia
- Николай I (первый) - 19th Century, Russia
- Николай Кондратьев (экономист) - 20th Century, Russia

Only include real historical figures. Be specific with names and identifiers.`, limit, query)
}

// SuggestSystem 是自动补全的系统指令
const SuggestSystem = "You are a helpful assistant that provides lists of historical figures with their full names and identifiers. Always include specific identifiers like numbers or professions when there are multiple people with the same name."
