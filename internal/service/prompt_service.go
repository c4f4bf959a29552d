package service

import (
	"context"
	"strings"

	"histai-go/internal/personinfo"
	"histai-go/pkg/log"
)

// PromptSourceTemplate 表示使用了模板提示词
const PromptSourceTemplate = "template"

// PromptWriter 是能编写图像提示词的文本模型。
type PromptWriter interface {
	Name() string
	Configured() bool
	WritePrompt(ctx context.Context, system, user string) (string, error)
}

// PromptService 依次尝试各文本模型编写提示词，全部失败时使用模板。
type PromptService interface {
	// Generate 返回提示词与其来源
	Generate(ctx context.Context, info personinfo.Info, style string) (prompt, source string)
}

type promptService struct {
	writers []PromptWriter
}

// NewPromptService 创建一个新的 PromptService 实例，writers 按优先级排列。
func NewPromptService(writers ...PromptWriter) PromptService {
	return &promptService{writers: writers}
}

func (s *promptService) Generate(ctx context.Context, info personinfo.Info, style string) (string, string) {
	request := personinfo.PromptRequest(info, style)
	for _, w := range s.writers {
		if w == nil || !w.Configured() {
			continue
		}
		text, err := w.WritePrompt(ctx, personinfo.PromptSystem, request)
		if err != nil {
			log.Warnf("[PromptService] %s 生成提示词失败, 尝试下一个: %v", w.Name(), err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			log.Warnf("[PromptService] %s 返回空提示词", w.Name())
			continue
		}
		return personinfo.WithQualitySuffix(text), w.Name()
	}
	log.Infof("[PromptService] 使用模板提示词, person: %s", info.Name)
	return personinfo.FallbackPrompt(info), PromptSourceTemplate
}
