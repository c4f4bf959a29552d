package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"histai-go/internal/model"
	"histai-go/internal/personinfo"
	"histai-go/internal/repository"
	"histai-go/pkg/imagegen"
	"histai-go/pkg/log"
	"histai-go/pkg/metrics"

	"github.com/google/uuid"
)

// 生成进度阶段
const (
	StageValidating = "validating"
	StageSearching  = "searching_person"
	StagePrompt     = "generating_prompt"
	StageImage      = "generating_image"
	StageSaving     = "saving"
)

// GenerateRequest 是一次生成请求
type GenerateRequest struct {
	PersonName string `json:"personName"`
	PersonID   *uint  `json:"personId"`
	Style      string `json:"style"`
}

// ValidationError 表示请求参数不合法
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ProgressFunc 接收生成进度
type ProgressFunc func(stage string)

// ImageGenerator 根据提示词生成图像。
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (*imagegen.Image, error)
}

// ImageStore 持久化图像并返回可访问的地址。
type ImageStore interface {
	Save(ctx context.Context, data []byte, mime string) (string, error)
}

// GenerationService 负责画像生成流程及生成记录。
type GenerationService interface {
	Generate(ctx context.Context, user *model.User, req GenerateRequest, clientIP string, progress ProgressFunc) (*model.Generation, error)
	ListMine(userID uint, limit, offset int) ([]model.Generation, int64, error)
	ListPublic(limit int) ([]model.Generation, error)
	Delete(user *model.User, id string) error
}

type generationService struct {
	genRepo    repository.GenerationRepository
	persons    PersonService
	quota      QuotaService
	prompts    PromptService
	images     ImageGenerator
	store      ImageStore
	httpClient *http.Client
	timeout    time.Duration
}

// NewGenerationService 创建一个新的 GenerationService 实例，store 为 nil 时不转存图像。
func NewGenerationService(genRepo repository.GenerationRepository, persons PersonService, quota QuotaService, prompts PromptService, images ImageGenerator, store ImageStore, timeout time.Duration) GenerationService {
	return &generationService{
		genRepo:    genRepo,
		persons:    persons,
		quota:      quota,
		prompts:    prompts,
		images:     images,
		store:      store,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		timeout:    timeout,
	}
}

func (s *generationService) Generate(ctx context.Context, user *model.User, req GenerateRequest, clientIP string, progress ProgressFunc) (*model.Generation, error) {
	if progress == nil {
		progress = func(string) {}
	}

	// 1. 订阅与配额
	progress(StageValidating)
	if !user.IsSubscribed {
		return nil, ErrSubscriptionRequired
	}
	if _, err := s.quota.CheckDaily(user.ID); err != nil {
		return nil, err
	}
	if err := s.quota.HitIP(ctx, clientIP); err != nil {
		return nil, err
	}

	// 2. 参数校验
	style := req.Style
	if style == "" {
		style = model.StyleRealistic
	}
	if !model.ValidStyle(style) {
		return nil, &ValidationError{Message: "style must be one of realistic, artistic, historical"}
	}
	var rawName string
	if strings.TrimSpace(req.PersonName) != "" {
		cleaned, err := personinfo.ValidatePersonName(req.PersonName)
		if err != nil {
			return nil, &ValidationError{Message: err.Error()}
		}
		rawName = cleaned
	} else if req.PersonID == nil {
		return nil, &ValidationError{Message: "personName or personId is required"}
	}
	// 仅有括号补充信息时无法检索
	if req.PersonID == nil && personinfo.ExtractPersonName(rawName) == "" {
		return nil, &ValidationError{Message: "person name is required"}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	log.Infof("[GenerationService] 开始生成, userID: %d, person: %q, style: %s", user.ID, rawName, style)
	gen := &model.Generation{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		PersonName: rawName,
		Style:      style,
	}

	// 3. 查找人物
	progress(StageSearching)
	searchName := personinfo.ExtractPersonName(rawName)
	if searchName == "" && req.PersonID != nil {
		p, err := s.persons.GetByID(*req.PersonID)
		if err != nil {
			return nil, s.fail(gen, err)
		}
		searchName = p.Name
		gen.PersonName = p.Name
	}
	person, info, err := s.persons.FindOrCreate(ctx, searchName)
	if err != nil {
		return nil, s.fail(gen, err)
	}
	gen.HistoricalPersonID = &person.ID

	// 括号中的补充信息并入名称与描述
	if extra := personinfo.ExtractAdditionalInfo(rawName); extra != "" {
		info.Name = personinfo.FullNameForGeneration(rawName)
		if !strings.Contains(strings.ToLower(info.Description), strings.ToLower(extra)) {
			info.Description = strings.TrimSpace(info.Description + " " + extra + ".")
		}
	}
	gen.PersonName = info.Name

	// 4. 提示词
	progress(StagePrompt)
	prompt, source := s.prompts.Generate(ctx, info, style)
	gen.Prompt = prompt
	log.Infof("[GenerationService] 提示词已生成, source: %s, length: %d", source, len(prompt))

	// 5. 图像
	progress(StageImage)
	img, err := s.images.Generate(ctx, prompt)
	if err != nil {
		return nil, s.fail(gen, fmt.Errorf("%w: %v", ErrImageGenerationFailed, err))
	}
	gen.Provider = img.Provider

	// 6. 保存
	progress(StageSaving)
	imageURL, err := s.persistImage(ctx, img)
	if err != nil {
		return nil, s.fail(gen, fmt.Errorf("%w: %v", ErrImageGenerationFailed, err))
	}
	gen.ImageURL = imageURL
	gen.Status = model.GenerationStatusCompleted
	if err := s.genRepo.Create(gen); err != nil {
		return nil, fmt.Errorf("保存生成记录失败: %w", err)
	}
	metrics.IncGeneration(gen.Status, gen.Provider)
	log.Infof("[GenerationService] 生成完成, id: %s, provider: %s", gen.ID, gen.Provider)
	return gen, nil
}

// persistImage 将图像转存到对象存储；下载失败时保留服务方地址
func (s *generationService) persistImage(ctx context.Context, img *imagegen.Image) (string, error) {
	data, mime := img.Data, img.MIMEType
	if len(data) == 0 {
		if s.store == nil {
			return img.URL, nil
		}
		var err error
		data, mime, err = imagegen.Download(ctx, s.httpClient, img.URL)
		if err != nil {
			log.Warnf("[GenerationService] 下载图像失败, 保留原地址: %v", err)
			return img.URL, nil
		}
	}
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	if s.store == nil {
		return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
	}
	url, err := s.store.Save(ctx, data, mime)
	if err != nil {
		if img.URL != "" {
			log.Warnf("[GenerationService] 转存图像失败, 保留原地址: %v", err)
			return img.URL, nil
		}
		return "", err
	}
	return url, nil
}

// fail 记录失败的生成并原样返回错误
func (s *generationService) fail(gen *model.Generation, cause error) error {
	gen.Status = model.GenerationStatusFailed
	gen.ErrorMessage = cause.Error()
	if gen.PersonName == "" {
		gen.PersonName = "Unknown"
	}
	if err := s.genRepo.Create(gen); err != nil {
		log.Errorf("[GenerationService] 保存失败记录出错, id: %s, error: %v", gen.ID, err)
	}
	metrics.IncGeneration(gen.Status, gen.Provider)
	log.Warnf("[GenerationService] 生成失败, id: %s, error: %v", gen.ID, cause)
	return cause
}

func (s *generationService) ListMine(userID uint, limit, offset int) ([]model.Generation, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.genRepo.ListCompletedByUser(userID, offset, limit)
}

func (s *generationService) ListPublic(limit int) ([]model.Generation, error) {
	if limit <= 0 || limit > 50 {
		limit = 12
	}
	return s.genRepo.ListPublic(limit)
}

func (s *generationService) Delete(user *model.User, id string) error {
	gen, err := s.genRepo.FindByID(id)
	if repository.IsNotFound(err) {
		return ErrGenerationNotFound
	}
	if err != nil {
		return err
	}
	if gen.UserID != user.ID {
		return ErrForbidden
	}
	return s.genRepo.Delete(id)
}
