// Package pipeline 定义了人物索引同步的核心流程。
package pipeline

import (
	"context"
	"fmt"

	"histai-go/internal/model"
	"histai-go/internal/repository"
	"histai-go/pkg/log"
	"histai-go/pkg/tasks"
)

// PersonIndexer 是人物检索索引的写入端。
type PersonIndexer interface {
	IndexPerson(ctx context.Context, doc model.PersonDocument) error
	DeletePerson(ctx context.Context, personID uint) error
}

// Processor 封装了人物索引同步的所有依赖和逻辑。
type Processor struct {
	personRepo repository.PersonRepository
	indexer    PersonIndexer
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(personRepo repository.PersonRepository, indexer PersonIndexer) *Processor {
	return &Processor{
		personRepo: personRepo,
		indexer:    indexer,
	}
}

// Process 是索引任务的主函数。
func (p *Processor) Process(ctx context.Context, task tasks.PersonIndexTask) error {
	log.Infof("[Processor] 开始处理人物索引任务, Action: %s, PersonID: %d, Name: %s", task.Action, task.PersonID, task.Name)

	if task.Action == tasks.ActionDelete {
		log.Infof("[Processor] 步骤1: 从索引中删除人物, PersonID: %d", task.PersonID)
		return p.indexer.DeletePerson(ctx, task.PersonID)
	}

	// 1. 从数据库加载最新的人物数据
	log.Infof("[Processor] 步骤1: 从数据库加载人物, PersonID: %d", task.PersonID)
	person, err := p.personRepo.FindByID(task.PersonID)
	if repository.IsNotFound(err) {
		// 人物已被删除，无需重试
		log.Warnf("[Processor] 人物 %d 不存在, 跳过索引", task.PersonID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("加载人物失败: %w", err)
	}

	// 2. 写入 Elasticsearch
	log.Infof("[Processor] 步骤2: 写入检索索引, Name: %s", person.Name)
	if err := p.indexer.IndexPerson(ctx, model.NewPersonDocument(person)); err != nil {
		log.Errorf("[Processor] 写入索引失败, PersonID: %d, Error: %v", person.ID, err)
		return fmt.Errorf("写入索引失败: %w", err)
	}

	log.Infof("[Processor] 人物索引完成, PersonID: %d", person.ID)
	return nil
}

// DirectPublisher 在未启用 Kafka 时同步执行索引任务。
type DirectPublisher struct {
	processor *Processor
}

// NewDirectPublisher 创建一个新的 DirectPublisher 实例。
func NewDirectPublisher(processor *Processor) *DirectPublisher {
	return &DirectPublisher{processor: processor}
}

// ProducePersonTask 直接调用 Processor 处理任务
func (d *DirectPublisher) ProducePersonTask(ctx context.Context, task tasks.PersonIndexTask) error {
	return d.processor.Process(ctx, task)
}
