// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"histai-go/internal/config"
	"histai-go/pkg/log"
	"histai-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// MaxAttempts 任务失败达到该次数后提交 offset，不再重试
const MaxAttempts = 3

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.PersonIndexTask) error
}

// Producer 发送人物索引任务
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// ProducePersonTask 发送一个人物索引任务到 Kafka，以人物 ID 作为消息 key。
func (p *Producer) ProducePersonTask(ctx context.Context, task tasks.PersonIndexTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.AttemptKey()),
		Value: taskBytes,
	})
}

// Close 关闭生产者
func (p *Producer) Close() error {
	return p.writer.Close()
}

// AttemptTracker 记录任务失败次数
type AttemptTracker interface {
	// Fail 增加失败计数并返回当前次数
	Fail(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type redisAttempts struct {
	rdb *redis.Client
}

// NewRedisAttempts 使用 Redis 计数失败次数，计数 24 小时后过期。
func NewRedisAttempts(rdb *redis.Client) AttemptTracker {
	return &redisAttempts{rdb: rdb}
}

func (r *redisAttempts) Fail(ctx context.Context, key string) (int64, error) {
	attempts, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = r.rdb.Expire(ctx, key, 24*time.Hour).Err()
	return attempts, nil
}

func (r *redisAttempts) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

// HandleMessage 处理单条消息并返回是否应当提交 offset。
func HandleMessage(ctx context.Context, value []byte, processor TaskProcessor, attempts AttemptTracker) bool {
	var task tasks.PersonIndexTask
	if err := json.Unmarshal(value, &task); err != nil {
		// 消息格式错误，直接提交，避免阻塞队列
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(value))
		return true
	}

	log.Infof("开始处理人物索引任务: action=%s, personID=%d, name=%s", task.Action, task.PersonID, task.Name)
	if err := processor.Process(ctx, task); err != nil {
		log.Errorf("处理人物索引任务失败: personID=%d, Error: %v", task.PersonID, err)
		n, incErr := attempts.Fail(ctx, task.AttemptKey())
		if incErr != nil {
			// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
			return false
		}
		if n >= MaxAttempts {
			log.Errorf("人物索引任务多次失败(>=%d)，提交 offset 终止重试: personID=%d", MaxAttempts, task.PersonID)
			return true
		}
		return false
	}

	log.Infof("人物索引任务处理成功: personID=%d", task.PersonID)
	_ = attempts.Reset(ctx, task.AttemptKey())
	return true
}

// messageReader 是 kafka.Reader 中消费循环用到的部分
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// 失败重试的退避上限
const maxRetryBackoff = 30 * time.Second

// retryBackoff 返回第 n 次重试前的等待时间：1s, 2s, 4s ... 上限 30s
func retryBackoff(n int) time.Duration {
	if n > 5 {
		return maxRetryBackoff
	}
	d := time.Second << uint(n-1)
	if d > maxRetryBackoff {
		return maxRetryBackoff
	}
	return d
}

// StartConsumer 启动一个 Kafka 消费者来处理人物索引任务，ctx 取消时退出。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, attempts AttemptTracker) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)
	consume(ctx, r, processor, attempts, retryBackoff)
}

// consume 逐条处理消息。未能提交的消息在原地退避重试，不会越过它去提交后续 offset。
func consume(ctx context.Context, r messageReader, processor TaskProcessor, attempts AttemptTracker, backoff func(int) time.Duration) {
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
		log.Info("Kafka 消费者已退出")
	}()

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Error("从 Kafka 读取消息失败", err)
			}
			return
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)
		for retry := 1; !HandleMessage(ctx, m.Value, processor, attempts); retry++ {
			wait := backoff(retry)
			log.Warnf("Kafka 消息 offset %d 处理未完成, %s 后重试", m.Offset, wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
		if err := r.CommitMessages(context.Background(), m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}
