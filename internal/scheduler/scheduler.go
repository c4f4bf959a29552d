// Package scheduler 运行周期性的维护任务。
package scheduler

import (
	"context"
	"fmt"
	"time"

	"histai-go/internal/config"
	"histai-go/pkg/log"

	"github.com/robfig/cron/v3"
)

// SubscriptionRechecker 重新检查过期的订阅结果。
type SubscriptionRechecker interface {
	RecheckStale(ctx context.Context) (int, error)
}

// FailedPurger 删除早于给定时间的失败生成记录。
type FailedPurger interface {
	DeleteFailedBefore(before time.Time) (int64, error)
}

// Cleaner 清理内存中的过期状态，例如限速器。
type Cleaner interface {
	Cleanup() int
}

// 限速器清理间隔
const cleanerInterval = 10 * time.Minute

// Scheduler 封装基于 cron 的任务。
type Scheduler struct {
	cron      *cron.Cron
	cfg       config.SchedulerConfig
	rechecker SubscriptionRechecker
	purger    FailedPurger
	cleaners  []Cleaner
	ctx       context.Context
	now       func() time.Time
}

// New 创建 Scheduler 并注册任务，表达式包含秒字段。
func New(cfg config.SchedulerConfig, rechecker SubscriptionRechecker, purger FailedPurger, cleaners ...Cleaner) (*Scheduler, error) {
	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid scheduler timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}
	s := &Scheduler{
		cron:      cron.New(cron.WithLocation(loc), cron.WithSeconds()),
		cfg:       cfg,
		rechecker: rechecker,
		purger:    purger,
		cleaners:  cleaners,
		ctx:       context.Background(),
		now:       time.Now,
	}

	if rechecker != nil && cfg.SubscriptionRecheck != "" {
		if _, err := s.cron.AddFunc(cfg.SubscriptionRecheck, s.recheckSubscriptions); err != nil {
			return nil, fmt.Errorf("invalid subscription_recheck schedule: %w", err)
		}
	}
	if purger != nil && cfg.FailedCleanup != "" {
		if _, err := s.cron.AddFunc(cfg.FailedCleanup, s.purgeFailed); err != nil {
			return nil, fmt.Errorf("invalid failed_cleanup schedule: %w", err)
		}
	}
	if len(cleaners) > 0 {
		every := fmt.Sprintf("@every %ds", int(cleanerInterval.Seconds()))
		if _, err := s.cron.AddFunc(every, s.runCleaners); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Start 启动调度，ctx 取消后正在运行的任务应尽快退出
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	log.Infof("[Scheduler] 已启动, 任务数: %d", len(s.cron.Entries()))
}

// Stop 停止调度并等待正在运行的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info("[Scheduler] 已停止")
}

func (s *Scheduler) recheckSubscriptions() {
	start := s.now()
	n, err := s.rechecker.RecheckStale(s.ctx)
	if err != nil {
		log.Errorf("[Scheduler] 订阅复查失败, 已检查 %d 人: %v", n, err)
		return
	}
	log.Infof("[Scheduler] 订阅复查完成, 检查 %d 人, 耗时 %s", n, s.now().Sub(start))
}

func (s *Scheduler) purgeFailed() {
	days := s.cfg.FailedRetentionDays
	if days <= 0 {
		days = 30
	}
	before := s.now().UTC().AddDate(0, 0, -days)
	n, err := s.purger.DeleteFailedBefore(before)
	if err != nil {
		log.Errorf("[Scheduler] 清理失败记录出错: %v", err)
		return
	}
	log.Infof("[Scheduler] 已清理 %d 条早于 %s 的失败记录", n, before.Format("2006-01-02"))
}

func (s *Scheduler) runCleaners() {
	for _, c := range s.cleaners {
		if n := c.Cleanup(); n > 0 {
			log.Debugf("[Scheduler] 清理了 %d 个过期限速器", n)
		}
	}
}
