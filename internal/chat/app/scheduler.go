package app

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"festival_chat_service/pkg/logger"
)

// JobFunc 排程任務簽名
type JobFunc func(ctx context.Context) error

type scheduledJob struct {
	name string
	cron string
	fn   JobFunc
}

// Scheduler cron 排程器：每個任務一個 goroutine，
// 用 gronx 算下一個 tick 再睡到點。單實例部署，不做分散式鎖。
type Scheduler struct {
	jobs []scheduledJob
}

// NewScheduler create Scheduler
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Register 登記任務。cron 表達式在登記時就驗證，
// 設定錯誤要在啟動期爆出來而不是上線後。
func (s *Scheduler) Register(name, cronExpr string, fn JobFunc) error {
	if !gronx.IsValid(cronExpr) {
		return fmt.Errorf("invalid cron expression for job %s: %s", name, cronExpr)
	}
	s.jobs = append(s.jobs, scheduledJob{name: name, cron: cronExpr, fn: fn})
	return nil
}

// Start 啟動所有任務迴圈，ctx 取消即全部停止
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		go s.runLoop(ctx, job)
	}
	logger.Log.Info("job scheduler started", zap.Int("jobs", len(s.jobs)))
}

func (s *Scheduler) runLoop(ctx context.Context, job scheduledJob) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(job.cron, now, false)
		if err != nil {
			logger.Log.Errorf("compute next tick failed :", err, zap.String("job", job.name))
			// 退避後重試，不讓單一任務的錯誤殺掉迴圈
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(next.Sub(now)):
		case <-ctx.Done():
			return
		}

		start := time.Now()
		if err := job.fn(ctx); err != nil {
			logger.Log.Errorf("scheduled job failed :", err, zap.String("job", job.name))
			continue
		}
		logger.Log.Info("scheduled job done",
			zap.String("job", job.name), zap.Duration("took", time.Since(start)))
	}
}
