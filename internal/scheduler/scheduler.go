// Package scheduler 提供定时任务调度
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/dumeirei/housing-visit-backend/internal/common/logger"
)

// Scheduler 定时任务调度器
type Scheduler struct {
	tasks   []*Task
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Task 定时任务
type Task struct {
	Name     string
	Interval time.Duration
	Handler  func(ctx context.Context) error
}

// NewScheduler 创建调度器
func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tasks:   make([]*Task, 0),
		timeout: 5 * time.Minute,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddTask 添加任务，间隔不大于 0 的任务不会被调度
func (s *Scheduler) AddTask(name string, interval time.Duration, handler func(ctx context.Context) error) {
	if interval <= 0 {
		logger.Info("定时任务未启用", logger.Module("scheduler"), logger.String("task", name))
		return
	}
	s.tasks = append(s.tasks, &Task{
		Name:     name,
		Interval: interval,
		Handler:  handler,
	})
}

// Tasks 已注册的任务
func (s *Scheduler) Tasks() []*Task {
	return s.tasks
}

// Start 启动调度器
func (s *Scheduler) Start() {
	logger.Info("调度器启动", logger.Module("scheduler"), logger.Int("tasks", len(s.tasks)))

	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.runTask(task)
	}
}

// Stop 停止调度器并等待执行中的任务结束
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	logger.Info("调度器已停止", logger.Module("scheduler"))
}

// runTask 运行单个任务
func (s *Scheduler) runTask(task *Task) {
	defer s.wg.Done()

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	// 立即执行一次
	s.executeTask(task)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.executeTask(task)
		}
	}
}

// executeTask 执行任务，panic 只影响本次执行
func (s *Scheduler) executeTask(task *Task) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("定时任务异常",
				logger.Module("scheduler"),
				logger.String("task", task.Name),
				logger.Any("panic", r),
			)
		}
	}()

	start := time.Now()
	if err := task.Handler(ctx); err != nil {
		logger.Error("定时任务失败",
			logger.Module("scheduler"),
			logger.String("task", task.Name),
			logger.Err(err),
		)
		return
	}
	logger.Debug("定时任务完成",
		logger.Module("scheduler"),
		logger.String("task", task.Name),
		logger.Latency(time.Since(start)),
	)
}
