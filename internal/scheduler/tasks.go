// Package scheduler 提供定时任务
package scheduler

import (
	"context"
	"time"

	"github.com/dumeirei/housing-visit-backend/internal/common/cache"
	"github.com/dumeirei/housing-visit-backend/internal/common/logger"
)

// BookingSweeper 批量过期已确认预订
type BookingSweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// VisitExpirer 批量过期超出下单期限的看房
type VisitExpirer interface {
	ExpireStaleVisits(ctx context.Context, now time.Time) (int64, error)
}

// 任务锁名
const (
	lockBookingSweep = "scheduler:booking_sweep"
	lockVisitExpire  = "scheduler:visit_expire"
)

// TaskHandler 任务处理器
type TaskHandler struct {
	bookings BookingSweeper
	visits   VisitExpirer
	store    *cache.Store
	lockTTL  time.Duration
	now      func() time.Time
}

// NewTaskHandler 创建任务处理器
// 多实例部署时通过 Redis 锁保证同一时刻只有一个实例执行批量任务
func NewTaskHandler(bookings BookingSweeper, visits VisitExpirer, store *cache.Store, lockTTL time.Duration) *TaskHandler {
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	return &TaskHandler{
		bookings: bookings,
		visits:   visits,
		store:    store,
		lockTTL:  lockTTL,
		now:      time.Now,
	}
}

// SetClock 替换时钟（用于测试）
func (h *TaskHandler) SetClock(now func() time.Time) {
	h.now = now
}

// SweepExpiredBookings 将有效期已过的预订置为过期
func (h *TaskHandler) SweepExpiredBookings(ctx context.Context) error {
	return h.withLock(ctx, lockBookingSweep, func(ctx context.Context) error {
		_, err := h.bookings.SweepExpired(ctx, h.now())
		return err
	})
}

// ExpireStaleVisits 将超过下单期限的已完成看房置为过期
func (h *TaskHandler) ExpireStaleVisits(ctx context.Context) error {
	return h.withLock(ctx, lockVisitExpire, func(ctx context.Context) error {
		_, err := h.visits.ExpireStaleVisits(ctx, h.now())
		return err
	})
}

// withLock 获取锁后执行，锁被其他实例持有时跳过本轮
func (h *TaskHandler) withLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	lock, err := h.store.TryLock(ctx, name, h.lockTTL)
	if err != nil {
		return err
	}
	if lock == nil {
		logger.Debug("任务锁被占用，跳过本轮", logger.Module("scheduler"), logger.String("lock", name))
		return nil
	}
	defer func() {
		if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("释放任务锁失败", logger.Module("scheduler"), logger.String("lock", name), logger.Err(err))
		}
	}()

	return fn(ctx)
}

// Register 注册全部任务，interval 为 0 的任务不启用
func (h *TaskHandler) Register(s *Scheduler, sweepInterval, visitExpireInterval time.Duration) {
	s.AddTask("sweep_expired_bookings", sweepInterval, h.SweepExpiredBookings)
	s.AddTask("expire_stale_visits", visitExpireInterval, h.ExpireStaleVisits)
}
