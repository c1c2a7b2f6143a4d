package booking

import (
	"context"

	"github.com/dumeirei/housing-visit-backend/internal/common/logger"
)

// compensation 补偿操作
type compensation struct {
	name string
	fn   func(ctx context.Context) error
}

// UnitOfWork 记录已生效的外部副作用，失败时逆序补偿
// 不是线程安全的，只在单个请求内使用
type UnitOfWork struct {
	compensations []compensation
	done          bool
}

// NewUnitOfWork 创建工作单元
func NewUnitOfWork() *UnitOfWork {
	return &UnitOfWork{}
}

// Register 登记补偿操作
func (u *UnitOfWork) Register(name string, fn func(ctx context.Context) error) {
	u.compensations = append(u.compensations, compensation{name: name, fn: fn})
}

// Len 已登记的补偿数量
func (u *UnitOfWork) Len() int {
	return len(u.compensations)
}

// Complete 提交成功，丢弃补偿
func (u *UnitOfWork) Complete() {
	u.compensations = nil
	u.done = true
}

// Rollback 逆序执行全部补偿，不受调用方取消影响
// 单个补偿失败只记录日志，继续执行其余补偿；返回失败的数量
func (u *UnitOfWork) Rollback(ctx context.Context) int {
	if u.done {
		return 0
	}
	ctx = context.WithoutCancel(ctx)

	failed := 0
	for i := len(u.compensations) - 1; i >= 0; i-- {
		c := u.compensations[i]
		if err := c.fn(ctx); err != nil {
			failed++
			logger.Error("补偿操作失败",
				logger.Module("booking"),
				logger.Action(c.name),
				logger.Err(err),
			)
		}
	}
	u.compensations = nil
	u.done = true
	return failed
}
