// Package inventory 提供房间库存账本
// 可用数量只通过 Reserve/Release 修改，任何时刻都满足 0 <= available_count <= total_count
package inventory

import (
	"context"
	stderrors "errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dumeirei/housing-visit-backend/internal/common/errors"
	"github.com/dumeirei/housing-visit-backend/internal/common/logger"
	"github.com/dumeirei/housing-visit-backend/internal/common/metrics"
	"github.com/dumeirei/housing-visit-backend/internal/repository"
)

// Ledger 库存账本
type Ledger interface {
	// Reserve 预留 quantity 间，余量不足返回 KindInsufficientInventory
	Reserve(ctx context.Context, roomID int64, quantity int) error
	// Release 归还 quantity 间，结果不超过总量
	Release(ctx context.Context, roomID int64, quantity int) error
}

// Line 预留明细
type Line struct {
	RoomID   int64 `json:"room_id"`
	Quantity int   `json:"quantity"`
}

// GormLedger 基于数据库条件更新的库存账本
type GormLedger struct {
	roomRepo *repository.RoomRepository
}

// NewGormLedger 创建库存账本
func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{roomRepo: repository.NewRoomRepository(db)}
}

// WithTx 返回绑定到事务的账本，归还与其他写操作一起提交
func (l *GormLedger) WithTx(tx *gorm.DB) *GormLedger {
	return &GormLedger{roomRepo: l.roomRepo.WithTx(tx)}
}

// Reserve 预留库存
func (l *GormLedger) Reserve(ctx context.Context, roomID int64, quantity int) error {
	if quantity < 1 {
		return errors.ErrBookingQuantity
	}

	err := l.roomRepo.DecreaseAvailable(ctx, roomID, quantity)
	if err == nil {
		metrics.RecordInventoryReserve(true)
		return nil
	}
	if !stderrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.ErrDatabaseError.WithError(err)
	}

	// 条件更新未命中：区分房间不存在与余量不足
	room, getErr := l.roomRepo.GetByID(ctx, roomID)
	if getErr != nil {
		if stderrors.Is(getErr, gorm.ErrRecordNotFound) {
			return errors.ErrRoomNotFound
		}
		return errors.ErrDatabaseError.WithError(getErr)
	}

	metrics.RecordInventoryReserve(false)
	return Shortage(roomID, quantity, room.AvailableCount)
}

// Release 归还库存
func (l *GormLedger) Release(ctx context.Context, roomID int64, quantity int) error {
	if quantity < 1 {
		return errors.ErrBookingQuantity
	}
	if err := l.roomRepo.IncreaseAvailable(ctx, roomID, quantity); err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.ErrRoomNotFound
		}
		return errors.ErrDatabaseError.WithError(err)
	}
	return nil
}

// Shortage 构造库存不足错误
func Shortage(roomID int64, requested, available int) *errors.AppError {
	return errors.ErrInsufficientInventory.
		WithMessage(fmt.Sprintf("房间 %d 库存不足：需要 %d 间，剩余 %d 间", roomID, requested, available)).
		WithData(errors.InventoryShortage{
			RoomID:    roomID,
			Requested: requested,
			Available: available,
		})
}

// MergeLines 合并同一房间的明细，保持首次出现的顺序
func MergeLines(lines []Line) []Line {
	merged := make([]Line, 0, len(lines))
	index := make(map[int64]int, len(lines))
	for _, line := range lines {
		if i, ok := index[line.RoomID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.RoomID] = len(merged)
		merged = append(merged, line)
	}
	return merged
}

// ReserveAll 按顺序预留全部明细
// 任一明细失败时归还本次已预留的明细后返回该错误；成功时返回合并后的明细
func ReserveAll(ctx context.Context, ledger Ledger, lines []Line) ([]Line, error) {
	merged := MergeLines(lines)
	reserved := make([]Line, 0, len(merged))

	for _, line := range merged {
		if err := ledger.Reserve(ctx, line.RoomID, line.Quantity); err != nil {
			ReleaseAll(context.WithoutCancel(ctx), ledger, reserved)
			return nil, err
		}
		reserved = append(reserved, line)
	}
	return reserved, nil
}

// ReleaseAll 逆序归还明细，失败只记录日志
func ReleaseAll(ctx context.Context, ledger Ledger, lines []Line) {
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if err := ledger.Release(ctx, line.RoomID, line.Quantity); err != nil {
			logger.Error("归还库存失败",
				logger.Module("inventory"),
				logger.RoomID(line.RoomID),
				zap.Int("quantity", line.Quantity),
				logger.Err(err),
			)
		}
	}
}
