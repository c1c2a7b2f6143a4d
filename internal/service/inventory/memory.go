package inventory

import (
	"context"
	"sync"

	"github.com/dumeirei/housing-visit-backend/internal/common/errors"
)

// MemoryLedger 内存库存账本，语义与 GormLedger 一致
type MemoryLedger struct {
	mu    sync.Mutex
	rooms map[int64]*memoryRoom
}

type memoryRoom struct {
	total     int
	available int
}

// NewMemoryLedger 创建内存账本
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{rooms: make(map[int64]*memoryRoom)}
}

// SetRoom 设置房间库存
func (l *MemoryLedger) SetRoom(roomID int64, total, available int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rooms[roomID] = &memoryRoom{total: total, available: available}
}

// Available 当前可用数量，房间不存在返回 -1
func (l *MemoryLedger) Available(roomID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	room, ok := l.rooms[roomID]
	if !ok {
		return -1
	}
	return room.available
}

// Reserve 预留库存
func (l *MemoryLedger) Reserve(_ context.Context, roomID int64, quantity int) error {
	if quantity < 1 {
		return errors.ErrBookingQuantity
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	room, ok := l.rooms[roomID]
	if !ok {
		return errors.ErrRoomNotFound
	}
	if room.available < quantity {
		return Shortage(roomID, quantity, room.available)
	}
	room.available -= quantity
	return nil
}

// Release 归还库存
func (l *MemoryLedger) Release(_ context.Context, roomID int64, quantity int) error {
	if quantity < 1 {
		return errors.ErrBookingQuantity
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	room, ok := l.rooms[roomID]
	if !ok {
		return errors.ErrRoomNotFound
	}
	room.available += quantity
	if room.available > room.total {
		room.available = room.total
	}
	return nil
}
