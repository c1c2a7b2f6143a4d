package inventory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dumeirei/housing-visit-backend/internal/common/database"
	"github.com/dumeirei/housing-visit-backend/internal/common/errors"
	"github.com/dumeirei/housing-visit-backend/internal/models"
)

// ledgerFixture 为两种账本实现提供统一的初始化与读数
type ledgerFixture struct {
	ledger    Ledger
	addRoom   func(total, available int) int64
	available func(roomID int64) int
}

func gormFixture(t *testing.T) ledgerFixture {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)

	property := &models.Property{Name: "测试房源", OwnerID: 1, Status: models.PropertyStatusAvailable}
	require.NoError(t, db.Create(property).Error)

	return ledgerFixture{
		ledger: NewGormLedger(db),
		addRoom: func(total, available int) int64 {
			room := &models.Room{
				PropertyID: property.ID, OccupancyType: models.OccupancySingle,
				Rent: 600000, TotalCount: total, AvailableCount: available,
			}
			require.NoError(t, db.Create(room).Error)
			return room.ID
		},
		available: func(roomID int64) int {
			var room models.Room
			require.NoError(t, db.First(&room, roomID).Error)
			return room.AvailableCount
		},
	}
}

func memoryFixture(t *testing.T) ledgerFixture {
	ledger := NewMemoryLedger()
	var next int64
	return ledgerFixture{
		ledger: ledger,
		addRoom: func(total, available int) int64 {
			next++
			ledger.SetRoom(next, total, available)
			return next
		},
		available: ledger.Available,
	}
}

func forEachLedger(t *testing.T, fn func(t *testing.T, f ledgerFixture)) {
	t.Run("gorm", func(t *testing.T) { fn(t, gormFixture(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, memoryFixture(t)) })
}

func TestLedger_Reserve(t *testing.T) {
	forEachLedger(t, func(t *testing.T, f ledgerFixture) {
		ctx := context.Background()
		roomID := f.addRoom(3, 2)

		require.NoError(t, f.ledger.Reserve(ctx, roomID, 2))
		assert.Equal(t, 0, f.available(roomID))

		err := f.ledger.Reserve(ctx, roomID, 1)
		require.Error(t, err)
		assert.Equal(t, errors.KindInsufficientInventory, errors.KindOf(err))
		assert.Equal(t, errors.InventoryShortage{RoomID: roomID, Requested: 1, Available: 0}, errors.GetAppError(err).Data)
	})
}

func TestLedger_ShortageLeavesCountUntouched(t *testing.T) {
	forEachLedger(t, func(t *testing.T, f ledgerFixture) {
		roomID := f.addRoom(5, 2)

		err := f.ledger.Reserve(context.Background(), roomID, 3)
		require.Error(t, err)
		shortage, ok := errors.GetAppError(err).Data.(errors.InventoryShortage)
		require.True(t, ok)
		assert.Equal(t, 3, shortage.Requested)
		assert.Equal(t, 2, shortage.Available)
		assert.Equal(t, 2, f.available(roomID))
	})
}

func TestLedger_InvalidInput(t *testing.T) {
	forEachLedger(t, func(t *testing.T, f ledgerFixture) {
		ctx := context.Background()
		roomID := f.addRoom(1, 1)

		assert.Equal(t, errors.KindInvalidParams, errors.KindOf(f.ledger.Reserve(ctx, roomID, 0)))
		assert.Equal(t, errors.KindInvalidParams, errors.KindOf(f.ledger.Release(ctx, roomID, -1)))
		assert.Equal(t, errors.KindNotFound, errors.KindOf(f.ledger.Reserve(ctx, 424242, 1)))
		assert.Equal(t, errors.KindNotFound, errors.KindOf(f.ledger.Release(ctx, 424242, 1)))
	})
}

func TestLedger_ReleaseClamped(t *testing.T) {
	forEachLedger(t, func(t *testing.T, f ledgerFixture) {
		ctx := context.Background()
		roomID := f.addRoom(2, 1)

		require.NoError(t, f.ledger.Release(ctx, roomID, 1))
		assert.Equal(t, 2, f.available(roomID))

		require.NoError(t, f.ledger.Release(ctx, roomID, 3))
		assert.Equal(t, 2, f.available(roomID))
	})
}

func TestReserveAll_RollsBackOnFailure(t *testing.T) {
	forEachLedger(t, func(t *testing.T, f ledgerFixture) {
		ctx := context.Background()
		first := f.addRoom(2, 2)
		second := f.addRoom(1, 1)

		_, err := ReserveAll(ctx, f.ledger, []Line{
			{RoomID: first, Quantity: 2},
			{RoomID: second, Quantity: 2},
		})
		require.Error(t, err)
		assert.Equal(t, errors.KindInsufficientInventory, errors.KindOf(err))

		assert.Equal(t, 2, f.available(first))
		assert.Equal(t, 1, f.available(second))
	})
}

func TestReserveAll_MergesSameRoom(t *testing.T) {
	forEachLedger(t, func(t *testing.T, f ledgerFixture) {
		ctx := context.Background()
		roomID := f.addRoom(3, 3)

		reserved, err := ReserveAll(ctx, f.ledger, []Line{
			{RoomID: roomID, Quantity: 1},
			{RoomID: roomID, Quantity: 2},
		})
		require.NoError(t, err)
		assert.Equal(t, []Line{{RoomID: roomID, Quantity: 3}}, reserved)
		assert.Equal(t, 0, f.available(roomID))

		// 合并后超量时整体失败
		roomB := f.addRoom(2, 2)
		_, err = ReserveAll(ctx, f.ledger, []Line{
			{RoomID: roomB, Quantity: 1},
			{RoomID: roomB, Quantity: 2},
		})
		assert.Equal(t, errors.KindInsufficientInventory, errors.KindOf(err))
		assert.Equal(t, 2, f.available(roomB))
	})
}

func TestReleaseAll(t *testing.T) {
	forEachLedger(t, func(t *testing.T, f ledgerFixture) {
		ctx := context.Background()
		a := f.addRoom(2, 0)
		b := f.addRoom(1, 0)

		ReleaseAll(ctx, f.ledger, []Line{{RoomID: a, Quantity: 2}, {RoomID: 999, Quantity: 1}, {RoomID: b, Quantity: 1}})
		assert.Equal(t, 2, f.available(a))
		assert.Equal(t, 1, f.available(b))
	})
}

func TestLedger_ConcurrentReserveNeverOversells(t *testing.T) {
	forEachLedger(t, func(t *testing.T, f ledgerFixture) {
		ctx := context.Background()
		roomID := f.addRoom(5, 5)

		var (
			wg        sync.WaitGroup
			succeeded int32
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := f.ledger.Reserve(ctx, roomID, 1); err == nil {
					atomic.AddInt32(&succeeded, 1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(5), succeeded)
		assert.Equal(t, 0, f.available(roomID))
	})
}

func TestGormLedger_WithTx(t *testing.T) {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	room := &models.Room{PropertyID: 1, OccupancyType: models.OccupancyTriple, Rent: 300000, TotalCount: 3, AvailableCount: 0}
	require.NoError(t, db.Create(room).Error)

	ledger := NewGormLedger(db)
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := ledger.WithTx(tx).Release(context.Background(), room.ID, 2); err != nil {
			return err
		}
		return gorm.ErrInvalidData
	})
	require.Error(t, err)

	var got models.Room
	require.NoError(t, db.First(&got, room.ID).Error)
	assert.Equal(t, 0, got.AvailableCount)
}

func TestMergeLines(t *testing.T) {
	merged := MergeLines([]Line{{RoomID: 2, Quantity: 1}, {RoomID: 1, Quantity: 1}, {RoomID: 2, Quantity: 3}})
	assert.Equal(t, []Line{{RoomID: 2, Quantity: 4}, {RoomID: 1, Quantity: 1}}, merged)
}
