//go:build integration

package booking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dumeirei/housing-visit-backend/internal/common/cache"
	"github.com/dumeirei/housing-visit-backend/internal/common/database"
	"github.com/dumeirei/housing-visit-backend/internal/common/errors"
	"github.com/dumeirei/housing-visit-backend/internal/models"
	"github.com/dumeirei/housing-visit-backend/internal/repository"
	"github.com/dumeirei/housing-visit-backend/internal/service/inventory"
	"github.com/dumeirei/housing-visit-backend/internal/service/referral"
	"github.com/dumeirei/housing-visit-backend/pkg/kafka"
)

func startPostgres(t *testing.T) *gorm.DB {
	ctx := context.Background()
	container, err := tcPostgres.Run(ctx, "postgres:15-alpine",
		tcPostgres.WithDatabase("housing_test"),
		tcPostgres.WithUsername("test_user"),
		tcPostgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(20)
	require.NoError(t, database.Migrate(db))
	return db
}

func startRedis(t *testing.T) *redis.Client {
	ctx := context.Background()
	container, err := tcRedis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())
	return rdb
}

func TestPostgres_ConcurrentBookingNeverOversells(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := startPostgres(t)
	ctx := context.Background()

	owner := &models.User{Name: "房东", Role: models.RolePropertyOwner}
	require.NoError(t, db.Create(owner).Error)
	property := &models.Property{Name: "阳光公寓", OwnerID: owner.ID, Status: models.PropertyStatusAvailable}
	require.NoError(t, db.Create(property).Error)

	const capacity, workers = 5, 40
	room := &models.Room{PropertyID: property.ID, OccupancyType: models.OccupancyDouble, NumberOfBeds: 2, Rent: 150000, TotalCount: capacity, AvailableCount: capacity}
	require.NoError(t, db.Create(room).Error)

	completedAt := testNow.Add(-time.Hour)
	visits := make([]*models.Visit, workers)
	for i := range visits {
		u := &models.User{Name: fmt.Sprintf("访客%d", i), Role: models.RoleUser}
		require.NoError(t, db.Create(u).Error)
		visits[i] = &models.Visit{PropertyID: property.ID, UserID: u.ID, Status: models.VisitStatusCompleted, CompletedAt: &completedAt}
		require.NoError(t, db.Create(visits[i]).Error)
	}

	userRepo := repository.NewUserRepository(db)
	svc := NewBookingService(
		db,
		repository.NewVisitRepository(db),
		repository.NewBookingRepository(db),
		repository.NewRoomRepository(db),
		userRepo,
		inventory.NewGormLedger(db),
		referral.NewCouponService(userRepo, testDiscount),
		&kafka.MemoryPublisher{},
		nil,
		Options{BookingWindow: 7 * 24 * time.Hour, EventTopic: testTopic},
	)
	svc.SetClock(func() time.Time { return testNow })

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for _, v := range visits {
		wg.Add(1)
		go func(v *models.Visit) {
			defer wg.Done()
			_, err := svc.CreateBooking(ctx, models.Actor{UserID: v.UserID, Role: models.RoleUser}, &CreateBookingRequest{
				VisitID: v.ID,
				Rooms:   []inventory.Line{{RoomID: room.ID, Quantity: 1}},
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				success++
				return
			}
			assert.Equal(t, errors.KindInsufficientInventory, errors.KindOf(err))
		}(v)
	}
	wg.Wait()

	assert.Equal(t, capacity, success)

	var stored models.Room
	require.NoError(t, db.First(&stored, room.ID).Error)
	assert.Equal(t, 0, stored.AvailableCount)

	var booked int64
	require.NoError(t, db.Model(&models.BookingRoom{}).Where("room_id = ?", room.ID).Select("COALESCE(SUM(quantity), 0)").Scan(&booked).Error)
	assert.Equal(t, int64(capacity), booked)
}

func TestRedis_SweepLockIsExclusive(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	store := cache.NewStore(startRedis(t))
	ctx := context.Background()

	lock, err := store.TryLock(ctx, "sweep_expired_bookings", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lock)

	again, err := store.TryLock(ctx, "sweep_expired_bookings", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, again)

	require.NoError(t, lock.Unlock(ctx))
	again, err = store.TryLock(ctx, "sweep_expired_bookings", time.Minute)
	require.NoError(t, err)
	assert.NotNil(t, again)
}
