package booking

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnitOfWork_RollbackReverseOrder(t *testing.T) {
	uow := NewUnitOfWork()
	var order []string
	uow.Register("first", func(ctx context.Context) error {
		order = append(order, "first")
		return nil
	})
	uow.Register("second", func(ctx context.Context) error {
		order = append(order, "second")
		return stderrors.New("boom")
	})
	uow.Register("third", func(ctx context.Context) error {
		order = append(order, "third")
		return nil
	})
	assert.Equal(t, 3, uow.Len())

	failed := uow.Rollback(context.Background())
	assert.Equal(t, 1, failed)
	assert.Equal(t, []string{"third", "second", "first"}, order)

	// 再次回滚不重复执行
	assert.Equal(t, 0, uow.Rollback(context.Background()))
	assert.Len(t, order, 3)
}

func TestUnitOfWork_RollbackIgnoresCancellation(t *testing.T) {
	uow := NewUnitOfWork()
	var seen error
	uow.Register("release", func(ctx context.Context) error {
		seen = ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	uow.Rollback(ctx)
	assert.NoError(t, seen)
}

func TestUnitOfWork_CompleteDropsCompensations(t *testing.T) {
	uow := NewUnitOfWork()
	called := false
	uow.Register("release", func(ctx context.Context) error {
		called = true
		return nil
	})

	uow.Complete()
	assert.Equal(t, 0, uow.Len())
	assert.Equal(t, 0, uow.Rollback(context.Background()))
	assert.False(t, called)
}
