// Package utils 通用工具函数单元测试
package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==================== GenerateOrderNo 测试 ====================

func TestGenerateOrderNo(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 30, 15, 0, time.UTC)

	for _, prefix := range []string{"B", "V", ""} {
		t.Run("prefix_"+prefix, func(t *testing.T) {
			no := GenerateOrderNo(prefix, now)
			assert.True(t, strings.HasPrefix(no, prefix+"20260301093015"))
			// 前缀 + 14位时间戳 + 6位随机数
			assert.Len(t, no, len(prefix)+20)
		})
	}
}

func TestGenerateRandomNumber(t *testing.T) {
	for _, length := range []int{4, 6, 10} {
		number := GenerateRandomNumber(length)
		assert.Len(t, number, length)
		for _, c := range number {
			assert.True(t, c >= '0' && c <= '9')
		}
	}
	assert.Empty(t, GenerateRandomNumber(0))
}

// ==================== EndOfDay 测试 ====================

func TestEndOfDay(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	tests := []struct {
		name string
		in   time.Time
		loc  *time.Location
		want time.Time
	}{
		{
			name: "UTC当天",
			in:   time.Date(2026, 3, 31, 8, 0, 0, 0, time.UTC),
			loc:  time.UTC,
			want: time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC),
		},
		{
			name: "跨时区进入次日",
			in:   time.Date(2026, 3, 31, 20, 0, 0, 0, time.UTC),
			loc:  kolkata,
			want: time.Date(2026, 4, 1, 23, 59, 59, 0, kolkata),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EndOfDay(tt.in, tt.loc)
			assert.True(t, got.Equal(tt.want), "got %s want %s", got, tt.want)
		})
	}
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "0.00", FormatMoney(0))
	assert.Equal(t, "500.00", FormatMoney(50000))
	assert.Equal(t, "12.34", FormatMoney(1234))
}

// ==================== 指针与切片工具 ====================

func TestSafeString(t *testing.T) {
	s := "x"
	assert.Equal(t, "", SafeString(nil))
	assert.Equal(t, "x", SafeString(&s))
}

func TestContains(t *testing.T) {
	assert.True(t, Contains([]string{"CONFIRMED", "DELAYED"}, "DELAYED"))
	assert.False(t, Contains([]int64{1, 2}, 3))
}

func TestPagination(t *testing.T) {
	p := &Pagination{Page: 0, PageSize: 500, Total: 201}
	p.Normalize()
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 100, p.PageSize)
	assert.Equal(t, 3, p.GetTotalPages())

	p = &Pagination{}
	p.Normalize()
	assert.Equal(t, 20, p.PageSize)
	assert.Equal(t, 0, p.GetTotalPages())
}
