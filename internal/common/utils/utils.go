// Package utils 提供通用工具函数
package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// GenerateOrderNo 生成业务单号
// 格式: 前缀 + 年月日时分秒 + 6位随机数
func GenerateOrderNo(prefix string, now time.Time) string {
	timestamp := now.Format("20060102150405")
	random := GenerateRandomNumber(6)
	return fmt.Sprintf("%s%s%s", prefix, timestamp, random)
}

// GenerateRandomNumber 生成指定长度的随机数字字符串
func GenerateRandomNumber(length int) string {
	var result strings.Builder
	for i := 0; i < length; i++ {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		result.WriteString(strconv.Itoa(int(n.Int64())))
	}
	return result.String()
}

// EndOfDay 返回 t 在 loc 时区当天的最后一秒
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, loc)
}

// FormatMoney 格式化金额（分转元）
func FormatMoney(cents int64) string {
	return fmt.Sprintf("%.2f", float64(cents)/100)
}

// SafeString 安全获取字符串指针的值
func SafeString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Contains 判断切片是否包含元素
func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// Pagination 分页参数
type Pagination struct {
	Page     int   `json:"page" form:"page"`
	PageSize int   `json:"page_size" form:"page_size"`
	Total    int64 `json:"total"`
}

// Normalize 规范化分页参数
func (p *Pagination) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
}

// GetTotalPages 获取总页数
func (p *Pagination) GetTotalPages() int {
	if p.Total == 0 || p.PageSize == 0 {
		return 0
	}
	pages := int(p.Total) / p.PageSize
	if int(p.Total)%p.PageSize > 0 {
		pages++
	}
	return pages
}
