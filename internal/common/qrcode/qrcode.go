// Package qrcode 提供预订核验二维码生成与解析
package qrcode

import (
	"strings"

	"github.com/skip2/go-qrcode"
)

// BookingScheme 预订核验二维码内容前缀，业主扫码后按预订号查询
const BookingScheme = "housing://booking/"

const defaultSize = 256

// Generator 二维码生成器，纠错级别固定为 15%
type Generator struct {
	size int // 二维码尺寸（像素）
}

// Option 生成器选项
type Option func(*Generator)

// WithSize 设置二维码尺寸，非正数时保持默认
func WithSize(size int) Option {
	return func(g *Generator) {
		if size > 0 {
			g.size = size
		}
	}
}

// NewGenerator 创建二维码生成器
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{size: defaultSize}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GeneratePNG 生成 PNG 格式二维码
func (g *Generator) GeneratePNG(content string) ([]byte, error) {
	return qrcode.Encode(content, qrcode.Medium, g.size)
}

// BookingContent 预订核验二维码内容
func BookingContent(bookingNo string) string {
	return BookingScheme + bookingNo
}

// ParseBookingContent 解析扫码内容中的预订号
// 扫码枪可能带上首尾空白或换行
func ParseBookingContent(content string) (string, bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, BookingScheme) {
		return "", false
	}
	no := strings.TrimPrefix(content, BookingScheme)
	return no, no != ""
}
