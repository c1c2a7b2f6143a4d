// Package referral 提供推荐码优惠解析
package referral

import (
	"context"
	stderrors "errors"
	"strings"

	"gorm.io/gorm"

	"github.com/dumeirei/housing-visit-backend/internal/common/errors"
	"github.com/dumeirei/housing-visit-backend/internal/repository"
)

// Coupon 解析后的推荐优惠
type Coupon struct {
	Code       string `json:"code"`
	ReferrerID int64  `json:"referrer_id"`
	Discount   int64  `json:"discount"` // 单位：分
}

// CouponService 推荐码解析服务，只读不写
type CouponService struct {
	userRepo *repository.UserRepository
	discount int64
}

// NewCouponService 创建推荐码解析服务
func NewCouponService(userRepo *repository.UserRepository, discount int64) *CouponService {
	return &CouponService{
		userRepo: userRepo,
		discount: discount,
	}
}

// Resolve 解析推荐码
// 空码返回 (nil, nil)；推荐码去掉首尾空白后按原样精确匹配
// 未知推荐码或推荐人为付款人本人返回 ErrInvalidCoupon 类错误
func (s *CouponService) Resolve(ctx context.Context, code string, payerID int64) (*Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}

	referrer, err := s.userRepo.GetByReferralCode(ctx, code)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrInvalidCoupon
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	if referrer.ID == payerID {
		return nil, errors.ErrSelfReferral
	}

	return &Coupon{
		Code:       *referrer.ReferralCode,
		ReferrerID: referrer.ID,
		Discount:   s.discount,
	}, nil
}

// Apply 计算优惠后的实付金额，优惠不超过应付金额
func (c *Coupon) Apply(payment int64) (discount, paid int64) {
	if c == nil {
		return 0, payment
	}
	discount = c.Discount
	if discount > payment {
		discount = payment
	}
	if discount < 0 {
		discount = 0
	}
	return discount, payment - discount
}
