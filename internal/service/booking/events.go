package booking

import (
	"context"
	"strconv"
	"time"

	"github.com/dumeirei/housing-visit-backend/internal/common/logger"
	"github.com/dumeirei/housing-visit-backend/internal/common/metrics"
	"github.com/dumeirei/housing-visit-backend/internal/models"
	"github.com/dumeirei/housing-visit-backend/pkg/kafka"
)

// 预订事件类型
const (
	EventBookingCreated   = "booking.created"
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCancelled = "booking.cancelled"
	EventBookingsExpired  = "booking.expired"
)

// BookingEvent 预订事件内容
type BookingEvent struct {
	BookingID      int64      `json:"booking_id"`
	BookingNo      string     `json:"booking_no"`
	VisitID        int64      `json:"visit_id"`
	PropertyID     int64      `json:"property_id"`
	UserID         int64      `json:"user_id"`
	Status         string     `json:"status"`
	PaymentAmount  int64      `json:"payment_amount"`
	DiscountAmount int64      `json:"discount_amount"`
	PaidAmount     int64      `json:"paid_amount"`
	ReferrerID     *int64     `json:"referrer_id,omitempty"`
	Validity       *time.Time `json:"validity,omitempty"`
}

// SweepEvent 批量过期事件内容
type SweepEvent struct {
	Count   int64     `json:"count"`
	SweptAt time.Time `json:"swept_at"`
}

// eventPublisher 事件在事务提交后发布，失败只记录日志
type eventPublisher struct {
	pub   kafka.Publisher
	topic string
}

func newEventPublisher(pub kafka.Publisher, topic string) *eventPublisher {
	if pub == nil {
		pub = kafka.NopPublisher{}
	}
	return &eventPublisher{pub: pub, topic: topic}
}

func (p *eventPublisher) booking(ctx context.Context, eventType string, b *models.Booking, at time.Time) {
	p.publish(ctx, eventType, strconv.FormatInt(b.ID, 10), &BookingEvent{
		BookingID:      b.ID,
		BookingNo:      b.BookingNo,
		VisitID:        b.VisitID,
		PropertyID:     b.PropertyID,
		UserID:         b.UserID,
		Status:         b.Status,
		PaymentAmount:  b.PaymentAmount,
		DiscountAmount: b.DiscountAmount,
		PaidAmount:     b.PaidAmount,
		ReferrerID:     b.ReferrerID,
		Validity:       b.Validity,
	}, at)
}

func (p *eventPublisher) publish(ctx context.Context, eventType, key string, data interface{}, at time.Time) {
	err := p.pub.Publish(context.WithoutCancel(ctx), p.topic, key, &kafka.Event{
		Type:       eventType,
		OccurredAt: at,
		Data:       data,
	})
	metrics.RecordEvent(eventType, err == nil)
	if err != nil {
		logger.Warn("发布预订事件失败",
			logger.Module("booking"),
			logger.Action(eventType),
			logger.String("key", key),
			logger.Err(err),
		)
	}
}
