// Package notify 提供看房与预订的消息通知
// 通知均为尽力而为：发送失败只记录日志和指标，不影响业务结果
package notify

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dumeirei/housing-visit-backend/internal/common/logger"
	"github.com/dumeirei/housing-visit-backend/internal/common/metrics"
	"github.com/dumeirei/housing-visit-backend/internal/common/utils"
	"github.com/dumeirei/housing-visit-backend/internal/models"
	"github.com/dumeirei/housing-visit-backend/pkg/mqtt"
	"github.com/dumeirei/housing-visit-backend/pkg/sms"
)

// 通知渠道
const (
	ChannelSMS  = "sms"
	ChannelPush = "push"
)

const sendTimeout = 5 * time.Second

// Notifier 通知服务
type Notifier struct {
	sms         sms.Sender
	push        mqtt.Publisher
	topicPrefix string
}

// NewNotifier 创建通知服务，sender 或 publisher 为 nil 时跳过对应渠道
func NewNotifier(sender sms.Sender, publisher mqtt.Publisher, topicPrefix string) *Notifier {
	return &Notifier{
		sms:         sender,
		push:        publisher,
		topicPrefix: topicPrefix,
	}
}

// VisitAssignedPayload 员工 App 收到的任务
type VisitAssignedPayload struct {
	VisitID     int64      `json:"visit_id"`
	PropertyID  int64      `json:"property_id"`
	UserID      int64      `json:"user_id"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// VisitAssigned 通知员工新的看房任务，并短信告知访客看房时间
func (n *Notifier) VisitAssigned(ctx context.Context, visit *models.Visit, employee, visitor *models.User) {
	if n == nil || visit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	if n.push != nil && employee != nil {
		msg := mqtt.NewPushMessage(mqtt.MsgTypeVisitAssigned, &VisitAssignedPayload{
			VisitID:     visit.ID,
			PropertyID:  visit.PropertyID,
			UserID:      visit.UserID,
			ScheduledAt: visit.ScheduledAt,
		})
		err := n.push.Publish(ctx, mqtt.EmployeeTopic(n.topicPrefix, employee.ID), msg)
		n.record(ChannelPush, "visit_assigned", err, logger.VisitID(visit.ID), logger.UserID(employee.ID))
	}

	if visitor == nil {
		return
	}
	if phone := utils.SafeString(visitor.Phone); phone != "" {
		params := map[string]string{"visit_id": strconv.FormatInt(visit.ID, 10)}
		if visit.ScheduledAt != nil {
			params["time"] = visit.ScheduledAt.Format("2006-01-02 15:04")
		}
		if employee != nil {
			params["employee"] = employee.Name
		}
		n.sendSMS(ctx, phone, sms.TemplateVisitAssigned, params, logger.VisitID(visit.ID))
	}
}

// BookingCreated 短信告知预订已提交
func (n *Notifier) BookingCreated(ctx context.Context, booking *models.Booking, user *models.User) {
	n.bookingSMS(ctx, sms.TemplateBookingCreated, booking, user)
}

// BookingConfirmed 短信告知预订已生效及有效期
func (n *Notifier) BookingConfirmed(ctx context.Context, booking *models.Booking, user *models.User) {
	n.bookingSMS(ctx, sms.TemplateBookingConfirmed, booking, user)
}

func (n *Notifier) bookingSMS(ctx context.Context, template string, booking *models.Booking, user *models.User) {
	if n == nil || booking == nil || user == nil {
		return
	}
	phone := utils.SafeString(user.Phone)
	if phone == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	params := map[string]string{
		"booking_no": booking.BookingNo,
		"amount":     utils.FormatMoney(booking.PaidAmount),
	}
	if booking.Validity != nil {
		params["validity"] = booking.Validity.Format("2006-01-02")
	}
	n.sendSMS(ctx, phone, template, params, logger.BookingID(booking.ID))
}

func (n *Notifier) sendSMS(ctx context.Context, phone, template string, params map[string]string, field zap.Field) {
	if n.sms == nil {
		return
	}
	err := n.sms.Send(ctx, phone, template, params)
	n.record(ChannelSMS, template, err, field)
}

func (n *Notifier) record(channel, action string, err error, fields ...zap.Field) {
	metrics.RecordNotification(channel, err == nil)
	if err == nil {
		return
	}
	fields = append(fields, logger.Module("notify"), logger.Action(action), logger.String("channel", channel), logger.Err(err))
	logger.Warn("发送通知失败", fields...)
}
