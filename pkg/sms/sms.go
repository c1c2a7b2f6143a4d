// Package sms 提供短信服务
package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	dysmsapi "github.com/alibabacloud-go/dysmsapi-20170525/v3/client"
	"github.com/alibabacloud-go/tea/tea"
)

// 模板名称，实际模板编码由配置映射
const (
	TemplateVisitAssigned    = "visit_assigned"
	TemplateBookingCreated   = "booking_created"
	TemplateBookingConfirmed = "booking_confirmed"
)

// Sender 短信发送接口
type Sender interface {
	Send(ctx context.Context, phone, template string, params map[string]string) error
}

// AliyunConfig 阿里云短信配置
type AliyunConfig struct {
	AccessKeyID     string
	AccessKeySecret string
	SignName        string
	RegionID        string // 默认 cn-hangzhou
	Templates       map[string]string
}

// AliyunSender 阿里云短信发送器
type AliyunSender struct {
	client    *dysmsapi.Client
	signName  string
	templates map[string]string
}

// NewAliyunSender 创建阿里云短信发送器
func NewAliyunSender(cfg *AliyunConfig) (*AliyunSender, error) {
	regionID := cfg.RegionID
	if regionID == "" {
		regionID = "cn-hangzhou"
	}

	client, err := dysmsapi.NewClient(&openapi.Config{
		AccessKeyId:     tea.String(cfg.AccessKeyID),
		AccessKeySecret: tea.String(cfg.AccessKeySecret),
		RegionId:        tea.String(regionID),
		Endpoint:        tea.String("dysmsapi.aliyuncs.com"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sms client: %w", err)
	}

	templates := make(map[string]string, len(cfg.Templates))
	for k, v := range cfg.Templates {
		templates[k] = v
	}

	return &AliyunSender{
		client:    client,
		signName:  cfg.SignName,
		templates: templates,
	}, nil
}

// Send 发送短信，template 为模板名称
func (s *AliyunSender) Send(ctx context.Context, phone, template string, params map[string]string) error {
	templateCode, ok := s.templates[template]
	if !ok {
		return fmt.Errorf("sms template %q not configured", template)
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal sms params: %w", err)
	}

	resp, err := s.client.SendSms(&dysmsapi.SendSmsRequest{
		PhoneNumbers:  tea.String(phone),
		SignName:      tea.String(s.signName),
		TemplateCode:  tea.String(templateCode),
		TemplateParam: tea.String(string(paramsJSON)),
	})
	if err != nil {
		return fmt.Errorf("failed to send sms: %w", err)
	}

	if resp.Body == nil || resp.Body.Code == nil || *resp.Body.Code != "OK" {
		msg := "unknown error"
		if resp.Body != nil && resp.Body.Message != nil {
			msg = *resp.Body.Message
		}
		return fmt.Errorf("sms send failed: %s", msg)
	}
	return nil
}

// MockSender 模拟短信发送器（用于开发/测试）
type MockSender struct {
	mu       sync.Mutex
	messages []MockMessage
	Err      error
}

// MockMessage 模拟消息
type MockMessage struct {
	Phone    string
	Template string
	Params   map[string]string
	SentAt   time.Time
}

// NewMockSender 创建模拟发送器
func NewMockSender() *MockSender {
	return &MockSender{}
}

// Send 模拟发送
func (s *MockSender) Send(_ context.Context, phone, template string, params map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.messages = append(s.messages, MockMessage{
		Phone:    phone,
		Template: template,
		Params:   params,
		SentAt:   time.Now(),
	})
	return nil
}

// Messages 已发送消息
func (s *MockSender) Messages() []MockMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MockMessage, len(s.messages))
	copy(out, s.messages)
	return out
}
