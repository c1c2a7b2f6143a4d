package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// 推送消息类型
const (
	MsgTypeVisitAssigned = "visit_assigned"
)

// PushMessage 员工 App 推送消息
type PushMessage struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// NewPushMessage 创建推送消息
func NewPushMessage(msgType string, data interface{}) *PushMessage {
	return &PushMessage{
		Type:      msgType,
		Timestamp: time.Now().Unix(),
		Data:      data,
	}
}

// EmployeeTopic 员工个人推送主题
func EmployeeTopic(prefix string, employeeID int64) string {
	return fmt.Sprintf("%semployees/%d/tasks", prefix, employeeID)
}

// MemoryPublisher 内存发布器（用于测试）
type MemoryPublisher struct {
	mu        sync.Mutex
	published []Published
	Err       error
}

// Published 已发布的消息
type Published struct {
	Topic   string
	Payload interface{}
}

// Publish 记录消息
func (p *MemoryPublisher) Publish(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.published = append(p.published, Published{Topic: topic, Payload: payload})
	return nil
}

// Messages 返回已发布的消息
func (p *MemoryPublisher) Messages() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Published, len(p.published))
	copy(out, p.published)
	return out
}
