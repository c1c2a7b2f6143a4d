// Package mqtt 提供 MQTT 客户端封装，用于向员工 App 推送任务
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Config MQTT 配置
type Config struct {
	Broker         string // 形如 tcp://localhost:1883
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	KeepAlive      int
	ConnectTimeout int
	AutoReconnect  bool
}

// Publisher 消息发布接口
type Publisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

// Client MQTT 客户端
type Client struct {
	config *Config
	client mqtt.Client
	log    *zap.Logger
}

// NewClient 创建 MQTT 客户端
func NewClient(config *Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{config: config, log: log}
}

// Connect 连接 MQTT Broker
func (c *Client) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(time.Duration(c.config.KeepAlive) * time.Second)
	opts.SetConnectTimeout(time.Duration(c.config.ConnectTimeout) * time.Second)
	opts.SetAutoReconnect(c.config.AutoReconnect)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		c.log.Info("MQTT connected", zap.String("broker", c.config.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.log.Warn("MQTT connection lost", zap.Error(err))
	})

	c.client = mqtt.NewClient(opts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect error: %w", token.Error())
	}
	return nil
}

// Disconnect 断开连接
func (c *Client) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}

// IsConnected 检查是否已连接
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

// Publish 发布消息，ctx 取消时不再等待 broker 确认
func (c *Client) Publish(ctx context.Context, topic string, payload interface{}) error {
	if !c.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	data, err := encodePayload(payload)
	if err != nil {
		return err
	}

	token := c.client.Publish(topic, c.config.QoS, false, data)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("mqtt publish error: %w", token.Error())
		}
		return nil
	}
}

func encodePayload(payload interface{}) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("mqtt marshal payload error: %w", err)
		}
		return data, nil
	}
}
