// Package config 提供应用配置管理功能
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	globalConfig *Config
	once         sync.Once
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	SMS      SMSConfig      `mapstructure:"sms"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Business BusinessConfig `mapstructure:"business"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Name            string     `mapstructure:"name"`
	Mode            string     `mapstructure:"mode"`
	Port            int        `mapstructure:"port"`
	ReadTimeout     int        `mapstructure:"read_timeout"`
	WriteTimeout    int        `mapstructure:"write_timeout"`
	ShutdownTimeout int        `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig `mapstructure:"cors"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	// AllowOrigins 允许的源，"*" 表示全部，"https://*.example.com" 匹配子域
	AllowOrigins []string `mapstructure:"allow_origins"`
	MaxAge       int      `mapstructure:"max_age"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Name            string `mapstructure:"name"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	LogMode         bool   `mapstructure:"log_mode"`
	SlowThreshold   int    `mapstructure:"slow_threshold"`
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode, d.Timezone,
	)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  int    `mapstructure:"dial_timeout"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// Addr 返回 Redis 地址
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MQTTConfig MQTT配置（外勤员工 App 推送）
type MQTTConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Broker         string `mapstructure:"broker"`
	ClientIDPrefix string `mapstructure:"client_id_prefix"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	KeepAlive      int    `mapstructure:"keep_alive"`
	AutoReconnect  bool   `mapstructure:"auto_reconnect"`
	ConnectTimeout int    `mapstructure:"connect_timeout"`
	QoS            byte   `mapstructure:"qos"`
	TopicPrefix    string `mapstructure:"topic_prefix"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret            string `mapstructure:"secret"`
	AccessTokenExpire int    `mapstructure:"access_token_expire"`
	Issuer            string `mapstructure:"issuer"`
}

// AccessTokenDuration 返回访问令牌有效期
func (j *JWTConfig) AccessTokenDuration() time.Duration {
	return time.Duration(j.AccessTokenExpire) * time.Hour
}

// SMSConfig 短信配置
type SMSConfig struct {
	Provider        string            `mapstructure:"provider"`
	AccessKeyID     string            `mapstructure:"access_key_id"`
	AccessKeySecret string            `mapstructure:"access_key_secret"`
	SignName        string            `mapstructure:"sign_name"`
	RegionID        string            `mapstructure:"region_id"`
	Templates       map[string]string `mapstructure:"templates"`
}

// KafkaConfig Kafka 领域事件配置
type KafkaConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Brokers      []string `mapstructure:"brokers"`
	BookingTopic string   `mapstructure:"booking_topic"`
	WriteTimeout int      `mapstructure:"write_timeout"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	Caller     bool   `mapstructure:"caller"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// TracingConfig 链路追踪配置
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// BusinessConfig 业务配置
type BusinessConfig struct {
	Visit    VisitConfig    `mapstructure:"visit"`
	Booking  BookingConfig  `mapstructure:"booking"`
	Referral ReferralConfig `mapstructure:"referral"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

// VisitConfig 看房配置
type VisitConfig struct {
	BookingWindowHours     int  `mapstructure:"booking_window_hours"`
	ExpireCompletedEnabled bool `mapstructure:"expire_completed_enabled"`
	ExpireCheckInterval    int  `mapstructure:"expire_check_interval"`
}

// BookingWindow 看房完成后允许下单的时长
func (v *VisitConfig) BookingWindow() time.Duration {
	return time.Duration(v.BookingWindowHours) * time.Hour
}

// BookingConfig 预订配置
type BookingConfig struct {
	ValidityDays  int    `mapstructure:"validity_days"`
	Timezone      string `mapstructure:"timezone"`
	SweepInterval int    `mapstructure:"sweep_interval"`
	QRCodeSize    int    `mapstructure:"qrcode_size"`
}

// Location 返回计算有效期所用时区
func (b *BookingConfig) Location() *time.Location {
	if b.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ReferralConfig 推荐码配置
type ReferralConfig struct {
	// DiscountAmount 固定优惠金额，单位：分
	DiscountAmount int64 `mapstructure:"discount_amount"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	// ValidityTTL 预订有效期缓存时长，单位：秒
	ValidityTTL int `mapstructure:"validity_ttl"`
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	var err error
	once.Do(func() {
		v := viper.New()

		// 设置配置文件路径
		if configPath != "" {
			v.SetConfigFile(configPath)
		} else {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath("./configs")
			v.AddConfigPath(".")
		}

		// 环境变量支持
		v.AutomaticEnv()
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

		setDefaults(v)

		if err = v.ReadInConfig(); err != nil {
			// 如果配置文件不存在，使用默认值
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return
			}
			err = nil
		}

		globalConfig = &Config{}
		if err = v.Unmarshal(globalConfig); err != nil {
			return
		}
	})

	return globalConfig, err
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		globalConfig = Default()
	}
	return globalConfig
}

// Default 返回仅包含默认值的配置（测试常用）
func Default() *Config {
	cfg := &Config{}
	v := viper.New()
	setDefaults(v)
	_ = v.Unmarshal(cfg)
	return cfg
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.name", "housing-visit-backend")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.shutdown_timeout", 10)
	v.SetDefault("server.cors.allow_origins", []string{"*"})
	v.SetDefault("server.cors.max_age", 86400)

	// Database defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "housing")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.timezone", "Asia/Kolkata")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("database.log_mode", false)
	v.SetDefault("database.slow_threshold", 200)
	v.SetDefault("database.auto_migrate", true)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 50)
	v.SetDefault("redis.min_idle_conns", 5)
	v.SetDefault("redis.dial_timeout", 5)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)

	// MQTT defaults
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id_prefix", "housing-visit-")
	v.SetDefault("mqtt.keep_alive", 60)
	v.SetDefault("mqtt.auto_reconnect", true)
	v.SetDefault("mqtt.connect_timeout", 10)
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.topic_prefix", "housing/")

	// JWT defaults
	v.SetDefault("jwt.secret", "your-super-secret-key-change-in-production")
	v.SetDefault("jwt.access_token_expire", 168)
	v.SetDefault("jwt.issuer", "housing-auth")

	// SMS defaults
	v.SetDefault("sms.provider", "mock")
	v.SetDefault("sms.region_id", "cn-hangzhou")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.booking_topic", "housing.bookings")
	v.SetDefault("kafka.write_timeout", 5)

	// Logger defaults
	v.SetDefault("logger.level", "debug")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "./logs/app.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.caller", true)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "housing")
	v.SetDefault("metrics.path", "/metrics")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "housing-visit-backend")
	v.SetDefault("tracing.sample_rate", 1.0)

	// Business defaults
	v.SetDefault("business.visit.booking_window_hours", 7*24)
	v.SetDefault("business.visit.expire_completed_enabled", false)
	v.SetDefault("business.visit.expire_check_interval", 60)
	v.SetDefault("business.booking.validity_days", 30)
	v.SetDefault("business.booking.timezone", "Asia/Kolkata")
	v.SetDefault("business.booking.sweep_interval", 60)
	v.SetDefault("business.booking.qrcode_size", 256)
	v.SetDefault("business.referral.discount_amount", 50000)
	v.SetDefault("business.cache.validity_ttl", 300)
}

// IsDebug 是否为调试模式
func (c *Config) IsDebug() bool {
	return c.Server.Mode == "debug"
}

// IsRelease 是否为发布模式
func (c *Config) IsRelease() bool {
	return c.Server.Mode == "release"
}
