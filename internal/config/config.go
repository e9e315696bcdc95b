package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Lock     LockConfig     `mapstructure:"lock"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin 模式：debug / release / test
}

type LogConfig struct {
	Level string `mapstructure:"level"` // debug / info / warn / error
}

// DatabaseConfig 数据库配置，driver 支持 mysql、postgres 与 sqlite（database 为文件路径，仅用于单机开发）
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogSQL       bool   `mapstructure:"log_sql"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	Notification string `mapstructure:"notification"`
}

// LockConfig 账户锁配置
//
//	memory: 进程内分段互斥锁（单实例）
//	redis:  基于 SETNX 的分布式锁（多实例）
//	none:   仅依赖数据库行锁
type LockConfig struct {
	Driver        string        `mapstructure:"driver"`
	TTL           time.Duration `mapstructure:"ttl"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	MaxRetries    int           `mapstructure:"max_retries"`
}

type BusinessConfig struct {
	DefaultCreditLimit float64 `mapstructure:"default_credit_limit"`
	ReminderThreshold  float64 `mapstructure:"reminder_threshold"`
	DangerThreshold    float64 `mapstructure:"danger_threshold"`
	StaleOrderMinutes  int     `mapstructure:"stale_order_minutes"`
	SweepCron          string  `mapstructure:"sweep_cron"`
	MaxRetryCount      int     `mapstructure:"max_retry_count"`
}

var GlobalConfig *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.database", "breakfast")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic.notification", "breakfast-notification")

	v.SetDefault("lock.driver", "memory")
	v.SetDefault("lock.ttl", 10*time.Second)
	v.SetDefault("lock.retry_interval", 50*time.Millisecond)
	v.SetDefault("lock.max_retries", 100)

	v.SetDefault("business.default_credit_limit", 0)
	v.SetDefault("business.reminder_threshold", 25)
	v.SetDefault("business.danger_threshold", 3)
	v.SetDefault("business.stale_order_minutes", 30)
	v.SetDefault("business.sweep_cron", "@hourly")
	v.SetDefault("business.max_retry_count", 5)
}

// Load 加载配置文件，configPath 为空时只使用默认值和环境变量
//
// 环境变量前缀 BREAKFAST，例如 BREAKFAST_DATABASE_HOST
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BREAKFAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	GlobalConfig = config
	return config, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("不支持的数据库驱动: %s", c.Database.Driver)
	}
	switch c.Lock.Driver {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("不支持的锁驱动: %s", c.Lock.Driver)
	}
	if c.Business.DefaultCreditLimit < 0 {
		return fmt.Errorf("default_credit_limit 不能为负数")
	}
	if c.Business.DangerThreshold > c.Business.ReminderThreshold {
		return fmt.Errorf("danger_threshold 不能大于 reminder_threshold")
	}
	return nil
}
