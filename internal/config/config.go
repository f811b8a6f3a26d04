package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	ProfitSettled     string `mapstructure:"profit_settled"`
	RankRewardClaimed string `mapstructure:"rank_reward_claimed"`
}

type BusinessConfig struct {
	// AccrualCrons 日收益发放的定时表达式，默认早晚各一次互为兜底，
	// 防重复发放由 profit_record 幂等屏障保证，与触发次数无关
	AccrualCrons          []string  `mapstructure:"accrual_crons"`
	AccrualBatchSize      int       `mapstructure:"accrual_batch_size"`
	TurnoverDepthCap      int       `mapstructure:"turnover_depth_cap"`       // 团队业绩递归层数上限
	TurnoverCacheTTLMin   int       `mapstructure:"turnover_cache_ttl_min"`   // 业绩缓存 TTL（分钟）
	ReferralBonusPercents []float64 `mapstructure:"referral_bonus_percents"`  // 逐级推荐奖励百分比，自直接上级起
	MaxRetryCount         int       `mapstructure:"max_retry_count"`
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	applyDefaults(config)

	GlobalConfig = config
	return config
}

func applyDefaults(c *Config) {
	if len(c.Business.AccrualCrons) == 0 {
		c.Business.AccrualCrons = []string{"0 9 * * *", "0 21 * * *"}
	}
	if c.Business.AccrualBatchSize <= 0 {
		c.Business.AccrualBatchSize = 200
	}
	if c.Business.TurnoverDepthCap <= 0 {
		c.Business.TurnoverDepthCap = 10
	}
	if c.Business.TurnoverCacheTTLMin <= 0 {
		c.Business.TurnoverCacheTTLMin = 5
	}
	if c.Business.MaxRetryCount <= 0 {
		c.Business.MaxRetryCount = 3
	}
}
