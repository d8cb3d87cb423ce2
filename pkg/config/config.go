package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Network   NetworkConfig   `mapstructure:"network"`
	Fee       FeeConfig       `mapstructure:"fee"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Nonce     NonceConfig     `mapstructure:"nonce"`
	Session   SessionConfig   `mapstructure:"session"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	MQType   string `mapstructure:"mq_type"` // "redis" or "kafka"
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type WalletConfig struct {
	KeystorePath string `mapstructure:"keystore_path"`
	Password     string `mapstructure:"password"` // 通常通过环境变量 WALLET_PASSWORD 传入
}

// NetworkEntry 对应一个可选网络 (mainnet / testnet / devnet ...)
type NetworkEntry struct {
	URL     string `mapstructure:"url"`
	ChainID uint32 `mapstructure:"chain_id"`
}

type NetworkConfig struct {
	Active   string                  `mapstructure:"active"`
	Networks map[string]NetworkEntry `mapstructure:"networks"`
}

type FeeConfig struct {
	Rate              int64   `mapstructure:"rate"` // micro-STX per byte
	BumpMultiplier    float64 `mapstructure:"bump_multiplier"`
	WarningMultiplier int64   `mapstructure:"warning_multiplier"`
}

type BroadcastConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Topic   string        `mapstructure:"topic"`
}

type NonceConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type SessionConfig struct {
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
	FetchRetries int           `mapstructure:"fetch_retries"`
	RetryBase    time.Duration `mapstructure:"retry_base"`
}

var Global Config

func Init() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// 环境变量设置
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Warning: Config file not found, using defaults and environment variables")
		} else {
			log.Fatalf("Fatal error config file: %s \n", err)
		}
	}

	if err := viper.Unmarshal(&Global); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	log.Printf("Configuration loaded successfully. Env: %s, Network: %s", Global.App.Env, Global.Network.Active)
}

func setDefaults() {
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.http_port", "8080")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.user", "wallet_user")
	viper.SetDefault("db.password", "wallet_password")
	viper.SetDefault("db.name", "wallet_db")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.mq_type", "redis")

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topic", "wallet_events_tx_response")

	viper.SetDefault("wallet.keystore_path", "wallet.json")

	viper.SetDefault("network.active", "mainnet")
	viper.SetDefault("network.networks", map[string]any{
		"mainnet": map[string]any{"url": "https://stacks-node-api.mainnet.stacks.co", "chain_id": 0x00000001},
		"testnet": map[string]any{"url": "https://stacks-node-api.testnet.stacks.co", "chain_id": 0x80000000},
	})

	viper.SetDefault("fee.rate", 1)
	viper.SetDefault("fee.bump_multiplier", 1.5)
	viper.SetDefault("fee.warning_multiplier", 4)

	// fetchWithTimeout 默认 8 秒
	viper.SetDefault("broadcast.timeout", 8*time.Second)
	viper.SetDefault("broadcast.topic", "wallet_events_tx_response")

	viper.SetDefault("nonce.cache_ttl", 5*time.Minute)
	viper.SetDefault("session.lock_ttl", 10*time.Minute)
	viper.SetDefault("session.fetch_retries", 2)
	viper.SetDefault("session.retry_base", 250*time.Millisecond)
}
