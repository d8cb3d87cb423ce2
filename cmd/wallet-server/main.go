package main

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"wallet-pipeline/internal/handler"
	"wallet-pipeline/internal/model"
	"wallet-pipeline/internal/network"
	"wallet-pipeline/internal/node"
	"wallet-pipeline/internal/origin"
	"wallet-pipeline/internal/server"
	"wallet-pipeline/internal/service/broadcast"
	"wallet-pipeline/internal/service/fee"
	"wallet-pipeline/internal/service/mq"
	"wallet-pipeline/internal/service/nonce"
	"wallet-pipeline/internal/service/session"
	"wallet-pipeline/pkg/cache"
	"wallet-pipeline/pkg/config"
	"wallet-pipeline/pkg/database"
	"wallet-pipeline/pkg/keystore"
	"wallet-pipeline/pkg/logger"
	"wallet-pipeline/pkg/utils/lock"
)

const streamMaxLen = 10000

func main() {
	// 0. 初始化 Config
	config.Init()
	cfg := &config.Global

	// 1. 初始化 Logger
	logger.Init(cfg.App.Env)
	defer logger.Sync()

	ctx := context.Background()

	// 2. 连接 Redis
	rdb, err := database.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Redis 连接失败", zap.Error(err))
	}
	defer rdb.Close()

	// 3. 会话日志: 配置了数据库则写 Postgres，否则内存
	journal := openJournal(cfg)

	// 4. 解锁钱包
	keyJSON, err := keystore.LoadFromFile(cfg.Wallet.KeystorePath)
	if err != nil {
		logger.Fatal("加载 keystore 失败", zap.String("path", cfg.Wallet.KeystorePath), zap.Error(err))
	}
	keys := keystore.NewProvider(keyJSON)
	if err := keys.Unlock(cfg.Wallet.Password); err != nil {
		logger.Fatal("解锁 keystore 失败", zap.Error(err))
	}
	defer keys.Lock()

	// 5. 消息队列: 结果回传给来源 app
	producer, closeProducer := newProducer(cfg, rdb)
	defer closeProducer()

	// 6. 流水线组件
	nodes := node.NewPool(cfg.Broadcast.Timeout)
	nonceCache := cache.NewMultiLevelCache(
		cache.NewMemoryCache(cfg.Nonce.CacheTTL, 2*cfg.Nonce.CacheTTL),
		cache.NewRedisCache(rdb, cache.NamespaceNonce),
	)
	reconciler := nonce.NewReconciler(nodes, nonceCache, cfg.Nonce.CacheTTL)
	origins := origin.NewRedisStore(rdb, cfg.Session.LockTTL)
	coordinator := broadcast.NewCoordinator(nodes, reconciler, origins, producer, cfg.Broadcast.Topic, cfg.Broadcast.Timeout)

	pipeline := session.NewPipeline(session.Options{
		Registry:     network.FromConfig(cfg.Network),
		Nodes:        nodes,
		Nonces:       reconciler,
		Fees:         fee.FromConfig(cfg.Fee),
		Keys:         keys,
		Coordinator:  coordinator,
		Guard:        lock.NewRedisLock(rdb),
		LockTTL:      cfg.Session.LockTTL,
		Journal:      journal,
		FetchRetries: cfg.Session.FetchRetries,
		RetryBase:    cfg.Session.RetryBase,
	})

	// 7. HTTP
	r := server.NewHTTPRouter(handler.NewSessionHandler(pipeline, origins))
	app := server.New(server.Config{HttpPort: cfg.App.HttpPort}, r)
	app.OnShutdown(func(ctx context.Context) {
		// 释放全局会话锁，避免重启后等待 TTL
		_ = lock.NewRedisLock(rdb).Release(ctx, session.GuardKey)
	})
	app.Run()
}

func openJournal(cfg *config.Config) session.Journal {
	if cfg.DB.Host == "" {
		logger.Warn("未配置数据库，会话日志仅保存在内存中")
		return session.NewMemoryJournal()
	}
	db, err := database.ConnectPostgres(database.DSN(cfg.DB), cfg.App.Env == "development")
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	if cfg.App.Env == "development" {
		logger.Info("开发环境: 自动迁移 Schema (GORM AutoMigrate)")
		if err := db.AutoMigrate(model.AllModels()...); err != nil {
			logger.Fatal("数据库自动迁移失败", zap.Error(err))
		}
	} else {
		logger.Info("生产环境: 跳过 AutoMigrate，请使用 migrate 工具管理 Schema")
	}
	return session.NewGormJournal(db)
}

func newProducer(cfg *config.Config, rdb *redis.Client) (mq.Producer, func()) {
	if cfg.Redis.MQType == "kafka" {
		logger.Info("使用 Kafka 作为消息队列", zap.Strings("brokers", cfg.Kafka.Brokers))
		p := mq.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		return p, func() {
			if err := p.Close(); err != nil {
				logger.Warn("关闭 Kafka producer", zap.Error(err))
			}
		}
	}
	logger.Info("使用 Redis Streams 作为消息队列")
	return mq.NewRedisProducer(rdb, streamMaxLen), func() {}
}
