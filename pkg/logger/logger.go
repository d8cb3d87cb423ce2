package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Log *zap.Logger
)

// Component 流水线组件名，作为子 logger 的名字
type Component string

const (
	ComponentSession   Component = "session"
	ComponentNonce     Component = "nonce"
	ComponentBroadcast Component = "broadcast"
	ComponentNode      Component = "node"
	ComponentServer    Component = "server"
)

func init() {
	// 默认初始化一个 Nop Logger，防止未 Init 就调用导致 panic
	Log = zap.NewNop()
}

// Init initializes the global logger
func Init(env string) {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var err error
	Log, err = config.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(err)
	}

	zap.ReplaceGlobals(Log)
}

// Sync flushes any buffered log entries
func Sync() {
	_ = Log.Sync()
}

// For returns the child logger of a pipeline component. The caller skip added
// in Init is undone so the child reports its own call sites.
func For(c Component) *zap.Logger {
	return Log.WithOptions(zap.AddCallerSkip(-1)).Named(string(c))
}

// 常用字段，各组件日志里保持同样的 key
func SessionID(id string) zap.Field    { return zap.String("session", id) }
func TxID(txid string) zap.Field       { return zap.String("txid", txid) }
func Nonce(n uint64) zap.Field         { return zap.Uint64("nonce", n) }
func Network(name string) zap.Field    { return zap.String("network", name) }
func Address(address string) zap.Field { return zap.String("address", address) }
func RequestKey(key string) zap.Field  { return zap.String("request", key) }

// Helper functions for direct usage
func Info(msg string, fields ...zap.Field) {
	Log.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Log.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Log.Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	Log.Fatal(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	Log.Debug(msg, fields...)
}
