// Package logger provides structured logging with PII redaction.
//
// Callers pass a message plus alternating key/value pairs:
//
//	logger.Info("lead created", "lead_id", id, "phone", phone)
//
// Values under keys that look like emails or phone numbers are masked before
// they reach the encoder. Output is JSON in prod and console in dev.
package logger

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config configures the process-wide logger.
type Config struct {
	Env       string // "dev" (console) or "prod" (JSON)
	Level     string // debug, info, warn, error
	Service   string
	RedactPII bool
}

// Logger wraps a zap logger with the key/value API used across the codebase.
type Logger struct {
	z         *zap.Logger
	redactPII bool
}

var (
	mu            sync.RWMutex
	defaultLogger = &Logger{z: build(Config{Env: "prod", Level: "info"}), redactPII: true}
)

// Init replaces the default logger. Call once from main before starting
// workers.
func Init(cfg Config) {
	l := &Logger{z: build(cfg), redactPII: cfg.RedactPII}
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
}

// SetRedactPII enables or disables PII redaction for the default logger.
func SetRedactPII(r bool) {
	mu.Lock()
	defaultLogger = &Logger{z: defaultLogger.z, redactPII: r}
	mu.Unlock()
}

// Sync flushes buffered entries.
func Sync() error {
	return std().z.Sync()
}

// Named returns a child logger tagged with a component name.
func Named(name string) *Logger {
	l := std()
	return &Logger{z: l.z.Named(name), redactPII: l.redactPII}
}

// Zap exposes the underlying zap logger for libraries that want one.
func Zap() *zap.Logger { return std().z }

func std() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { std().log(zapcore.DebugLevel, msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { std().log(zapcore.InfoLevel, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { std().log(zapcore.WarnLevel, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { std().log(zapcore.ErrorLevel, msg, fields...) }

func (l *Logger) Debug(msg string, fields ...interface{}) { l.log(zapcore.DebugLevel, msg, fields...) }
func (l *Logger) Info(msg string, fields ...interface{})  { l.log(zapcore.InfoLevel, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...interface{})  { l.log(zapcore.WarnLevel, msg, fields...) }
func (l *Logger) Error(msg string, fields ...interface{}) { l.log(zapcore.ErrorLevel, msg, fields...) }

func (l *Logger) log(level zapcore.Level, msg string, fields ...interface{}) {
	ce := l.z.Check(level, msg)
	if ce == nil {
		return
	}
	ce.Write(l.toFields(fields)...)
}

func (l *Logger) toFields(kv []interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i < len(kv)-1; i += 2 {
		key := fmt.Sprintf("%v", kv[i])
		switch v := kv[i+1].(type) {
		case error:
			val := v.Error()
			if l.redactPII {
				val = redactPIIValue(key, val)
			}
			out = append(out, zap.String(key, val))
		case string:
			if l.redactPII {
				v = redactPIIValue(key, v)
			}
			out = append(out, zap.String(key, v))
		case int, int64, int32, uint, uint64, float64, float32, bool:
			out = append(out, zap.Any(key, v))
		default:
			val := fmt.Sprintf("%v", v)
			if l.redactPII {
				val = redactPIIValue(key, val)
			}
			out = append(out, zap.String(key, val))
		}
	}
	return out
}

func build(cfg Config) *zap.Logger {
	level := parseLevel(cfg.Level)

	var zcfg zap.Config
	if strings.ToLower(cfg.Env) == "prod" {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zcfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		zcfg.DisableStacktrace = true
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	l, err := zcfg.Build(zap.AddCaller(), zap.AddCallerSkip(2))
	if err != nil {
		l, _ = zap.NewProduction()
	}
	if cfg.Service != "" {
		l = l.With(zap.String("service", cfg.Service))
	}
	return l
}

func parseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

var (
	emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phoneRegex = regexp.MustCompile(`\+\d{10,14}`)
)

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	switch {
	case strings.Contains(key, "email"):
		return RedactEmail(val)
	case strings.Contains(key, "phone") || key == "to":
		if strings.Contains(val, "@") {
			return RedactEmail(val)
		}
		return RedactPhone(val)
	}
	val = emailRegex.ReplaceAllStringFunc(val, RedactEmail)
	return phoneRegex.ReplaceAllStringFunc(val, RedactPhone)
}
