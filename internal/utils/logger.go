package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`   // debug/info/warn/error
	Format     string `yaml:"format" mapstructure:"format"` // text/json
	Output     string `yaml:"output" mapstructure:"output"` // stdout/stderr/file
	FilePath   string `yaml:"file_path" mapstructure:"file_path"`
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"` // MB
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"` // 天
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
}

var (
	baseMu sync.RWMutex
	base   = newBaseLogger()
)

func newBaseLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "15:04:05",
		FullTimestamp:   true,
	})
	if os.Getenv("DEBUG") == "true" {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// InitLogger 按配置初始化共享的 logrus 实例
func InitLogger(cfg LogConfig) error {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if os.Getenv("DEBUG") == "true" {
		level = logrus.DebugLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05.000"})
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{TimestampFormat: "15:04:05", FullTimestamp: true})
	default:
		return fmt.Errorf("不支持的日志格式: %s", cfg.Format)
	}

	out, err := logOutput(cfg)
	if err != nil {
		return err
	}
	l.SetOutput(out)

	baseMu.Lock()
	base = l
	baseMu.Unlock()
	return nil
}

func logOutput(cfg LogConfig) (io.Writer, error) {
	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("日志输出为 file 时必须指定 file_path")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("创建日志目录失败: %w", err)
		}
		return &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}, nil
	default:
		return nil, fmt.Errorf("不支持的日志输出: %s", cfg.Output)
	}
}

// Logger 带模块名的日志记录器
type Logger struct {
	name string
}

func NewLogger(name string) *Logger {
	return &Logger{name: name}
}

func (l *Logger) entry() *logrus.Entry {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return base.WithField("module", l.name)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.entry().Infof(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.entry().Errorf(format, args...)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry().Debugf(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.entry().Warnf(format, args...)
}
