package logger

import (
	"log/slog"
	"os"
	"strings"
)

// NewDefault 根据配置的级别创建默认的 slog 日志器。
//
// 参数:
//
//	level: 日志级别字符串: debug / info / warn / error
//
// 返回值:
//
//	*slog.Logger: 输出到 stdout 的文本日志器
func NewDefault(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
