package logger

import (
	"io"
	"os"

	"github.com/go-kratos/kratos/v2/log"
)

// New 创建带时间戳和调用位置的标准输出日志，按 level 过滤
func New(level string) log.Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter 输出到指定 writer
func NewWithWriter(w io.Writer, level string) log.Logger {
	logger := log.With(log.NewStdLogger(w),
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.name", "breakfast-ledger",
	)
	return log.NewFilter(logger, log.FilterLevel(log.ParseLevel(level)))
}

// Discard 丢弃所有输出，测试使用
func Discard() log.Logger {
	return log.NewStdLogger(io.Discard)
}
