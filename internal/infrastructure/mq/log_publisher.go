package mq

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"
)

// LogPublisher 未启用 Kafka 时使用，消息只写日志
type LogPublisher struct {
	log *log.Helper
}

func NewLogPublisher(logger log.Logger) *LogPublisher {
	return &LogPublisher{log: log.NewHelper(log.With(logger, "module", "mq/log"))}
}

func (p *LogPublisher) Publish(ctx context.Context, topic, key, value string) error {
	p.log.WithContext(ctx).Infof("publish topic=%s key=%s value=%s", topic, key, value)
	return nil
}
