package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"breakfastledger/internal/config"
	"breakfastledger/internal/model"
	"breakfastledger/internal/repository"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// NotificationService 站内通知
//
// 通知行和 Kafka 出站消息在调用方事务中写入，由 OutboxSender 异步投递
type NotificationService struct {
	db               *gorm.DB
	cfg              *config.Config
	notificationRepo *repository.NotificationRepository
	outboxRepo       *repository.OutboxRepository
	log              *log.Helper
}

func NewNotificationService(db *gorm.DB, cfg *config.Config, logger log.Logger) *NotificationService {
	return &NotificationService{
		db:               db,
		cfg:              cfg,
		notificationRepo: repository.NewNotificationRepository(db),
		outboxRepo:       repository.NewOutboxRepository(db),
		log:              log.NewHelper(log.With(logger, "module", "service/notification")),
	}
}

// Notify 写入通知和出站消息，tx 为空时独立提交
func (s *NotificationService) Notify(ctx context.Context, tx *gorm.DB, userID int64, title, content string) error {
	if tx == nil {
		tx = s.db
	}

	n := &model.Notification{
		UserID:  userID,
		Title:   title,
		Content: content,
	}
	if err := s.notificationRepo.Create(ctx, tx, n); err != nil {
		return fmt.Errorf("写入通知失败: %w", err)
	}

	payload, err := json.Marshal(map[string]interface{}{
		"notification_id": n.ID,
		"user_id":         userID,
		"title":           title,
		"content":         content,
		"created_at":      time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("序列化通知失败: %w", err)
	}

	msg := &model.OutboxMessage{
		EventType:  model.OutboxEventNotification,
		MessageKey: strconv.FormatInt(userID, 10),
		Topic:      s.cfg.Kafka.Topic.Notification,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}

// ListNotifications 用户最近 100 条通知
func (s *NotificationService) ListNotifications(ctx context.Context, userID int64) ([]*model.Notification, error) {
	return s.notificationRepo.ListByUser(ctx, userID, 100)
}
