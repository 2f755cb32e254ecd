package service

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"doc-chat-be/internal/dto"
	"doc-chat-be/internal/pkg/logger"
	"doc-chat-be/pkg/events"
	pktNats "doc-chat-be/pkg/nats"

	"github.com/google/uuid"
)

const notifierDurable = "doc-chat-notifier"

// NotificationDelivery defines how to push real-time updates.
// Typically implemented by the WebSocket Hub.
type NotificationDelivery interface {
	Send(userID string, notification dto.Notification)
}

// NotificationService relays document events from the bus to connected clients.
type NotificationService struct {
	subscriber *pktNats.Subscriber
	delivery   NotificationDelivery
	logger     logger.ILogger
	stop       func()
}

func NewNotificationService(sub *pktNats.Subscriber, delivery NotificationDelivery, log logger.ILogger) *NotificationService {
	return &NotificationService{
		subscriber: sub,
		delivery:   delivery,
		logger:     log,
	}
}

// Start begins listening to the event bus.
func (s *NotificationService) Start(ctx context.Context) error {
	subject := pktNats.Subject("document.>")
	stop, err := s.subscriber.Subscribe(ctx, subject, notifierDurable, s.handleEvent)
	if err != nil {
		return fmt.Errorf("start notification subscriber: %w", err)
	}
	s.stop = stop
	s.logger.Info("NotificationService", "Notification relay started", map[string]interface{}{"subject": subject})
	return nil
}

func (s *NotificationService) Stop() {
	if s.stop != nil {
		s.stop()
	}
}

func (s *NotificationService) handleEvent(ctx context.Context, event events.Event) error {
	userID, notif, ok := BuildNotification(event)
	if !ok {
		s.logger.Debug("NotificationService", "Event has no recipient", map[string]interface{}{"type": event.EventType()})
		return nil
	}
	s.delivery.Send(userID, notif)
	return nil
}

// BuildNotification renders an event for its owner. ok is false when the event has no user.
func BuildNotification(event events.Event) (userID string, notif dto.Notification, ok bool) {
	payload := event.Payload()
	userID, _ = payload["user_id"].(string)
	if userID == "" {
		return "", dto.Notification{}, false
	}

	notif = dto.Notification{
		Id:        uuid.NewString(),
		Type:      event.EventType(),
		Data:      payload,
		CreatedAt: event.Timestamp(),
	}
	if notif.CreatedAt.IsZero() {
		notif.CreatedAt = time.Now()
	}

	switch event.EventType() {
	case events.TypeDocumentIndexed:
		file, _ := payload["file_path"].(string)
		file = filepath.Base(file)
		if _, failed := payload["error"]; failed {
			notif.Title = "文档处理失败"
			notif.Message = fmt.Sprintf("%s 未能建立索引", file)
		} else {
			notif.Title = "文档已就绪"
			notif.Message = fmt.Sprintf("%s 已完成索引，共 %v 个片段", file, payload["chunks"])
		}
	default:
		notif.Title = event.EventType()
	}
	return userID, notif, true
}
