package service

import (
	"context"
	"encoding/json"

	"doc-chat-be/internal/dto"
	"doc-chat-be/internal/pkg/logger"
	"doc-chat-be/pkg/events"
	"doc-chat-be/pkg/rag/index"

	"github.com/ThreeDotsLabs/watermill/message"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	index      *index.Manager
	publisher  events.Publisher
	// direct delivers notifications in-process when no event bus relays them.
	direct NotificationDelivery
	logger logger.ILogger
}

func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	idx *index.Manager,
	publisher events.Publisher,
	direct NotificationDelivery,
	log logger.ILogger,
) IConsumerService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		index:      idx,
		publisher:  publisher,
		direct:     direct,
		logger:     log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	cs.logger.Info("ConsumerService", "Ingestion consumer started", map[string]interface{}{"topic": cs.topicName})
	return nil
}

// processMessage always acks: ingestion failures are reported, not retried.
func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	var job dto.IngestJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		cs.logger.Error("ConsumerService", "Failed to unmarshal ingest job", map[string]interface{}{"error": err.Error()})
		return
	}

	report := cs.index.IngestAndIndex(ctx, job.FilePath, job.UserId, job.SessionId)

	evt := events.DocumentIndexed(job.UserId, job.SessionId, job.FilePath,
		report.Count, report.UploadOrder, report.Outcome.String(), report.Err)

	if err := cs.publisher.Publish(ctx, evt); err != nil {
		cs.logger.Warn("ConsumerService", "Failed to publish event", map[string]interface{}{
			"type":  evt.EventType(),
			"error": err.Error(),
		})
	}
	if cs.direct != nil {
		if userID, notif, ok := BuildNotification(evt); ok {
			cs.direct.Send(userID, notif)
		}
	}

	cs.logger.Info("ConsumerService", "Ingest job processed", map[string]interface{}{
		"file_path": job.FilePath,
		"outcome":   report.Outcome.String(),
		"chunks":    report.Count,
		"skipped":   report.Skipped,
	})
}
