package mapper

import (
	"doc-chat-be/internal/entity"
	"doc-chat-be/internal/model"
)

type ConversationTurnMapper struct{}

func NewConversationTurnMapper() *ConversationTurnMapper {
	return &ConversationTurnMapper{}
}

func (m *ConversationTurnMapper) ToEntity(t *model.ConversationTurn) *entity.ConversationTurn {
	if t == nil {
		return nil
	}
	return &entity.ConversationTurn{
		Id:             t.Id,
		UserId:         t.UserId,
		SessionId:      t.SessionId,
		ParentId:       t.ParentId,
		MessageId:      t.MessageId,
		QaId:           t.QaId,
		QaType:         t.QaType,
		MessageContent: t.MessageContent,
		Timestamp:      t.Timestamp,
	}
}

func (m *ConversationTurnMapper) ToModel(t *entity.ConversationTurn) *model.ConversationTurn {
	if t == nil {
		return nil
	}
	return &model.ConversationTurn{
		Id:             t.Id,
		UserId:         t.UserId,
		SessionId:      t.SessionId,
		ParentId:       t.ParentId,
		MessageId:      t.MessageId,
		QaId:           t.QaId,
		QaType:         t.QaType,
		MessageContent: t.MessageContent,
		Timestamp:      t.Timestamp,
	}
}

func (m *ConversationTurnMapper) ToEntities(turns []*model.ConversationTurn) []*entity.ConversationTurn {
	entities := make([]*entity.ConversationTurn, len(turns))
	for i, t := range turns {
		entities[i] = m.ToEntity(t)
	}
	return entities
}
