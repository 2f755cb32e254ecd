package implementation

import (
	"context"
	"errors"

	"doc-chat-be/internal/entity"
	"doc-chat-be/internal/mapper"
	"doc-chat-be/internal/model"
	"doc-chat-be/internal/repository/contract"
	"doc-chat-be/internal/repository/specification"

	"gorm.io/gorm"
)

type ConversationTurnRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ConversationTurnMapper
}

func NewConversationTurnRepository(db *gorm.DB) contract.ConversationTurnRepository {
	return &ConversationTurnRepositoryImpl{
		db:     db,
		mapper: mapper.NewConversationTurnMapper(),
	}
}

func (r *ConversationTurnRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ConversationTurnRepositoryImpl) Create(ctx context.Context, turn *entity.ConversationTurn) error {
	m := r.mapper.ToModel(turn)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*turn = *r.mapper.ToEntity(m)
	return nil
}

func (r *ConversationTurnRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ConversationTurn, error) {
	var m model.ConversationTurn
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *ConversationTurnRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ConversationTurn, error) {
	var models []*model.ConversationTurn
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *ConversationTurnRepositoryImpl) PluckQaIds(ctx context.Context, userId, sessionId string) ([]string, error) {
	var qaIds []string
	err := r.db.WithContext(ctx).
		Model(&model.ConversationTurn{}).
		Where("user_id = ? AND session_id = ?", userId, sessionId).
		Distinct().
		Pluck("qa_id", &qaIds).Error
	return qaIds, err
}

func (r *ConversationTurnRepositoryImpl) DeleteByConversation(ctx context.Context, userId, sessionId string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userId, sessionId).
		Delete(&model.ConversationTurn{})
	return res.RowsAffected, res.Error
}

func (r *ConversationTurnRepositoryImpl) DeleteBySessionId(ctx context.Context, sessionId string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("session_id = ?", sessionId).
		Delete(&model.ConversationTurn{})
	return res.RowsAffected, res.Error
}
