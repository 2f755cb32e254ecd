// Package transcript is the durable conversation log: one row per question or answer.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"doc-chat-be/internal/entity"
	"doc-chat-be/internal/pkg/logger"
	"doc-chat-be/internal/repository/specification"
	"doc-chat-be/internal/repository/unitofwork"
	"doc-chat-be/pkg/keylock"

	"github.com/google/uuid"
)

const qaPrefix = "qa"

var (
	ErrInvalidQaID  = errors.New("invalid qa_id")
	ErrMissingScope = errors.New("user_id and session_id are required")
	ErrNotAQuestion = errors.New("answer must reference a stored question turn")
)

// FormatQaID renders the n-th turn id.
func FormatQaID(n int) string {
	return qaPrefix + strconv.Itoa(n)
}

// ParseQaID extracts N from "qa<N>".
func ParseQaID(qaID string) (int, error) {
	if !strings.HasPrefix(qaID, qaPrefix) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQaID, qaID)
	}
	n, err := strconv.Atoi(qaID[len(qaPrefix):])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQaID, qaID)
	}
	return n, nil
}

type Store struct {
	uowFactory unitofwork.RepositoryFactory
	locks      *keylock.KeyLock
	logger     logger.ILogger
	now        func() time.Time
}

func NewStore(uowFactory unitofwork.RepositoryFactory, log logger.ILogger) *Store {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store{
		uowFactory: uowFactory,
		locks:      keylock.New(),
		logger:     log,
		now:        time.Now,
	}
}

// Append writes one immutable turn. Callers are responsible for its qa_id.
func (s *Store) Append(ctx context.Context, turn *entity.ConversationTurn) error {
	if turn.UserId == "" || turn.SessionId == "" {
		return ErrMissingScope
	}
	if _, err := ParseQaID(turn.QaId); err != nil {
		return err
	}
	if turn.MessageId == "" {
		turn.MessageId = uuid.NewString()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = s.now()
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.ConversationTurnRepository().Create(ctx, turn); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// NextQaID returns qa<max+1> over the stored qa_ids of the pair, qa1 when there are none.
// Malformed ids are ignored.
func (s *Store) NextQaID(ctx context.Context, userID, sessionID string) (string, error) {
	if userID == "" || sessionID == "" {
		return "", ErrMissingScope
	}
	n, err := s.maxQaNumber(ctx, userID, sessionID)
	if err != nil {
		return "", err
	}
	return FormatQaID(n + 1), nil
}

func (s *Store) maxQaNumber(ctx context.Context, userID, sessionID string) (int, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	ids, err := uow.ConversationTurnRepository().PluckQaIds(ctx, userID, sessionID)
	if err != nil {
		return 0, fmt.Errorf("read qa ids: %w", err)
	}

	maxN := 0
	for _, id := range ids {
		n, err := ParseQaID(id)
		if err != nil {
			s.logger.Warn("TranscriptStore", "Skipping malformed qa_id", map[string]interface{}{
				"session_id": sessionID,
				"qa_id":      id,
			})
			continue
		}
		if n > maxN {
			maxN = n
		}
	}
	return maxN, nil
}

// RecordQuestion assigns the next qa_id and writes the question turn in one step per
// (user, session), so concurrent turns of the same conversation never share an id.
// The question links to the latest answer of the conversation.
func (s *Store) RecordQuestion(ctx context.Context, userID, sessionID, content string) (*entity.ConversationTurn, error) {
	if userID == "" || sessionID == "" {
		return nil, ErrMissingScope
	}

	unlock := s.locks.Lock(keylock.ConversationKey(userID, sessionID))
	defer unlock()

	n, err := s.maxQaNumber(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	lastAnswer, err := uow.ConversationTurnRepository().FindOne(ctx,
		specification.ByConversation{UserID: userID, SessionID: sessionID},
		specification.ByQaType{QaType: entity.QaTypeAnswer},
		specification.Chronological{Desc: true},
	)
	if err != nil {
		return nil, fmt.Errorf("find latest answer: %w", err)
	}

	turn := &entity.ConversationTurn{
		UserId:         userID,
		SessionId:      sessionID,
		MessageId:      uuid.NewString(),
		QaId:           FormatQaID(n + 1),
		QaType:         entity.QaTypeQuestion,
		MessageContent: content,
	}
	if lastAnswer != nil {
		turn.ParentId = lastAnswer.Id
	}

	if err := s.Append(ctx, turn); err != nil {
		return nil, err
	}
	return turn, nil
}

// RecordAnswer writes the answer for question under the same qa_id, linked to it by parent_id.
func (s *Store) RecordAnswer(ctx context.Context, question *entity.ConversationTurn, content string) (*entity.ConversationTurn, error) {
	if question == nil || !question.IsQuestion() || question.Id == 0 {
		return nil, ErrNotAQuestion
	}

	turn := &entity.ConversationTurn{
		UserId:         question.UserId,
		SessionId:      question.SessionId,
		ParentId:       question.Id,
		MessageId:      uuid.NewString(),
		QaId:           question.QaId,
		QaType:         entity.QaTypeAnswer,
		MessageContent: content,
	}
	if err := s.Append(ctx, turn); err != nil {
		return nil, err
	}
	return turn, nil
}

// History pairs every question with the most recent answer sharing its qa_id, ordered by the
// question's timestamp. Questions without an answer are left out.
func (s *Store) History(ctx context.Context, userID, sessionID string) ([]entity.QAPair, error) {
	if userID == "" || sessionID == "" {
		return nil, ErrMissingScope
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	turns, err := uow.ConversationTurnRepository().FindAll(ctx,
		specification.ByConversation{UserID: userID, SessionID: sessionID},
		specification.Chronological{},
	)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}

	// Turns are ascending, so later answers overwrite earlier ones.
	answers := make(map[string]*entity.ConversationTurn)
	for _, t := range turns {
		if t.QaType == entity.QaTypeAnswer {
			answers[t.QaId] = t
		}
	}

	pairs := make([]entity.QAPair, 0, len(answers))
	for _, t := range turns {
		if !t.IsQuestion() {
			continue
		}
		answer, ok := answers[t.QaId]
		if !ok {
			continue
		}
		pairs = append(pairs, entity.QAPair{
			QaId:     t.QaId,
			Question: t.MessageContent,
			Answer:   answer.MessageContent,
			AskedAt:  t.Timestamp,
		})
	}
	return pairs, nil
}

// DeleteSession removes the pair's transcript. An empty userID removes the session for every user.
func (s *Store) DeleteSession(ctx context.Context, userID, sessionID string) (int64, error) {
	if sessionID == "" {
		return 0, ErrMissingScope
	}
	repo := s.uowFactory.NewUnitOfWork(ctx).ConversationTurnRepository()

	var (
		n   int64
		err error
	)
	if userID == "" {
		n, err = repo.DeleteBySessionId(ctx, sessionID)
	} else {
		n, err = repo.DeleteByConversation(ctx, userID, sessionID)
	}
	if err != nil {
		return 0, fmt.Errorf("delete transcript: %w", err)
	}
	s.logger.Info("TranscriptStore", "Transcript deleted", map[string]interface{}{
		"session_id": sessionID,
		"turns":      n,
	})
	return n, nil
}
