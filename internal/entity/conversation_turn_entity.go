package entity

import "time"

const (
	QaTypeQuestion = "question"
	QaTypeAnswer   = "answer"
)

// ConversationTurn is one question or one answer in the durable transcript.
type ConversationTurn struct {
	Id             uint
	UserId         string
	SessionId      string
	ParentId       uint
	MessageId      string
	QaId           string
	QaType         string
	MessageContent string
	Timestamp      time.Time
}

func (t *ConversationTurn) IsQuestion() bool {
	return t.QaType == QaTypeQuestion
}

// QAPair is a question joined with its answer for the history endpoint.
type QAPair struct {
	QaId     string    `json:"qaId"`
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	AskedAt  time.Time `json:"askedAt"`
}
