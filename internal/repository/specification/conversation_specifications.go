package specification

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ByConversation scopes turns to one (user, session) pair.
type ByConversation struct {
	UserID    string
	SessionID string
}

func (s ByConversation) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("user_id = ? AND session_id = ?", s.UserID, s.SessionID)
}

type ByQaType struct {
	QaType string
}

func (s ByQaType) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("qa_type = ?", s.QaType)
}

// Chronological orders by timestamp, breaking ties with the surrogate key.
type Chronological struct {
	Desc bool
}

func (s Chronological) Apply(db *gorm.DB) *gorm.DB {
	return db.
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: s.Desc}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: s.Desc})
}
