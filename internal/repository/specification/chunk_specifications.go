package specification

import "gorm.io/gorm"

// ByChunkScope is the metadata filter predicate of the vector index.
// Empty SessionID or FilePath mean "any".
type ByChunkScope struct {
	UserID    string
	SessionID string
	FilePath  string
}

func (s ByChunkScope) Apply(db *gorm.DB) *gorm.DB {
	db = db.Where("user_id = ?", s.UserID)
	if s.SessionID != "" {
		db = db.Where("session_id = ?", s.SessionID)
	}
	if s.FilePath != "" {
		db = db.Where("file_path = ?", s.FilePath)
	}
	return db
}

type BySessionID struct {
	SessionID string
}

func (s BySessionID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("session_id = ?", s.SessionID)
}

type ByEmbeddingModel struct {
	Model string
}

func (s ByEmbeddingModel) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("embedding_model = ?", s.Model)
}
