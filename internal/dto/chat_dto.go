package dto

import "time"

const (
	SceneName        = "文档提取"
	AnswerRenderType = "markdown"
	DoneMarker       = "[DONE]"
)

type TurnRequest struct {
	UserInput string `query:"user_input" json:"user_input" validate:"required"`
	UserId    string `query:"user_id" json:"user_id" validate:"required,max=64"`
	SessionId string `query:"session_id" json:"session_id" validate:"required,max=64"`
	FilePath  string `query:"file_path" json:"file_path,omitempty"` // Optional document to ingest before answering
}

// StreamEvent is the JSON body of one server-sent event.
type StreamEvent struct {
	SceneName        string `json:"sceneName"`
	Finished         string `json:"finished"`
	Data             string `json:"data"`
	AnswerRenderType string `json:"answerRenderType"`
	QaId             int    `json:"qaId"`
}

func NewFragmentEvent(qaId int, fragment string) StreamEvent {
	return StreamEvent{
		SceneName:        SceneName,
		Finished:         "false",
		Data:             fragment,
		AnswerRenderType: AnswerRenderType,
		QaId:             qaId,
	}
}

func NewDoneEvent(qaId int) StreamEvent {
	return StreamEvent{
		SceneName:        SceneName,
		Finished:         "true",
		Data:             DoneMarker,
		AnswerRenderType: AnswerRenderType,
		QaId:             qaId,
	}
}

type SyncTurnResponse struct {
	SessionId string `json:"session_id"`
	QaId      string `json:"qa_id"`
	Mode      string `json:"mode"` // "base" | "retrieval"
	Answer    string `json:"answer"`
}

type HistoryRequest struct {
	UserId    string `query:"user_id" validate:"required"`
	SessionId string `query:"session_id" validate:"required"`
}

type HistoryItem struct {
	QaId     string    `json:"qa_id"`
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	AskedAt  time.Time `json:"asked_at"`
}

type CreateSessionRequest struct {
	UserInput string `json:"user_input" form:"user_input" query:"user_input" validate:"required"`
	UserId    string `json:"user_id" form:"user_id" query:"user_id" validate:"required,max=64"`
}

type CreateSessionResponse struct {
	SessionId string `json:"session_id"`
}

type CleanupRequest struct {
	SessionId       string `query:"session_id" validate:"required,max=64"`
	PurgeTranscript bool   `query:"purge_transcript"`
}

type CleanupResponse struct {
	SessionId     string `json:"session_id"`
	ChunksRemoved int64  `json:"chunks_removed"`
	TurnsRemoved  int64  `json:"turns_removed"`
	FilesRemoved  bool   `json:"files_removed"`
}
