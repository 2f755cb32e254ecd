package dto

type UploadRequest struct {
	UserId    string `form:"user_id" validate:"required,max=64"`
	SessionId string `form:"session_id" validate:"required,max=64"`
}

type DownloadRequest struct {
	SessionId string `query:"session_id" validate:"required,max=64"`
	Filename  string `query:"filename" validate:"required"`
}

// IngestJob is the queue message that asks the consumer to index an uploaded file.
type IngestJob struct {
	UserId    string `json:"user_id"`
	SessionId string `json:"session_id"`
	FilePath  string `json:"file_path"`
}
