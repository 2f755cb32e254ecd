package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"doc-chat-be/internal/dto"
	"doc-chat-be/internal/pkg/logger"
	"doc-chat-be/internal/pkg/serverutils"
	"doc-chat-be/pkg/rag/index"
)

var ErrFileNotFound = errors.New("file not found")

type IFileService interface {
	Upload(ctx context.Context, req *dto.UploadRequest, file *multipart.FileHeader) (string, error)
	Resolve(sessionID, filename string) (string, error)
}

type fileService struct {
	uploadDir        string
	maxBytes         int64
	index            *index.Manager
	publisherService IPublisherService
	logger           logger.ILogger
}

func NewFileService(
	uploadDir string,
	maxBytes int64,
	idx *index.Manager,
	publisherService IPublisherService,
	log logger.ILogger,
) IFileService {
	return &fileService{
		uploadDir:        uploadDir,
		maxBytes:         maxBytes,
		index:            idx,
		publisherService: publisherService,
		logger:           log,
	}
}

// TooLargeError is the response for uploads over the size limit.
func TooLargeError(maxBytes int64) *serverutils.AppError {
	return serverutils.NewAppError(http.StatusInternalServerError, fmt.Sprintf("文件过大，最大%dMB", maxBytes/(1<<20)), nil)
}

// Upload stores the file at uploads/{session}/{name} and queues it for indexing.
// Nothing is written when the file exceeds the limit.
func (s *fileService) Upload(ctx context.Context, req *dto.UploadRequest, file *multipart.FileHeader) (string, error) {
	if file.Size > s.maxBytes {
		return "", TooLargeError(s.maxBytes)
	}

	name := filepath.Base(file.Filename)
	if !validSegment(name) {
		return "", serverutils.ValidationError("filename", errUnsafePath)
	}
	dir, err := sessionDir(s.uploadDir, req.SessionId)
	if err != nil {
		return "", serverutils.ValidationError("session_id", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", serverutils.InternalError(err)
	}
	dest := filepath.Join(dir, name)

	// 1. Write to a temp file first so an oversized stream never replaces a stored file
	if err := s.save(file, dir, dest); err != nil {
		return "", err
	}

	// 2. A re-upload replaces the previous version in the index
	if n, err := s.index.PurgeFile(ctx, req.UserId, req.SessionId, dest); err != nil {
		s.logger.Warn("FileService", "Failed to purge previous version", map[string]interface{}{
			"file_path": dest,
			"error":     err.Error(),
		})
	} else if n > 0 {
		s.logger.Info("FileService", "Previous version purged", map[string]interface{}{
			"file_path": dest,
			"chunks":    n,
		})
	}

	// 3. Queue ingestion
	payload, err := json.Marshal(dto.IngestJob{UserId: req.UserId, SessionId: req.SessionId, FilePath: dest})
	if err != nil {
		return "", serverutils.InternalError(err)
	}
	if err := s.publisherService.Publish(ctx, payload); err != nil {
		s.logger.Error("FileService", "Failed to queue ingestion", map[string]interface{}{
			"file_path": dest,
			"error":     err.Error(),
		})
	}

	s.logger.Info("FileService", "File uploaded", map[string]interface{}{
		"user_id":    req.UserId,
		"session_id": req.SessionId,
		"file_path":  dest,
		"size":       file.Size,
	})
	return dest, nil
}

func (s *fileService) save(file *multipart.FileHeader, dir, dest string) error {
	src, err := file.Open()
	if err != nil {
		return serverutils.InternalError(err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return serverutils.InternalError(err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	written, err := io.Copy(tmp, io.LimitReader(src, s.maxBytes+1))
	closeErr := tmp.Close()
	if err != nil {
		return serverutils.InternalError(err)
	}
	if closeErr != nil {
		return serverutils.InternalError(closeErr)
	}
	if written > s.maxBytes {
		return TooLargeError(s.maxBytes)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		return serverutils.InternalError(err)
	}
	return nil
}

// Resolve returns the stored path of uploads/{session}/{filename}.
func (s *fileService) Resolve(sessionID, filename string) (string, error) {
	if !validSegment(filename) {
		return "", serverutils.NotFoundError("File not found")
	}
	dir, err := sessionDir(s.uploadDir, sessionID)
	if err != nil {
		return "", serverutils.NotFoundError("File not found")
	}

	path := filepath.Join(dir, filename)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", serverutils.NewAppError(http.StatusNotFound, "File not found", ErrFileNotFound)
	}
	return path, nil
}
