package controller

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"doc-chat-be/internal/dto"
	"doc-chat-be/internal/pkg/logger"
	"doc-chat-be/internal/pkg/serverutils"
	"doc-chat-be/internal/pkg/testdb"
	"doc-chat-be/internal/repository/memory"
	"doc-chat-be/internal/repository/unitofwork"
	"doc-chat-be/internal/service"
	"doc-chat-be/pkg/embedding/embeddingtest"
	"doc-chat-be/pkg/events"
	"doc-chat-be/pkg/ingest"
	"doc-chat-be/pkg/llm/llmtest"
	"doc-chat-be/pkg/rag/chain"
	"doc-chat-be/pkg/rag/history"
	"doc-chat-be/pkg/rag/index"
	"doc-chat-be/pkg/rag/transcript"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMaxUpload = 1 << 20

type testApp struct {
	app       *fiber.App
	llm       *llmtest.Provider
	uploadDir string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	nop := logger.NewNopLogger()
	factory := unitofwork.NewRepositoryFactory(testdb.New(t))
	idx := index.NewManager(factory, embeddingtest.New(), ingest.New())
	provider := &llmtest.Provider{StreamParts: []string{"Hel", "lo", "!"}}
	uploadDir := t.TempDir()

	chatSvc := service.NewChatService(
		idx,
		transcript.NewStore(factory, nop),
		history.NewStore(memory.NewChatHistoryRepository(time.Hour), nop, 20),
		chain.NewBuilder(provider, idx),
		events.NoopPublisher{},
		nop,
		service.ChatServiceConfig{UploadDir: uploadDir, TopK: 5},
	)
	fileSvc := service.NewFileService(uploadDir, testMaxUpload, idx, &jobRecorder{}, nop)

	app := fiber.New(fiber.Config{ErrorHandler: serverutils.ErrorHandler(nop)})
	api := app.Group("/api")
	NewChatController(chatSvc, nop).RegisterRoutes(api)
	NewFileController(fileSvc).RegisterRoutes(api)
	return &testApp{app: app, llm: provider, uploadDir: uploadDir}
}

type jobRecorder struct{ payloads [][]byte }

func (j *jobRecorder) Publish(_ context.Context, payload []byte) error {
	j.payloads = append(j.payloads, payload)
	return nil
}

func (a *testApp) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeEnvelope(t *testing.T, resp *http.Response) serverutils.ResponseModel {
	t.Helper()
	defer resp.Body.Close()
	var body serverutils.ResponseModel
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func readEvents(t *testing.T, body io.Reader) []dto.StreamEvent {
	t.Helper()
	var out []dto.StreamEvent
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev dto.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		out = append(out, ev)
	}
	require.NoError(t, scanner.Err())
	return out
}

func turnQuery(input, user, session string) string {
	q := url.Values{}
	q.Set("user_input", input)
	q.Set("user_id", user)
	q.Set("session_id", session)
	return q.Encode()
}

func TestSubscribe_StreamsFragmentsThenOneDone(t *testing.T) {
	a := newTestApp(t)

	resp := a.do(t, httptest.NewRequest(http.MethodGet, "/api/subscribe?"+turnQuery("hello", "u1", "s1"), nil))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get(fiber.HeaderContentType))

	evs := readEvents(t, resp.Body)
	require.GreaterOrEqual(t, len(evs), 2)

	done := 0
	for i, ev := range evs {
		assert.Equal(t, dto.SceneName, ev.SceneName)
		assert.Equal(t, dto.AnswerRenderType, ev.AnswerRenderType)
		assert.Equal(t, 1, ev.QaId)
		if ev.Data == dto.DoneMarker {
			done++
			assert.Equal(t, "true", ev.Finished)
			assert.Equal(t, len(evs)-1, i, "done must be the last event")
		} else {
			assert.Equal(t, "false", ev.Finished)
		}
	}
	assert.Equal(t, 1, done)
}

func TestSubscribe_FailedStreamHasNoDone(t *testing.T) {
	a := newTestApp(t)
	a.llm.StreamErr = assert.AnError

	resp := a.do(t, httptest.NewRequest(http.MethodGet, "/api/subscribe?"+turnQuery("hello", "u1", "s1"), nil))
	defer resp.Body.Close()

	for _, ev := range readEvents(t, resp.Body) {
		assert.NotEqual(t, dto.DoneMarker, ev.Data)
	}
}

func TestSubscribe_MissingParamsIsStructuredError(t *testing.T) {
	a := newTestApp(t)

	resp := a.do(t, httptest.NewRequest(http.MethodGet, "/api/subscribe?user_input=hi", nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeEnvelope(t, resp)
	assert.Equal(t, http.StatusBadRequest, body.Code)
	assert.Nil(t, body.Data)
}

func TestSync_And_History(t *testing.T) {
	a := newTestApp(t)

	resp := a.do(t, httptest.NewRequest(http.MethodGet, "/api/subscribe/sync?"+turnQuery("hello", "u1", "s1"), nil))
	body := decodeEnvelope(t, resp)
	require.Equal(t, serverutils.CodeSuccess, body.Code)
	assert.Equal(t, "Hello!", body.Data.(map[string]interface{})["answer"])

	resp = a.do(t, httptest.NewRequest(http.MethodGet, "/api/subscribe/history?user_id=u1&session_id=s1", nil))
	body = decodeEnvelope(t, resp)
	items := body.Data.([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "hello", items[0].(map[string]interface{})["question"])
}

func TestCreateSession(t *testing.T) {
	a := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/subscribe/session", strings.NewReader(`{"user_input":"hi","user_id":"u1"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	body := decodeEnvelope(t, a.do(t, req))

	require.Equal(t, serverutils.CodeSuccess, body.Code)
	assert.Regexp(t, `^\d{14}-[0-9a-f]{8}$`, body.Data.(map[string]interface{})["session_id"])
}

func multipartUpload(t *testing.T, fields map[string]string, name string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/file/upload", &buf)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	return req
}

func TestUpload_And_Download(t *testing.T) {
	a := newTestApp(t)

	resp := a.do(t, multipartUpload(t, map[string]string{"user_id": "u1", "session_id": "s1"}, "notes.txt", []byte("hello file")))
	body := decodeEnvelope(t, resp)
	require.Equal(t, serverutils.CodeSuccess, body.Code)
	assert.Equal(t, "File notes.txt uploaded successfully!", body.Message)
	assert.Equal(t, filepath.Join(a.uploadDir, "s1", "notes.txt"), body.Data.(map[string]interface{})["file_path"])

	resp = a.do(t, httptest.NewRequest(http.MethodGet, "/api/file/download?session_id=s1&filename=notes.txt", nil))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello file", string(data))
}

func TestUpload_OversizedIsCode500(t *testing.T) {
	a := newTestApp(t)

	resp := a.do(t, multipartUpload(t, map[string]string{"user_id": "u1", "session_id": "s1"}, "big.txt",
		bytes.Repeat([]byte("a"), testMaxUpload+1)))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	body := decodeEnvelope(t, resp)
	assert.Equal(t, 500, body.Code)
	assert.Equal(t, "文件过大，最大1MB", body.Message)
	assert.Nil(t, body.Data)

	_, err := os.Stat(filepath.Join(a.uploadDir, "s1", "big.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestDownload_NotFound(t *testing.T) {
	a := newTestApp(t)

	resp := a.do(t, httptest.NewRequest(http.MethodGet, "/api/file/download?session_id=s1&filename=missing.txt", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "File not found", decodeEnvelope(t, resp).Message)
}

func TestCleanup_Route(t *testing.T) {
	a := newTestApp(t)
	a.do(t, multipartUpload(t, map[string]string{"user_id": "u1", "session_id": "s1"}, "notes.txt", []byte("x"))).Body.Close()

	body := decodeEnvelope(t, a.do(t, httptest.NewRequest(http.MethodGet, "/api/subscribe/clean?session_id=s1", nil)))
	require.Equal(t, serverutils.CodeSuccess, body.Code)
	assert.Equal(t, true, body.Data.(map[string]interface{})["files_removed"])
}
