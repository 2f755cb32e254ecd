package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"doc-chat-be/internal/bootstrap"
	"doc-chat-be/internal/config"
	"doc-chat-be/internal/controller"
	"doc-chat-be/internal/handler"
	"doc-chat-be/internal/pkg/logger"
	"doc-chat-be/internal/pkg/serverutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, maxUpload int64) string {
	t.Helper()
	nop := logger.NewNopLogger()
	cfg := &config.Config{
		App:     config.AppConfig{CorsAllowedOrigins: "*"},
		Storage: config.StorageConfig{MaxUploadBytes: maxUpload},
	}
	container := &bootstrap.Container{
		ChatController:      controller.NewChatController(nil, nop),
		FileController:      controller.NewFileController(nil),
		NotificationHandler: handler.NewNotificationHandler(nil, nop),
	}
	srv := New(cfg, container, nop)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.GetApp().Listener(ln) }()
	t.Cleanup(func() { _ = srv.GetApp().Shutdown() })

	return ln.Addr().String()
}

func TestServer_UploadAboveBodyLimitGetsStructuredError(t *testing.T) {
	addr := newTestServer(t, 1<<20)

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(10*time.Second)))

	// Only the headers are sent; the server rejects on Content-Length alone.
	_, err = fmt.Fprintf(conn, "POST /api/file/upload HTTP/1.1\r\n"+
		"Host: %s\r\n"+
		"Content-Type: multipart/form-data; boundary=xyz\r\n"+
		"Content-Length: %d\r\n\r\n", addr, 30<<20)
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	var got serverutils.ResponseModel
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, 500, got.Code)
	assert.Equal(t, "文件过大，最大1MB", got.Message)
	assert.Nil(t, got.Data)
}

func TestServer_Health(t *testing.T) {
	addr := newTestServer(t, 1<<20)

	var resp *http.Response
	var err error
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + addr + "/health")
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
