package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"doc-chat-be/internal/pkg/logger"
	"doc-chat-be/internal/pkg/serverutils"
	internalWS "doc-chat-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp() *fiber.App {
	nop := logger.NewNopLogger()
	app := fiber.New(fiber.Config{ErrorHandler: serverutils.ErrorHandler(nop)})
	NewNotificationHandler(internalWS.NewHub(nil, "test", nop), nop).RegisterRoutes(app.Group("/api"))
	return app
}

func TestServeWs_RequiresUser(t *testing.T) {
	resp, err := newApp().Test(httptest.NewRequest(http.MethodGet, "/api/notifications/ws", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServeWs_RequiresUpgrade(t *testing.T) {
	resp, err := newApp().Test(httptest.NewRequest(http.MethodGet, "/api/notifications/ws?user_id=u1", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}
