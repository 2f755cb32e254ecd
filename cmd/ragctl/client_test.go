package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadStream(t *testing.T) {
	body := strings.Join([]string{
		`data: {"sceneName":"文档提取","finished":"false","data":"Hel","answerRenderType":"markdown","qaId":1}`,
		``,
		`data: {"sceneName":"文档提取","finished":"false","data":"lo","answerRenderType":"markdown","qaId":1}`,
		``,
		`data: {"sceneName":"文档提取","finished":"true","data":"[DONE]","answerRenderType":"markdown","qaId":1}`,
		``,
	}, "\n")

	var sb strings.Builder
	require.NoError(t, readStream(strings.NewReader(body), func(s string) { sb.WriteString(s) }))
	assert.Equal(t, "Hello", sb.String())
}

func TestReadStream_Truncated(t *testing.T) {
	body := `data: {"finished":"false","data":"partial","qaId":1}` + "\n\n"
	err := readStream(strings.NewReader(body), func(string) {})
	assert.ErrorIs(t, err, errIncomplete)
}

func TestClient_ServerErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":500,"message":"文件过大，最大10MB","data":null}`))
	}))
	defer srv.Close()

	c := &apiClient{base: srv.URL, http: srv.Client()}
	err := c.get("/subscribe/history", url.Values{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "文件过大")
}

func TestRootCommand_Help(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"--help"})

	require.NoError(t, rootCmd.Execute())
	for _, name := range []string{"ask", "history", "session", "upload", "clean", "watch"} {
		assert.Contains(t, buf.String(), name)
	}
}
