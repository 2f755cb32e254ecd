package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"doc-chat-be/internal/dto"
	"doc-chat-be/internal/pkg/serverutils"
)

var errIncomplete = errors.New("stream ended without [DONE]")

type apiClient struct {
	base string
	http *http.Client
}

func newClient() *apiClient {
	// No timeout: answers from local models can take minutes.
	return &apiClient{base: strings.TrimRight(serverURL, "/"), http: &http.Client{}}
}

// do decodes the response envelope into out, turning non-200 codes into errors.
func (c *apiClient) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if envelope.Code != serverutils.CodeSuccess {
		return fmt.Errorf("server error %d: %s", envelope.Code, envelope.Message)
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}

func (c *apiClient) get(path string, query url.Values, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.base+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *apiClient) postJSON(path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.base+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *apiClient) upload(path string, fields map[string]string, filePath string, out interface{}) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := w.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, c.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req, out)
}

// stream opens the SSE endpoint and hands each fragment to onFragment.
func (c *apiClient) stream(query url.Values, onFragment func(string)) error {
	resp, err := c.http.Get(c.base + "/subscribe?" + query.Encode())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		var envelope serverutils.ResponseModel
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return fmt.Errorf("unexpected response (status %d)", resp.StatusCode)
		}
		return fmt.Errorf("server error %d: %s", envelope.Code, envelope.Message)
	}
	return readStream(resp.Body, onFragment)
}

// readStream parses "data: <json>" events until the [DONE] marker.
func readStream(r io.Reader, onFragment func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var ev dto.StreamEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return fmt.Errorf("bad event: %w", err)
		}
		if ev.Finished == "true" && ev.Data == dto.DoneMarker {
			return nil
		}
		onFragment(ev.Data)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return errIncomplete
}
