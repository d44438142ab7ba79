package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/bootstrap"
	"docchat/internal/config"
	"docchat/internal/pkg/logger"
)

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.App.GinMode = "test"
	cfg.Database.Driver = "sqlite"
	cfg.Database.SQLitePath = filepath.Join(dir, "docchat.db")
	cfg.Storage.LocalRoot = filepath.Join(dir, "uploads")
	cfg.Index.Root = filepath.Join(dir, "vector_stores")
	cfg.Embedding.Provider = "hash"
	cfg.LLM.Provider = "none"
	require.NoError(t, cfg.Validate())

	app, err := bootstrap.NewWithConfig(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return NewRouter(app)
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) (int, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return serve(t, h, req)
}

func serve(t *testing.T, h http.Handler, req *http.Request) (int, apiResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func uploadRequest(t *testing.T, token, name, contentType, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func registerAndLogin(t *testing.T, h http.Handler, username string) string {
	t.Helper()
	status, resp := doJSON(t, h, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": username, "email": username + "@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusOK, status, resp.Message)

	status, resp = doJSON(t, h, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username, "password": "password123",
	})
	require.Equal(t, http.StatusOK, status, resp.Message)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &login))
	require.NotEmpty(t, login.Token)
	return login.Token
}

func TestDocumentQuestionFlow(t *testing.T) {
	h := newTestServer(t)
	token := registerAndLogin(t, h, "ada")

	// Nothing processed yet.
	status, resp := doJSON(t, h, http.MethodPost, "/api/v1/chat/messages", token, map[string]any{"content": "Hello?"})
	require.Equal(t, http.StatusOK, status, resp.Message)
	var first struct {
		Status           string `json:"status"`
		AssistantMessage struct {
			Content string `json:"content"`
		} `json:"assistant_message"`
		Conversation struct {
			ID uint `json:"id"`
		} `json:"conversation"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &first))
	assert.Equal(t, "no_documents", first.Status)
	assert.Equal(t, "no documents processed", first.AssistantMessage.Content)

	status, resp = serve(t, h, uploadRequest(t, token, "notes.txt", "text/plain", "The capital of France is Paris."))
	require.Equal(t, http.StatusOK, status, resp.Message)
	var upload struct {
		Results []struct {
			Processed bool   `json:"processed"`
			Error     string `json:"error"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &upload))
	require.Len(t, upload.Results, 1)
	assert.True(t, upload.Results[0].Processed, upload.Results[0].Error)

	status, resp = doJSON(t, h, http.MethodGet, "/api/v1/documents", token, nil)
	require.Equal(t, http.StatusOK, status)
	var docs []struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "processed", docs[0].Status)

	status, resp = doJSON(t, h, http.MethodPost, "/api/v1/chat/messages", token, map[string]any{"content": "What is the capital of France?"})
	require.Equal(t, http.StatusOK, status, resp.Message)
	var second struct {
		Status           string `json:"status"`
		AssistantMessage struct {
			Content string `json:"content"`
		} `json:"assistant_message"`
		Conversation struct {
			ID uint `json:"id"`
		} `json:"conversation"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &second))
	assert.Equal(t, "answered", second.Status)
	assert.Contains(t, second.AssistantMessage.Content, "Paris")
	assert.Equal(t, first.Conversation.ID, second.Conversation.ID)

	status, resp = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/v1/conversations/%d/messages", second.Conversation.ID), token, nil)
	require.Equal(t, http.StatusOK, status)
	var history []struct {
		IsUser bool `json:"is_user"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &history))
	assert.Len(t, history, 4)
}

func TestUnsupportedUploadAndMissingDocument(t *testing.T) {
	h := newTestServer(t)
	token := registerAndLogin(t, h, "ada")

	status, resp := serve(t, h, uploadRequest(t, token, "sheet.xlsx", "application/vnd.ms-excel", "binary"))
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(resp.Data), "sheet.xlsx")
	assert.Contains(t, string(resp.Data), "unsupported file type")

	status, resp = doJSON(t, h, http.MethodPost, "/api/v1/documents/42/process", token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, 40401, resp.Code)
}

func TestAuthFlow(t *testing.T) {
	h := newTestServer(t)

	status, resp := doJSON(t, h, http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, 40100, resp.Code)

	token := registerAndLogin(t, h, "ada")

	status, resp = doJSON(t, h, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": "ada", "email": "other@example.com", "password": "password123",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, 40001, resp.Code)

	status, resp = doJSON(t, h, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "ada", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, 40101, resp.Code)

	status, _ = doJSON(t, h, http.MethodGet, "/api/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = doJSON(t, h, http.MethodPost, "/api/v1/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, status)

	status, resp = doJSON(t, h, http.MethodGet, "/api/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, 40102, resp.Code)
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":{"ok":true,"message":"disabled"}`)
}
