package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docmem/internal/ai"
	"github.com/xxxsen/docmem/internal/chunker"
	"github.com/xxxsen/docmem/internal/memory"
	"github.com/xxxsen/docmem/internal/middleware"
	"github.com/xxxsen/docmem/internal/service"
	"github.com/xxxsen/docmem/internal/snapstore"
)

const notesText = "Team sync notes. The launch deadline moved to 2024-01-17 after review. Alice owns the release checklist."

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func setupRouter(t *testing.T, uploadLimit int64) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	secret := []byte("test-secret")

	p, err := ai.NewEmbedProvider("local", nil)
	require.NoError(t, err)
	manager := memory.NewManager(
		chunker.NewSentenceChunker(300, 50, 5),
		ai.NewEmbedder(p, "hash", memory.DefaultDimension),
		snapstore.NewLocal(t.TempDir()),
		memory.Options{},
	)
	memories := service.NewMemoryService(manager, 3)
	assistant := service.NewAssistantService(memories, ai.NewManager(nil, ai.ManagerConfig{}))

	router := gin.New()
	router.Use(middleware.RequestID())
	RegisterRoutes(router.Group("/api/v1"), RouterDeps{
		Sessions:  NewSessionHandler(service.NewSessionService(secret, time.Hour)),
		Documents: NewDocumentHandler(memories, assistant, uploadLimit),
		Query:     NewQueryHandler(memories, assistant),
		Memory:    NewMemoryHandler(memories, assistant),
		JWTSecret: secret,
	})
	return router
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return serve(t, r, req)
}

func upload(t *testing.T, r *gin.Engine, token, filename string, content []byte) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return serve(t, r, req)
}

func serve(t *testing.T, r *gin.Engine, req *http.Request) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func newSession(t *testing.T, r *gin.Engine) string {
	t.Helper()
	code, env := doJSON(t, r, http.MethodPost, "/api/v1/sessions", "", nil)
	require.Equal(t, http.StatusOK, code)
	var session struct {
		Scope string `json:"scope"`
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &session))
	require.NotEmpty(t, session.Scope)
	require.NotEmpty(t, session.Token)
	return session.Token
}

func TestDocumentLifecycle(t *testing.T) {
	r := setupRouter(t, 1<<20)
	token := newSession(t, r)

	code, env := upload(t, r, token, "notes.txt", []byte(notesText))
	require.Equal(t, http.StatusOK, code)
	var analysis struct {
		Filename string `json:"filename"`
		DocType  string `json:"doc_type"`
		Chunks   int    `json:"chunks"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &analysis))
	require.Equal(t, "notes.txt", analysis.Filename)
	require.Equal(t, ai.DocTypeGeneral, analysis.DocType)
	require.Equal(t, 1, analysis.Chunks)

	code, env = doJSON(t, r, http.MethodGet, "/api/v1/documents", token, nil)
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(env.Data), `"chunk_count":1`)

	code, env = doJSON(t, r, http.MethodPost, "/api/v1/search", token, map[string]interface{}{"query": "launch deadline", "top_k": 5})
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(env.Data), "2024-01-17")

	code, env = doJSON(t, r, http.MethodPost, "/api/v1/ask", token, map[string]interface{}{"question": "When is the deadline?"})
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(env.Data), "AI answering is unavailable.")

	code, env = doJSON(t, r, http.MethodGet, "/api/v1/history", token, nil)
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(env.Data), "When is the deadline?")

	code, env = doJSON(t, r, http.MethodGet, "/api/v1/documents/notes.txt/text", token, nil)
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(env.Data), notesText)

	code, env = doJSON(t, r, http.MethodGet, "/api/v1/documents/notes.txt/insights", token, nil)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "ai_unavailable", env.Error.Code)

	code, _ = doJSON(t, r, http.MethodDelete, "/api/v1/documents/notes.txt", token, nil)
	require.Equal(t, http.StatusOK, code)
	code, env = doJSON(t, r, http.MethodDelete, "/api/v1/documents/notes.txt", token, nil)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "not_found", env.Error.Code)

	code, env = doJSON(t, r, http.MethodGet, "/api/v1/stats", token, nil)
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(env.Data), `"total_chunks":0`)

	code, env = doJSON(t, r, http.MethodPost, "/api/v1/ask", token, map[string]interface{}{"question": "anything"})
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "no_context", env.Error.Code)
}

func TestScopesAreIsolated(t *testing.T) {
	r := setupRouter(t, 1<<20)
	alice := newSession(t, r)
	bob := newSession(t, r)

	code, _ := upload(t, r, alice, "notes.txt", []byte(notesText))
	require.Equal(t, http.StatusOK, code)

	_, env := doJSON(t, r, http.MethodGet, "/api/v1/documents", bob, nil)
	require.Equal(t, "[]", string(env.Data))

	code, _ = doJSON(t, r, http.MethodDelete, "/api/v1/memory", alice, nil)
	require.Equal(t, http.StatusOK, code)
	_, env = doJSON(t, r, http.MethodGet, "/api/v1/documents", alice, nil)
	require.Equal(t, "[]", string(env.Data))
}

func TestUploadErrors(t *testing.T) {
	r := setupRouter(t, 16)
	token := newSession(t, r)

	code, env := upload(t, r, token, "big.txt", []byte(strings.Repeat("word ", 10)))
	require.Equal(t, http.StatusRequestEntityTooLarge, code)
	require.Equal(t, "too_large", env.Error.Code)
	require.Contains(t, env.Error.Message, "file exceeds 16 B")

	code, env = upload(t, r, token, "blank.txt", []byte("   "))
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "invalid", env.Error.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	code, env = serve(t, r, req)
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "invalid_file", env.Error.Code)
}

func TestFormatUploadLimit(t *testing.T) {
	require.Equal(t, "0 B", formatUploadLimit(0))
	require.Equal(t, "512 B", formatUploadLimit(512))
	require.Equal(t, "64 KB", formatUploadLimit(64*1024))
	require.Equal(t, "20 MB", formatUploadLimit(20<<20))
	require.Equal(t, "1 MB", formatUploadLimit(1<<20+1))
}

func TestRoutesRequireToken(t *testing.T) {
	r := setupRouter(t, 1<<20)
	code, env := doJSON(t, r, http.MethodGet, "/api/v1/documents", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "unauthorized", env.Error.Code)
}
