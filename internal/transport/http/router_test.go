package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	jwtpkg "assistant/backend/internal/auth/jwt"
	"assistant/backend/internal/config"
	"assistant/backend/internal/domain"
	"assistant/backend/internal/extraction"
	"assistant/backend/internal/health"
	"assistant/backend/internal/imap"
	"assistant/backend/internal/importer"
	"assistant/backend/internal/monitoring"
	"assistant/backend/internal/secret"
	"assistant/backend/internal/service"
	"assistant/backend/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubImporter returns a canned report and records the last limit.
type stubImporter struct {
	report    importer.Report
	err       error
	lastLimit int
	calls     int
}

func (s *stubImporter) Import(_ context.Context, _ *domain.MailboxAccount, _ string, limit int) (importer.Report, error) {
	s.calls++
	s.lastLimit = limit
	return s.report, s.err
}

type testServer struct {
	router   *gin.Engine
	store    *memory.Store
	importer *stubImporter
	token    string
	userID   string
	jwt      *jwtpkg.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{
		CORS:      config.CORSConfig{AllowedOrigins: []string{"*"}},
		Mail:      config.MailConfig{SyncLimit: 50, MaxSyncLimit: 500, SyncTimeout: time.Minute, LockTTL: time.Minute},
		RateLimit: config.RateLimitConfig{PipelineRPS: 100, PipelineBurst: 100},
	}

	store := memory.NewStore()
	sealer, err := secret.NewSealer("router-test-key-0123456789")
	require.NoError(t, err)
	metrics := monitoring.NewMetrics()
	stub := &stubImporter{}

	users := service.NewUserService(store)
	user, err := users.Create(context.Background(), "owner@example.com", "Owner")
	require.NoError(t, err)

	engine := extraction.NewEngine(store, []extraction.Generator{extraction.NewHeuristicGenerator()}, zap.NewNop(),
		extraction.WithMetrics(metrics))

	manager := jwtpkg.NewManager("router-secret", "assistant", time.Minute, time.Hour)
	tokens, err := manager.GenerateTokenPair(user.ID, user.Email)
	require.NoError(t, err)

	router := NewRouter(RouterDependencies{
		Config:         cfg,
		AccountService: service.NewAccountService(store, sealer, zap.NewNop()),
		MessageService: service.NewMessageService(store),
		MailService: service.NewMailService(service.MailServiceDeps{
			Accounts: store,
			Messages: store,
			Importer: stub,
			Analyzer: engine,
			Locker:   memory.NewLocker(),
			Sealer:   sealer,
			Config:   cfg.Mail,
			Metrics:  metrics,
			Logger:   zap.NewNop(),
		}),
		TaskService:   service.NewTaskService(store),
		NoteService:   service.NewNoteService(store),
		UserService:   users,
		JWTManager:    manager,
		HealthChecker: health.NewHealthChecker(store, nil, zap.NewNop()),
		Metrics:       metrics,
		Logger:        zap.NewNop(),
	})

	return &testServer{
		router:   router,
		store:    store,
		importer: stub,
		token:    tokens.AccessToken,
		userID:   user.ID,
		jwt:      manager,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+s.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp Response
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func dataMap(t *testing.T, resp Response) map[string]any {
	t.Helper()
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return m
}

func (s *testServer) createAccount(t *testing.T) string {
	t.Helper()
	w, resp := s.do(t, http.MethodPost, "/v1/email-accounts", map[string]any{
		"label":        "Work",
		"provider":     "gmail",
		"emailAddress": "me@gmail.com",
		"password":     "app-password",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return dataMap(t, resp)["id"].(string)
}

func (s *testServer) seedMessage(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, s.store.CreateMessage(context.Background(), &domain.StoredMessage{
		ID:         id,
		UserID:     s.userID,
		AccountID:  "acct",
		ExternalID: "UID:" + id,
		Folder:     domain.FolderInbox,
		Subject:    "Quarterly report",
		FromEmail:  "boss@example.com",
		BodyText:   "Please send the report by Friday.",
		SentAt:     time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
		IsRead:     true,
	}))
}

func TestRouter_RequiresAuth(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/email-accounts", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_AccountLifecycle(t *testing.T) {
	s := newTestServer(t)
	id := s.createAccount(t)

	w, resp := s.do(t, http.MethodGet, "/v1/email-accounts/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	account := dataMap(t, resp)
	assert.Equal(t, true, account["hasSecret"])
	assert.Equal(t, float64(993), account["imapPort"])
	assert.NotContains(t, w.Body.String(), "app-password")
	assert.NotContains(t, account, "secret")

	w, resp = s.do(t, http.MethodGet, "/v1/email-accounts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), dataMap(t, resp)["count"])

	w, resp = s.do(t, http.MethodPut, "/v1/email-accounts/"+id, map[string]any{"label": "Renamed", "password": ""})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Renamed", dataMap(t, resp)["label"])
	assert.Equal(t, false, dataMap(t, resp)["hasSecret"])

	w, _ = s.do(t, http.MethodDelete, "/v1/email-accounts/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, resp = s.do(t, http.MethodGet, "/v1/email-accounts/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, MsgAccountNotFound, resp.Msg)
}

func TestRouter_CreateAccount_Invalid(t *testing.T) {
	s := newTestServer(t)

	w, resp := s.do(t, http.MethodPost, "/v1/email-accounts", map[string]any{
		"label":        "Work",
		"emailAddress": "not-an-email",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeBadRequest, resp.Code)

	w, _ = s.do(t, http.MethodPost, "/v1/email-accounts", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_Sync(t *testing.T) {
	s := newTestServer(t)
	id := s.createAccount(t)
	s.importer.report = importer.Report{Imported: 4, Skipped: 1}

	w, resp := s.do(t, http.MethodPost, "/v1/email-accounts/"+id+"/sync", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(4), dataMap(t, resp)["imported"])
	assert.Equal(t, 50, s.importer.lastLimit)

	w, _ = s.do(t, http.MethodPost, "/v1/email-accounts/"+id+"/sync", map[string]any{"limit": 7})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7, s.importer.lastLimit)

	w, _ = s.do(t, http.MethodPost, "/v1/email-accounts/"+id+"/sync?limit=9999", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 500, s.importer.lastLimit)

	w, _ = s.do(t, http.MethodPost, "/v1/email-accounts/"+id+"/sync?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/v1/email-accounts/missing/sync", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_SyncErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		msgPart string
	}{
		{"auth", &imap.AuthenticationError{Reason: "Invalid credentials"}, http.StatusBadRequest, "Invalid credentials"},
		{"config", &imap.ConfigurationError{Reason: "no password stored"}, http.StatusBadRequest, "no password stored"},
		{"mailbox", &importer.SyncError{Op: "select", Err: errors.New("NO")}, http.StatusBadGateway, "select"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "timed out"},
		{"other", errors.New("boom"), http.StatusInternalServerError, MsgInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			id := s.createAccount(t)
			s.importer.err = tt.err

			w, resp := s.do(t, http.MethodPost, "/v1/email-accounts/"+id+"/sync", nil)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.status, resp.Code)
			assert.Contains(t, resp.Msg, tt.msgPart)
			assert.NotContains(t, w.Body.String(), "app-password")
		})
	}
}

func TestRouter_MessagesAndAnalyze(t *testing.T) {
	s := newTestServer(t)
	s.seedMessage(t, "msg-1")

	w, resp := s.do(t, http.MethodGet, "/v1/email-messages?folder=inbox&is_read=true&q=quarterly", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), dataMap(t, resp)["count"])

	w, _ = s.do(t, http.MethodGet, "/v1/email-messages?is_read=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodGet, "/v1/email-messages?folder=spam", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = s.do(t, http.MethodPatch, "/v1/email-messages/msg-1", map[string]any{"isStarred": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, dataMap(t, resp)["isStarred"])

	w, resp = s.do(t, http.MethodPost, "/v1/email-messages/msg-1/analyze", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := dataMap(t, resp)
	assert.Equal(t, "heuristic", result["generator"])
	tasks := result["created_tasks"].([]any)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Follow up: Quarterly report", tasks[0].(map[string]any)["title"])
	assert.Len(t, result["created_notes"].([]any), 1)

	w, resp = s.do(t, http.MethodGet, "/v1/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), dataMap(t, resp)["count"])

	w, resp = s.do(t, http.MethodGet, "/v1/notes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), dataMap(t, resp)["count"])

	w, _ = s.do(t, http.MethodPost, "/v1/email-messages/nope/analyze", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_OtherUsersDataIsHidden(t *testing.T) {
	s := newTestServer(t)
	id := s.createAccount(t)
	s.seedMessage(t, "msg-1")

	other, err := service.NewUserService(s.store).Create(context.Background(), "other@example.com", "")
	require.NoError(t, err)
	tokens, err := s.jwt.GenerateTokenPair(other.ID, other.Email)
	require.NoError(t, err)
	s.token = tokens.AccessToken

	w, _ := s.do(t, http.MethodGet, "/v1/email-accounts/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodPost, "/v1/email-accounts/"+id+"/sync", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, http.MethodGet, "/v1/email-messages/msg-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 0, s.importer.calls)
}

func TestRouter_OpsEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"OK"`)

	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "assistant_http_requests_total"))
}

func TestRouter_RefreshAndMe(t *testing.T) {
	s := newTestServer(t)

	w, resp := s.do(t, http.MethodGet, "/v1/auth/me", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "owner@example.com", dataMap(t, resp)["email"])

	user, err := service.NewUserService(s.store).Active(context.Background(), s.userID)
	require.NoError(t, err)
	tokens, err := s.jwt.GenerateTokenPair(user.ID, user.Email)
	require.NoError(t, err)

	w, resp = s.do(t, http.MethodPost, "/v1/auth/refresh", map[string]any{"refreshToken": tokens.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	refreshed := dataMap(t, resp)
	assert.NotEmpty(t, refreshed["accessToken"])
	assert.Equal(t, float64(60), refreshed["expiresIn"])

	w, _ = s.do(t, http.MethodPost, "/v1/auth/refresh", map[string]any{"refreshToken": tokens.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
