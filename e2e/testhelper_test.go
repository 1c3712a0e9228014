package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/reelsched/api/internal/auth"
	"github.com/reelsched/api/internal/client"
	"github.com/reelsched/api/internal/config"
	"github.com/reelsched/api/internal/db"
	"github.com/reelsched/api/internal/handler"
	"github.com/reelsched/api/internal/logging"
	"github.com/reelsched/api/internal/model"
	"github.com/reelsched/api/internal/repository"
	"github.com/reelsched/api/internal/server"
	"github.com/reelsched/api/internal/service"
	ws "github.com/reelsched/api/internal/websocket"
)

const testJWTSecret = "test-secret-for-e2e"

// postBridgeStub records every call the API makes to the posting service
type postBridgeStub struct {
	srv   *httptest.Server
	calls atomic.Int32

	mu     sync.Mutex
	posts  map[string]bool
	nextID int
}

func newPostBridgeStub(t *testing.T) *postBridgeStub {
	t.Helper()
	s := &postBridgeStub{posts: map[string]bool{}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/social-accounts", func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"data": []client.SocialAccount{
			{ID: 11, Platform: "tiktok", Username: "alice.tt"},
			{ID: 12, Platform: "instagram", Username: "alice.ig"},
		}})
	})
	mux.HandleFunc("POST /v1/media/create-upload-url", func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		id := s.id("med")
		json.NewEncoder(w).Encode(map[string]string{"media_id": id, "upload_url": s.srv.URL + "/uploads/" + id})
	})
	mux.HandleFunc("PUT /uploads/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /v1/posts", func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		id := s.id("post")
		s.mu.Lock()
		s.posts[id] = true
		s.mu.Unlock()
		json.NewEncoder(w).Encode(client.Post{ID: id, Status: "draft", IsDraft: true})
	})
	mux.HandleFunc("PATCH /v1/posts/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		json.NewEncoder(w).Encode(client.Post{ID: r.PathValue("id"), Status: "scheduled"})
	})
	mux.HandleFunc("DELETE /v1/posts/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.posts[r.PathValue("id")] {
			http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
			return
		}
		delete(s.posts, r.PathValue("id"))
		w.WriteHeader(http.StatusNoContent)
	})

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *postBridgeStub) id(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return fmt.Sprintf("%s_%d", prefix, s.nextID)
}

// testApp holds all components needed for testing
type testApp struct {
	app        *fiber.App
	jobs       *repository.SQLJobRepo
	stub       *postBridgeStub
	verifier   *auth.HMACVerifier
	collection string
}

// setupApp builds the same app as `serve` on SQLite, with Post-bridge and the
// media host replaced by local test servers. Storage is left unconfigured.
func setupApp(t *testing.T) *testApp {
	t.Helper()
	ctx := context.Background()

	dbCfg := config.DatabaseConfig{Driver: db.DriverSQLite, URL: filepath.Join(t.TempDir(), "e2e.db")}
	conn, err := db.Open(ctx, dbCfg)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = db.Migrate(ctx, conn, dbCfg.Driver)
	require.NoError(t, err)

	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom"))
	}))
	t.Cleanup(media.Close)

	stub := newPostBridgeStub(t)

	cfg := &config.Config{
		PostBridge: config.PostBridgeConfig{BaseURL: stub.srv.URL, Timeout: 5},
		Bulk: config.BulkConfig{
			MaxDailyPosts:   100,
			BatchSize:       5,
			BatchDelay:      time.Millisecond,
			WindowStartHour: 9,
			WindowEndHour:   21,
			JitterMinutes:   15,
		},
	}
	logger := logging.Nop()

	jobRepo := repository.NewSQLJobRepo(conn)
	collections := repository.NewSQLCollectionRepo(conn)
	credentials := repository.NewSQLCredentialRepo(conn)

	collection := &model.Collection{
		ID:     "col-1",
		UserID: "test-user-123",
		Name:   "spring drop",
		Items: []model.MediaItem{
			{ID: "v1", Kind: model.MediaKindVideo, URLs: []string{media.URL + "/v1.mp4"}},
			{ID: "v2", Kind: model.MediaKindVideo, URLs: []string{media.URL + "/v2.mp4"}},
		},
	}
	require.NoError(t, collections.Create(ctx, collection))
	require.NoError(t, collections.Create(ctx, &model.Collection{ID: "col-empty", UserID: "test-user-123", Name: "empty"}))
	require.NoError(t, credentials.Save(ctx, "test-user-123", repository.ProviderPostBridge, "pb_test_e2e_key"))

	bulk := service.NewBulkService(
		collections,
		credentials,
		client.NewPostBridgeFactory(&cfg.PostBridge, logger),
		client.NewHTTPFetcher(5*time.Second),
		service.NewPlanner(cfg.Bulk, 1),
		cfg.Bulk,
		logger,
	)

	verifier := auth.NewHMACVerifier(testJWTSecret, time.Hour)
	app := server.NewApp(server.Deps{
		Config:    cfg,
		Logger:    logger,
		Verifier:  auth.Chain{verifier},
		Validator: validator.New(),
		Hub:       ws.NewHub(logger),
		Jobs:      service.NewJobService(jobRepo),
		Bulk:      bulk,
		Uploads:   service.NewUploadService(nil),
		Ops:       handler.NewWorkerHandler(nil, conn, handler.Collaborators{PostBridge: true}),
	})

	return &testApp{app: app, jobs: jobRepo, stub: stub, verifier: verifier, collection: collection.ID}
}

// tokenFor creates an HMAC JWT for the given user.
func (a *testApp) tokenFor(t *testing.T, userID string) string {
	t.Helper()
	token, err := a.verifier.Issue(userID, userID+"@example.com")
	require.NoError(t, err)
	return token
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, bodyReader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs a request as userID.
func (a *testApp) doAuthRequest(t *testing.T, userID, method, path, body string) *http.Response {
	t.Helper()
	resp, err := doRequest(a.app, method, path, body, map[string]string{
		"Authorization": "Bearer " + a.tokenFor(t, userID),
	})
	require.NoError(t, err)
	return resp
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal(b, &result), "body: %s", b)
	return result
}

// errorCode extracts error.code from an error envelope.
func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := parseJSON(t, resp)
	detail, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected error envelope, got %v", body)
	code, _ := detail["code"].(string)
	return code
}
