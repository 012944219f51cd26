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
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/sunoflow/internal/client"
	"github.com/makeasinger/sunoflow/internal/config"
	"github.com/makeasinger/sunoflow/internal/handler"
	"github.com/makeasinger/sunoflow/internal/middleware"
	"github.com/makeasinger/sunoflow/internal/service"
	"github.com/makeasinger/sunoflow/internal/store"
	"github.com/makeasinger/sunoflow/internal/websocket"
)

const testRedisAddr = "localhost:6379"

// fakeSuno mimics the sunoapi.org endpoints used by the client. Every
// submission gets a fresh task ID; a task reports PENDING for pendingPolls
// polls and then SUCCESS with one clip served by the same server.
type fakeSuno struct {
	srv          *httptest.Server
	pendingPolls int

	mu    sync.Mutex
	polls map[string]int
}

func newFakeSuno(t *testing.T, pendingPolls int) *fakeSuno {
	t.Helper()
	f := &fakeSuno{pendingPolls: pendingPolls, polls: map[string]int{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, fmt.Sprintf(`{"taskId":"e2e-%s"}`, uuid.NewString()))
	})
	mux.HandleFunc("/api/v1/generate/record-info", func(w http.ResponseWriter, r *http.Request) {
		taskID := r.URL.Query().Get("taskId")
		f.mu.Lock()
		f.polls[taskID]++
		n := f.polls[taskID]
		f.mu.Unlock()

		if n <= f.pendingPolls {
			writeEnvelope(w, fmt.Sprintf(`{"taskId":%q,"status":"PENDING"}`, taskID))
			return
		}
		writeEnvelope(w, fmt.Sprintf(`{"taskId":%q,"status":"SUCCESS","response":{"sunoData":[
			{"id":"%s-clip","title":"Morning Coffee","audioUrl":"%s/audio/%s.mp3","duration":95.5,"tags":"lofi, chill"}
		]}}`, taskID, taskID, f.srv.URL, taskID))
	})
	mux.HandleFunc("/api/v1/generate/credit", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, `99`)
	})
	mux.HandleFunc("/audio/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3fake-mp3"))
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeSuno) pollCount(taskID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[taskID]
}

func writeEnvelope(w http.ResponseWriter, data string) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"code":200,"msg":"success","data":` + data + `}`))
}

// testApp holds all components needed for testing
type testApp struct {
	app       *fiber.App
	svc       *service.GenerationService
	suno      *fakeSuno
	inspector *asynq.Inspector
	outputDir string
}

// setupApp creates a Fiber app wired like main.go against a fake Suno API.
// Redis (localhost, DB 15) backs the task store and the queue; the test is
// skipped when it is not running.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	redisClient := redis.NewClient(&redis.Options{
		Addr: testRedisAddr,
		DB:   15, // use DB 15 for tests to avoid collision
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		redisClient.Close()
		t.Skipf("skipping: redis not available at %s: %v", testRedisAddr, err)
	}
	t.Cleanup(func() { redisClient.Close() })

	redisOpt := asynq.RedisClientOpt{Addr: testRedisAddr, DB: 15}
	asynqClient := asynq.NewClient(redisOpt)
	t.Cleanup(func() { asynqClient.Close() })
	inspector := asynq.NewInspector(redisOpt)
	t.Cleanup(func() { inspector.Close() })

	fake := newFakeSuno(t, 1)
	sunoClient := client.NewSunoClient(&config.SunoConfig{
		APIKey:       "sk-e2e",
		BaseURL:      fake.srv.URL,
		Model:        "V4",
		PollInterval: 10 * time.Millisecond,
		MaxWait:      5 * time.Second,
		MaxRetries:   3,
		BackoffUnit:  time.Millisecond,
	})

	taskKey := "sunoflow:e2e:" + uuid.NewString()
	t.Cleanup(func() { redisClient.Del(context.Background(), taskKey) })
	tasks := service.NewTaskManager(context.Background(), store.NewRedisTaskStore(redisClient, taskKey), 2)

	outputDir := filepath.Join(t.TempDir(), "outputs")
	music, err := service.NewMusicManager(outputDir, nil)
	if err != nil {
		t.Fatalf("failed to open library: %v", err)
	}

	hub := websocket.NewHub()
	go hub.Run()

	prompts := service.NewPromptService(client.NewGroqClient(&config.GroqConfig{})) // no API key
	svc := service.NewGenerationService(sunoClient, tasks, music, prompts, asynqClient, hub)

	validate := validator.New()
	generateHandler := handler.NewGenerateHandler(svc, validate)
	taskHandler := handler.NewTaskHandler(svc, validate, 7)
	songHandler := handler.NewSongHandler(svc)
	promptHandler := handler.NewPromptHandler(prompts, validate)
	libraryHandler := handler.NewLibraryHandler(nil)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New()

	// Base routes
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"suno":    sunoClient.IsConfigured(),
				"groq":    false,
				"r2":      false,
				"session": "disabled",
			},
		})
	})

	api := app.Group("/api")

	// Use very high rate limits so tests don't get blocked
	api.Post("/generate", rateLimiter.GenerateLimit(10000), generateHandler.Generate)
	api.Post("/generate/theme", rateLimiter.GenerateLimit(10000), generateHandler.FromTheme)
	api.Get("/credits", generateHandler.Credits)

	api.Get("/tasks", taskHandler.List)
	api.Post("/tasks/prune", taskHandler.Prune)
	api.Get("/tasks/:taskId", taskHandler.Get)
	api.Post("/tasks/:taskId/resume", taskHandler.Resume)

	api.Get("/songs", songHandler.List)
	api.Get("/songs/:songId", songHandler.Get)
	api.Post("/songs/:songId/refresh", songHandler.Refresh)

	promptRoutes := api.Group("/prompts", rateLimiter.PromptLimit(10000))
	promptRoutes.Post("/generate", promptHandler.Generate)

	api.Get("/library/feed", libraryHandler.Feed)

	return &testApp{app: app, svc: svc, suno: fake, inspector: inspector, outputDir: outputDir}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
