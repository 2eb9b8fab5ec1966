package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/meme-comb/app/catalog"
	"github.com/lysyi3m/meme-comb/app/collection"
	"github.com/lysyi3m/meme-comb/app/database"
	"github.com/lysyi3m/meme-comb/app/dedup"
	"github.com/lysyi3m/meme-comb/app/feed"
	"github.com/lysyi3m/meme-comb/app/meme"
	"github.com/lysyi3m/meme-comb/app/recommend"
	"github.com/lysyi3m/meme-comb/app/source"
	"github.com/lysyi3m/meme-comb/app/tasks"
)

const testKey = "secret"

type fakeScheduler struct {
	triggered []string
	err       error
}

func (s *fakeScheduler) Start() {}
func (s *fakeScheduler) Stop()  {}

func (s *fakeScheduler) EnqueueTask(task tasks.TaskInterface) error {
	return s.err
}

func (s *fakeScheduler) TriggerRefresh(trigger string) (string, error) {
	return s.trigger("refresh", trigger)
}

func (s *fakeScheduler) TriggerRefilter(trigger string) (string, error) {
	return s.trigger("refilter", trigger)
}

func (s *fakeScheduler) trigger(kind, trigger string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.triggered = append(s.triggered, kind+":"+trigger)
	return fmt.Sprintf("task-%d", len(s.triggered)), nil
}

type fakeState struct{}

func (fakeState) State() tasks.State { return tasks.StateIdle }

func testItem(n int) meme.Item {
	text := fmt.Sprintf("кот номер %d", n)
	imageURL := fmt.Sprintf("https://x/%d.jpg", n)
	return meme.Item{
		ID:        meme.NewID(text, imageURL),
		Text:      text,
		ImageURL:  imageURL,
		Source:    "vk:1",
		Timestamp: time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC),
	}
}

func setupServer(t *testing.T, apiKey string, scheduler *fakeScheduler) http.Handler {
	t.Helper()

	store, err := database.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	pool := collection.NewStore(store)
	pool.Merge([]meme.Item{testItem(1), testItem(2), testItem(3)}, nil)

	opts := recommend.DefaultOptions()
	opts.Rand = rand.New(rand.NewSource(1))
	engine := recommend.NewEngine(catalog.Default(), store, opts)

	configCache := source.NewConfigCache(t.TempDir())
	configCache.Add(&source.Config{Name: "office", Kind: source.KindVK, ID: "1", Settings: source.ConfigSettings{Enabled: true, Timeout: 30}})

	f := feed.NewFeed(pool, engine, dedup.NewRegistry(store), "test")
	generator := feed.NewGenerator("Office memes", "http://localhost/feed.xml", "test")
	handler := NewHandler(f, generator, configCache, scheduler, fakeState{}, 10, "test")

	return NewServer(handler, apiKey)
}

func do(t *testing.T, server http.Handler, method, path string, withKey bool) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	if withKey {
		req.Header.Set("X-API-Key", testKey)
	}
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return body
}

func TestHealth(t *testing.T) {
	server := setupServer(t, testKey, &fakeScheduler{})

	w := do(t, server, "GET", "/health", false)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := decode(t, w)
	if body["cycle_state"] != "idle" {
		t.Errorf("Expected cycle_state 'idle', got %v", body["cycle_state"])
	}
	if body["enabled_sources"] != float64(1) {
		t.Errorf("Expected 1 enabled source, got %v", body["enabled_sources"])
	}
}

func TestStats(t *testing.T) {
	server := setupServer(t, testKey, &fakeScheduler{})

	body := decode(t, do(t, server, "GET", "/stats", false))
	if body["accepted"] != float64(3) {
		t.Errorf("Expected 3 accepted items, got %v", body["accepted"])
	}
	if body["catalog_version"] != "test" {
		t.Errorf("Expected catalog version 'test', got %v", body["catalog_version"])
	}
}

func TestFeedXML(t *testing.T) {
	server := setupServer(t, "", &fakeScheduler{})

	w := do(t, server, "GET", "/feed.xml", false)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "application/xml") {
		t.Errorf("Expected XML content type, got %s", w.Header().Get("Content-Type"))
	}
	if w.Header().Get("X-Feed-Items") != "3" {
		t.Errorf("Expected 3 feed items, got %s", w.Header().Get("X-Feed-Items"))
	}
	if strings.Count(w.Body.String(), "<item>") != 3 {
		t.Error("Expected 3 RSS items")
	}
}

func TestAPIAuthentication(t *testing.T) {
	server := setupServer(t, testKey, &fakeScheduler{})

	if w := do(t, server, "GET", "/api/items", false); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 without key, got %d", w.Code)
	}

	req := httptest.NewRequest("GET", "/api/items", nil)
	req.Header.Set("Authorization", "Bearer "+testKey)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 with bearer token, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/items", nil)
	req.Header.Set("X-API-Key", "wrong")
	w = httptest.NewRecorder()
	server.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 with wrong key, got %d", w.Code)
	}
}

func TestAPIDisabledWithoutKey(t *testing.T) {
	server := setupServer(t, "", &fakeScheduler{})

	if w := do(t, server, "GET", "/api/items", true); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 when API is disabled, got %d", w.Code)
	}
}

func TestAPIListItems(t *testing.T) {
	server := setupServer(t, testKey, &fakeScheduler{})

	body := decode(t, do(t, server, "GET", "/api/items?limit=2", true))
	if body["total"] != float64(2) {
		t.Errorf("Expected 2 items, got %v", body["total"])
	}

	if w := do(t, server, "GET", "/api/items?limit=zero", true); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad limit, got %d", w.Code)
	}
	if w := do(t, server, "GET", "/api/items?pool=archive", true); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for unknown pool, got %d", w.Code)
	}

	body = decode(t, do(t, server, "GET", "/api/items?pool=rejected", true))
	if body["total"] != float64(0) {
		t.Errorf("Expected 0 rejected items, got %v", body["total"])
	}
}

func TestAPIReportItem(t *testing.T) {
	server := setupServer(t, testKey, &fakeScheduler{})
	id := testItem(1).ID

	w := do(t, server, "POST", "/api/items/"+id+"/report", true)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	if w := do(t, server, "POST", "/api/items/"+id+"/report", true); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for already reported item, got %d", w.Code)
	}

	body := decode(t, do(t, server, "GET", "/api/items?pool=rejected", true))
	if body["total"] != float64(1) {
		t.Errorf("Expected 1 rejected item, got %v", body["total"])
	}
}

func TestAPITriggers(t *testing.T) {
	scheduler := &fakeScheduler{}
	server := setupServer(t, testKey, scheduler)

	w := do(t, server, "POST", "/api/refresh", true)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", w.Code)
	}
	if w := do(t, server, "POST", "/api/refilter", true); w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", w.Code)
	}

	if len(scheduler.triggered) != 2 || scheduler.triggered[0] != "refresh:api" || scheduler.triggered[1] != "refilter:api" {
		t.Errorf("Unexpected triggers %v", scheduler.triggered)
	}

	body := decode(t, w)
	task, _ := body["task"].(map[string]interface{})
	if task["id"] != "task-1" || task["type"] != "refresh" {
		t.Errorf("Unexpected task %v", task)
	}
}

func TestAPITriggerQueueFull(t *testing.T) {
	server := setupServer(t, testKey, &fakeScheduler{err: errors.New("task queue is full")})

	if w := do(t, server, "POST", "/api/refresh", true); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
}

func TestAPIUserEndpoints(t *testing.T) {
	server := setupServer(t, testKey, &fakeScheduler{})

	body := decode(t, do(t, server, "GET", "/api/users/42/stats", true))
	if body["total_ratings"] != float64(0) {
		t.Errorf("Expected 0 ratings, got %v", body["total_ratings"])
	}

	body = decode(t, do(t, server, "GET", "/api/users/42/recommendations?n=2", true))
	if body["total"] != float64(2) {
		t.Errorf("Expected 2 recommendations, got %v", body["total"])
	}

	if w := do(t, server, "GET", "/api/users/42/recommendations?n=-1", true); w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestAPIListSources(t *testing.T) {
	server := setupServer(t, testKey, &fakeScheduler{})

	body := decode(t, do(t, server, "GET", "/api/sources", true))
	if body["total"] != float64(1) {
		t.Errorf("Expected 1 source, got %v", body["total"])
	}
}
