package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samvad-hq/samvad-news-mapper/internal/dedupe"
	"github.com/samvad-hq/samvad-news-mapper/internal/domain"
	"github.com/samvad-hq/samvad-news-mapper/internal/fanout"
	"github.com/samvad-hq/samvad-news-mapper/internal/pipeline"
	"github.com/samvad-hq/samvad-news-mapper/internal/rotation"
	"github.com/samvad-hq/samvad-news-mapper/internal/storage"
	"github.com/samvad-hq/samvad-news-mapper/pkg/delivery"
)

type countingSender struct {
	sent atomic.Int64
}

func (c *countingSender) Type() string { return domain.TransportHTTP }

func (c *countingSender) Send(_ context.Context, _ domain.Subscriber, _ []byte) error {
	c.sent.Add(1)
	return nil
}

type testEnv struct {
	handler http.Handler
	store   *storage.Store
	sender  *countingSender
}

func newTestEnv(t *testing.T, subs ...domain.Subscriber) *testEnv {
	t.Helper()
	store, err := storage.Open(t.TempDir() + "/mapper.db")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.SeedSubscribers(subs); err != nil {
		t.Fatalf("SeedSubscribers: %v", err)
	}

	sender := &countingSender{}
	reg := delivery.NewRegistry()
	reg.Register(domain.TransportHTTP, sender)

	rot := rotation.NewManager(store, nil)
	dispatcher := fanout.NewDispatcher(store, reg, nil, 2)
	pipe := pipeline.NewService(store, rot, dispatcher, nil)
	cleaner := dedupe.NewCleaner(store, nil)

	srv := New(":0", cleaner, rot, pipe, nil, time.Second)
	return &testEnv{handler: srv.Handler(), store: store, sender: sender}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %s: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func TestRequestSourceLifecycle(t *testing.T) {
	env := newTestEnv(t)

	// Empty pool: the caller must refresh first.
	rec, body := env.do(t, http.MethodGet, "/request-source", nil)
	if rec.Code != http.StatusUpgradeRequired {
		t.Fatalf("status = %d, want 426", rec.Code)
	}
	if body["updateRequest"] != true || body["message"] != "No sources available." {
		t.Fatalf("body = %v", body)
	}

	rec, body = env.do(t, http.MethodPost, "/renew-sources", map[string]any{
		"sources": []domain.Source{{ID: "a", Name: "A", SeqNum: 1}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("renew status = %d", rec.Code)
	}
	if body["message"] != "updated" || body["updateCount"] != float64(1) {
		t.Fatalf("renew body = %v", body)
	}

	rec, body = env.do(t, http.MethodGet, "/request-source", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim status = %d, body = %v", rec.Code, body)
	}
	if body["updateRequest"] != false {
		t.Fatalf("claim body = %v", body)
	}
	source, ok := body["source"].(map[string]any)
	if !ok || source["id"] != "a" {
		t.Fatalf("source = %v", body["source"])
	}

	// The only source is now in flight.
	rec, body = env.do(t, http.MethodGet, "/request-source", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("exhausted status = %d", rec.Code)
	}
	if body["updateRequest"] != true || body["message"] != "Could not find an available source." {
		t.Fatalf("exhausted body = %v", body)
	}
}

func TestHeadlinesEndToEnd(t *testing.T) {
	env := newTestEnv(t, domain.Subscriber{Name: "indexer", Active: true})

	if _, err := rotation.NewManager(env.store, nil).Register(
		[]domain.Source{{ID: "a", Name: "A", SeqNum: 1}}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	rec, body := env.do(t, http.MethodGet, "/request-source", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim: %d %v", rec.Code, body)
	}

	rec, body = env.do(t, http.MethodPost, "/headlines", map[string]any{
		"source":       map[string]any{"id": "a", "name": "A"},
		"totalResults": 2,
		"news": []map[string]any{
			{"title": "first", "source": map[string]any{"name": "A"}},
			{"title": "second", "source": map[string]any{"name": "A"}},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("headlines status = %d, body = %v", rec.Code, body)
	}
	db, ok := body["db"].(map[string]any)
	if !ok || db["status"] != "success" || db["total"] != float64(2) {
		t.Fatalf("db = %v", body["db"])
	}
	publish, ok := body["publish"].(map[string]any)
	if !ok || publish["success"] != float64(1) {
		t.Fatalf("publish = %v", body["publish"])
	}
	if env.sender.sent.Load() != 1 {
		t.Fatalf("deliveries = %d, want 1", env.sender.sent.Load())
	}

	// The marker is gone, so the source can be claimed again.
	rec, _ = env.do(t, http.MethodGet, "/request-source", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reclaim status = %d", rec.Code)
	}
}

func TestHeadlinesNoOpAndCorrupt(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/headlines", map[string]any{"totalResults": 0})
	if rec.Code != http.StatusOK || body["message"] != "No news found, so no data added!" {
		t.Fatalf("empty batch: %d %v", rec.Code, body)
	}

	rec, body = env.do(t, http.MethodPost, "/headlines", map[string]any{
		"source":       map[string]any{"id": "a", "name": "A"},
		"totalResults": 5,
		"news":         []map[string]any{{"title": "only"}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("corrupt batch status = %d", rec.Code)
	}
	if body["message"] != "Corrupt data provided! No data added!" {
		t.Fatalf("corrupt batch body = %v", body)
	}
}

func TestIndexAndRequestData(t *testing.T) {
	env := newTestEnv(t)

	docs, err := env.store.Headlines().InsertMany([]any{
		domain.Headline{Title: "a"},
		domain.Headline{Title: "b"},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec, body := env.do(t, http.MethodPost, "/index", map[string]any{"ids": []string{docs[0].ID()}})
	if rec.Code != http.StatusOK || body["message"] != "successful" {
		t.Fatalf("index: %d %v", rec.Code, body)
	}

	rec, body = env.do(t, http.MethodGet, "/request-data", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("request-data status = %d", rec.Code)
	}
	if body["count"] != float64(1) {
		t.Fatalf("count = %v", body["count"])
	}
	news, ok := body["news"].([]any)
	if !ok || len(news) != 1 {
		t.Fatalf("news = %v", body["news"])
	}
}

func TestCleanEndpoint(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.store.Headlines().InsertMany([]any{
		domain.Headline{Title: "dup"},
		domain.Headline{Title: "dup"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec, body := env.do(t, http.MethodPost, "/clean", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clean status = %d", rec.Code)
	}
	before, ok := body["beforeCleaning"].(map[string]any)
	if !ok || before["totalNews"] != float64(2) {
		t.Fatalf("beforeCleaning = %v", body["beforeCleaning"])
	}
	after, ok := body["afterCleaning"].(map[string]any)
	if !ok || after["totalNews"] != float64(1) {
		t.Fatalf("afterCleaning = %v", body["afterCleaning"])
	}
}

func TestEnhancementsEndpoint(t *testing.T) {
	env := newTestEnv(t, domain.Subscriber{
		Name: "client", Active: true, Type: domain.SubscriberTypeClient,
	})

	docs, err := env.store.Headlines().InsertMany([]any{
		domain.Headline{Title: "t", Source: domain.HeadlineSource{Language: "bn"}},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec, body := env.do(t, http.MethodPost, "/enhancements", map[string]any{
		"headlines": []map[string]any{{"id": docs[0].ID(), "sentiment": "positive"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("enhancements status = %d, body = %v", rec.Code, body)
	}
	if body["message"] != "enhancements accepted" {
		t.Fatalf("message = %v", body["message"])
	}
	enh, ok := body["enhancements"].(map[string]any)
	if !ok || enh["success"] != float64(1) {
		t.Fatalf("enhancements = %v", body["enhancements"])
	}

	rec, body = env.do(t, http.MethodPost, "/enhancements", map[string]any{
		"headlines": []map[string]any{{"id": "missing"}},
	})
	if rec.Code != http.StatusOK || body["message"] != "Raw and enhanced news do not match, so no data is enhanced!" {
		t.Fatalf("no-match: %d %v", rec.Code, body)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec, body := env.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz: %d %v", rec.Code, body)
	}
}

func TestInvalidRequestBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/headlines", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
