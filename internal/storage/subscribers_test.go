package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/samvad-hq/samvad-news-mapper/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir() + "/mapper.db")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadSubscribersFileYAML(t *testing.T) {
	path := writeFile(t, "subscribers.yaml", `
subscribers:
  - name: indexer
    host: http://indexer.internal
    endpoint: /webhook/
    prod: Production
    active: true
  - name: client-app
    host: http://localhost
    port: 4000
    endpoint: news
    method: put
    type: Client
    active: true
  - name: archive
    transport: sqs
    queueURL: https://sqs.ap-south-1.amazonaws.com/123/mapper
    active: false
`)

	subs, err := LoadSubscribersFile(path)
	if err != nil {
		t.Fatalf("LoadSubscribersFile: %v", err)
	}
	if len(subs) != 3 {
		t.Fatalf("loaded %d subscribers, want 3", len(subs))
	}

	indexer := subs[0]
	if indexer.Endpoint != "webhook" {
		t.Fatalf("endpoint not trimmed: %q", indexer.Endpoint)
	}
	if indexer.Method != "POST" {
		t.Fatalf("method default = %q, want POST", indexer.Method)
	}
	if indexer.Prod != "production" {
		t.Fatalf("prod not lowercased: %q", indexer.Prod)
	}
	if indexer.Transport != domain.TransportHTTP {
		t.Fatalf("transport default = %q, want http", indexer.Transport)
	}

	client := subs[1]
	if client.Method != "PUT" || client.Type != domain.SubscriberTypeClient {
		t.Fatalf("client = %+v", client)
	}
	if subs[2].Transport != domain.TransportSQS {
		t.Fatalf("archive transport = %q", subs[2].Transport)
	}
}

func TestLoadSubscribersFileJSON(t *testing.T) {
	path := writeFile(t, "subscribers.json",
		`{"subscribers":[{"name":"indexer","host":"http://h","endpoint":"hook","prod":"production","active":true}]}`)

	subs, err := LoadSubscribersFile(path)
	if err != nil {
		t.Fatalf("LoadSubscribersFile: %v", err)
	}
	if len(subs) != 1 || subs[0].Name != "indexer" {
		t.Fatalf("subs = %+v", subs)
	}
}

func TestLoadSubscribersFileValidation(t *testing.T) {
	cases := map[string]string{
		"missing name":     "subscribers:\n  - host: http://h\n    endpoint: hook\n    prod: production\n",
		"missing host":     "subscribers:\n  - name: a\n    endpoint: hook\n    prod: production\n",
		"missing endpoint": "subscribers:\n  - name: a\n    host: http://h\n    prod: production\n",
		"missing port":     "subscribers:\n  - name: a\n    host: http://h\n    endpoint: hook\n",
		"missing queue":    "subscribers:\n  - name: a\n    transport: sqs\n",
		"missing arn":      "subscribers:\n  - name: a\n    transport: sns\n",
		"missing topic":    "subscribers:\n  - name: a\n    transport: pubsub\n",
		"bad transport":    "subscribers:\n  - name: a\n    transport: smoke-signal\n",
		"duplicate name":   "subscribers:\n  - name: a\n    transport: sqs\n    queueURL: u\n  - name: a\n    transport: sqs\n    queueURL: u\n",
	}
	for name, content := range cases {
		path := writeFile(t, "subscribers.yaml", content)
		if _, err := LoadSubscribersFile(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestSeedAndActiveSubscribers(t *testing.T) {
	store := openTestStore(t)

	err := store.SeedSubscribers([]domain.Subscriber{
		{Name: "zeta", Active: true},
		{Name: "alpha", Active: true, Type: domain.SubscriberTypeClient},
		{Name: "dormant", Active: false},
	})
	if err != nil {
		t.Fatalf("SeedSubscribers: %v", err)
	}

	subs, err := store.ActiveSubscribers(false)
	if err != nil {
		t.Fatalf("ActiveSubscribers: %v", err)
	}
	if len(subs) != 2 || subs[0].Name != "alpha" || subs[1].Name != "zeta" {
		t.Fatalf("active = %+v, want alpha then zeta", subs)
	}

	clients, err := store.ActiveSubscribers(true)
	if err != nil {
		t.Fatalf("ActiveSubscribers(clientOnly): %v", err)
	}
	if len(clients) != 1 || clients[0].Name != "alpha" {
		t.Fatalf("clients = %+v", clients)
	}

	// Reseeding replaces the registry wholesale.
	if err := store.SeedSubscribers([]domain.Subscriber{{Name: "only", Active: true}}); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	subs, err = store.ActiveSubscribers(false)
	if err != nil || len(subs) != 1 || subs[0].Name != "only" {
		t.Fatalf("after reseed = %+v err=%v", subs, err)
	}
}
