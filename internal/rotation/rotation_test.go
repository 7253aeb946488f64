package rotation

import (
	"testing"
	"time"

	"github.com/samvad-hq/samvad-news-mapper/internal/apperr"
	"github.com/samvad-hq/samvad-news-mapper/internal/docstore"
	"github.com/samvad-hq/samvad-news-mapper/internal/domain"
	"github.com/samvad-hq/samvad-news-mapper/internal/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(t.TempDir() + "/mapper.db")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRequestEmptyPoolRequiresUpdate(t *testing.T) {
	m := NewManager(openTestStore(t), nil)

	_, err := m.Request()
	if !apperr.IsKind(err, apperr.KindPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
}

func TestRequestStalePoolRequiresUpdate(t *testing.T) {
	store := openTestStore(t)
	m := NewManager(store, nil)

	if _, err := m.Register([]domain.Source{{ID: "a", Name: "A", SeqNum: 1}}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// The refresh above happened "yesterday" from the manager's view.
	m.now = func() time.Time { return time.Now().UTC().Add(48 * time.Hour) }

	_, err := m.Request()
	if !apperr.IsKind(err, apperr.KindPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
}

func TestRequestClaimsLowestSequence(t *testing.T) {
	store := openTestStore(t)
	m := NewManager(store, nil)

	if _, err := m.Register([]domain.Source{
		{ID: "a", Name: "A", SeqNum: 1},
		{ID: "b", Name: "B", SeqNum: 2},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	src, err := m.Request()
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if src.ID != "a" {
		t.Fatalf("claimed %q, want a", src.ID)
	}
	if src.SeqNum != 2 {
		t.Fatalf("seqNum = %d, want 2", src.SeqNum)
	}

	markers, err := store.PublishedSources().Count(
		docstore.Filter{docstore.Eq("sourceId", "a")})
	if err != nil || markers != 1 {
		t.Fatalf("marker count = %d, err=%v", markers, err)
	}

	// The claim is visible to the next caller: "a" is in flight, so "b"
	// is handed out even though both now share seqNum 2.
	src, err = m.Request()
	if err != nil {
		t.Fatalf("second Request: %v", err)
	}
	if src.ID != "b" {
		t.Fatalf("claimed %q, want b", src.ID)
	}

	_, err = m.Request()
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not-found with every source in flight, got %v", err)
	}
}

func TestReleaseReturnsSourceToRotation(t *testing.T) {
	store := openTestStore(t)
	m := NewManager(store, nil)

	if _, err := m.Register([]domain.Source{{ID: "a", Name: "A", SeqNum: 1}}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := m.Request(); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := m.Release("a"); err != nil {
		t.Fatalf("Release: %v", err)
	}

	src, err := m.Request()
	if err != nil {
		t.Fatalf("Request after release: %v", err)
	}
	if src.ID != "a" || src.SeqNum != 3 {
		t.Fatalf("claimed %q seq %d, want a seq 3", src.ID, src.SeqNum)
	}
}

func TestRegisterEmptyPoolInsertsCandidatesVerbatim(t *testing.T) {
	store := openTestStore(t)
	m := NewManager(store, nil)

	result, err := m.Register([]domain.Source{
		{ID: "a", Name: "A", SeqNum: 7},
		{ID: "b", Name: "B", SeqNum: 9},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if result.Message != "updated" || result.UpdateCount != 2 {
		t.Fatalf("result = %+v", result)
	}

	docs, err := store.Sources().Find(nil, docstore.FindOptions{Sort: "seqNum"})
	if err != nil || len(docs) != 2 {
		t.Fatalf("sources: %d err=%v", len(docs), err)
	}
	sources, err := docstore.DecodeAll[domain.Source](docs)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sources[0].SeqNum != 7 || sources[1].SeqNum != 9 {
		t.Fatalf("sequence numbers altered: %+v", sources)
	}
}

func TestRegisterOverlappingSetIsNoOp(t *testing.T) {
	store := openTestStore(t)
	m := NewManager(store, nil)

	if _, err := m.Register([]domain.Source{{ID: "a", Name: "A", SeqNum: 1}}); err != nil {
		t.Fatalf("seed Register: %v", err)
	}

	result, err := m.Register([]domain.Source{{ID: "a", Name: "A", SeqNum: 99}})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if result.Message != "no-op" || result.UpdateCount != 0 {
		t.Fatalf("result = %+v", result)
	}

	count, err := store.Sources().Count(nil)
	if err != nil || count != 1 {
		t.Fatalf("pool size = %d, err=%v", count, err)
	}

	// The no-op still appends a refresh log entry.
	updates, err := store.SourceUpdates().Count(nil)
	if err != nil || updates != 2 {
		t.Fatalf("update log entries = %d, err=%v", updates, err)
	}
}

func TestRegisterSeedsNewSourcesAheadOfPool(t *testing.T) {
	store := openTestStore(t)
	m := NewManager(store, nil)

	if _, err := m.Register([]domain.Source{
		{ID: "a", Name: "A", SeqNum: 5},
		{ID: "b", Name: "B", SeqNum: 3},
	}); err != nil {
		t.Fatalf("seed Register: %v", err)
	}

	result, err := m.Register([]domain.Source{
		{ID: "a", Name: "A"},
		{ID: "c", Name: "C"},
		{ID: "d", Name: "D"},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if result.Message != "updated" || result.UpdateCount != 2 {
		t.Fatalf("result = %+v", result)
	}

	docs, err := store.Sources().Find(
		docstore.Filter{docstore.In("id", "c", "d")}, docstore.FindOptions{})
	if err != nil || len(docs) != 2 {
		t.Fatalf("new sources: %d err=%v", len(docs), err)
	}
	sources, err := docstore.DecodeAll[domain.Source](docs)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, src := range sources {
		if src.SeqNum != 2 {
			t.Fatalf("source %s seqNum = %d, want 2 (min-1)", src.ID, src.SeqNum)
		}
	}
}
