// Package rotation hands out content sources on a daily cadence. Each source
// carries a sequence number; a claim always takes the available source with
// the smallest one and bumps it so the source cycles to the back of the pool.
package rotation

import (
	"fmt"
	"time"

	"github.com/samvad-hq/samvad-news-mapper/internal/apperr"
	"github.com/samvad-hq/samvad-news-mapper/internal/docstore"
	"github.com/samvad-hq/samvad-news-mapper/internal/domain"
	"github.com/samvad-hq/samvad-news-mapper/internal/logger"
	"github.com/samvad-hq/samvad-news-mapper/internal/metrics"
	"github.com/samvad-hq/samvad-news-mapper/internal/storage"
)

// Manager coordinates source claims, releases, and pool refreshes.
type Manager struct {
	store *storage.Store
	log   logger.Logger
	now   func() time.Time
}

// NewManager builds a rotation manager on top of the store.
func NewManager(store *storage.Store, log logger.Logger) *Manager {
	if log == nil {
		log = &logger.NopLogger{}
	}
	return &Manager{
		store: store,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// RegisterResult reports the outcome of a pool refresh.
type RegisterResult struct {
	Message     string `json:"message"`
	UpdateCount int    `json:"updateCount"`
}

// Request claims the next source. It fails with a precondition error when the
// pool is empty or has not been refreshed today, and with a not-found error
// when every source is in flight. The claim itself (select, mark, bump
// sequence) runs in a single store transaction so two concurrent requests can
// never be handed the same source.
func (m *Manager) Request() (*domain.Source, error) {
	poolSize, err := m.store.Sources().Count(nil)
	if err != nil {
		return nil, fmt.Errorf("count sources: %w", err)
	}
	if poolSize == 0 {
		return nil, apperr.Precondition("No sources available.")
	}

	fresh, err := m.updatedToday()
	if err != nil {
		return nil, err
	}
	if !fresh {
		return nil, apperr.Precondition("Daily source update is required.")
	}

	var claimed *domain.Source
	err = m.store.DB.Update(func(tx *docstore.Tx) error {
		inFlight, err := tx.C(storage.ColPublishedSources).Distinct("sourceId", nil)
		if err != nil {
			return fmt.Errorf("list in-flight sources: %w", err)
		}

		filter := docstore.Filter{}
		if len(inFlight) > 0 {
			filter = append(filter, docstore.NotIn("id", inFlight...))
		}
		doc, ok, err := tx.C(storage.ColSources).FindOne(filter, docstore.FindOptions{Sort: "seqNum"})
		if err != nil {
			return fmt.Errorf("select source: %w", err)
		}
		if !ok {
			return apperr.NotFound("Could not find an available source.")
		}

		var src domain.Source
		if err := doc.Decode(&src); err != nil {
			return err
		}

		marker := domain.PublishedSource{SourceID: src.ID}
		if _, err := tx.C(storage.ColPublishedSources).InsertMany([]any{marker}); err != nil {
			return fmt.Errorf("mark source in flight: %w", err)
		}

		src.SeqNum++
		patch := map[string]any{"seqNum": src.SeqNum}
		if _, err := tx.C(storage.ColSources).UpdateMany(
			docstore.Filter{docstore.Eq("id", src.ID)}, patch); err != nil {
			return fmt.Errorf("advance source sequence: %w", err)
		}

		claimed = &src
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.SourceClaims.Inc()
	m.log.InfoObj("source claimed", "rotation_claim", map[string]any{
		"source_id": claimed.ID,
		"seq_num":   claimed.SeqNum,
	})
	return claimed, nil
}

// updatedToday reports whether a pool refresh was logged on the current
// calendar day (UTC).
func (m *Manager) updatedToday() (bool, error) {
	doc, ok, err := m.store.SourceUpdates().FindOne(nil, docstore.FindOptions{
		Sort: "createdAt",
		Desc: true,
	})
	if err != nil {
		return false, fmt.Errorf("load source updates: %w", err)
	}
	if !ok {
		return false, nil
	}

	var update domain.SourceUpdate
	if err := doc.Decode(&update); err != nil {
		return false, err
	}

	now := m.now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return !update.CreatedAt.Before(startOfDay), nil
}

// Register merges candidate sources into the pool. New entries are seeded
// with min(existing sequence numbers)-1 so they rotate in first. Every call
// appends a refresh log entry, including no-ops.
func (m *Manager) Register(candidates []domain.Source) (*RegisterResult, error) {
	var result *RegisterResult
	err := m.store.DB.Update(func(tx *docstore.Tx) error {
		sources := tx.C(storage.ColSources)
		updates := tx.C(storage.ColSourceUpdates)

		existingDocs, err := sources.Find(nil, docstore.FindOptions{})
		if err != nil {
			return fmt.Errorf("load sources: %w", err)
		}
		existing, err := docstore.DecodeAll[domain.Source](existingDocs)
		if err != nil {
			return err
		}

		if len(existing) == 0 {
			if err := insertSources(sources, candidates); err != nil {
				return err
			}
			if err := logUpdate(updates, true, len(candidates)); err != nil {
				return err
			}
			result = &RegisterResult{Message: "updated", UpdateCount: len(candidates)}
			return nil
		}

		known := make(map[string]bool, len(existing))
		minSeq := existing[0].SeqNum
		for _, src := range existing {
			known[src.ID] = true
			if src.SeqNum < minSeq {
				minSeq = src.SeqNum
			}
		}

		fresh := make([]domain.Source, 0, len(candidates))
		for _, cand := range candidates {
			if known[cand.ID] {
				continue
			}
			cand.SeqNum = minSeq - 1
			fresh = append(fresh, cand)
		}

		if len(fresh) == 0 {
			if err := logUpdate(updates, false, 0); err != nil {
				return err
			}
			result = &RegisterResult{Message: "no-op", UpdateCount: 0}
			return nil
		}

		if err := insertSources(sources, fresh); err != nil {
			return err
		}
		if err := logUpdate(updates, true, len(fresh)); err != nil {
			return err
		}
		result = &RegisterResult{Message: "updated", UpdateCount: len(fresh)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.InfoObj("source pool refreshed", "rotation_refresh", result)
	return result, nil
}

// Release removes the in-flight marker for the given source.
func (m *Manager) Release(sourceID string) error {
	if sourceID == "" {
		return nil
	}
	if _, err := m.store.PublishedSources().DeleteOne(
		docstore.Filter{docstore.Eq("sourceId", sourceID)}); err != nil {
		return fmt.Errorf("release source %s: %w", sourceID, err)
	}
	return nil
}

func insertSources(col *docstore.TxCollection, sources []domain.Source) error {
	vals := make([]any, len(sources))
	for i := range sources {
		vals[i] = sources[i]
	}
	if _, err := col.InsertMany(vals); err != nil {
		return fmt.Errorf("insert sources: %w", err)
	}
	return nil
}

func logUpdate(col *docstore.TxCollection, updated bool, amount int) error {
	entry := domain.SourceUpdate{Updated: updated, Amount: amount}
	if _, err := col.InsertMany([]any{entry}); err != nil {
		return fmt.Errorf("log source update: %w", err)
	}
	return nil
}
