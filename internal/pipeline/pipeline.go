// Package pipeline implements the headline ingestion, enhancement merge, and
// indexing operations.
package pipeline

import (
	"context"
	"fmt"

	"github.com/samvad-hq/samvad-news-mapper/internal/apperr"
	"github.com/samvad-hq/samvad-news-mapper/internal/docstore"
	"github.com/samvad-hq/samvad-news-mapper/internal/domain"
	"github.com/samvad-hq/samvad-news-mapper/internal/fanout"
	"github.com/samvad-hq/samvad-news-mapper/internal/logger"
	"github.com/samvad-hq/samvad-news-mapper/internal/metrics"
	"github.com/samvad-hq/samvad-news-mapper/internal/rotation"
	"github.com/samvad-hq/samvad-news-mapper/internal/storage"
)

const unindexedBatchLimit = 1000

// Service runs the ingestion and enhancement flows.
type Service struct {
	store      *storage.Store
	rotation   *rotation.Manager
	dispatcher *fanout.Dispatcher
	log        logger.Logger
}

// NewService wires the pipeline with its collaborators.
func NewService(store *storage.Store, rot *rotation.Manager, dispatcher *fanout.Dispatcher, log logger.Logger) *Service {
	if log == nil {
		log = &logger.NopLogger{}
	}
	return &Service{store: store, rotation: rot, dispatcher: dispatcher, log: log}
}

// IngestResult reports one ingestion run. Message is set on the no-op paths;
// otherwise Stored and Publish carry the outcome.
type IngestResult struct {
	Message string
	Stored  int
	Publish domain.PublishStatus
}

// NoOp reports whether the batch was accepted without any mutation.
func (r *IngestResult) NoOp() bool { return r.Message != "" }

// Ingest validates the batch, stores the headlines not already present for
// the batch source, releases the source's in-flight marker, and fans the
// stored headlines out to subscribers.
//
// Only titled headlines take part in the duplicate lookup; untitled ones are
// stored regardless. The marker is released on every exit path once
// validation has passed, so a storage failure cannot leave the source stuck
// in flight.
func (s *Service) Ingest(ctx context.Context, batch domain.HeadlineBatch) (*IngestResult, error) {
	if batch.TotalResults == 0 {
		return &IngestResult{Message: "No news found, so no data added!"}, nil
	}
	if batch.Source == nil {
		return &IngestResult{Message: "No source found, so no data added!"}, nil
	}
	if len(batch.News) == 0 || batch.TotalResults != len(batch.News) {
		return nil, apperr.Validation("Corrupt data provided! No data added!")
	}

	saved, err := s.storeNewHeadlines(batch)
	if releaseErr := s.rotation.Release(batch.Source.ID); releaseErr != nil {
		s.log.ErrorObj("marker release failed", "ingest_release_error", map[string]any{
			"source_id": batch.Source.ID,
			"error":     releaseErr.Error(),
		})
	}
	if err != nil {
		return nil, err
	}

	metrics.HeadlinesStored.Add(float64(len(saved)))
	status, err := s.dispatcher.Dispatch(ctx, fanout.Event{
		Mode:      fanout.ModeInsert,
		Headlines: saved,
	})
	if err != nil {
		return nil, err
	}

	return &IngestResult{Stored: len(saved), Publish: status}, nil
}

// storeNewHeadlines persists the batch headlines whose (title, source name)
// pair is not already stored and returns the stored documents.
func (s *Service) storeNewHeadlines(batch domain.HeadlineBatch) ([]domain.Headline, error) {
	titles := make([]any, 0, len(batch.News))
	for _, h := range batch.News {
		if h.Title == "" {
			continue
		}
		titles = append(titles, h.Title)
	}

	existingTitles := make(map[string]bool)
	if len(titles) > 0 {
		docs, err := s.store.Headlines().Find(docstore.Filter{
			docstore.In("title", titles...),
			docstore.Eq("source.name", batch.Source.Name),
		}, docstore.FindOptions{})
		if err != nil {
			return nil, fmt.Errorf("load existing headlines: %w", err)
		}
		existing, err := docstore.DecodeAll[domain.Headline](docs)
		if err != nil {
			return nil, err
		}
		for _, h := range existing {
			existingTitles[h.Title] = true
		}
	}

	toInsert := make([]any, 0, len(batch.News))
	for _, h := range batch.News {
		if h.Title != "" && existingTitles[h.Title] {
			continue
		}
		toInsert = append(toInsert, h)
	}
	if len(toInsert) == 0 {
		return nil, nil
	}

	savedDocs, err := s.store.Headlines().InsertMany(toInsert)
	if err != nil {
		return nil, fmt.Errorf("store headlines: %w", err)
	}
	return docstore.DecodeAll[domain.Headline](savedDocs)
}

// EnhanceResult reports one enhancement run.
type EnhanceResult struct {
	Message      string
	Enhancements domain.PublishStatus
	Publish      domain.PublishStatus
}

// NoOp reports whether the request matched nothing and mutated nothing.
func (r *EnhanceResult) NoOp() bool { return r.Message != "" && r.Message != "enhancements accepted" }

// ApplyEnhancements merges partial-field updates onto stored headlines by id
// and fans the raw entries out to client subscribers. A merge failure for one
// entry never blocks the others.
func (s *Service) ApplyEnhancements(ctx context.Context, entries []domain.Enhancement) (*EnhanceResult, error) {
	if len(entries) == 0 {
		return &EnhanceResult{Message: "No headlines found, so no data is enhanced!"}, nil
	}

	ids := make([]any, 0, len(entries))
	byID := make(map[string]domain.Enhancement, len(entries))
	for _, entry := range entries {
		id := entry.ID()
		if id == "" {
			continue
		}
		ids = append(ids, id)
		byID[id] = entry
	}

	var stored []domain.Headline
	if len(ids) > 0 {
		docs, err := s.store.Headlines().Find(
			docstore.Filter{docstore.In("id", ids...)}, docstore.FindOptions{})
		if err != nil {
			return nil, fmt.Errorf("load headlines: %w", err)
		}
		stored, err = docstore.DecodeAll[domain.Headline](docs)
		if err != nil {
			return nil, err
		}
	}
	if len(stored) == 0 {
		return &EnhanceResult{Message: "Raw and enhanced news do not match, so no data is enhanced!"}, nil
	}

	var tally domain.PublishStatus
	for _, headline := range stored {
		entry, ok := byID[headline.ID]
		if !ok {
			continue
		}
		patch := make(map[string]any, len(entry))
		for k, v := range entry {
			if k == "id" || k == "title" {
				continue
			}
			patch[k] = v
		}
		if len(patch) == 0 {
			tally.Success++
			metrics.Enhancements.WithLabelValues("success").Inc()
			continue
		}
		if _, err := s.store.Headlines().UpdateMany(
			docstore.Filter{docstore.Eq("id", headline.ID)}, patch); err != nil {
			tally.Failure++
			metrics.Enhancements.WithLabelValues("failure").Inc()
			s.log.ErrorObj("enhancement failed", "enhance_error", map[string]any{
				"title": headline.Title,
				"error": err.Error(),
			})
			continue
		}
		tally.Success++
		metrics.Enhancements.WithLabelValues("success").Inc()
	}

	status, err := s.dispatcher.Dispatch(ctx, fanout.Event{
		Mode:           fanout.ModeUpdate,
		Entries:        entries,
		SourceLanguage: stored[0].Source.Language,
	})
	if err != nil {
		return nil, err
	}

	return &EnhanceResult{
		Message:      "enhancements accepted",
		Enhancements: tally,
		Publish:      status,
	}, nil
}

// MarkIndexed flips the indexed flag for the given headline ids.
func (s *Service) MarkIndexed(ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := s.store.Headlines().UpdateMany(
		docstore.Filter{docstore.In("id", docstore.Strings(ids)...)},
		map[string]any{"indexed": true},
	)
	if err != nil {
		return 0, fmt.Errorf("mark indexed: %w", err)
	}
	s.log.InfoObj("documents indexed", "index_result", map[string]any{"count": n})
	return n, nil
}

// UnindexedData returns up to 1000 un-indexed headlines plus the total
// un-indexed count.
func (s *Service) UnindexedData() ([]domain.Headline, int, error) {
	filter := docstore.Filter{docstore.Eq("indexed", false)}
	docs, err := s.store.Headlines().Find(filter, docstore.FindOptions{Limit: unindexedBatchLimit})
	if err != nil {
		return nil, 0, fmt.Errorf("load unindexed headlines: %w", err)
	}
	news, err := docstore.DecodeAll[domain.Headline](docs)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.store.Headlines().Count(filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count unindexed headlines: %w", err)
	}
	return news, count, nil
}
