// Package storage names the mapper's document collections and owns the
// subscriber registry seeded from the configuration file.
package storage

import (
	"fmt"

	"github.com/samvad-hq/samvad-news-mapper/internal/docstore"
)

// Collection names.
const (
	ColHeadlines        = "headlines"
	ColSources          = "sources"
	ColPublishedSources = "published_sources"
	ColSourceUpdates    = "source_updates"
	ColSubscribers      = "subscribers"
)

// Collections lists every collection the store must create.
func Collections() []string {
	return []string{
		ColHeadlines,
		ColSources,
		ColPublishedSources,
		ColSourceUpdates,
		ColSubscribers,
	}
}

// Store bundles the document store with named collection handles.
type Store struct {
	DB *docstore.DB
}

// Open initializes the document store at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("storage requires a path")
	}
	db, err := docstore.Open(path, Collections())
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the underlying store.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Headlines returns the headline collection.
func (s *Store) Headlines() *docstore.Collection { return s.DB.C(ColHeadlines) }

// Sources returns the rotation pool collection.
func (s *Store) Sources() *docstore.Collection { return s.DB.C(ColSources) }

// PublishedSources returns the in-flight marker collection.
func (s *Store) PublishedSources() *docstore.Collection { return s.DB.C(ColPublishedSources) }

// SourceUpdates returns the pool refresh log collection.
func (s *Store) SourceUpdates() *docstore.Collection { return s.DB.C(ColSourceUpdates) }

// Subscribers returns the subscriber registry collection.
func (s *Store) Subscribers() *docstore.Collection { return s.DB.C(ColSubscribers) }
