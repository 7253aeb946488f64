// Package dedupe removes duplicate-title headlines, keeping the most
// recently created member of each group.
package dedupe

import (
	"fmt"
	"sort"

	"github.com/samvad-hq/samvad-news-mapper/internal/docstore"
	"github.com/samvad-hq/samvad-news-mapper/internal/logger"
	"github.com/samvad-hq/samvad-news-mapper/internal/storage"
)

// TitleGroup is one title bucket and its member count.
type TitleGroup struct {
	Title string `json:"title"`
	Count int    `json:"count"`
}

// Snapshot captures the title grouping at one point in time.
type Snapshot struct {
	Results   []TitleGroup `json:"results"`
	Count     int          `json:"count"`
	TotalNews int          `json:"totalNews"`
}

// Report holds the grouping before and after a cleaning run.
type Report struct {
	Before Snapshot `json:"beforeCleaning"`
	After  Snapshot `json:"afterCleaning"`
}

// Cleaner runs duplicate cleanup over the headline collection.
type Cleaner struct {
	store *storage.Store
	log   logger.Logger
}

// NewCleaner builds a cleaner on top of the store.
func NewCleaner(store *storage.Store, log logger.Logger) *Cleaner {
	if log == nil {
		log = &logger.NopLogger{}
	}
	return &Cleaner{store: store, log: log}
}

// CleanDuplicates deletes all but the newest headline in every title group
// with more than one member, then regroups. Groups of size one are untouched,
// so a second run is a no-op.
func (c *Cleaner) CleanDuplicates() (*Report, error) {
	before, err := c.snapshot()
	if err != nil {
		return nil, err
	}

	headlines := c.store.Headlines()
	for _, group := range before.Results {
		if group.Count <= 1 {
			continue
		}
		docs, err := headlines.Find(
			docstore.Filter{docstore.Eq("title", group.Title)},
			docstore.FindOptions{Sort: "createdAt", Limit: group.Count - 1},
		)
		if err != nil {
			return nil, fmt.Errorf("load duplicates for %q: %w", group.Title, err)
		}

		ids := make([]any, 0, len(docs))
		for _, doc := range docs {
			ids = append(ids, doc.ID())
		}
		if len(ids) == 0 {
			continue
		}
		if _, err := headlines.DeleteMany(docstore.Filter{docstore.In("id", ids...)}); err != nil {
			return nil, fmt.Errorf("delete duplicates for %q: %w", group.Title, err)
		}
	}

	after, err := c.snapshot()
	if err != nil {
		return nil, err
	}

	c.log.InfoObj("duplicate cleanup finished", "dedupe_result", map[string]any{
		"before_total": before.TotalNews,
		"after_total":  after.TotalNews,
		"removed":      before.TotalNews - after.TotalNews,
	})
	return &Report{Before: *before, After: *after}, nil
}

// snapshot groups all headlines by title.
func (c *Cleaner) snapshot() (*Snapshot, error) {
	groups, err := c.store.Headlines().GroupCount("title")
	if err != nil {
		return nil, fmt.Errorf("group headlines: %w", err)
	}

	snap := &Snapshot{Results: make([]TitleGroup, 0, len(groups))}
	for title, count := range groups {
		snap.Results = append(snap.Results, TitleGroup{Title: title, Count: count})
		snap.TotalNews += count
	}
	sort.Slice(snap.Results, func(i, j int) bool {
		return snap.Results[i].Title < snap.Results[j].Title
	})
	snap.Count = len(snap.Results)
	return snap, nil
}
