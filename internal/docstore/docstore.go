// Package docstore is a small JSON document store on top of BoltDB. Each
// collection maps to a bucket; documents are JSON objects keyed by their
// generated "id" field. It supports the filtered queries the mapper needs
// (equality, set membership, sort, limit, distinct, group counts) plus a
// cross-collection read-modify-write transaction for atomic claims.
package docstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// Document is a decoded JSON object.
type Document map[string]any

// ID returns the document id.
func (d Document) ID() string {
	id, _ := d["id"].(string)
	return id
}

// Decode re-marshals the document into a typed value.
func (d Document) Decode(v any) error {
	raw, err := json.Marshal(map[string]any(d))
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// DecodeAll decodes a result set into typed values.
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := doc.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// FindOptions controls result ordering and size.
type FindOptions struct {
	Sort  string
	Desc  bool
	Limit int
}

// DB is a BoltDB-backed document store.
type DB struct {
	db  *bolt.DB
	now func() time.Time
}

// Open initializes the store at path and creates the named collections.
func Open(path string, collections []string) (*DB, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range collections {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init collections: %w", err)
	}

	return &DB{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the underlying BoltDB file.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// C returns a handle for the named collection. Each operation runs in its own
// BoltDB transaction.
func (d *DB) C(name string) *Collection {
	return &Collection{db: d, name: name}
}

// Update runs fn inside one BoltDB write transaction. BoltDB serializes write
// transactions, which makes read-then-write sequences inside fn atomic with
// respect to every other store operation.
func (d *DB) Update(fn func(tx *Tx) error) error {
	return d.db.Update(func(btx *bolt.Tx) error {
		return fn(&Tx{btx: btx, now: d.now})
	})
}

// View runs fn inside one read-only transaction.
func (d *DB) View(fn func(tx *Tx) error) error {
	return d.db.View(func(btx *bolt.Tx) error {
		return fn(&Tx{btx: btx, now: d.now})
	})
}

// Collection is a named document set.
type Collection struct {
	db   *DB
	name string
}

// Find returns documents matching the filter, honoring sort and limit.
func (c *Collection) Find(filter Filter, opts FindOptions) ([]Document, error) {
	var docs []Document
	err := c.db.View(func(tx *Tx) error {
		var err error
		docs, err = tx.C(c.name).Find(filter, opts)
		return err
	})
	return docs, err
}

// FindOne returns the first document matching the filter.
func (c *Collection) FindOne(filter Filter, opts FindOptions) (Document, bool, error) {
	opts.Limit = 1
	docs, err := c.Find(filter, opts)
	if err != nil || len(docs) == 0 {
		return nil, false, err
	}
	return docs[0], true, nil
}

// InsertMany stores the given values as new documents, assigning ids and
// timestamps, and returns the stored documents.
func (c *Collection) InsertMany(vals []any) ([]Document, error) {
	var docs []Document
	err := c.db.Update(func(tx *Tx) error {
		var err error
		docs, err = tx.C(c.name).InsertMany(vals)
		return err
	})
	return docs, err
}

// UpdateMany applies the patch to every matching document and returns the
// number updated.
func (c *Collection) UpdateMany(filter Filter, patch map[string]any) (int, error) {
	var n int
	err := c.db.Update(func(tx *Tx) error {
		var err error
		n, err = tx.C(c.name).UpdateMany(filter, patch)
		return err
	})
	return n, err
}

// DeleteOne removes the first matching document.
func (c *Collection) DeleteOne(filter Filter) (int, error) {
	var n int
	err := c.db.Update(func(tx *Tx) error {
		var err error
		n, err = tx.C(c.name).DeleteOne(filter)
		return err
	})
	return n, err
}

// DeleteMany removes every matching document and returns the number deleted.
func (c *Collection) DeleteMany(filter Filter) (int, error) {
	var n int
	err := c.db.Update(func(tx *Tx) error {
		var err error
		n, err = tx.C(c.name).DeleteMany(filter)
		return err
	})
	return n, err
}

// Distinct returns the unique values of field across matching documents.
func (c *Collection) Distinct(field string, filter Filter) ([]any, error) {
	var vals []any
	err := c.db.View(func(tx *Tx) error {
		var err error
		vals, err = tx.C(c.name).Distinct(field, filter)
		return err
	})
	return vals, err
}

// Count returns the number of matching documents.
func (c *Collection) Count(filter Filter) (int, error) {
	var n int
	err := c.db.View(func(tx *Tx) error {
		var err error
		n, err = tx.C(c.name).Count(filter)
		return err
	})
	return n, err
}

// GroupCount groups documents by the string value of field and counts each
// group.
func (c *Collection) GroupCount(field string) (map[string]int, error) {
	var groups map[string]int
	err := c.db.View(func(tx *Tx) error {
		var err error
		groups, err = tx.C(c.name).GroupCount(field)
		return err
	})
	return groups, err
}

// Tx is an open store transaction.
type Tx struct {
	btx *bolt.Tx
	now func() time.Time
}

// C returns the transactional handle for the named collection.
func (t *Tx) C(name string) *TxCollection {
	return &TxCollection{tx: t, name: name}
}

// TxCollection operates on a collection inside an open transaction.
type TxCollection struct {
	tx   *Tx
	name string
}

func (c *TxCollection) bucket() (*bolt.Bucket, error) {
	bucket := c.tx.btx.Bucket([]byte(c.name))
	if bucket == nil {
		return nil, fmt.Errorf("collection %q missing", c.name)
	}
	return bucket, nil
}

// forEach decodes every document in the collection and calls fn for the ones
// matching the filter.
func (c *TxCollection) forEach(filter Filter, fn func(key []byte, doc Document) error) error {
	bucket, err := c.bucket()
	if err != nil {
		return err
	}
	return bucket.ForEach(func(k, v []byte) error {
		var doc Document
		if err := json.Unmarshal(v, &doc); err != nil {
			return fmt.Errorf("decode document %s: %w", k, err)
		}
		if !filter.matches(doc) {
			return nil
		}
		return fn(k, doc)
	})
}

// Find returns matching documents, honoring sort and limit.
func (c *TxCollection) Find(filter Filter, opts FindOptions) ([]Document, error) {
	var docs []Document
	err := c.forEach(filter, func(_ []byte, doc Document) error {
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if opts.Sort != "" {
		field := opts.Sort
		sort.SliceStable(docs, func(i, j int) bool {
			a := lookupPath(map[string]any(docs[i]), field)
			b := lookupPath(map[string]any(docs[j]), field)
			if opts.Desc {
				return valueLess(b, a)
			}
			return valueLess(a, b)
		})
	}
	if opts.Limit > 0 && len(docs) > opts.Limit {
		docs = docs[:opts.Limit]
	}
	return docs, nil
}

// FindOne returns the first matching document.
func (c *TxCollection) FindOne(filter Filter, opts FindOptions) (Document, bool, error) {
	opts.Limit = 1
	docs, err := c.Find(filter, opts)
	if err != nil || len(docs) == 0 {
		return nil, false, err
	}
	return docs[0], true, nil
}

// InsertMany stores vals as new documents. Missing ids are generated; missing
// createdAt/updatedAt timestamps are set to now.
func (c *TxCollection) InsertMany(vals []any) ([]Document, error) {
	bucket, err := c.bucket()
	if err != nil {
		return nil, err
	}

	now := c.tx.now()
	docs := make([]Document, 0, len(vals))
	for _, val := range vals {
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("encode value: %w", err)
		}
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode value: %w", err)
		}

		id, _ := doc["id"].(string)
		if id == "" {
			id = uuid.NewString()
			doc["id"] = id
		}
		if _, ok := doc["createdAt"]; !ok {
			doc["createdAt"] = now.Format(time.RFC3339Nano)
		}
		doc["updatedAt"] = now.Format(time.RFC3339Nano)

		stored, err := json.Marshal(map[string]any(doc))
		if err != nil {
			return nil, fmt.Errorf("encode document: %w", err)
		}
		if err := bucket.Put([]byte(id), stored); err != nil {
			return nil, fmt.Errorf("store document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// UpdateMany applies the patch to every matching document.
func (c *TxCollection) UpdateMany(filter Filter, patch map[string]any) (int, error) {
	bucket, err := c.bucket()
	if err != nil {
		return 0, err
	}

	type pending struct {
		key []byte
		val []byte
	}
	var updates []pending
	err = c.forEach(filter, func(key []byte, doc Document) error {
		for k, v := range patch {
			if k == "id" {
				continue
			}
			doc[k] = v
		}
		doc["updatedAt"] = c.tx.now().Format(time.RFC3339Nano)
		raw, err := json.Marshal(map[string]any(doc))
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
		updates = append(updates, pending{key: append([]byte(nil), key...), val: raw})
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, u := range updates {
		if err := bucket.Put(u.key, u.val); err != nil {
			return 0, fmt.Errorf("store document: %w", err)
		}
	}
	return len(updates), nil
}

// DeleteOne removes the first matching document.
func (c *TxCollection) DeleteOne(filter Filter) (int, error) {
	return c.delete(filter, 1)
}

// DeleteMany removes every matching document.
func (c *TxCollection) DeleteMany(filter Filter) (int, error) {
	return c.delete(filter, 0)
}

func (c *TxCollection) delete(filter Filter, limit int) (int, error) {
	bucket, err := c.bucket()
	if err != nil {
		return 0, err
	}

	var keys [][]byte
	err = c.forEach(filter, func(key []byte, _ Document) error {
		if limit > 0 && len(keys) >= limit {
			return nil
		}
		keys = append(keys, append([]byte(nil), key...))
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, key := range keys {
		if err := bucket.Delete(key); err != nil {
			return 0, fmt.Errorf("delete document: %w", err)
		}
	}
	return len(keys), nil
}

// Distinct returns the unique values of field across matching documents.
func (c *TxCollection) Distinct(field string, filter Filter) ([]any, error) {
	var vals []any
	err := c.forEach(filter, func(_ []byte, doc Document) error {
		v := lookupPath(map[string]any(doc), field)
		if v == nil {
			return nil
		}
		if !valueIn(v, vals) {
			vals = append(vals, v)
		}
		return nil
	})
	return vals, err
}

// Count returns the number of matching documents.
func (c *TxCollection) Count(filter Filter) (int, error) {
	n := 0
	err := c.forEach(filter, func([]byte, Document) error {
		n++
		return nil
	})
	return n, err
}

// GroupCount groups documents by the string value of field.
func (c *TxCollection) GroupCount(field string) (map[string]int, error) {
	groups := make(map[string]int)
	err := c.forEach(nil, func(_ []byte, doc Document) error {
		key, _ := lookupPath(map[string]any(doc), field).(string)
		groups[key]++
		return nil
	})
	return groups, err
}
