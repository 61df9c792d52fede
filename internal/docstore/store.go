// Package docstore is a small document store on top of BadgerDB. Documents
// are JSON blobs grouped into named collections; a collection is a key
// prefix, so scans are prefix iterations. This mirrors the narrow surface
// the rest of the system needs: per-document get/set/update/delete plus
// collection scan and a single equality filter.
package docstore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// ErrKeyNotFound is returned by Get and Update when no document exists
// under the requested key.
var ErrKeyNotFound = errors.New("docstore: key not found")

// Store wraps a badger database. All methods are safe for concurrent use;
// badger provides the transaction isolation.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a store at dir. An empty dir opens an in-memory
// store, which the tests rely on.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func docKey(collection, key string) []byte {
	return []byte(collection + "/" + key)
}

// Get unmarshals the document at (collection, key) into out.
func (s *Store) Get(collection, key string, out any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(docKey(collection, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrKeyNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s/%s: %w", collection, key, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
}

// Exists reports whether a document is present without decoding it.
func (s *Store) Exists(collection, key string) (bool, error) {
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(docKey(collection, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("exists %s/%s: %w", collection, key, err)
	}
	return found, nil
}

// Set upserts the document at (collection, key).
func (s *Store) Set(collection, key string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(docKey(collection, key), data)
	})
}

// Update merges fields into an existing document and fails with
// ErrKeyNotFound when the key is absent. The merge is shallow: top-level
// fields in fields replace those in the stored document.
func (s *Store) Update(collection, key string, fields map[string]any) error {
	return s.db.Update(func(txn *badger.Txn) error {
		k := docKey(collection, key)
		item, err := txn.Get(k)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrKeyNotFound
		}
		if err != nil {
			return fmt.Errorf("update %s/%s: %w", collection, key, err)
		}
		var doc map[string]any
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		}); err != nil {
			return fmt.Errorf("decode %s/%s: %w", collection, key, err)
		}
		for f, v := range fields {
			doc[f] = normalizeValue(v)
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", collection, key, err)
		}
		return txn.Set(k, data)
	})
}

// Delete removes the document at (collection, key). Deleting an absent key
// is a no-op, matching typical document-store semantics.
func (s *Store) Delete(collection, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(docKey(collection, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// Scan visits every document in a collection. fn receives the document key
// (without the collection prefix) and the raw JSON value; returning an
// error stops the scan.
func (s *Store) Scan(collection string, fn func(key string, value []byte) error) error {
	prefix := []byte(collection + "/")
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := strings.TrimPrefix(string(item.Key()), collection+"/")
			err := item.Value(func(val []byte) error {
				cp := make([]byte, len(val))
				copy(cp, val)
				return fn(key, cp)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Query visits documents whose top-level field equals value. Equality is
// the only operator the system needs; it is checked against the JSON
// representation of both sides so numbers and bools compare sanely.
func (s *Store) Query(collection, field string, value any, fn func(key string, value []byte) error) error {
	want, err := json.Marshal(normalizeValue(value))
	if err != nil {
		return fmt.Errorf("marshal query value: %w", err)
	}
	return s.Scan(collection, func(key string, raw []byte) error {
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("decode %s/%s: %w", collection, key, err)
		}
		got, ok := doc[field]
		if !ok {
			return nil
		}
		if string(got) != string(want) {
			return nil
		}
		return fn(key, raw)
	})
}

// Count returns the number of documents in a collection.
func (s *Store) Count(collection string) (int, error) {
	prefix := []byte(collection + "/")
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return count, nil
}

// normalizeValue makes time.Time values round-trip the same way they do
// inside stored documents.
func normalizeValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.Format(time.RFC3339Nano)
	}
	return v
}
