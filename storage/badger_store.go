package storage

import (
	"chat-pubsub/errors"
	"context"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// BadgerStore is the embedded KeyValueStore. Each key holds one hash,
// serialized as a protobuf Struct of string values.
type BadgerStore struct {
	db  *badger.DB
	log *slog.Logger
}

func NewBadgerStore(db *badger.DB, log *slog.Logger) *BadgerStore {
	return &BadgerStore{db: db, log: log}
}

// OpenBadger opens the store at path, or in memory when path is empty.
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	return badger.Open(opts)
}

// SetFields merges fields into the hash at key, like HSET.
func (b *BadgerStore) SetFields(_ context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return b.db.Update(func(txn *badger.Txn) error {
		current, err := readHash(txn, key)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return err
		}
		if current == nil {
			current = make(map[string]string, len(fields))
		}
		for field, value := range fields {
			current[field] = value
		}

		data, err := encodeHash(current)
		if err != nil {
			return fmt.Errorf("marshal failed: %w", err)
		}
		return txn.Set([]byte(key), data)
	})
}

func (b *BadgerStore) GetFields(_ context.Context, key string) (map[string]string, error) {
	var fields map[string]string
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		fields, err = readHash(txn, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fields, nil
}

func (b *BadgerStore) GetField(ctx context.Context, key, field string) (string, error) {
	fields, err := b.GetFields(ctx, key)
	if err != nil {
		return "", err
	}
	value, ok := fields[field]
	if !ok {
		return "", errors.ErrNotFound
	}
	return value, nil
}

// Scan walks every hash whose key starts with prefix.
func (b *BadgerStore) Scan(prefix string, fn func(key string, fields map[string]string) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil))
			err := item.Value(func(val []byte) error {
				fields, err := decodeHash(val)
				if err != nil {
					b.log.Warn("Skipping undecodable entry", "key", key, "error", err)
					return nil
				}
				return fn(key, fields)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func readHash(txn *badger.Txn, key string) (map[string]string, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var fields map[string]string
	err = item.Value(func(val []byte) error {
		fields, err = decodeHash(val)
		return err
	})
	return fields, err
}

func encodeHash(fields map[string]string) ([]byte, error) {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	s, err := structpb.NewStruct(values)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

func decodeHash(data []byte) (map[string]string, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal failed: %w", err)
	}
	fields := make(map[string]string, len(s.GetFields()))
	for k, v := range s.GetFields() {
		fields[k] = v.GetStringValue()
	}
	return fields, nil
}
