// Package bolt persists the account directory and the call history log
// in a single bbolt file. Values are gob-encoded; only one process may
// hold the file open at a time.
package bolt

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"
)

const (
	bucketAccounts    = "Accounts"
	bucketEmailIndex  = "AccountsByEmail"
	bucketNameIndex   = "AccountsByUsername"
	bucketChatIndex   = "AccountsByChatID"
	bucketCallHistory = "CallHistory"
)

var buckets = []string{
	bucketAccounts,
	bucketEmailIndex,
	bucketNameIndex,
	bucketChatIndex,
	bucketCallHistory,
}

type DB struct {
	db *bbolt.DB
}

// Open opens or creates the database file and ensures all buckets
// exist. Leading directories must already exist.
func Open(path string) (*DB, error) {
	opts := &bbolt.Options{Timeout: 50 * time.Millisecond}
	db, err := bbolt.Open(path, 0640, opts)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func encode(value any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(raw []byte, value any) error {
	return gob.NewDecoder(bytes.NewReader(raw)).Decode(value)
}
