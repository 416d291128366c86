// Package boltkv implements kv.Store on top of a bbolt database file.
package boltkv

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/affilink/internal/server/kv"
)

var bucketKV = []byte("kv")

// headerSize is the length of the expiry prefix stored before each value
const headerSize = 8

// Options configures a Store
type Options struct {
	// Now overrides the clock, used by tests
	Now func() time.Time
	// SweepInterval controls how often expired entries are reclaimed
	// Zero disables the background sweeper
	SweepInterval time.Duration
}

// Store represents BoltDB-backed kv.Store.
// Each value is prefixed with its expiry as unix nanoseconds (0 = no expiry).
type Store struct {
	db       *bbolt.DB
	now      func() time.Time
	stopC    chan struct{}
	doneC    chan struct{}
	stopOnce sync.Once
}

var _ kv.Store = (*Store)(nil)

// New opens (or creates) the database file at dbPath
func New(dbPath string, opts Options) (*Store, error) {
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketKV)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize bucket: %w", err)
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Store{
		db:    db,
		now:   opts.Now,
		stopC: make(chan struct{}),
		doneC: make(chan struct{}),
	}

	if opts.SweepInterval > 0 {
		go s.sweepLoop(opts.SweepInterval)
	} else {
		close(s.doneC)
	}

	return s, nil
}

// Get returns the value stored under key
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte

	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketKV).Get([]byte(key))
		if raw == nil {
			return kv.ErrNotFound
		}

		payload, expired, err := s.decode(raw)
		if err != nil {
			return err
		}
		if expired {
			return kv.ErrNotFound
		}

		// Данные bbolt валидны только внутри транзакции
		value = make([]byte, len(payload))
		copy(value, payload)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return value, nil
}

// Set stores value under key
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).UnixNano()
	}

	raw := make([]byte, headerSize+len(value))
	binary.BigEndian.PutUint64(raw[:headerSize], uint64(expiresAt))
	copy(raw[headerSize:], value)

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketKV).Put([]byte(key), raw)
	})
	if err != nil {
		return fmt.Errorf("failed to put key: %w", err)
	}

	return nil
}

// Delete removes key
func (s *Store) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketKV).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	return nil
}

// Sweep removes expired entries and returns how many were removed
func (s *Store) Sweep() (int, error) {
	removed := 0

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketKV)

		// Удаление во время обхода курсором пропускает элементы, поэтому сначала собираем ключи
		var expiredKeys [][]byte
		err := b.ForEach(func(k, v []byte) error {
			if _, expired, err := s.decode(v); err != nil || expired {
				expiredKeys = append(expiredKeys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range expiredKeys {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired keys: %w", err)
	}

	return removed, nil
}

// Close stops the sweeper and closes the database
func (s *Store) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopC)
	})
	<-s.doneC

	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) sweepLoop(interval time.Duration) {
	defer close(s.doneC)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.Sweep()
		case <-s.stopC:
			return
		}
	}
}

func (s *Store) decode(raw []byte) ([]byte, bool, error) {
	if len(raw) < headerSize {
		return nil, false, fmt.Errorf("boltkv: corrupted entry of %d bytes", len(raw))
	}

	expiresAt := int64(binary.BigEndian.Uint64(raw[:headerSize]))
	expired := expiresAt != 0 && s.now().UnixNano() >= expiresAt

	return raw[headerSize:], expired, nil
}
