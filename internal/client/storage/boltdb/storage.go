package boltdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

// bucketServers содержит по вложенному bucket на каждый URL сервера
var bucketServers = []byte("servers")

// Storage хранит токены клиента в BoltDB.
// Экземпляр работает с записями одного сервера, остальные только перечисляет.
type Storage struct {
	db        *bbolt.DB
	now       func() time.Time
	serverURL string
}

// New открывает файл dbPath и привязывает хранилище к serverURL.
// Файл создается с правами 0600: в нем лежат client secret и refresh token.
func New(ctx context.Context, dbPath, serverURL string) (*Storage, error) {
	serverURL = normalizeServerURL(serverURL)
	if serverURL == "" {
		return nil, fmt.Errorf("server url is required")
	}

	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketServers)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create servers bucket: %w", err)
	}

	return &Storage{db: db, now: time.Now, serverURL: serverURL}, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ServerURL возвращает сервер, к которому привязано хранилище
func (s *Storage) ServerURL() string {
	return s.serverURL
}

// Servers перечисляет серверы, для которых сохранен login
func (s *Storage) Servers(ctx context.Context) ([]string, error) {
	var servers []string

	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketServers)
		if root == nil {
			return errServersBucketMissing
		}
		return root.ForEachBucket(func(name []byte) error {
			servers = append(servers, string(name))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return servers, nil
}

// normalizeServerURL убирает завершающие "/", чтобы http://host и http://host/ делили запись
func normalizeServerURL(serverURL string) string {
	return strings.TrimRight(strings.TrimSpace(serverURL), "/")
}
