package boltdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/affilink/internal/client/storage"
)

var (
	keyClient = []byte("client")
	keyTokens = []byte("tokens")

	errServersBucketMissing = errors.New("servers bucket not found")
)

var _ storage.AuthStorage = (*Storage)(nil)

// clientRecord credentials OAuth клиента, меняются только при login
type clientRecord struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// serverBucket возвращает bucket текущего сервера, nil если login не выполнялся
func (s *Storage) serverBucket(tx *bbolt.Tx) (*bbolt.Bucket, error) {
	root := tx.Bucket(bucketServers)
	if root == nil {
		return nil, errServersBucketMissing
	}
	return root.Bucket([]byte(s.serverURL)), nil
}

// SaveAuth пересоздает запись сервера: client credentials и пару токенов
func (s *Storage) SaveAuth(ctx context.Context, auth *storage.AuthData) error {
	client, err := json.Marshal(clientRecord{ClientID: auth.ClientID, ClientSecret: auth.ClientSecret})
	if err != nil {
		return fmt.Errorf("failed to marshal client credentials: %w", err)
	}
	tokens, err := json.Marshal(auth.TokenPair)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketServers)
		if root == nil {
			return errServersBucketMissing
		}

		name := []byte(s.serverURL)
		if root.Bucket(name) != nil {
			if err := root.DeleteBucket(name); err != nil {
				return fmt.Errorf("failed to reset server auth: %w", err)
			}
		}

		b, err := root.CreateBucket(name)
		if err != nil {
			return fmt.Errorf("failed to create server bucket: %w", err)
		}
		if err := b.Put(keyClient, client); err != nil {
			return fmt.Errorf("failed to save client credentials: %w", err)
		}
		if err := b.Put(keyTokens, tokens); err != nil {
			return fmt.Errorf("failed to save tokens: %w", err)
		}
		return nil
	})
}

// GetAuth собирает AuthData текущего сервера
func (s *Storage) GetAuth(ctx context.Context) (*storage.AuthData, error) {
	auth := &storage.AuthData{ServerURL: s.serverURL}

	err := s.db.View(func(tx *bbolt.Tx) error {
		b, err := s.serverBucket(tx)
		if err != nil {
			return err
		}
		if b == nil {
			return storage.ErrAuthNotFound
		}

		var client clientRecord
		if err := decode(b, keyClient, &client); err != nil {
			return err
		}
		if err := decode(b, keyTokens, &auth.TokenPair); err != nil {
			return err
		}

		auth.ClientID = client.ClientID
		auth.ClientSecret = client.ClientSecret
		return nil
	})
	if err != nil {
		return nil, err
	}

	return auth, nil
}

// RotateTokens перезаписывает только пару токенов
func (s *Storage) RotateTokens(ctx context.Context, tokens storage.TokenPair) error {
	data, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := s.serverBucket(tx)
		if err != nil {
			return err
		}
		if b == nil || b.Get(keyClient) == nil {
			return storage.ErrAuthNotFound
		}

		if err := b.Put(keyTokens, data); err != nil {
			return fmt.Errorf("failed to save tokens: %w", err)
		}
		return nil
	})
}

// DeleteAuth удаляет запись текущего сервера, записи других серверов остаются
func (s *Storage) DeleteAuth(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketServers)
		if root == nil {
			return errServersBucketMissing
		}

		name := []byte(s.serverURL)
		if root.Bucket(name) == nil {
			return storage.ErrAuthNotFound
		}
		if err := root.DeleteBucket(name); err != nil {
			return fmt.Errorf("failed to delete server auth: %w", err)
		}
		return nil
	})
}

// IsAuthenticated checks if a non-expired access token exists
func (s *Storage) IsAuthenticated(ctx context.Context) (bool, error) {
	auth, err := s.GetAuth(ctx)
	if errors.Is(err, storage.ErrAuthNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return !auth.Expired(s.now()), nil
}

func decode(b *bbolt.Bucket, key []byte, v any) error {
	data := b.Get(key)
	if data == nil {
		return fmt.Errorf("%s record is missing: %w", key, storage.ErrAuthNotFound)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s record: %w", key, err)
	}
	return nil
}
