package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/Proton-105/chatflow/internal/errors"
	bolt "go.etcd.io/bbolt"
)

var sessionsBucket = []byte("sessions")

// BoltStore keeps sessions in a local bbolt file. It suits single-instance
// deployments that need sessions to survive restarts without a server.
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

// OpenBoltStore opens (or creates) the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sessions bucket: %w", err)
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

func (s *BoltStore) Get(_ context.Context, key string) (Session, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(sessionsBucket).Get([]byte(key)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.NewStoreError("bolt get", err)
	}
	if data == nil {
		return nil, ErrSessionNotFound
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return nil, apperrors.NewStoreError("bolt decode", err)
	}
	return rec.Data, nil
}

func (s *BoltStore) Set(_ context.Context, key string, sess Session) error {
	data, err := json.Marshal(record{Data: sess, UpdatedAt: s.now().UTC()})
	if err != nil {
		return apperrors.NewStoreError("bolt encode", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Put([]byte(key), data)
	})
	if err != nil {
		return apperrors.NewStoreError("bolt set", err)
	}
	return nil
}

func (s *BoltStore) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(key))
	})
	if err != nil {
		return apperrors.NewStoreError("bolt delete", err)
	}
	return nil
}

func (s *BoltStore) Prune(_ context.Context, olderThan time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket)

		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil || rec.UpdatedAt.Before(olderThan) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, apperrors.NewStoreError("bolt prune", err)
	}
	return removed, nil
}

func (s *BoltStore) Scan(ctx context.Context, fn func(key string, sess Session) bool) error {
	errStop := fmt.Errorf("stop")

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}

			rec, err := decodeRecord(v)
			if err != nil {
				return nil
			}
			if !fn(string(k), rec.Data) {
				return errStop
			}
			return nil
		})
	})
	if err != nil && err != errStop {
		return apperrors.NewStoreError("bolt scan", err)
	}
	return nil
}

// Path returns the database file path.
func (s *BoltStore) Path() string {
	return s.db.Path()
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// HealthCheck verifies the sessions bucket is readable.
func (s *BoltStore) HealthCheck(context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(sessionsBucket) == nil {
			return fmt.Errorf("bolt %s: sessions bucket missing", s.db.Path())
		}
		return nil
	})
}
