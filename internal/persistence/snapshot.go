package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"appauth/internal/authstate"
	"appauth/pkg/logging"
)

// DefaultSnapshotTTL is how long a snapshot stays usable.
const DefaultSnapshotTTL = 10 * time.Minute

// ErrNoSnapshot is returned when no unexpired snapshot exists.
var ErrNoSnapshot = errors.New("no snapshot")

// Snapshot holds display fields derived from a State. It never contains
// token values, so it is stored unencrypted.
type Snapshot struct {
	Phase                     authstate.Phase `json:"phase"`
	IsAuthorized              bool            `json:"isAuthorized"`
	HasRefreshToken           bool            `json:"hasRefreshToken"`
	AccessTokenExpirationTime *time.Time      `json:"accessTokenExpirationTime,omitempty"`
	NeedsTokenRefresh         bool            `json:"needsTokenRefresh"`
	LastMessage               string          `json:"lastMessage,omitempty"`
	SavedAt                   time.Time       `json:"savedAt"`
}

// SnapshotOf derives a Snapshot from s.
func SnapshotOf(s *authstate.State, message string) Snapshot {
	snap := Snapshot{
		Phase:             s.Phase(),
		IsAuthorized:      s.IsAuthorized(),
		HasRefreshToken:   s.RefreshToken != "",
		NeedsTokenRefresh: s.NeedsTokenRefresh,
		LastMessage:       message,
		SavedAt:           time.Now(),
	}
	if s.AccessTokenExpirationTime != nil {
		t := *s.AccessTokenExpirationTime
		snap.AccessTokenExpirationTime = &t
	}
	return snap
}

// SnapshotStore keeps the most recent Snapshot.
type SnapshotStore interface {
	Put(ctx context.Context, snap Snapshot) error
	Get(ctx context.Context) (*Snapshot, error)
	Clear(ctx context.Context) error
}

// SaveSnapshot checkpoints display fields of s. Failures are logged.
func (g *Gateway) SaveSnapshot(ctx context.Context, s *authstate.State, message string) {
	if g.snapshots == nil {
		return
	}
	if err := g.snapshots.Put(ctx, SnapshotOf(s, message)); err != nil {
		logging.Warn(logging.SubsystemPersistence, "Failed to save UI snapshot: %v", err)
	}
}

// LoadSnapshot returns the last snapshot if it has not expired.
func (g *Gateway) LoadSnapshot(ctx context.Context) (*Snapshot, bool) {
	if g.snapshots == nil {
		return nil, false
	}
	snap, err := g.snapshots.Get(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoSnapshot) {
			logging.Warn(logging.SubsystemPersistence, "Failed to read UI snapshot: %v", err)
		}
		return nil, false
	}
	return snap, true
}

// FileSnapshotStore keeps the snapshot as a 0600 JSON file and ignores it
// once older than its TTL.
type FileSnapshotStore struct {
	path string
	ttl  time.Duration
}

// NewFileSnapshotStore creates a FileSnapshotStore writing to path.
func NewFileSnapshotStore(path string, ttl time.Duration) *FileSnapshotStore {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &FileSnapshotStore{path: path, ttl: ttl}
}

func (s *FileSnapshotStore) Put(_ context.Context, snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

func (s *FileSnapshotStore) Get(ctx context.Context) (*Snapshot, error) {
	// #nosec G304 -- path comes from configuration
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		_ = s.Clear(ctx)
		return nil, ErrNoSnapshot
	}
	if time.Since(snap.SavedAt) > s.ttl {
		_ = s.Clear(ctx)
		return nil, ErrNoSnapshot
	}
	return &snap, nil
}

func (s *FileSnapshotStore) Clear(_ context.Context) error {
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// RedisSnapshotStore keeps the snapshot under a Redis key that expires
// after its TTL.
type RedisSnapshotStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisSnapshotStore creates a RedisSnapshotStore from a redis:// URL.
func NewRedisSnapshotStore(redisURL, key string, ttl time.Duration) (*RedisSnapshotStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if key == "" {
		key = "appauth:snapshot"
	}
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &RedisSnapshotStore{client: redis.NewClient(opts), key: key, ttl: ttl}, nil
}

func (s *RedisSnapshotStore) Put(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return s.client.Set(ctx, s.key, data, s.ttl).Err()
}

func (s *RedisSnapshotStore) Get(ctx context.Context) (*Snapshot, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, ErrNoSnapshot
	}
	return &snap, nil
}

func (s *RedisSnapshotStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

// Close releases the Redis connection pool.
func (s *RedisSnapshotStore) Close() error {
	return s.client.Close()
}
