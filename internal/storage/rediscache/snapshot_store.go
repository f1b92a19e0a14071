// Package rediscache caches ranking snapshots in Redis: the latest snapshot under one key
// and a capped list of recent ones.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"netbuy-ranker/internal/domain"
	"netbuy-ranker/internal/storage"
)

// DefaultHistorySize is how many snapshots the history list keeps.
const DefaultHistorySize = 50

// Options configures a SnapshotStore.
type Options struct {
	Addr        string
	Password    string
	DB          int
	KeyPrefix   string // default "ranker"
	HistorySize int    // default DefaultHistorySize
}

// SnapshotStore implements storage.SnapshotStore on Redis.
type SnapshotStore struct {
	client      *redis.Client
	latestKey   string
	historyKey  string
	historySize int
}

// NewSnapshotStore creates a store and verifies the server is reachable.
func NewSnapshotStore(ctx context.Context, opts Options) (*SnapshotStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return newSnapshotStore(client, opts), nil
}

func newSnapshotStore(client *redis.Client, opts Options) *SnapshotStore {
	prefix := strings.TrimSuffix(opts.KeyPrefix, ":")
	if prefix == "" {
		prefix = "ranker"
	}
	size := opts.HistorySize
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &SnapshotStore{
		client:      client,
		latestKey:   prefix + ":snapshot:latest",
		historyKey:  prefix + ":snapshot:history",
		historySize: size,
	}
}

// Ensure SnapshotStore implements the storage interface.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Close closes the underlying client.
func (s *SnapshotStore) Close() error {
	return s.client.Close()
}

// Save sets the latest key and pushes onto the history list in one MULTI/EXEC.
func (s *SnapshotStore) Save(ctx context.Context, snap *domain.RankingSnapshot) error {
	if err := storage.ValidateSnapshot(snap); err != nil {
		return err
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.latestKey, data, 0)
		pipe.LPush(ctx, s.historyKey, data)
		pipe.LTrim(ctx, s.historyKey, 0, int64(s.historySize-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Latest returns the cached snapshot or storage.ErrNotFound.
func (s *SnapshotStore) Latest(ctx context.Context) (*domain.RankingSnapshot, error) {
	data, err := s.client.Get(ctx, s.latestKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}
	return decode(data)
}

// History returns up to limit cached snapshots, newest first.
func (s *SnapshotStore) History(ctx context.Context, limit int) ([]*domain.RankingSnapshot, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	items, err := s.client.LRange(ctx, s.historyKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("read snapshot history: %w", err)
	}

	result := make([]*domain.RankingSnapshot, 0, len(items))
	for _, item := range items {
		snap, err := decode([]byte(item))
		if err != nil {
			return nil, err
		}
		result = append(result, snap)
	}
	return result, nil
}

func decode(data []byte) (*domain.RankingSnapshot, error) {
	var snap domain.RankingSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: cached snapshot: %v", storage.ErrCorruptStore, err)
	}
	return &snap, nil
}
