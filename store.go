package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RoundRecord is what gets handed to the durable store when a round
// completes. The store is notified fire-and-forget; its schema is its own
// business and a failed save never affects room state.
type RoundRecord struct {
	Feature    string            `json:"feature"`
	Kind       string            `json:"kind,omitempty"`
	Prompt     string            `json:"prompt"`
	Answers    map[string]string `json:"answers,omitempty"`
	RecordedAt time.Time         `json:"recordedAt"`
}

type RoundStore interface {
	SaveRound(ctx context.Context, roomID string, rec RoundRecord) error
}

// nopRoundStore is used when no store is configured.
type nopRoundStore struct{}

func (nopRoundStore) SaveRound(context.Context, string, RoundRecord) error { return nil }

// redisRoundStore keeps a capped per-room history list.
type redisRoundStore struct {
	client *redis.Client
}

const roundHistoryMax = 512

func newRedisRoundStore(ctx context.Context, addr string) (*redisRoundStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis: unable to reach %s: %w", addr, err)
	}

	logrus.Infof("STORE: Round history backed by redis at %s", addr)
	return &redisRoundStore{client: client}, nil
}

func (s *redisRoundStore) historyKey(roomID string) string {
	return "lounge:room:" + roomID + ":rounds"
}

func (s *redisRoundStore) SaveRound(ctx context.Context, roomID string, rec RoundRecord) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis: failed to encode round record: %w", err)
	}

	key := s.historyKey(roomID)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, encoded)
	pipe.LTrim(ctx, key, 0, roundHistoryMax-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to save round for room %s: %w", roomID, err)
	}

	return nil
}

// saveRoundAsync is the fire-and-forget edge: failures are logged for
// operators, never propagated to room handling.
func saveRoundAsync(store RoundStore, roomID string, rec RoundRecord) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := store.SaveRound(ctx, roomID, rec); err != nil {
			logrus.WithField("room_id", roomID).WithError(err).Warn("STORE: Failed to record round")
		}
	}()
}
