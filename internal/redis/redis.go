package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"dogfinder-bot/internal/model"

	"github.com/go-redis/redis/v8"
)

const stateKeyPrefix = "dogfinder:chat:"

type RedisClient struct {
	client   *redis.Client
	stateTTL time.Duration
}

func NewRedisClient(addr string, password string, db int, stateTTL time.Duration) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}

	return &RedisClient{client: client, stateTTL: stateTTL}, nil
}

func stateKey(chatID int64) string {
	return stateKeyPrefix + strconv.FormatInt(chatID, 10)
}

func (r *RedisClient) SaveState(ctx context.Context, chatID int64, state *model.ChatState) error {
	data, err := json.Marshal(state)
	if err != nil {
		slog.Error("Error marshaling state", "chat_id", chatID, "error", err)
		return fmt.Errorf("marshal chat state: %w", err)
	}
	if err := r.client.Set(ctx, stateKey(chatID), data, r.stateTTL).Err(); err != nil {
		return fmt.Errorf("save chat state: %w", err)
	}
	return nil
}

// GetState returns nil, nil when the chat has no state (never seen or expired).
func (r *RedisClient) GetState(ctx context.Context, chatID int64) (*model.ChatState, error) {
	data, err := r.client.Get(ctx, stateKey(chatID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		slog.Error("Error getting state", "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("get chat state: %w", err)
	}

	var state model.ChatState
	if err := json.Unmarshal(data, &state); err != nil {
		slog.Error("Error unmarshaling state", "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("unmarshal chat state: %w", err)
	}
	return &state, nil
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
