package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"docchat/internal/model"
)

// setUnlessDirty writes KEYS[1] only while the dirty marker KEYS[2] is absent.
var setUnlessDirty = redisv9.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// HistoryCache keeps serialized conversation histories in Redis. A short-lived
// dirty marker stops readers from re-caching a history that was just appended to.
type HistoryCache struct {
	client         *redisv9.Client
	historyTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

func NewHistoryCache(client *redisv9.Client, historyTTL, dirtyMarkerTTL time.Duration) *HistoryCache {
	if historyTTL <= 0 {
		historyTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &HistoryCache{
		client:         client,
		historyTTL:     historyTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

// Get returns the cached history and whether it was present.
func (c *HistoryCache) Get(ctx context.Context, conversationID uint) ([]model.Message, bool, error) {
	raw, err := c.client.Get(ctx, historyKey(conversationID)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var messages []model.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return messages, true, nil
}

// Set stores messages unless the conversation was written to recently.
// The marker check and the write run as one script so an Invalidate cannot
// slip between them.
func (c *HistoryCache) Set(ctx context.Context, conversationID uint, messages []model.Message) error {
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}
	keys := []string{historyKey(conversationID), dirtyKey(conversationID)}
	if err := setUnlessDirty.Run(ctx, c.client, keys, payload, c.historyTTL.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

// Invalidate drops the cached history and marks the conversation dirty.
func (c *HistoryCache) Invalidate(ctx context.Context, conversationID uint) error {
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, dirtyKey(conversationID), "1", c.dirtyMarkerTTL)
	pipe.Del(ctx, historyKey(conversationID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis invalidate history failed: %w", err)
	}
	return nil
}

func historyKey(conversationID uint) string {
	return fmt.Sprintf("chat:history:%d", conversationID)
}

func dirtyKey(conversationID uint) string {
	return fmt.Sprintf("chat:history:dirty:%d", conversationID)
}
