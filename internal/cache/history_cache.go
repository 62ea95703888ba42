package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"supportchat/internal/model"
)

// generationTTL is longer than any history TTL.
const generationTTL = 24 * time.Hour

var errStale = errors.New("history snapshot is stale")

type getter interface {
	Get(ctx context.Context, key string) *redisv9.StringCmd
}

// HistoryCache keeps a read-through copy of each session's full history.
// A dirty marker is set while an exchange is being written so that readers go
// to the database instead of caching a half-written exchange. Each exchange
// also bumps a write generation; a reader may only store the history it loaded
// if the generation is unchanged.
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
		dirtyMarkerTTL = 30 * time.Second
	}
	return &HistoryCache{
		client:         client,
		historyTTL:     historyTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

func (c *HistoryCache) GetHistory(ctx context.Context, sessionID string) ([]model.Turn, bool, error) {
	raw, err := c.client.Get(ctx, c.historyKey(sessionID)).Result()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var turns []model.Turn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return turns, true, nil
}

// SetHistory stores turns only if no exchange has started writing the session
// since gen was read with Generation. It reports whether the value was stored.
func (c *HistoryCache) SetHistory(ctx context.Context, sessionID string, turns []model.Turn, gen int64) (bool, error) {
	if turns == nil {
		turns = []model.Turn{}
	}
	payload, err := json.Marshal(turns)
	if err != nil {
		return false, fmt.Errorf("marshal history cache failed: %w", err)
	}

	genKey, dirtyKey := c.genKey(sessionID), c.dirtyKey(sessionID)
	err = c.client.Watch(ctx, func(tx *redisv9.Tx) error {
		current, err := readGen(ctx, tx, genKey)
		if err != nil {
			return err
		}
		dirty, err := tx.Exists(ctx, dirtyKey).Result()
		if err != nil {
			return fmt.Errorf("redis check dirty marker failed: %w", err)
		}
		if current != gen || dirty > 0 {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
			pipe.Set(ctx, c.historyKey(sessionID), payload, c.historyTTL)
			return nil
		})
		return err
	}, genKey, dirtyKey)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errStale), errors.Is(err, redisv9.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("redis set history failed: %w", err)
	}
}

func (c *HistoryCache) DeleteHistory(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, c.historyKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete history failed: %w", err)
	}
	return nil
}

// MarkDirty flags an exchange in flight and advances the session's write
// generation, which invalidates every snapshot read before it.
func (c *HistoryCache) MarkDirty(ctx context.Context, sessionID string) error {
	genKey := c.genKey(sessionID)
	_, err := c.client.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		pipe.Set(ctx, c.dirtyKey(sessionID), "1", c.dirtyMarkerTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set dirty marker failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) ClearDirty(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, c.dirtyKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis clear dirty marker failed: %w", err)
	}
	return nil
}

// Generation returns the session's write generation and whether an exchange
// is being written right now. Pass gen to SetHistory after loading history.
func (c *HistoryCache) Generation(ctx context.Context, sessionID string) (int64, bool, error) {
	gen, err := readGen(ctx, c.client, c.genKey(sessionID))
	if err != nil {
		return 0, false, err
	}
	dirty, err := c.client.Exists(ctx, c.dirtyKey(sessionID)).Result()
	if err != nil {
		return 0, false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return gen, dirty > 0, nil
}

func readGen(ctx context.Context, cmd getter, key string) (int64, error) {
	gen, err := cmd.Get(ctx, key).Int64()
	if errors.Is(err, redisv9.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get history generation failed: %w", err)
	}
	return gen, nil
}

func (c *HistoryCache) historyKey(sessionID string) string {
	return "chat:history:" + sessionID
}

func (c *HistoryCache) dirtyKey(sessionID string) string {
	return "chat:history:dirty:" + sessionID
}

func (c *HistoryCache) genKey(sessionID string) string {
	return "chat:history:gen:" + sessionID
}
