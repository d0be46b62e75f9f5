package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const sourceKeyPrefix = "knowledge:source:"

// RedisRetriever reads pre-ingested chunk lists from Redis, one list per
// knowledge source. Ingestion happens outside this core.
type RedisRetriever struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisRetriever creates a retriever against the given Redis URL.
func NewRedisRetriever(redisURL string, logger *slog.Logger) (*RedisRetriever, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	return &RedisRetriever{
		client: redis.NewClient(opts),
		logger: logger,
	}, nil
}

// Retrieve returns the stored chunks for each referenced source. A missing
// source key contributes nothing; it is not an error.
func (r *RedisRetriever) Retrieve(ctx context.Context, query string, sourceRefs []string, callerID string) ([]Chunk, error) {
	var chunks []Chunk

	for _, sourceID := range sourceRefs {
		entries, err := r.client.LRange(ctx, sourceKeyPrefix+sourceID, 0, -1).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("failed to read knowledge source %s: %w", sourceID, err)
		}

		for _, entry := range entries {
			var chunk Chunk

			if err := json.Unmarshal([]byte(entry), &chunk); err != nil {
				// Plain-text entries are stored without the JSON envelope.
				chunk = Chunk{SourceID: sourceID, Content: entry}
			}

			if chunk.SourceID == "" {
				chunk.SourceID = sourceID
			}

			chunks = append(chunks, chunk)
		}
	}

	r.logger.DebugContext(ctx, "Retrieved knowledge chunks",
		"caller_id", callerID,
		"sources", len(sourceRefs),
		"chunks", len(chunks),
		"query_length", len(query),
	)

	return chunks, nil
}

// Close releases the underlying Redis connection.
func (r *RedisRetriever) Close() error {
	return r.client.Close()
}
