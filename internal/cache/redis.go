// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/seungho-lim/numrace/internal/models"
)

// DefaultQueueName is the Redis list the submission journal is pushed to.
// The replay/historian consumer pops from the same list out of process.
var DefaultQueueName = "numrace_submissions"

// SubmissionRecord is the minimal audit record the journal consumer needs
// to reconstruct a round's submission history.
type SubmissionRecord struct {
	SubmissionID uuid.UUID  `json:"submission_id"`
	MatchID      uuid.UUID  `json:"match_id"`
	UserID       *uuid.UUID `json:"user_id,omitempty"`
	Expression   string     `json:"expression"`
	ResultValue  *float64   `json:"result_value"`
	Cost         int        `json:"cost"`
	Distance     *float64   `json:"distance"`
	Score        int        `json:"score"`
	Round        int        `json:"round"`
	Timestamp    int64      `json:"timestamp"`
}

// Journal publishes submission audit records to a Redis list.
type Journal struct {
	client *redis.Client
	queue  string
}

// Connect initializes the journal's Redis client from environment
// variables (REDIS_ADDR, REDIS_DB, JOURNAL_QUEUE_NAME) and pings it.
func Connect(ctx context.Context) (*Journal, error) {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to Redis at %s: %w", addr, err)
	}

	return &Journal{
		client: client,
		queue:  getEnv("JOURNAL_QUEUE_NAME", DefaultQueueName),
	}, nil
}

// RecordSubmission serializes the submission to JSON and pushes it to the
// journal queue. Quick network send only; no blocking on the consumer.
func (j *Journal) RecordSubmission(ctx context.Context, sub *models.Submission) error {
	rec := SubmissionRecord{
		SubmissionID: sub.ID,
		MatchID:      sub.MatchID,
		UserID:       sub.UserID,
		Expression:   sub.Expression,
		ResultValue:  sub.ResultValue,
		Cost:         sub.Cost,
		Distance:     sub.Distance,
		Score:        sub.Score,
		Round:        sub.SubmittedRound,
		Timestamp:    sub.SubmittedAt.UnixMilli(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal submission record: %w", err)
	}
	if err := j.client.RPush(ctx, j.queue, data).Err(); err != nil {
		return fmt.Errorf("rpush to %q: %w", j.queue, err)
	}
	return nil
}

// Queue reports the list name the journal publishes to.
func (j *Journal) Queue() string { return j.queue }

// Client exposes the underlying Redis client for consumers that share the
// connection.
func (j *Journal) Client() *redis.Client { return j.client }

// getEnv reads an environment variable or returns a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt parses an environment variable as integer, else a default.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
