// cmd/journal is an asynchronous consumer that pops submission audit
// records from the Redis journal queue and persists them to a PostgreSQL
// archive table, batched to keep write amplification down.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/seungho-lim/numrace/internal/cache"
	"github.com/seungho-lim/numrace/internal/database"
)

// journalConsumer owns the Redis + DB plumbing for archiving submissions.
type journalConsumer struct {
	redisClient *redis.Client
	pool        *pgxpool.Pool
	queueName   string
	batchSize   int
	flushDelay  time.Duration

	batchMu  sync.Mutex
	batch    []cache.SubmissionRecord
	ctx      context.Context
	cancelFn context.CancelFunc
}

func newJournalConsumer(pool *pgxpool.Pool) *journalConsumer {
	rdb := redis.NewClient(&redis.Options{
		Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		DB:   getEnvInt("REDIS_DB", 0),
	})

	batchSize := getEnvInt("JOURNAL_BATCH_SIZE", 20)
	ctx, cancel := context.WithCancel(context.Background())
	return &journalConsumer{
		redisClient: rdb,
		pool:        pool,
		queueName:   getEnv("JOURNAL_QUEUE_NAME", cache.DefaultQueueName),
		batchSize:   batchSize,
		flushDelay:  time.Duration(getEnvInt("JOURNAL_FLUSH_MS", 500)) * time.Millisecond,
		batch:       make([]cache.SubmissionRecord, 0, batchSize),
		ctx:         ctx,
		cancelFn:    cancel,
	}
}

// run blocks popping records until the context ends, flushing on a timer
// and on batch-size pressure.
func (jc *journalConsumer) run() {
	ticker := time.NewTicker(jc.flushDelay)
	defer ticker.Stop()

	for {
		select {
		case <-jc.ctx.Done():
			jc.flush()
			return

		case <-ticker.C:
			jc.flush()

		default:
			// BLPop with a short timeout so shutdown is not stuck on an
			// empty queue.
			res, err := jc.redisClient.BLPop(jc.ctx, 3*time.Second, jc.queueName).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
					continue
				}
				log.Printf("[ERROR] BLPop: %v", err)
				continue
			}
			if len(res) < 2 {
				continue
			}

			var rec cache.SubmissionRecord
			if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
				log.Printf("invalid submission record: %v", err)
				continue
			}
			jc.append(rec)
		}
	}
}

func (jc *journalConsumer) append(rec cache.SubmissionRecord) {
	jc.batchMu.Lock()
	defer jc.batchMu.Unlock()
	jc.batch = append(jc.batch, rec)
	if len(jc.batch) >= jc.batchSize {
		jc.flushLocked()
	}
}

func (jc *journalConsumer) flush() {
	jc.batchMu.Lock()
	defer jc.batchMu.Unlock()
	jc.flushLocked()
}

// flushLocked writes the pending batch in one transaction. Caller holds
// batchMu.
func (jc *journalConsumer) flushLocked() {
	if len(jc.batch) == 0 {
		return
	}
	pending := make([]cache.SubmissionRecord, len(jc.batch))
	copy(pending, jc.batch)
	jc.batch = jc.batch[:0]

	ctx := context.Background()
	err := pgx.BeginTxFunc(ctx, jc.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `
			INSERT INTO submission_journal (
				submission_id, match_id, user_id, expression,
				result_value, cost, distance, score, round, recorded_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (submission_id) DO NOTHING
		`
		for _, rec := range pending {
			recordedAt := time.UnixMilli(rec.Timestamp)
			if _, err := tx.Exec(ctx, q,
				rec.SubmissionID, rec.MatchID, rec.UserID, rec.Expression,
				rec.ResultValue, rec.Cost, rec.Distance, rec.Score, rec.Round, recordedAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] flush journal batch: %v", err)
		return
	}
	log.Printf("Archived %d submissions.", len(pending))
}

func (jc *journalConsumer) stop() {
	jc.cancelFn()
}

func main() {
	pool, err := database.Connect(context.Background())
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer pool.Close()

	jc := newJournalConsumer(pool)
	go jc.run()
	log.Println("numrace-journal service started.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	jc.stop()
	log.Println("Journal shutdown complete.")
}

func getEnv(key, defVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defVal
}

func getEnvInt(key string, defVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defVal
	}
	return i
}
