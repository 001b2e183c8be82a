package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// EventStore persists session events.
type EventStore interface {
	CopyMany(ctx context.Context, events []model.SessionEvent) (int64, error)
	Insert(ctx context.Context, event model.SessionEvent) error
}

// EventWorker drains the session events queue into Postgres in batches.
type EventWorker struct {
	store EventStore
	rdb   redis.Cmdable
	queue string
	log   zerolog.Logger
	// requeueBackoff throttles the loop after pushing failed rows back.
	requeueBackoff time.Duration
}

func NewEventWorker(store EventStore, rdb redis.Cmdable, log zerolog.Logger) *EventWorker {
	return &EventWorker{
		store:          store,
		rdb:            rdb,
		queue:          config.WorkerKey.PersistSessionEventsQueue,
		log:            log.With().Str("component", "event_worker").Logger(),
		requeueBackoff: 2 * time.Second,
	}
}

func (w *EventWorker) Start(ctx context.Context) {
	w.log.Info().Msg("EventWorker started")

	buffer := make([]model.SessionEvent, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// BLPop returns immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, w.queue).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var event model.SessionEvent
		if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
			// Malformed payloads can never succeed.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}
		if event.AttemptID <= 0 || event.Kind == "" {
			w.log.Warn().Str("data", result[1]).Msg("Discarding incomplete session event")
			continue
		}

		buffer = append(buffer, event)
	}
}

// flushSafe attempts bulk insert, then row-by-row insert, then requeue.
func (w *EventWorker) flushSafe(ctx context.Context, batch []model.SessionEvent) {
	n, err := w.store.CopyMany(ctx, batch)
	if err == nil {
		w.log.Debug().Int64("rows", n).Msg("Session events persisted")
		return
	}

	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
	w.fallbackInsert(ctx, batch)
}

func (w *EventWorker) fallbackInsert(ctx context.Context, batch []model.SessionEvent) {
	var requeueList []model.SessionEvent

	for _, e := range batch {
		if err := w.store.Insert(ctx, e); err != nil {
			w.log.Error().Err(err).Int64("attempt_id", e.AttemptID).Str("kind", string(e.Kind)).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, e)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *EventWorker) requeue(ctx context.Context, items []model.SessionEvent) {
	// The shutdown context may already be done; requeue must still land.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}

	pipe := w.rdb.Pipeline()
	for _, e := range items {
		data, _ := json.Marshal(e)
		pipe.RPush(ctx, w.queue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue session events. Data loss occurred.")
		return
	}

	w.log.Info().Int("count", len(items)).Msg("Requeued failed session events")
	time.Sleep(w.requeueBackoff)
}

func (w *EventWorker) shutdown(buffer []model.SessionEvent) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
