package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/messaging"
)

const (
	EventPollTimeout  = 1 * time.Second
	EventRetryBackoff = 2 * time.Second
)

// Publisher is the broker side of the outbox.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// RedisOutbox buffers events in a Redis list so a broker outage never
// blocks or fails a submission.
type RedisOutbox struct {
	rdb *redis.Client
}

func NewRedisOutbox(rdb *redis.Client) *RedisOutbox {
	return &RedisOutbox{rdb: rdb}
}

func (o *RedisOutbox) NotifySubmitted(ctx context.Context, evt messaging.ExamSubmittedEvent) error {
	raw, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return o.rdb.RPush(ctx, config.CacheKey.SubmittedEventsQueue(), raw).Err()
}

// EventWorker drains the outbox into the broker. Events the broker rejects
// are pushed back to the head of the queue and retried after a backoff.
type EventWorker struct {
	rdb     *redis.Client
	pub     Publisher
	log     zerolog.Logger
	backoff time.Duration
}

func NewEventWorker(rdb *redis.Client, pub Publisher, log zerolog.Logger) *EventWorker {
	return &EventWorker{
		rdb:     rdb,
		pub:     pub,
		log:     log.With().Str("component", "event_worker").Logger(),
		backoff: EventRetryBackoff,
	}
}

// ----------------------------------------------------------------
// Worker loop
// ----------------------------------------------------------------

func (w *EventWorker) Start(ctx context.Context) {
	w.log.Info().Msg("EventWorker started")
	queue := config.CacheKey.SubmittedEventsQueue()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("EventWorker stopped")
			return
		default:
		}

		item, err := w.rdb.BLPop(ctx, EventPollTimeout, queue).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("BLPop error")
				w.sleep(ctx)
			}
			continue
		}
		if len(item) < 2 {
			continue
		}

		body := []byte(item[1])
		if !json.Valid(body) {
			w.log.Error().Str("payload", item[1]).Msg("Invalid JSON payload dropped")
			continue
		}

		if err := w.pub.Publish(ctx, body); err != nil {
			w.log.Warn().Err(err).Msg("publish failed, requeueing")
			// Background context: the event must survive shutdown.
			w.rdb.LPush(context.Background(), queue, body)
			w.sleep(ctx)
			continue
		}
		w.log.Debug().Msg("exam.submitted delivered")
	}
}

func (w *EventWorker) sleep(ctx context.Context) {
	t := time.NewTimer(w.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
