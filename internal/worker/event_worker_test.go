package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/messaging"
	"github.com/stemsi/exstem-portal/internal/model"
)

type fakePublisher struct {
	mu       sync.Mutex
	failures int
	bodies   [][]byte
}

func (p *fakePublisher) Publish(ctx context.Context, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unreachable")
	}
	p.bodies = append(p.bodies, body)
	return nil
}

func (p *fakePublisher) delivered() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.bodies...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestEventWorker_DeliversWithRetry(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outbox := NewRedisOutbox(rdb)
	evt := messaging.ExamSubmittedEvent{
		Type:           messaging.EventExamSubmitted,
		EventID:        "evt-1",
		Score:          14,
		TotalQuestions: 20,
		SuspicionLevel: model.SuspicionLow,
		Flags:          []string{},
	}
	if err := outbox.NotifySubmitted(ctx, evt); err != nil {
		t.Fatalf("NotifySubmitted() error = %v", err)
	}

	pub := &fakePublisher{failures: 1}
	w := NewEventWorker(rdb, pub, zerolog.Nop())
	w.backoff = 10 * time.Millisecond
	go w.Start(ctx)

	waitFor(t, func() bool { return len(pub.delivered()) == 1 })

	var got messaging.ExamSubmittedEvent
	if err := json.Unmarshal(pub.delivered()[0], &got); err != nil {
		t.Fatalf("decode delivered event: %v", err)
	}
	if got.EventID != "evt-1" || got.Score != 14 {
		t.Fatalf("delivered = %+v", got)
	}
	if n, _ := rdb.LLen(ctx, config.CacheKey.SubmittedEventsQueue()).Result(); n != 0 {
		t.Fatalf("queue length = %d, want 0", n)
	}
}
