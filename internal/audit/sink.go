package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/zapflow/campaignd/internal/kafka"
	"github.com/zapflow/campaignd/internal/model"
	"github.com/zapflow/campaignd/internal/repository"
)

// Sink drains the audit topic into ClickHouse with size/time batched
// inserts. Offsets are committed only after a successful insert, so a
// crashed flush replays its batch; the read side tolerates the resulting
// duplicates.
type Sink struct {
	Consumer *kafka.Consumer
	Repo     repository.AuditRepository
	Log      *zap.Logger

	BatchSize int
	BatchWait time.Duration
}

func NewSink(consumer *kafka.Consumer, repo repository.AuditRepository, log *zap.Logger) *Sink {
	return &Sink{
		Consumer:  consumer,
		Repo:      repo,
		Log:       log,
		BatchSize: 200,
		BatchWait: time.Second,
	}
}

// Run blocks until ctx is cancelled, flushing whatever is buffered on the
// way out.
func (s *Sink) Run(ctx context.Context) error {
	if s.BatchSize <= 0 {
		s.BatchSize = 200
	}
	if s.BatchWait <= 0 {
		s.BatchWait = time.Second
	}

	msgCh := make(chan kafka.Message, s.BatchSize)

	go func() {
		defer close(msgCh)
		for {
			m, err := s.Consumer.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.Log.Warn("audit sink: fetch", zap.Error(err))
				time.Sleep(200 * time.Millisecond)
				continue
			}
			msgCh <- m
		}
	}()

	tick := time.NewTicker(s.BatchWait)
	defer tick.Stop()

	var events []model.AuditEvent
	var msgs []kafka.Message

	flush := func() {
		if len(events) == 0 && len(msgs) == 0 {
			return
		}

		// Flushing must survive ctx cancellation during shutdown.
		fctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if len(events) > 0 {
			if err := s.Repo.InsertBatch(fctx, events); err != nil {
				s.Log.Error("audit sink: insert batch",
					zap.Int("events", len(events)),
					zap.Error(err),
				)
				// Offsets stay uncommitted; the batch replays.
				events = events[:0]
				msgs = msgs[:0]
				return
			}
		}
		if err := s.Consumer.Commit(fctx, msgs...); err != nil {
			s.Log.Warn("audit sink: commit offsets", zap.Error(err))
		}

		s.Log.Debug("audit sink: flushed", zap.Int("events", len(events)))
		events = events[:0]
		msgs = msgs[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return nil

		case m, ok := <-msgCh:
			if !ok {
				flush()
				return nil
			}

			var ev model.AuditEvent
			if err := json.Unmarshal(m.Value, &ev); err != nil {
				// Poison message: commit and skip.
				s.Log.Warn("audit sink: bad event json", zap.Error(err))
				_ = s.Consumer.Commit(ctx, m)
				continue
			}
			events = append(events, ev)
			msgs = append(msgs, m)

			if len(events) >= s.BatchSize {
				flush()
			}

		case <-tick.C:
			flush()
		}
	}
}
