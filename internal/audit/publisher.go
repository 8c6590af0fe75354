package audit

import (
	"context"
	"encoding/json"
	"fmt"

	segkafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/zapflow/campaignd/internal/model"
)

// Publisher emits audit events to Kafka, keyed by campaign so one
// campaign's trail stays ordered within a partition. Best-effort: a broker
// outage costs audit rows, never sends.
type Publisher struct {
	w   *segkafka.Writer
	log *zap.Logger
}

func NewPublisher(w *segkafka.Writer, log *zap.Logger) *Publisher {
	return &Publisher{w: w, log: log}
}

func (p *Publisher) Record(ctx context.Context, ev model.AuditEvent) {
	value, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("audit: marshal event", zap.Error(err))
		return
	}

	msg := segkafka.Message{
		Key:   []byte(fmt.Sprintf("%d", ev.CampaignID)),
		Value: value,
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		p.log.Warn("audit: publish event",
			zap.String("entity", ev.Entity),
			zap.String("entity_id", ev.EntityID),
			zap.Error(err),
		)
	}
}

func (p *Publisher) Close() error { return p.w.Close() }
