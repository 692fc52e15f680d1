package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/Skufu/cardioscore/internal/features"
	"github.com/Skufu/cardioscore/internal/report"
)

const (
	TypePredictionCompleted = "prediction.completed"
	source                  = "cardioscore"
)

type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Data      report.Outcome `json:"data"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher emits a prediction.completed event per scored request.
type Publisher struct {
	writer messageWriter
	topic  string
	log    logrus.FieldLogger
	newID  func() string
}

func NewPublisher(brokers []string, topic string, log logrus.FieldLogger) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}
	return newPublisher(writer, topic, log)
}

func newPublisher(w messageWriter, topic string, log logrus.FieldLogger) *Publisher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Publisher{writer: w, topic: topic, log: log, newID: uuid.NewString}
}

func (p *Publisher) LogPrediction(ctx context.Context, _ *features.PatientFeatures, o report.Outcome) error {
	msg, err := p.message(o)
	if err != nil {
		return err
	}

	fields := logrus.Fields{
		"event_id":      string(msg.Key),
		"event_type":    TypePredictionCompleted,
		"prediction_id": o.ID,
		"topic":         p.topic,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.WithError(err).WithFields(fields).Error("failed to publish event")
		return fmt.Errorf("publish %s: %w", TypePredictionCompleted, err)
	}
	p.log.WithFields(fields).Debug("event published")
	return nil
}

func (p *Publisher) message(o report.Outcome) (kafka.Message, error) {
	event := Event{
		ID:        p.newID(),
		Type:      TypePredictionCompleted,
		Source:    source,
		Timestamp: o.CreatedAt,
		Data:      o,
	}
	body, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(event.ID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(TypePredictionCompleted)},
			{Key: "source", Value: []byte(source)},
			{Key: "risk-tier", Value: []byte(o.RiskTier)},
		},
	}, nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
