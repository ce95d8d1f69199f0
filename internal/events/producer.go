// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"blazestride/internal/models"
)

var ErrBufferFull = errors.New("events: buffer full")

// Envelope wraps every event written to the topic.
type Envelope struct {
	EventID      string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	EventVersion int             `json:"event_version"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Producer     string          `json:"producer"`
	Payload      json.RawMessage `json:"payload"`
}

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer buffers events and writes them from a single goroutine so that a
// slow broker never blocks order placement.
type Producer struct {
	w       writer
	inbox   chan kafka.Message
	closeCh chan struct{}
	once    sync.Once
}

func NewProducer(brokers []string, topic string, buf int) *Producer {
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}, buf)
}

func newProducer(w writer, buf int) *Producer {
	return &Producer{
		w:       w,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

// Start runs the write loop until Close is called.
func (p *Producer) Start() {
	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := p.w.WriteMessages(ctx, m); err != nil {
				log.Printf("[EVENTS] [ERROR] write %s failed: %v", string(m.Key), err)
			}
			cancel()
		}
		if err := p.w.Close(); err != nil {
			log.Println("[EVENTS] [ERROR] close writer:", err)
		}
	}()
}

// Publish enqueues an event keyed by order id so that events of one order
// stay ordered within a partition.
func (p *Producer) Publish(ctx context.Context, eventType string, order models.Order) error {
	payload, err := json.Marshal(order)
	if err != nil {
		return err
	}
	value, err := json.Marshal(Envelope{
		EventID:      uuid.NewString(),
		EventType:    eventType,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     "blazestride-api",
		Payload:      payload,
	})
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:     []byte(order.ID.Hex()),
		Value:   value,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(eventType)}},
	}

	select {
	case p.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBufferFull
	}
}

// Close flushes buffered events and waits for the writer to shut down.
func (p *Producer) Close() {
	p.once.Do(func() { close(p.inbox) })
	<-p.closeCh
}
