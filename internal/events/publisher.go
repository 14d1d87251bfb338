package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"ordersvc/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const (
	EventOrderCreated = "OrderCreated"
	producerName      = "ordersvc"
)

// ErrPublisherFull is returned when the outbound buffer has no room. The
// event is dropped; the order itself is already committed.
var ErrPublisherFull = errors.New("event publisher buffer full")

var ErrPublisherClosed = errors.New("event publisher closed")

// Publisher announces committed orders to downstream consumers.
type Publisher interface {
	PublishOrderCreated(ctx context.Context, ownerID int64, order *models.CreatedOrder) error
	Close() error
}

// Envelope wraps every event payload.
type Envelope struct {
	EventID      string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	EventVersion int             `json:"event_version"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Producer     string          `json:"producer"`
	Payload      json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID     int64             `json:"order_id"`
	OwnerID     int64             `json:"user_id"`
	Status      models.Status     `json:"status"`
	TotalAmount models.Amount     `json:"total_amount"`
	CreatedAt   time.Time         `json:"created_at"`
	Items       []json.RawMessage `json:"items"`
}

// NewOrderCreatedMessage builds the Kafka message for a committed order,
// keyed by order id so all events of one order land on one partition.
func NewOrderCreatedMessage(ownerID int64, order *models.CreatedOrder, now time.Time) (kafka.Message, error) {
	payload, err := json.Marshal(OrderCreatedPayload{
		OrderID:     order.ID,
		OwnerID:     ownerID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		CreatedAt:   order.CreatedAt,
		Items:       order.Items,
	})
	if err != nil {
		return kafka.Message{}, err
	}

	env := Envelope{
		EventID:      uuid.NewString(),
		EventType:    EventOrderCreated,
		EventVersion: 1,
		OccurredAt:   now.UTC(),
		Producer:     producerName,
		Payload:      payload,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return kafka.Message{}, err
	}

	return kafka.Message{
		Key:   []byte(strconv.FormatInt(order.ID, 10)),
		Value: value,
		Time:  now,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventOrderCreated)},
			{Key: "event_id", Value: []byte(env.EventID)},
		},
	}, nil
}

// MessageWriter is the subset of kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher hands messages to a single writer goroutine through a
// bounded inbox so publishing never blocks the request that committed the
// order.
type KafkaPublisher struct {
	w       MessageWriter
	inbox   chan kafka.Message
	done    chan struct{}
	log     *slog.Logger
	mu      sync.RWMutex
	closed  bool
	timeout time.Duration
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

// NewKafkaPublisher starts the writer goroutine. Close flushes whatever is
// still buffered.
func NewKafkaPublisher(w MessageWriter, buffer int, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &KafkaPublisher{
		w:       w,
		inbox:   make(chan kafka.Message, buffer),
		done:    make(chan struct{}),
		log:     logger,
		timeout: 10 * time.Second,
	}
	go p.run()
	return p
}

func (p *KafkaPublisher) run() {
	defer close(p.done)
	for msg := range p.inbox {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.w.WriteMessages(ctx, msg); err != nil {
			p.log.Error("failed to publish event", "key", string(msg.Key), "error", err)
		}
		cancel()
	}
}

func (p *KafkaPublisher) PublishOrderCreated(ctx context.Context, ownerID int64, order *models.CreatedOrder) error {
	msg, err := NewOrderCreatedMessage(ownerID, order, time.Now())
	if err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrPublisherFull
	}
}

func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.inbox)
	p.mu.Unlock()

	<-p.done
	return p.w.Close()
}

type nopPublisher struct{}

// NewNopPublisher is used when no brokers are configured.
func NewNopPublisher() Publisher {
	return nopPublisher{}
}

func (nopPublisher) PublishOrderCreated(context.Context, int64, *models.CreatedOrder) error {
	return nil
}

func (nopPublisher) Close() error {
	return nil
}
