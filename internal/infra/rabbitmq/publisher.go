package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"elsa-progression-service/internal/domain"
	"elsa-progression-service/internal/logger"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// LevelUpQueueName is the durable queue level-up events are published to.
const LevelUpQueueName = "progression.levelups"

// LevelUpEvent announces that a user crossed into a higher level.
type LevelUpEvent struct {
	ID           uuid.UUID           `json:"id"`
	UserID       string              `json:"userId"`
	Kind         domain.ActivityKind `json:"kind"`
	SourceID     string              `json:"sourceId,omitempty"`
	OldLevel     int                 `json:"oldLevel"`
	NewLevel     int                 `json:"newLevel"`
	CumulativeXP int                 `json:"cumulativeXp"`
	OccurredAt   time.Time           `json:"occurredAt"`
	PublishedAt  time.Time           `json:"publishedAt"`
}

// NewLevelUpEvent builds the event for a leveled-up result.
func NewLevelUpEvent(result domain.ProgressionResult, now time.Time) LevelUpEvent {
	return LevelUpEvent{
		ID:           uuid.New(),
		UserID:       result.UserID,
		Kind:         result.Kind,
		SourceID:     result.SourceID,
		OldLevel:     result.OldLevel.Level,
		NewLevel:     result.NewLevel.Level,
		CumulativeXP: result.NewCumulativeXP,
		OccurredAt:   result.OccurredAt,
		PublishedAt:  now,
	}
}

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher publishes level-up events to RabbitMQ.
type Publisher struct {
	conn *amqp.Connection
	log  *logger.Logger
	now  func() time.Time

	mu sync.Mutex
	ch channel
}

// Dial connects to RabbitMQ and declares the level-up queue.
func Dial(url string, log *logger.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	p, err := newPublisher(ch, log)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, log *logger.Logger) (*Publisher, error) {
	if log == nil {
		log = logger.NewNop()
	}
	_, err := ch.QueueDeclare(
		LevelUpQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare level-up queue: %w", err)
	}
	return &Publisher{ch: ch, log: log, now: time.Now}, nil
}

func (p *Publisher) PublishLevelUp(ctx context.Context, result domain.ProgressionResult) error {
	event := NewLevelUpEvent(result, p.now())
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal level-up event: %w", err)
	}

	p.mu.Lock()
	err = p.ch.PublishWithContext(
		ctx,
		"",               // exchange
		LevelUpQueueName, // routing key
		false,            // mandatory
		false,            // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID.String(),
			Timestamp:    event.PublishedAt,
			Body:         body,
		},
	)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to publish level-up event: %w", err)
	}

	p.log.Info("published level-up event",
		"event_id", event.ID,
		"user_id", event.UserID,
		"old_level", event.OldLevel,
		"new_level", event.NewLevel,
	)
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
