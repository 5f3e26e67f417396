package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Overland-East-Bay/carpool-api/internal/ports/out/events"
)

// publishChannel is the subset of *amqp.Channel the publisher needs.
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher sends booking events to a topic exchange, one message per event,
// routed by event type (e.g. "ride.joined").
type Publisher struct {
	exchange string
	timeout  time.Duration
	log      *slog.Logger

	mu   sync.Mutex
	ch   publishChannel
	conn *amqp.Connection
}

// Dial connects to url and declares exchange as a durable topic exchange.
func Dial(ctx context.Context, url, exchange string, log *slog.Logger) (*Publisher, error) {
	if exchange == "" {
		return nil, errors.New("amqp exchange is required")
	}
	if log == nil {
		log = slog.Default()
	}
	conn, err := amqp.DialConfig(url, amqp.Config{
		Dial:       amqp.DefaultDial(10 * time.Second),
		Properties: amqp.Table{"connection_name": "carpool-api"},
	})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if err := ctx.Err(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	p := NewWithChannel(ch, exchange, log)
	p.conn = conn

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if e, ok := <-closed; ok && e != nil {
			log.Error("amqp connection closed", "err", e.Error())
		}
	}()
	return p, nil
}

// NewWithChannel builds a publisher over an already open channel.
func NewWithChannel(ch publishChannel, exchange string, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{exchange: exchange, timeout: 5 * time.Second, log: log, ch: ch}
}

type message struct {
	Type           string    `json:"type"`
	RideID         string    `json:"rideId,omitempty"`
	ConversationID string    `json:"conversationId,omitempty"`
	MessageID      string    `json:"messageId,omitempty"`
	ActorID        string    `json:"actorId,omitempty"`
	SubjectID      string    `json:"subjectId,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

func (p *Publisher) Publish(ctx context.Context, ev events.Event) error {
	body, err := json.Marshal(message{
		Type:           string(ev.Type),
		RideID:         string(ev.RideID),
		ConversationID: string(ev.ConvID),
		MessageID:      string(ev.MessageID),
		ActorID:        string(ev.ActorID),
		SubjectID:      string(ev.SubjectID),
		OccurredAt:     ev.OccurredAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return errors.New("amqp channel closed")
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, string(ev.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    ev.OccurredAt.UTC(),
		Type:         string(ev.Type),
		Body:         body,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	p.log.Debug("event published", "type", string(ev.Type), "rideId", string(ev.RideID))
	return nil
}

// Close shuts the connection down. Publishing afterwards fails.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ch = nil
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
