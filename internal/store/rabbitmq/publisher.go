package rabbitmq

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/suPer8Hu/neuronote/internal/events"
)

const defaultBuffer = 256

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher ships terminal lifecycle events to a durable queue. Record hands
// events to a background loop and drops them when the buffer is full, so a slow
// broker never stalls a summary stream.
type Publisher struct {
	conn  *amqp.Connection
	ch    channel
	queue string
	log   *slog.Logger

	mu     sync.RWMutex
	closed bool
	events chan events.Event
	done   chan struct{}
}

func Dial(url, queue string, log *slog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	p := newPublisher(ch, queue, log, defaultBuffer)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, queue string, log *slog.Logger, buffer int) *Publisher {
	p := &Publisher{
		ch:     ch,
		queue:  queue,
		log:    log,
		events: make(chan events.Event, buffer),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Publisher) Record(ctx context.Context, e events.Event) {
	if !e.Terminal {
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}

	select {
	case p.events <- e:
	default:
		p.log.WarnContext(ctx, "Dropping lifecycle event, publish buffer is full",
			"requestId", e.RequestID,
			"queue", p.queue)
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for e := range p.events {
		if err := p.publish(e); err != nil {
			p.log.Error("Failed to publish lifecycle event",
				"error", err,
				"requestId", e.RequestID,
				"queue", p.queue)
		}
	}
}

func (p *Publisher) publish(e events.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    e.RequestID,
			Body:         body,
			Timestamp:    e.Time,
		},
	)
}

// Close drains queued events and closes the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	<-p.done

	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
