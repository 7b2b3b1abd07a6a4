package queue

import (
    "context"
    "encoding/json"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// Publisher sends events to a durable queue on the default exchange.  It
// opens a connection per publish: event volume is a handful per booking
// and this keeps the API free of reconnect logic.
type Publisher struct {
    url   string
    queue string
    log   *zap.Logger
}

// NewPublisher returns a Publisher for the given broker URL and queue.
func NewPublisher(url, queue string, log *zap.Logger) *Publisher {
    return &Publisher{url: url, queue: queue, log: log}
}

// Publish delivers ev as a persistent JSON message.  Errors are logged and
// returned; callers treat them as non-fatal.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
    if ev.OccurredAt.IsZero() {
        ev.OccurredAt = time.Now().UTC()
    }
    body, err := json.Marshal(ev)
    if err != nil {
        return err
    }
    conn, err := amqp.Dial(p.url)
    if err != nil {
        p.log.Warn("rabbitmq dial failed", zap.String("event", ev.Type), zap.Error(err))
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        p.log.Warn("rabbitmq channel open failed", zap.Error(err))
        return err
    }
    defer func() { _ = ch.Close() }()

    if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
        p.log.Warn("rabbitmq queue declare failed", zap.String("queue", p.queue), zap.Error(err))
        return err
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    ev.OccurredAt,
        Type:         ev.Type,
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
        p.log.Warn("rabbitmq publish failed", zap.String("event", ev.Type), zap.Error(err))
        return err
    }
    return nil
}

// Nop discards events.  It is used when EVENTS_ENABLED=false.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
