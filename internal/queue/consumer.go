package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// Consumer reads the events queue and appends one line per event to
// <dir>/booking.log.
type Consumer struct {
    url   string
    queue string
    dir   string
    log   *zap.Logger
    mu    sync.Mutex
}

// NewConsumer returns a Consumer writing into dir.
func NewConsumer(url, queue, dir string, log *zap.Logger) *Consumer {
    return &Consumer{url: url, queue: queue, dir: dir, log: log}
}

// Run connects and consumes until ctx is cancelled, reconnecting with
// exponential backoff (capped at 30s) whenever the broker goes away.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return ctx.Err()
        }
        conn, err := amqp.Dial(c.url)
        if err != nil {
            c.log.Warn("consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = c.consume(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.log.Warn("consumer: loop ended, reconnecting", zap.Error(err))
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.log.Warn("consumer: set QoS failed", zap.Error(err))
    }
    if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }
    c.log.Info("consumer: listening", zap.String("queue", c.queue))

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := c.Handle(d.Body); err != nil {
                c.log.Error("consumer: handle message failed", zap.Error(err))
                _ = d.Nack(false, false) // do not requeue poison messages
                continue
            }
            _ = d.Ack(false)
        }
    }
}

// Handle decodes one message body and appends it to the log file.
func (c *Consumer) Handle(body []byte) error {
    var ev Event
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Type == "" {
        return errors.New("event without type")
    }
    c.mu.Lock()
    defer c.mu.Unlock()
    if err := os.MkdirAll(c.dir, 0o755); err != nil {
        return fmt.Errorf("mkdir %s: %w", c.dir, err)
    }
    f, err := os.OpenFile(filepath.Join(c.dir, "booking.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()
    if _, err := f.WriteString(FormatLine(ev)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// FormatLine renders an event as a single human readable line.
func FormatLine(ev Event) string {
    var b strings.Builder
    fmt.Fprintf(&b, "[%s] %s | reservation_id=%d", ev.OccurredAt.UTC().Format(time.RFC3339), ev.Type, ev.ReservationID)
    if ev.Reference != "" {
        fmt.Fprintf(&b, " | reference=%s", ev.Reference)
    }
    if ev.InvoiceID != 0 {
        fmt.Fprintf(&b, " | invoice_id=%d", ev.InvoiceID)
    }
    if ev.RefundID != 0 {
        fmt.Fprintf(&b, " | refund_id=%d", ev.RefundID)
    }
    if ev.Amount != 0 {
        fmt.Fprintf(&b, " | amount=%.2f", ev.Amount)
    }
    if ev.Status != "" {
        fmt.Fprintf(&b, " | status=%s", ev.Status)
    }
    if ev.Source != "" {
        fmt.Fprintf(&b, " | source=%s", ev.Source)
    }
    if ev.Note != "" {
        fmt.Fprintf(&b, " | note=%q", ev.Note)
    }
    b.WriteByte('\n')
    return b.String()
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
