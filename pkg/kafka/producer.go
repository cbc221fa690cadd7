// Package kafka wraps an async segmentio writer behind a bounded inbox so
// request paths never block on the broker.
package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

var (
	ErrBufferFull = errors.New("kafka producer buffer full")
	ErrClosed     = errors.New("kafka producer closed")
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer queues messages in memory and writes them from a single goroutine.
type Producer struct {
	w     messageWriter
	logg  *logger.Logger
	inbox chan kafka.Message
	done  chan struct{}

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	startOnce sync.Once
}

// NewProducer builds a producer for one topic. Messages with the same key land
// on the same partition.
func NewProducer(brokers []string, topic string, buf int, logg *logger.Logger) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newProducer(w, buf, logg)
}

func newProducer(w messageWriter, buf int, logg *logger.Logger) *Producer {
	if buf <= 0 {
		buf = 1
	}
	return &Producer{
		w:     w,
		logg:  logg,
		inbox: make(chan kafka.Message, buf),
		done:  make(chan struct{}),
	}
}

// Start launches the writer loop. Cancelling ctx flushes queued messages and
// closes the writer.
func (p *Producer) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		go p.run()
		go func() {
			select {
			case <-ctx.Done():
				p.Close()
			case <-p.done:
			}
		}()
	})
}

func (p *Producer) run() {
	defer close(p.done)
	for m := range p.inbox {
		if err := p.w.WriteMessages(context.Background(), m); err != nil && p.logg != nil {
			p.logg.Error(context.Background(), "kafka write failed", err)
		}
	}
	if err := p.w.Close(); err != nil && p.logg != nil {
		p.logg.Error(context.Background(), "kafka writer close failed", err)
	}
}

// Publish enqueues a message without blocking.
func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.inbox <- kafka.Message{Key: key, Value: value, Time: time.Now(), Headers: headers}:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops accepting messages. The writer loop drains what is queued.
func (p *Producer) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.inbox)
		p.mu.Unlock()
	})
}

// WaitClosed blocks until the writer loop has flushed and exited.
func (p *Producer) WaitClosed() {
	<-p.done
}
