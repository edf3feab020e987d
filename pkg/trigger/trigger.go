// Package trigger publishes the one-shot message that tells the downstream
// worker to begin its first processing cycle.
package trigger

import (
	"context"
	"io"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
)

var ErrClosed = errors.New("publisher closed")

// Execer runs a command inside a service container.
type Execer interface {
	Exec(ctx context.Context, service string, argv []string, input io.Reader) error
}

// CachePublisher is a watermill publisher that delivers each message by
// running the cache's publish command (e.g. redis-cli PUBLISH) inside the
// cache container, so no client library or exposed port is needed.
type CachePublisher struct {
	exec    Execer
	service string
	command []string

	mu     sync.Mutex
	closed bool
}

var _ message.Publisher = (*CachePublisher)(nil)

func NewCachePublisher(exec Execer, service string, command []string) *CachePublisher {
	return &CachePublisher{exec: exec, service: service, command: append([]string{}, command...)}
}

func (p *CachePublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}
	for _, msg := range messages {
		argv := append(append([]string{}, p.command...), topic, string(msg.Payload))
		if err := p.exec.Exec(msg.Context(), p.service, argv, nil); err != nil {
			return errors.Wrapf(err, "publish %s on %s", msg.UUID, topic)
		}
	}
	return nil
}

func (p *CachePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Fire publishes payload once on topic.
func Fire(ctx context.Context, pub message.Publisher, topic, payload string) error {
	msg := message.NewMessage(watermill.NewUUID(), []byte(payload))
	msg.SetContext(ctx)
	return pub.Publish(topic, msg)
}
