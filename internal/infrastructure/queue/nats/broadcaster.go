// Package nats fans progress events out to live UI consumers. The durable
// trail lives in the store; this stream is best-effort only.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/dmakhnev/deep-research-core/internal/core/domain"
)

type Broadcaster struct {
	conn    *nats.Conn
	subject string
}

func New(url, subject string) (*Broadcaster, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("deep-research-core"),
		nats.Timeout(2*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(60),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("nats reconnected: %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Broadcaster{conn: conn, subject: subject}, nil
}

func (b *Broadcaster) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

// Broadcast publishes the event on <subject>.<runID> (or <subject>.documents
// for events not tied to a run).
func (b *Broadcaster) Broadcast(_ context.Context, event *domain.ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}
	topic := b.subject + ".documents"
	if event.RunID != "" {
		topic = b.subject + "." + event.RunID
	}
	if err := b.conn.Publish(topic, data); err != nil {
		return domain.WrapError(domain.ErrTemporary, "nats publish", err)
	}
	return nil
}
