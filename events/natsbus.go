package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// Subject is the NATS subject events are published to by NatsBus.
const Subject = "aof.events"

// NatsBus is an optional Notifier that mirrors emitted events onto a NATS
// subject, so a concurrently running `watch` process can receive live
// updates without polling the event log on disk. It is a convenience
// broadcast layer, never the durable record: the jsonl stream written by
// Logger remains the sole durable state, matching §5 ("the task store
// directory is the only shared mutable state").
//
// Adapted from the teacher's embedded-NATS bootstrap in cmd/semspec/app.go,
// reused here purely as a local pub/sub mechanism rather than a message
// broker backbone.
type NatsBus struct {
	conn *nats.Conn
}

// StartEmbedded starts an embedded, in-process NATS server and returns a
// NatsBus connected to it. Intended for single-host use where no external
// broker is configured.
func StartEmbedded() (*NatsBus, *server.Server, error) {
	opts := &server.Options{
		Port:      -1,
		NoLog:     true,
		NoSigs:    true,
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("start embedded nats: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, nil, fmt.Errorf("start embedded nats: not ready after 5s")
	}

	conn, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, nil, fmt.Errorf("connect embedded nats: %w", err)
	}
	return &NatsBus{conn: conn}, ns, nil
}

// Connect attaches a NatsBus to an already-running NATS server at url.
func Connect(url string) (*NatsBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &NatsBus{conn: conn}, nil
}

// Notify implements Notifier by publishing the event as JSON to Subject.
func (b *NatsBus) Notify(e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event for nats: %w", err)
	}
	return b.conn.Publish(Subject, data)
}

// Subscribe registers fn to be called for every event published to Subject.
// The returned unsubscribe func should be deferred by the caller.
func (b *NatsBus) Subscribe(fn func(Event)) (func(), error) {
	sub, err := b.conn.Subscribe(Subject, func(msg *nats.Msg) {
		var e Event
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			return
		}
		fn(e)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe nats: %w", err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// Close drains and closes the underlying connection.
func (b *NatsBus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}
