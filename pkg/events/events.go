// Package events publishes workflow and conversation notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kavlartius217/meditrust/pkg/lifecycle"
)

// Event is the envelope published for every notification.
type Event struct {
	Type      string    `json:"type"`
	Session   string    `json:"session"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers events. Publish failures are returned, never retried.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// System is a Publisher with a lifecycle.
type System interface {
	Publisher
	Start(lc *lifecycle.Coordinator) error
}

// New returns a NATS-backed system when enabled, otherwise a no-op.
func New(cfg *Config, logger *slog.Logger) System {
	if !cfg.Enabled {
		return noop{}
	}
	return &natsSystem{
		url:    cfg.URL,
		prefix: cfg.Prefix,
		logger: logger.With("system", "events"),
	}
}

type natsSystem struct {
	url    string
	prefix string
	logger *slog.Logger

	mu   sync.RWMutex
	conn *nats.Conn
}

func (n *natsSystem) Ready() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.conn != nil && n.conn.IsConnected()
}

func (n *natsSystem) Start(lc *lifecycle.Coordinator) error {
	lc.Check("events", n)

	lc.OnStartup(func() {
		conn, err := nats.Connect(
			n.url,
			nats.Name("meditrust"),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			n.logger.Error("nats connect failed", "url", n.url, "error", err)
			return
		}

		n.mu.Lock()
		n.conn = conn
		n.mu.Unlock()
		n.logger.Info("nats connected", "url", conn.ConnectedUrl())
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()

		n.mu.Lock()
		defer n.mu.Unlock()
		if n.conn == nil {
			return
		}
		if err := n.conn.Drain(); err != nil {
			n.logger.Error("nats drain failed", "error", err)
		}
		n.conn = nil
	})

	return nil
}

// Publish sends e on <prefix>.<type>.
func (n *natsSystem) Publish(_ context.Context, e Event) error {
	n.mu.RLock()
	conn := n.conn
	n.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("publish %s: not connected", e.Type)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.Type, err)
	}
	return conn.Publish(n.prefix+"."+e.Type, data)
}

type noop struct{}

func (noop) Start(*lifecycle.Coordinator) error   { return nil }
func (noop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Types returns the types of recorded events in publish order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}
