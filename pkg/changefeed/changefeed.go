// Package changefeed broadcasts "table changed" signals so clients can re-fetch.
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "changes:"

// Change is the signal delivered to subscribers. It carries no row data.
// Audience names the users allowed to see it; empty means everyone.
type Change struct {
	Table    string   `json:"table"`
	ID       string   `json:"id,omitempty"`
	Op       string   `json:"op"`
	Audience []string `json:"audience,omitempty"`
}

// VisibleTo reports whether userID is in the audience of c.
func (c Change) VisibleTo(userID string) bool {
	if len(c.Audience) == 0 {
		return true
	}
	for _, id := range c.Audience {
		if id != "" && id == userID {
			return true
		}
	}
	return false
}

// Signal strips the audience before the change leaves the process.
func (c Change) Signal() Change {
	return Change{Table: c.Table, ID: c.ID, Op: c.Op}
}

const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Feed publishes and subscribes to table changes.
type Feed interface {
	Publish(ctx context.Context, change Change) error
	Subscribe(ctx context.Context, tables ...string) (<-chan Change, func(), error)
}

// Channel returns the pub/sub channel name for a table.
func Channel(table string) string {
	return channelPrefix + strings.ToLower(strings.TrimSpace(table))
}

// MemoryFeed fans changes out to in-process subscribers. Slow subscribers miss signals.
type MemoryFeed struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*memorySub
}

type memorySub struct {
	tables map[string]struct{}
	ch     chan Change
}

// NewMemoryFeed builds an empty in-process feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[int]*memorySub)}
}

// Publish delivers change to every subscriber of its table.
func (f *MemoryFeed) Publish(_ context.Context, change Change) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sub := range f.subs {
		if _, ok := sub.tables[Channel(change.Table)]; !ok {
			continue
		}
		select {
		case sub.ch <- change:
		default:
		}
	}
	return nil
}

// Subscribe registers interest in tables until ctx ends or the returned cancel is called.
func (f *MemoryFeed) Subscribe(ctx context.Context, tables ...string) (<-chan Change, func(), error) {
	if len(tables) == 0 {
		return nil, nil, fmt.Errorf("at least one table required")
	}
	sub := &memorySub{tables: make(map[string]struct{}, len(tables)), ch: make(chan Change, 16)}
	for _, t := range tables {
		sub.tables[Channel(t)] = struct{}{}
	}

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = sub
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(sub.ch)
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return sub.ch, cancel, nil
}

// RedisFeed uses Redis pub/sub so every API replica sees every change.
type RedisFeed struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisFeed wires a feed on top of client.
func NewRedisFeed(client *redis.Client, logger *zap.Logger) *RedisFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisFeed{client: client, logger: logger}
}

// Publish sends change on the table channel.
func (f *RedisFeed) Publish(ctx context.Context, change Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	if err := f.client.Publish(ctx, Channel(change.Table), payload).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

// Subscribe listens on the table channels until ctx ends or cancel is called.
func (f *RedisFeed) Subscribe(ctx context.Context, tables ...string) (<-chan Change, func(), error) {
	if len(tables) == 0 {
		return nil, nil, fmt.Errorf("at least one table required")
	}
	channels := make([]string, 0, len(tables))
	for _, t := range tables {
		channels = append(channels, Channel(t))
	}

	pubsub := f.client.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe changes: %w", err)
	}

	out := make(chan Change, 16)
	var once sync.Once
	cancel := func() { once.Do(func() { _ = pubsub.Close() }) }

	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					f.logger.Warn("discarding malformed change", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				select {
				case out <- change:
				default:
				}
			}
		}
	}()

	return out, cancel, nil
}
