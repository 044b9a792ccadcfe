// Package events publishes scene lifecycle changes and periodic tick
// digests to a message bus so other services can follow the orrery.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/internal/scene"
	"github.com/signalsfoundry/orrery/model"
)

// Channels.
const (
	ChannelLifecycle = "orrery.lifecycle"
	ChannelTick      = "orrery.tick"
)

// Lifecycle event types.
const (
	EventPopulated   = "populated"
	EventFetchFailed = "fetch_failed"
)

// DefaultDigestEvery is the tick digest interval at 60 fps: one per second.
const DefaultDigestEvery = 60

// Publisher sends a payload on a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisPublisher publishes over Redis pub/sub.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher connects lazily to the Redis server at addr.
func NewRedisPublisher(addr string) *RedisPublisher {
	return &RedisPublisher{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// Ping checks the connection.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// LifecycleEvent is published on ChannelLifecycle.
type LifecycleEvent struct {
	Type   string    `json:"type"`
	Bodies int       `json:"bodies"`
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at"`
}

// BodyDigest is one body's state inside a TickDigest.
type BodyDigest struct {
	Name     string      `json:"name"`
	Angle    float64     `json:"angle"`
	Position model.Point `json:"position"`
}

// TickDigest is published on ChannelTick.
type TickDigest struct {
	Tick   uint64       `json:"tick"`
	Phase  string       `json:"phase"`
	Bodies []BodyDigest `json:"bodies"`
	At     time.Time    `json:"at"`
}

// Emitter turns scene changes into published events. Publish failures are
// logged and otherwise ignored. A nil Emitter does nothing.
type Emitter struct {
	pub   Publisher
	log   logging.Logger
	every uint64
	now   func() time.Time
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithDigestEvery publishes a tick digest every n ticks; 0 disables digests.
func WithDigestEvery(n uint64) Option {
	return func(e *Emitter) { e.every = n }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEmitter returns an Emitter publishing through pub.
func NewEmitter(pub Publisher, log logging.Logger, opts ...Option) *Emitter {
	if log == nil {
		log = logging.Noop()
	}
	e := &Emitter{
		pub:   pub,
		log:   log,
		every: DefaultDigestEvery,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Populated announces the Loading to Populated transition.
func (e *Emitter) Populated(ctx context.Context, p scene.Populated) {
	if e == nil {
		return
	}
	e.publish(ctx, ChannelLifecycle, LifecycleEvent{
		Type:   EventPopulated,
		Bodies: len(p.Bodies),
		At:     e.now(),
	})
}

// FetchFailed announces that the planet data could not be loaded.
func (e *Emitter) FetchFailed(ctx context.Context, err error) {
	if e == nil || err == nil {
		return
	}
	e.publish(ctx, ChannelLifecycle, LifecycleEvent{
		Type:  EventFetchFailed,
		Error: err.Error(),
		At:    e.now(),
	})
}

// Tick publishes a digest of snap when its tick falls on the interval.
func (e *Emitter) Tick(ctx context.Context, snap scene.Snapshot) {
	if e == nil || e.every == 0 || snap.Tick%e.every != 0 {
		return
	}
	digest := TickDigest{
		Tick:   snap.Tick,
		Phase:  snap.State.Phase().String(),
		Bodies: []BodyDigest{},
		At:     e.now(),
	}
	if p, ok := snap.State.(scene.Populated); ok {
		for _, b := range p.Bodies {
			digest.Bodies = append(digest.Bodies, BodyDigest{Name: b.Name, Angle: b.Angle, Position: b.Position})
		}
	}
	e.publish(ctx, ChannelTick, digest)
}

func (e *Emitter) publish(ctx context.Context, channel string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		e.log.Warn(ctx, "failed to encode event", logging.String("channel", channel), logging.Err(err))
		return
	}
	if err := e.pub.Publish(ctx, channel, payload); err != nil {
		e.log.Warn(ctx, "failed to publish event", logging.String("channel", channel), logging.Err(err))
	}
}
