package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultQueue         = "celery"
	defaultResultExpires = 24 * time.Hour
)

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithQueue sets the list the broker pushes to and the worker pops from.
func WithQueue(name string) BrokerOption {
	return func(b *Broker) {
		if name != "" {
			b.name = name
		}
	}
}

// WithResultExpiry sets how long task results are retained.
func WithResultExpiry(d time.Duration) BrokerOption {
	return func(b *Broker) {
		if d > 0 {
			b.expires = d
		}
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) BrokerOption {
	return func(b *Broker) {
		b.clock = clock
	}
}

// Broker enqueues tasks and reads their results.
type Broker struct {
	queue   *redis.Client
	results *redis.Client
	name    string
	expires time.Duration
	clock   func() time.Time
	newID   func() string
}

// NewBroker connects to the broker and result backend URLs. Identical URLs
// share a single client.
func NewBroker(brokerURL, resultURL string, opts ...BrokerOption) (*Broker, error) {
	brokerOpts, err := redis.ParseURL(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("parse broker URL: %w", err)
	}
	queue := redis.NewClient(brokerOpts)

	results := queue
	if resultURL != "" && resultURL != brokerURL {
		resultOpts, err := redis.ParseURL(resultURL)
		if err != nil {
			_ = queue.Close()
			return nil, fmt.Errorf("parse result backend URL: %w", err)
		}
		results = redis.NewClient(resultOpts)
	}

	b := &Broker{
		queue:   queue,
		results: results,
		name:    defaultQueue,
		expires: defaultResultExpires,
		clock: func() time.Time {
			return time.Now().UTC()
		},
		newID: newTaskID,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Enqueue serialises args and pushes a new task envelope. It returns the task id.
func (b *Broker) Enqueue(ctx context.Context, task string, args any) (string, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encode args for %s: %w", task, err)
	}

	env := Envelope{
		ID:     b.newID(),
		Task:   task,
		Args:   raw,
		SentAt: b.clock(),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}

	if err := b.queue.LPush(ctx, b.name, payload).Err(); err != nil {
		return "", fmt.Errorf("push %s: %w", task, err)
	}
	return env.ID, nil
}

// Result fetches the stored outcome of a task.
func (b *Broker) Result(ctx context.Context, id string) (Result, error) {
	raw, err := b.results.Get(ctx, resultKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Result{}, ErrResultNotFound
	}
	if err != nil {
		return Result{}, fmt.Errorf("get result %s: %w", id, err)
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return Result{}, fmt.Errorf("decode result %s: %w", id, err)
	}
	return res, nil
}

// Ping checks both connections.
func (b *Broker) Ping(ctx context.Context) error {
	if err := b.queue.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping broker: %w", err)
	}
	if b.results != b.queue {
		if err := b.results.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping result backend: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connections.
func (b *Broker) Close() error {
	err := b.queue.Close()
	if b.results != b.queue {
		err = errors.Join(err, b.results.Close())
	}
	return err
}

func (b *Broker) storeResult(ctx context.Context, res Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := b.results.Set(ctx, resultKey(res.TaskID), payload, b.expires).Err(); err != nil {
		return fmt.Errorf("store result %s: %w", res.TaskID, err)
	}
	return nil
}

// dequeue blocks for up to timeout waiting for an envelope. ok is false when
// the wait timed out.
func (b *Broker) dequeue(ctx context.Context, timeout time.Duration) (Envelope, bool, error) {
	values, err := b.queue.BRPop(ctx, timeout, b.name).Result()
	if errors.Is(err, redis.Nil) {
		return Envelope{}, false, nil
	}
	if err != nil {
		return Envelope{}, false, fmt.Errorf("pop %s: %w", b.name, err)
	}

	// BRPOP replies with [key, value].
	var env Envelope
	if err := json.Unmarshal([]byte(values[1]), &env); err != nil {
		return Envelope{}, false, fmt.Errorf("decode envelope: %w", err)
	}
	return env, true, nil
}
