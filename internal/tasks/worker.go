package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultPollTimeout = time.Second
	errorBackoff       = time.Second
)

// HandlerFunc executes a task. The returned value is stored as the task result.
type HandlerFunc func(ctx context.Context, args json.RawMessage) (any, error)

// Worker consumes envelopes from a Broker and runs the matching handler.
type Worker struct {
	broker      *Broker
	logger      *zap.Logger
	pollTimeout time.Duration

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewWorker constructs a Worker bound to broker.
func NewWorker(broker *Broker, logger *zap.Logger) *Worker {
	return &Worker{
		broker:      broker,
		logger:      logger,
		pollTimeout: defaultPollTimeout,
		handlers:    make(map[string]HandlerFunc),
	}
}

// Register binds a task name to its handler, replacing any previous one.
func (w *Worker) Register(task string, handler HandlerFunc) {
	w.mu.Lock()
	w.handlers[task] = handler
	w.mu.Unlock()
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", zap.String("queue", w.broker.name))
	defer w.logger.Info("worker stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		env, ok, err := w.broker.dequeue(ctx, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(errorBackoff):
			}
			continue
		}
		if !ok {
			continue
		}

		res := w.process(ctx, env)
		if err := w.broker.storeResult(ctx, res); err != nil {
			w.logger.Error("store result failed", zap.String("task_id", env.ID), zap.Error(err))
		}
	}
}

func (w *Worker) process(ctx context.Context, env Envelope) Result {
	start := time.Now()
	value, err := w.execute(ctx, env)

	res := Result{
		TaskID:   env.ID,
		Status:   StatusSuccess,
		DateDone: w.broker.clock(),
	}
	if err == nil {
		res.Result, err = json.Marshal(value)
	}
	if err != nil {
		res.Status = StatusFailure
		res.Result = nil
		res.Traceback = err.Error()
		w.logger.Warn("task failed",
			zap.String("task", env.Task),
			zap.String("task_id", env.ID),
			zap.Error(err),
		)
		return res
	}

	w.logger.Info("task succeeded",
		zap.String("task", env.Task),
		zap.String("task_id", env.ID),
		zap.Duration("duration", time.Since(start)),
	)
	return res
}

func (w *Worker) execute(ctx context.Context, env Envelope) (value any, err error) {
	w.mu.RLock()
	handler, ok := w.handlers[env.Task]
	w.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, env.Task)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task %s panicked: %v", env.Task, rec)
		}
	}()
	return handler(ctx, env.Args)
}
