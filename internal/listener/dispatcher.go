package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/astroupia/beblocky-api-sub000/internal/feed"
	"github.com/astroupia/beblocky-api-sub000/internal/provision"
)

// State is the dispatcher lifecycle state.
type State string

const (
	StateIdle        State = "idle"
	StateSubscribing State = "subscribing"
	StateProcessing  State = "processing"
	StateBackoff     State = "backoff"
	StateStopped     State = "stopped"
)

// Config holds the dispatcher's injected collaborators and tuning.
type Config struct {
	Source   feed.Source
	Cursor   feed.CursorStore
	Registry *provision.Registry
	Logger   *slog.Logger

	// HandlerTimeout bounds a single provisioning call. A handler that runs
	// past it counts as a transient failure and the event is retried.
	HandlerTimeout time.Duration
	// BackoffMin and BackoffMax bound the delay between retries and
	// re-subscriptions. The delay doubles per consecutive failure.
	BackoffMin time.Duration
	BackoffMax time.Duration
}

// Dispatcher owns the change feed subscription. One goroutine runs it; events
// are handled strictly sequentially in token order, and the resume cursor
// advances only after the handler for its event has finished.
type Dispatcher struct {
	source   feed.Source
	cursor   feed.CursorStore
	registry *provision.Registry
	logger   *slog.Logger

	handlerTimeout time.Duration
	backoffMin     time.Duration
	backoffMax     time.Duration

	mu    sync.RWMutex
	state State
}

// New builds a dispatcher. Zero tuning values get defaults suited to the
// expected account-creation rate.
func New(cfg Config) *Dispatcher {
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 10 * time.Second
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = time.Minute
	}
	return &Dispatcher{
		source:         cfg.Source,
		cursor:         cfg.Cursor,
		registry:       cfg.Registry,
		logger:         cfg.Logger,
		handlerTimeout: cfg.HandlerTimeout,
		backoffMin:     cfg.BackoffMin,
		backoffMax:     cfg.BackoffMax,
		state:          StateIdle,
	}
}

// State returns the current lifecycle state.
func (d *Dispatcher) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

func (d *Dispatcher) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Run processes the feed until the context is cancelled. It only returns an
// error when the resume cursor cannot be established at startup; all later
// failures are retried with capped exponential backoff.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.setState(StateStopped)

	from, err := d.resumeToken(ctx)
	if err != nil {
		return err
	}
	d.logger.Info("dispatcher resuming", "cursor", from.String())

	backoff := d.backoffMin
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		d.setState(StateSubscribing)
		sub, err := d.source.Subscribe(ctx, from)
		if err != nil {
			d.logger.Warn("subscribe failed", "cursor", from.String(), "error", err)
			if !d.wait(ctx, backoff) {
				return ctx.Err()
			}
			backoff = d.nextBackoff(backoff)
			continue
		}

		last, err := d.consume(ctx, sub)
		_ = sub.Close()

		if from.Before(last) {
			from = last
			backoff = d.backoffMin
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Transient handler failure or lost subscription: back off, then
		// re-subscribe from the durable cursor so the event replays.
		d.logger.Warn("processing interrupted, backing off",
			"cursor", from.String(), "backoff", backoff.String(), "error", err)
		if !d.wait(ctx, backoff) {
			return ctx.Err()
		}
		backoff = d.nextBackoff(backoff)
	}
}

// consume handles events from the subscription until it fails, returning the
// last durably recorded token.
func (d *Dispatcher) consume(ctx context.Context, sub feed.Subscription) (feed.Token, error) {
	var last feed.Token
	for {
		event, err := sub.Next(ctx)
		if err != nil {
			return last, err
		}

		d.setState(StateProcessing)
		if err := d.handle(ctx, event); err != nil {
			return last, err
		}
		if err := d.cursor.Save(ctx, event.Token); err != nil {
			// The handler succeeded but the cursor did not persist; the event
			// replays on the next subscription and the idempotent handler
			// absorbs it.
			return last, fmt.Errorf("save cursor: %w", err)
		}
		last = event.Token
	}
}

// handle provisions the profile for one event. A nil return means the cursor
// may advance: success, unknown role, and permanently malformed events all
// advance; only transient failures hold it back.
func (d *Dispatcher) handle(ctx context.Context, event feed.UserEvent) error {
	role, ok := provision.ParseRole(event.Role)
	if !ok {
		d.logger.Warn("skipping event with unrecognized role",
			"token", event.Token.String(), "user_id", event.UserID, "role", event.Role)
		return nil
	}

	handler, ok := d.registry.Lookup(role)
	if !ok {
		d.logger.Warn("no handler registered for role",
			"token", event.Token.String(), "role", string(role))
		return nil
	}

	handlerCtx, cancel := context.WithTimeout(ctx, d.handlerTimeout)
	defer cancel()

	_, err := handler.Provision(handlerCtx, event.UserID)
	if errors.Is(err, provision.ErrInvalidUser) {
		d.logger.Warn("skipping malformed event",
			"token", event.Token.String(), "user_id", event.UserID, "error", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("provision %s for user %s: %w", role, event.UserID, err)
	}

	d.logger.Info("profile provisioned",
		"token", event.Token.String(), "user_id", event.UserID, "role", string(role))
	return nil
}

// resumeToken loads the durable cursor, persisting a start-from-now token on
// first startup.
func (d *Dispatcher) resumeToken(ctx context.Context) (feed.Token, error) {
	token, ok, err := d.cursor.Load(ctx)
	if err != nil {
		return feed.Token{}, fmt.Errorf("load resume cursor: %w", err)
	}
	if ok {
		return token, nil
	}

	token, err = d.source.LatestToken(ctx)
	if err != nil {
		return feed.Token{}, fmt.Errorf("bootstrap resume cursor: %w", err)
	}
	if err := d.cursor.Save(ctx, token); err != nil {
		return feed.Token{}, fmt.Errorf("persist initial cursor: %w", err)
	}
	return token, nil
}

func (d *Dispatcher) wait(ctx context.Context, delay time.Duration) bool {
	d.setState(StateBackoff)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (d *Dispatcher) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > d.backoffMax {
		next = d.backoffMax
	}
	return next
}
