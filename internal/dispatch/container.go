package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/bootstrap"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/eventlog"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/events"
	logpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/pkg/log"
)

// Options tunes a Container. Zero values take the defaults noted.
type Options struct {
	PollTimeout   time.Duration // 2s
	BatchSize     int           // 10
	Workers       int           // one per registration, clamped to 1..8
	ClaimInterval time.Duration // 5s
	MinIdle       time.Duration // 30s
	MaxDeliveries int           // 16
	// Processed enables duplicate suppression when non-nil.
	Processed *ProcessedSet
}

func (o Options) withDefaults(regs int) Options {
	if o.PollTimeout <= 0 {
		o.PollTimeout = 2 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.Workers <= 0 {
		o.Workers = min(max(regs, 1), 8)
	}
	if o.ClaimInterval <= 0 {
		o.ClaimInterval = 5 * time.Second
	}
	if o.MinIdle <= 0 {
		o.MinIdle = 30 * time.Second
	}
	if o.MaxDeliveries <= 0 {
		o.MaxDeliveries = 16
	}
	return o
}

type inflightKey struct {
	stream, group string
	id            eventlog.ID
}

type job struct {
	reg   Registration
	batch []eventlog.Delivery
	done  chan struct{}
}

type outcome int

const (
	outcomeAcked outcome = iota
	outcomeDropped
	outcomeRetry
)

// Container runs the dispatch loop of one process: a poller per
// registration feeding a bounded worker pool, a heartbeat loop and the claim
// reaper. Each registration's batch is handled in order by a single worker
// before the next batch is read.
type Container struct {
	store    *eventlog.Store
	boot     *bootstrap.Bootstrapper
	registry *ConsumerRegistry
	opts     Options
	logger   logpkg.Logger
	regs     []Registration

	mu       sync.Mutex
	active   []Registration
	inflight map[inflightKey]struct{}

	jobs   chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a container for regs. It does nothing until Start.
func New(store *eventlog.Store, registry *ConsumerRegistry, regs []Registration, opts Options, logger logpkg.Logger) *Container {
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	}
	logger = logger.With(logpkg.Component("dispatch"))
	return &Container{
		store:    store,
		boot:     bootstrap.New(bootstrap.StoreGroups{Store: store}, logger),
		registry: registry,
		opts:     opts.withDefaults(len(regs)),
		logger:   logger,
		regs:     regs,
		inflight: make(map[inflightKey]struct{}),
		jobs:     make(chan job),
	}
}

// Start ensures every registration's group, then starts the loops for the
// registrations whose group is ready. Registrations that fail bootstrap are
// skipped with a warning.
func (c *Container) Start(ctx context.Context) error {
	if c.cancel != nil {
		return errors.New("dispatch: already started")
	}
	c.ctx, c.cancel = context.WithCancel(ctx)

	subs := make([]bootstrap.Subscription, 0, len(c.regs))
	for _, r := range c.regs {
		subs = append(subs, bootstrap.Subscription{Stream: r.Stream, Group: r.Group})
	}
	ready := map[bootstrap.Subscription]bool{}
	for _, s := range c.boot.EnsureAll(c.ctx, subs) {
		ready[s] = true
	}

	var active []Registration
	for _, r := range c.regs {
		if !ready[bootstrap.Subscription{Stream: r.Stream, Group: r.Group}] {
			continue
		}
		l, err := c.store.Log(r.Stream)
		if err != nil {
			c.logger.Warn("open stream failed", logpkg.Str("stream", r.Stream), logpkg.Err(err))
			continue
		}
		if _, err := c.registry.Register(c.ctx, r.Group, r.Consumer, map[string]string{"stream": r.Stream}); err != nil {
			c.logger.Warn("register consumer failed", logpkg.Str("consumer", r.Consumer), logpkg.Err(err))
		}
		active = append(active, r)
		c.wg.Add(1)
		go c.poll(r, l)
	}
	c.mu.Lock()
	c.active = active
	c.mu.Unlock()

	for i := 0; i < c.opts.Workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}
	c.wg.Add(2)
	go c.heartbeat()
	go c.reap()

	c.logger.Info("dispatch started",
		logpkg.Int("registrations", len(active)),
		logpkg.Int("skipped", len(c.regs)-len(active)),
		logpkg.Int("workers", c.opts.Workers),
	)
	return nil
}

// Stop cancels all loops, waits for in-progress handlers and unregisters
// this process's consumers so their pending entries become claimable.
func (c *Container) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.wg.Wait()
	for _, r := range c.Active() {
		_ = c.registry.Unregister(context.Background(), r.Group, r.Consumer)
	}
	c.logger.Info("dispatch stopped")
}

// Active returns the registrations that passed bootstrap.
func (c *Container) Active() []Registration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Registration(nil), c.active...)
}

// InFlight returns how many entries are currently being handled.
func (c *Container) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

func (c *Container) poll(reg Registration, l *eventlog.Log) {
	defer c.wg.Done()
	for c.ctx.Err() == nil {
		entries, err := l.ReadGroup(c.ctx, reg.Group, reg.Consumer, c.opts.BatchSize)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Error("read group failed",
				logpkg.Str("stream", reg.Stream),
				logpkg.Str("group", reg.Group),
				logpkg.Err(err),
			)
			sleepCtx(c.ctx, c.opts.PollTimeout)
			continue
		}
		if len(entries) == 0 {
			l.WaitForAppend(c.ctx, c.opts.PollTimeout)
			continue
		}
		batch := make([]eventlog.Delivery, len(entries))
		for i, e := range entries {
			batch[i] = eventlog.Delivery{Entry: e, Deliveries: 1}
		}
		c.submit(reg, batch)
	}
}

// submit hands batch to the pool and waits until it has been handled.
func (c *Container) submit(reg Registration, batch []eventlog.Delivery) {
	c.mu.Lock()
	for _, d := range batch {
		c.inflight[inflightKey{reg.Stream, reg.Group, d.ID}] = struct{}{}
	}
	c.mu.Unlock()

	j := job{reg: reg, batch: batch, done: make(chan struct{})}
	select {
	case c.jobs <- j:
		<-j.done
	case <-c.ctx.Done():
		c.clearInflight(reg, batch)
	}
}

func (c *Container) clearInflight(reg Registration, batch []eventlog.Delivery) {
	c.mu.Lock()
	for _, d := range batch {
		delete(c.inflight, inflightKey{reg.Stream, reg.Group, d.ID})
	}
	c.mu.Unlock()
}

func (c *Container) isInflight(reg Registration, id eventlog.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[inflightKey{reg.Stream, reg.Group, id}]
	return ok
}

func (c *Container) worker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case j := <-c.jobs:
			c.run(j)
		}
	}
}

func (c *Container) run(j job) {
	defer close(j.done)
	defer c.clearInflight(j.reg, j.batch)
	for _, d := range j.batch {
		if c.ctx.Err() != nil {
			return
		}
		c.process(j.reg, d)
		c.clearInflight(j.reg, []eventlog.Delivery{d})
	}
}

// process runs one entry through its registration and acks according to the
// handler outcome.
func (c *Container) process(reg Registration, d eventlog.Delivery) outcome {
	logger := c.logger.With(
		logpkg.Str("stream", reg.Stream),
		logpkg.Str("group", reg.Group),
		logpkg.Str("record_id", d.ID.String()),
	)
	if events.IsPlaceholder(d.Fields) {
		c.ack(reg, d.ID, logger)
		return outcomeDropped
	}
	env, err := events.ParseEnvelope(d.Fields)
	if err != nil {
		logger.Warn("undecodable entry; acking", logpkg.Err(err))
		c.ack(reg, d.ID, logger)
		return outcomeDropped
	}
	logger = logger.With(logpkg.Str("event_id", env.ID), logpkg.Str("type", string(env.Type)))
	if !reg.Filter.Match(env, d.TimeMs) {
		logger.Debug("filtered out", logpkg.Str("filter", reg.Filter.String()))
		c.ack(reg, d.ID, logger)
		return outcomeDropped
	}
	if c.opts.Processed.Seen(reg.Group, env.ID) {
		logger.Info("duplicate delivery; acking")
		c.ack(reg, d.ID, logger)
		return outcomeDropped
	}

	err = c.handle(reg, env)
	switch {
	case err == nil:
		if merr := c.opts.Processed.Mark(context.WithoutCancel(c.ctx), reg.Group, env.ID); merr != nil {
			logger.Warn("mark processed failed", logpkg.Err(merr))
		}
		c.ack(reg, d.ID, logger)
		return outcomeAcked
	case errors.Is(err, events.ErrMalformed), errors.Is(err, events.ErrUnknownEvent):
		logger.Warn("malformed event; acking", logpkg.Err(err))
		c.ack(reg, d.ID, logger)
		return outcomeDropped
	default:
		logger.Error("handler failed; left pending",
			logpkg.Int("deliveries", d.Deliveries),
			logpkg.Err(err),
		)
		return outcomeRetry
	}
}

func (c *Container) handle(reg Registration, env events.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return reg.Handler.Handle(c.ctx, env)
}

func (c *Container) ack(reg Registration, id eventlog.ID, logger logpkg.Logger) {
	l, err := c.store.Log(reg.Stream)
	if err == nil {
		_, err = l.Ack(context.WithoutCancel(c.ctx), reg.Group, id)
	}
	if err != nil {
		logger.Error("ack failed", logpkg.Err(err))
	}
}

func (c *Container) heartbeat() {
	defer c.wg.Done()
	ticker := time.NewTicker(max(c.registry.TTL()/3, 10*time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			for _, r := range c.Active() {
				if _, err := c.registry.Heartbeat(c.ctx, r.Group, r.Consumer); err != nil && c.ctx.Err() == nil {
					c.logger.Warn("heartbeat failed", logpkg.Str("consumer", r.Consumer), logpkg.Err(err))
				}
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
