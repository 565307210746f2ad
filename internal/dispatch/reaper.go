package dispatch

import (
	"strconv"
	"time"

	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/eventlog"
	logpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/pkg/log"
)

// DeadLetterSuffix is appended to a stream key to name its dead-letter stream.
const DeadLetterSuffix = ":dlq"

// Dead-letter record fields added to the original entry's fields.
const (
	FieldDLQStream     = "dlq_stream"
	FieldDLQGroup      = "dlq_group"
	FieldDLQRecordID   = "dlq_record_id"
	FieldDLQDeliveries = "dlq_deliveries"
)

func (c *Container) reap() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.opts.ClaimInterval)
	defer ticker.Stop()

	c.logger.Info("claim reaper started",
		logpkg.Dur("interval", c.opts.ClaimInterval),
		logpkg.Dur("min_idle", c.opts.MinIdle),
		logpkg.Int("max_deliveries", c.opts.MaxDeliveries),
	)
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep runs one reaper pass over every active registration.
func (c *Container) sweep() {
	groups := map[string]bool{}
	for _, r := range c.Active() {
		if c.ctx.Err() != nil {
			return
		}
		groups[r.Group] = true
		c.reclaim(r)
	}
	for g := range groups {
		if n, err := c.registry.CleanupExpired(c.ctx, g, 100); err != nil {
			c.logger.Warn("consumer cleanup failed", logpkg.Str("group", g), logpkg.Err(err))
		} else if n > 0 {
			c.logger.Info("removed expired consumers", logpkg.Str("group", g), logpkg.Int("count", n))
		}
		if c.opts.Processed != nil {
			if _, err := c.opts.Processed.Prune(c.ctx, g); err != nil {
				c.logger.Warn("prune processed set failed", logpkg.Str("group", g), logpkg.Err(err))
			}
		}
	}
}

// reclaim claims idle entries of dead consumers, and this consumer's own
// idle entries that are not being handled, then redelivers them here.
// Entries past MaxDeliveries go to the dead-letter stream instead.
func (c *Container) reclaim(reg Registration) {
	l, err := c.store.Log(reg.Stream)
	if err != nil {
		return
	}
	eligible := func(p eventlog.PendingEntry) bool {
		if p.Consumer == reg.Consumer {
			return !c.isInflight(reg, p.ID)
		}
		return !c.registry.IsActive(reg.Group, p.Consumer)
	}
	claimed, err := l.Claim(c.ctx, reg.Group, reg.Consumer, c.opts.MinIdle, c.opts.BatchSize, eligible)
	if err != nil {
		if c.ctx.Err() == nil {
			c.logger.Error("claim failed", logpkg.Str("stream", reg.Stream), logpkg.Str("group", reg.Group), logpkg.Err(err))
		}
		return
	}
	if len(claimed) == 0 {
		return
	}
	retry := claimed[:0]
	for _, d := range claimed {
		if d.Deliveries > c.opts.MaxDeliveries {
			c.deadLetter(reg, d)
			continue
		}
		retry = append(retry, d)
	}
	c.logger.Info("claimed pending entries",
		logpkg.Str("stream", reg.Stream),
		logpkg.Str("group", reg.Group),
		logpkg.Int("redeliver", len(retry)),
		logpkg.Int("dead_lettered", len(claimed)-len(retry)),
	)
	if len(retry) > 0 {
		c.submit(reg, retry)
	}
}

func (c *Container) deadLetter(reg Registration, d eventlog.Delivery) {
	fields := make(map[string]string, len(d.Fields)+4)
	for k, v := range d.Fields {
		fields[k] = v
	}
	fields[FieldDLQStream] = reg.Stream
	fields[FieldDLQGroup] = reg.Group
	fields[FieldDLQRecordID] = d.ID.String()
	fields[FieldDLQDeliveries] = strconv.Itoa(d.Deliveries)

	logger := c.logger.With(logpkg.Str("stream", reg.Stream), logpkg.Str("record_id", d.ID.String()))
	if _, err := c.store.Append(c.ctx, reg.Stream+DeadLetterSuffix, fields); err != nil {
		logger.Error("dead-letter append failed; left pending", logpkg.Err(err))
		return
	}
	logger.Warn("dead-lettered entry", logpkg.Int("deliveries", d.Deliveries))
	c.ack(reg, d.ID, logger)
}
