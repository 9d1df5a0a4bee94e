package consent

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	dErrors "assent/pkg/domain-errors"
)

// sweepTimeout bounds a single janitor pass.
const sweepTimeout = 30 * time.Second

// startJanitor schedules sweepExpired on a cron expression. "@every 1h"
// style descriptors work too.
func (c *Client) startJanitor(schedule string) error {
	runner := cron.New()
	if _, err := runner.AddFunc(schedule, c.sweepExpired); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid sweep schedule")
	}
	runner.Start()
	c.cron = runner
	c.logger.Info("expiry janitor scheduled", "schedule", schedule)
	return nil
}

// sweepExpired prunes expired records across the whole namespace, so banner
// evaluation stays a presence check even for subjects that never return.
// Each candidate is re-checked under its subject lock before deletion.
func (c *Client) sweepExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	keys, err := c.store.Keys(ctx, c.keyPrefix())
	if err != nil {
		c.logger.Warn("expiry sweep aborted", "error", err)
		return
	}

	now := time.Now()
	swept := 0
	for _, key := range keys {
		if ctx.Err() != nil {
			c.logger.Warn("expiry sweep timed out", "scanned", swept, "total", len(keys))
			return
		}
		raw, err := c.store.Get(ctx, key)
		if err != nil {
			continue
		}
		rec, err := decodeRecord(raw)
		if err != nil || rec.IsActive(now) {
			continue
		}
		storageSubject := strings.TrimPrefix(key, c.keyPrefix())
		c.expireRecord(ctx, storageSubject, rec, "expired during sweep")
		swept++
	}

	if swept > 0 {
		c.logger.Info("expired consent records pruned", "count", swept)
	}
}
