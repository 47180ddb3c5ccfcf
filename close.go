package kvlite

import "errors"

// Close closes every shard and releases the directory lock. Operations
// started after Close fail with ErrClosed. Close is idempotent.
func (c *coordinator[V]) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = errors.Join(c.pool.Close(), c.lock.Release())
		if c.closeErr != nil {
			c.logger.Error("close failed", "dir", c.dir, "error", c.closeErr)
		} else {
			c.logger.Info("store closed", "dir", c.dir)
		}
	})
	return c.closeErr
}
