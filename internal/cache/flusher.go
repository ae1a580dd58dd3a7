package cache

// flushLoop is the dedicated background flusher: it parks on cond whenever
// the dirty chain is empty, and otherwise pops the whole chain in one
// atomic swap and writes each block back to the device in turn.
func (c *Cache) flushLoop() {
	defer close(c.flushDone)
	for {
		for c.dirtyCount.Load() == 0 {
			if c.terminate.Load() {
				return
			}
			c.condMu.Lock()
			if c.dirtyCount.Load() == 0 && !c.terminate.Load() {
				c.cond.Wait()
			}
			c.condMu.Unlock()
		}

		next := c.dirtyHead.Swap(-1)
		for next != -1 {
			blockIndex := uint64(next)

			c.mu.Lock()
			b, ok := c.blocks[blockIndex]
			c.mu.Unlock()
			if !ok {
				break
			}

			b.mu.Lock()
			next = b.nextDirty
			b.nextDirty = -1
			buf := append([]byte(nil), b.buf...)
			c.dirtyCount.Add(-1)
			b.mu.Unlock()

			if !c.cryptCache {
				if err := c.cipher.Encrypt(blockIndex, buf, buf); err != nil {
					log.WithError(err).WithField("block", blockIndex).Error("encrypt block for flush")
					continue
				}
			}
			if err := c.dev.WriteAt(blockIndex, 1, buf); err != nil {
				log.WithError(err).WithField("block", blockIndex).Error("write block back to device")
			}
		}
	}
}
