// Package cache implements the write-back block cache that sits between
// the fragment allocator and the block cipher layer — component 4 of the
// storage engine. Blocks are held in memory, mutated freely, and only
// reach the device when the background flusher drains the dirty chain.
package cache

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/coverfs/coverfs/errs"
	"github.com/coverfs/coverfs/internal/blockcipher"
	"github.com/coverfs/coverfs/internal/blockdev"
)

var log = logrus.WithField("component", "cache")

// Cache owns the in-memory block map, the dirty chain, and the flusher
// goroutine that drains it. When cryptCache is true, cached buffers are
// held encrypted at rest and decrypted only transiently between Borrow and
// Release; when false (the default), buffers are cached decrypted and
// encryption happens only at the point a block actually crosses to or from
// the device.
type Cache struct {
	dev        blockdev.Device
	cipher     *blockcipher.Cipher
	cryptCache bool

	mu     sync.Mutex
	blocks map[uint64]*block

	dirtyHead  atomic.Int64 // -1 means the dirty chain is empty
	dirtyCount atomic.Int64

	condMu    sync.Mutex
	cond      *sync.Cond
	terminate atomic.Bool
	flushDone chan struct{}
}

// New constructs a Cache over dev, wired to cipher for block encryption,
// and starts its flusher goroutine. Callers must call Shutdown before
// dropping the last reference.
func New(dev blockdev.Device, cipher *blockcipher.Cipher, cryptCache bool) *Cache {
	c := &Cache{
		dev:        dev,
		cipher:     cipher,
		cryptCache: cryptCache,
		blocks:     make(map[uint64]*block),
		flushDone:  make(chan struct{}),
	}
	c.dirtyHead.Store(-1)
	c.cond = sync.NewCond(&c.condMu)
	go c.flushLoop()
	return c
}

// Borrow is a locked handle on a cached block's buffer, obtained from
// ReadBorrow or WriteBorrow and returned via Release.
type Borrow struct {
	cache *Cache
	block *block
}

// Bytes returns the borrowed block's buffer. It is valid only between the
// Borrow call that produced it and the matching Release.
func (b *Borrow) Bytes() []byte { return b.block.buf }

// Release unlocks the block, re-encrypting its buffer first if the cache
// holds ciphertext at rest.
func (b *Borrow) Release() error {
	defer b.block.mu.Unlock()
	if b.cache.cryptCache {
		if err := b.cache.cipher.Encrypt(b.block.index, b.block.buf, b.block.buf); err != nil {
			return err
		}
	}
	return nil
}

// getBlock returns the cache entry for blockIndex, creating it if absent.
// When read is true and the block was just created, its contents are
// filled from the device (and decrypted, if the cache does not hold
// ciphertext at rest) before getBlock returns.
func (c *Cache) getBlock(blockIndex uint64, read bool) (*block, error) {
	c.mu.Lock()
	if b, ok := c.blocks[blockIndex]; ok {
		c.mu.Unlock()
		return b, nil
	}
	b := &block{index: blockIndex, buf: make([]byte, c.dev.BlockSize()), nextDirty: -1}
	c.blocks[blockIndex] = b
	b.mu.Lock()
	c.mu.Unlock()

	if read {
		if err := c.dev.ReadAt(blockIndex, 1, b.buf); err != nil {
			b.mu.Unlock()
			return nil, err
		}
		if !c.cryptCache {
			if err := c.cipher.Decrypt(blockIndex, b.buf, b.buf); err != nil {
				b.mu.Unlock()
				return nil, err
			}
		}
	}
	b.mu.Unlock()
	return b, nil
}

// ReadBorrow locks blockIndex's buffer for reading, fetching it from the
// device first if this is the first time the block has been touched.
func (c *Cache) ReadBorrow(blockIndex uint64) (*Borrow, error) {
	b, err := c.getBlock(blockIndex, true)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	if c.cryptCache {
		if err := c.cipher.Decrypt(blockIndex, b.buf, b.buf); err != nil {
			b.mu.Unlock()
			return nil, err
		}
	}
	return &Borrow{cache: c, block: b}, nil
}

// WriteBorrow locks blockIndex's buffer for writing and links it onto the
// dirty chain. Unlike ReadBorrow it does not force a device read: callers
// overwriting less than a whole block must ReadBorrow/Release it first so
// the untouched portion is present.
func (c *Cache) WriteBorrow(blockIndex uint64) (*Borrow, error) {
	b, err := c.getBlock(blockIndex, false)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	if c.cryptCache {
		if err := c.cipher.Decrypt(blockIndex, b.buf, b.buf); err != nil {
			b.mu.Unlock()
			return nil, err
		}
	}
	c.markDirty(b)
	return &Borrow{cache: c, block: b}, nil
}

// markDirty links b onto the head of the dirty chain if its nextDirty is -1.
// The last block of a chain also holds -1, so dirtying that block again
// before the flusher drains the chain links it a second time; it is then
// counted and written back twice. Must be called with b.mu held.
func (c *Cache) markDirty(b *block) {
	if b.nextDirty == -1 {
		old := c.dirtyHead.Swap(int64(b.index))
		b.nextDirty = old
		c.dirtyCount.Add(1)
	}
}

// Prefetch ensures the n blocks starting at startBlock are present in the
// cache. Each missing block is read from the device with its own one-block
// ReadAt call; contiguous missing runs are not merged into one read.
func (c *Cache) Prefetch(startBlock uint64, n int) error {
	if n <= 0 {
		return nil
	}
	type miss struct {
		index uint64
		b     *block
	}
	var misses []miss

	c.mu.Lock()
	for i := 0; i < n; i++ {
		idx := startBlock + uint64(i)
		if _, ok := c.blocks[idx]; ok {
			continue
		}
		b := &block{index: idx, buf: make([]byte, c.dev.BlockSize()), nextDirty: -1}
		c.blocks[idx] = b
		b.mu.Lock()
		misses = append(misses, miss{index: idx, b: b})
	}
	c.mu.Unlock()

	if len(misses) == 0 {
		return nil
	}

	buf := make([]byte, int(c.dev.BlockSize())*len(misses))
	// Missing blocks need not be contiguous, so each is read individually;
	// the common case (a fresh sequential prefetch) still does n small
	// reads instead of n lock round-trips through getBlock.
	for i, m := range misses {
		slice := buf[i*int(c.dev.BlockSize()) : (i+1)*int(c.dev.BlockSize())]
		if err := c.dev.ReadAt(m.index, 1, slice); err != nil {
			for _, m2 := range misses {
				m2.b.mu.Unlock()
			}
			return err
		}
		copy(m.b.buf, slice)
	}
	for _, m := range misses {
		if !c.cryptCache {
			if err := c.cipher.Decrypt(m.index, m.b.buf, m.b.buf); err != nil {
				m.b.mu.Unlock()
				return err
			}
		}
		m.b.mu.Unlock()
	}
	return nil
}

// Sync wakes the flusher goroutine so it drains the current dirty chain.
// It does not block until the drain completes.
func (c *Cache) Sync() {
	c.condMu.Lock()
	c.cond.Signal()
	c.condMu.Unlock()
}

// Shutdown sets the flusher's terminate flag, lets it drain every dirty
// block, and waits for it to exit. Borrows made afterwards are not refused. It returns errs.InvariantViolation if dirty
// blocks remain after the drain, which would indicate a bug upstream.
func (c *Cache) Shutdown() error {
	c.terminate.Store(true)
	c.Sync()
	<-c.flushDone

	if n := c.dirtyCount.Load(); n != 0 {
		return errs.New(errs.InvariantViolation, "cache shutdown with dirty blocks outstanding")
	}

	c.mu.Lock()
	for idx, b := range c.blocks {
		if !b.mu.TryLock() {
			log.WithField("block", idx).Warn("block still in use at cache shutdown")
			continue
		}
		delete(c.blocks, idx)
		b.mu.Unlock()
	}
	remaining := len(c.blocks)
	c.mu.Unlock()
	if remaining != 0 {
		log.WithField("count", remaining).Warn("cache not empty after shutdown")
	}
	return nil
}

// CachedBlockCount reports the number of blocks currently resident, for
// tests and diagnostics.
func (c *Cache) CachedBlockCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.blocks)
}

// DirtyCount reports the number of blocks currently awaiting flush.
func (c *Cache) DirtyCount() int64 {
	return c.dirtyCount.Load()
}

// BlockSize returns the underlying device's block size.
func (c *Cache) BlockSize() uint32 {
	return c.dev.BlockSize()
}
