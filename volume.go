// Package coverfs mounts an encrypted, user-space virtual filesystem out
// of a single fixed-size container. It wires together the five core
// components (raw block device, volume header, block cipher, write-back
// cache, fragment allocator) plus the directory layer on top of them.
package coverfs

import (
	"github.com/sirupsen/logrus"

	"github.com/coverfs/coverfs/errs"
	"github.com/coverfs/coverfs/internal/blockcipher"
	"github.com/coverfs/coverfs/internal/blockdev"
	"github.com/coverfs/coverfs/internal/cache"
	"github.com/coverfs/coverfs/internal/direntry"
	"github.com/coverfs/coverfs/internal/fragstore"
	"github.com/coverfs/coverfs/internal/header"
)

var log = logrus.WithField("component", "volume")

// Fixed container geometry, matching spec.md §3 exactly: one header block,
// one superblock block, then F fragment-table blocks.
const (
	headerBlock      = 0
	superblockBlock  = 1
	fragmentTableLen = 5 // F
	dataRegionStart  = 2 + fragmentTableLen
)

// Options configures Mount.
type Options struct {
	// Passphrase unlocks (or, for a fresh container, initializes) the
	// volume's master key.
	Passphrase string

	// CryptCache, when true, keeps cached blocks encrypted at rest and
	// decrypts only for the duration of a borrow. Default false trades
	// that defense-in-depth for full-speed cached access.
	CryptCache bool

	// KDFIterations overrides the PBKDF2 cost used when initializing a
	// fresh container. Zero selects header.DefaultIterations. Ignored
	// when mounting an existing container, whose own stored iteration
	// count always governs.
	KDFIterations uint32
}

// Volume is a mounted CoverFS container.
type Volume struct {
	dev     blockdev.Device
	cache   *cache.Cache
	store   *fragstore.Store
	uuid    [16]byte
	masterK [32]byte
}

// Mount opens dev, unwraps (or creates) the volume header with passphrase,
// and brings up the cache, flusher, and fragment allocator. The returned
// Volume must be closed with Unmount.
func Mount(dev blockdev.Device, opts Options) (*Volume, error) {
	blockSize := dev.BlockSize()

	headerBuf := make([]byte, blockSize)
	if err := dev.ReadAt(headerBlock, 1, headerBuf); err != nil {
		return nil, errs.Wrap(errs.IoError, "read volume header block", err)
	}

	var h *header.Header
	var masterKey [32]byte
	var volUUID [16]byte
	fresh := !header.HasMagic(headerBuf)

	if fresh {
		log.Info("no volume header found, initializing a new container")
		iterations := opts.KDFIterations
		if iterations == 0 {
			iterations = header.DefaultIterations
		}
		var err error
		h, masterKey, err = header.CreateWithIterations(opts.Passphrase, iterations)
		if err != nil {
			return nil, err
		}
		volUUID = header.NewVolumeUUID()

		encoded, err := h.Encode(blockSize)
		if err != nil {
			return nil, err
		}
		if err := dev.WriteAt(headerBlock, 1, encoded); err != nil {
			return nil, errs.Wrap(errs.IoError, "write volume header block", err)
		}
	} else {
		var err error
		h, err = header.Decode(headerBuf)
		if err != nil {
			return nil, err
		}
		masterKey, err = header.Unwrap(h, opts.Passphrase)
		if err != nil {
			return nil, err
		}
	}

	cipher, err := blockcipher.New(masterKey)
	if err != nil {
		return nil, err
	}
	c := cache.New(dev, cipher, opts.CryptCache)

	v := &Volume{dev: dev, cache: c, uuid: volUUID, masterK: masterKey}

	if fresh {
		if err := v.createSuperblockAndStore(); err != nil {
			c.Shutdown()
			return nil, err
		}
	} else {
		if err := v.loadSuperblockAndStore(); err != nil {
			c.Shutdown()
			return nil, err
		}
	}

	return v, nil
}

func (v *Volume) createSuperblockAndStore() error {
	bw, err := v.cache.WriteBorrow(superblockBlock)
	if err != nil {
		return err
	}
	copy(bw.Bytes(), header.SuperblockMagic)
	copy(bw.Bytes()[8:24], v.uuid[:])
	if err := bw.Release(); err != nil {
		return err
	}
	v.cache.Sync()

	store, err := fragstore.Create(v.cache, 2, fragmentTableLen, 2)
	if err != nil {
		return err
	}
	v.store = store

	root, err := v.store.CreateInode(nil, "/", true)
	if err != nil {
		return err
	}
	if root.ID != fragstore.RootID {
		return errs.New(errs.InvariantViolation, "root directory did not receive id 0")
	}
	return nil
}

func (v *Volume) loadSuperblockAndStore() error {
	br, err := v.cache.ReadBorrow(superblockBlock)
	if err != nil {
		return err
	}
	magic := string(br.Bytes()[:8])
	copy(v.uuid[:], br.Bytes()[8:24])
	if err := br.Release(); err != nil {
		return err
	}
	if magic != header.SuperblockMagic {
		return errs.New(errs.CorruptVolume, "superblock magic mismatch")
	}

	store, err := fragstore.Load(v.cache, 2, fragmentTableLen)
	if err != nil {
		return err
	}
	v.store = store
	return nil
}

// Unmount signals the flusher to drain every dirty block, joins it, and
// releases the cache. The Volume must not be used afterward.
func (v *Volume) Unmount() error {
	return v.cache.Shutdown()
}

// Root returns a Directory view over the root inode.
func (v *Volume) Root() (*direntry.Directory, error) {
	root, err := v.store.OpenInode(fragstore.RootID)
	if err != nil {
		return nil, err
	}
	return direntry.New(root), nil
}

// Store exposes the fragment allocator for host-integration glue that
// needs inode-level access directly (internal/fuseglue).
func (v *Volume) Store() *fragstore.Store { return v.store }

// UUID returns the volume's stable 16-byte identifier.
func (v *Volume) UUID() [16]byte { return v.uuid }

// Check runs the fragment table's overlap invariants.
func (v *Volume) Check() error {
	return v.store.Check()
}
