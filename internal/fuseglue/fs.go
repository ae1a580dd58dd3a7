// Package fuseglue is the thin operating-system integration layer
// spec.md explicitly scopes out of the core: it translates jacobsa/fuse
// kernel callbacks into coverfs.Volume / fragstore.Inode / direntry.Directory
// calls. It contains no allocator, cache, or cipher logic of its own — see
// _examples/distr1-distri/internal/fuse/fuse.go for the pattern this
// package adapts.
package fuseglue

import (
	"context"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/coverfs/coverfs"
	"github.com/coverfs/coverfs/errs"
	"github.com/coverfs/coverfs/internal/direntry"
	"github.com/coverfs/coverfs/internal/fragstore"
)

// never matches the teacher pattern's cache-forever expiration timestamp:
// inode identities here are as stable as squashfs's, so the kernel can
// cache attributes indefinitely between explicit invalidations.
var never = time.Now().Add(365 * 24 * time.Hour)

// FS adapts a coverfs.Volume to fuseutil.FileSystem. Unimplemented
// operations fall back to fuseutil.NotImplementedFileSystem's ENOSYS.
type FS struct {
	fuseutil.NotImplementedFileSystem

	vol *coverfs.Volume

	mu      sync.Mutex
	handles map[fuseops.HandleID]*direntry.Directory
	nextH   fuseops.HandleID
}

// New builds an FS over an already-mounted volume.
func New(vol *coverfs.Volume) *FS {
	return &FS{vol: vol, handles: make(map[fuseops.HandleID]*direntry.Directory)}
}

// toFuseInode maps a coverfs inode id to a FUSE inode id. FUSE reserves 1
// for the root, so ids are offset by one; coverfs's own root id (0) maps
// to fuseops.RootInodeID.
func toFuseInode(id int32) fuseops.InodeID {
	return fuseops.InodeID(id) + fuseops.InodeID(fuseops.RootInodeID)
}

func toCoverID(id fuseops.InodeID) int32 {
	return int32(id) - int32(fuseops.RootInodeID)
}

func (fs *FS) attributesFor(node *fragstore.Inode, isDir bool) fuseops.InodeAttributes {
	mode := os.FileMode(0644)
	if isDir {
		mode = os.ModeDir | 0755
	}
	return fuseops.InodeAttributes{
		Size:  uint64(node.Size()),
		Nlink: 1,
		Mode:  mode,
		Atime: time.Now(),
		Mtime: time.Now(),
		Ctime: time.Now(),
	}
}

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errs.Is(err, errs.NotFound):
		return fuse.ENOENT
	case errs.Is(err, errs.AlreadyExists):
		return syscall.EEXIST
	case errs.Is(err, errs.NotADirectory), errs.Is(err, errs.NotAFile):
		return fuse.EIO
	case errs.Is(err, errs.NoSpace):
		return syscall.ENOSPC
	default:
		return fuse.EIO
	}
}

func (fs *FS) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	stats := fs.vol.StatVolume()
	op.BlockSize = stats.BlockSize
	op.Blocks = stats.TotalBlocks
	op.BlocksFree = stats.FreeBlocks
	op.BlocksAvailable = stats.FreeBlocks
	op.IoSize = stats.BlockSize
	return nil
}

func (fs *FS) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	parent, err := fs.vol.Store().OpenInode(toCoverID(op.Parent))
	if err != nil {
		return translateErr(err)
	}
	entry, err := direntry.New(parent).Find(op.Name)
	if err != nil {
		return translateErr(err)
	}
	child, err := fs.vol.Store().OpenInode(int32(entry.InodeID))
	if err != nil {
		return translateErr(err)
	}

	op.Entry.Child = toFuseInode(child.ID)
	op.Entry.Attributes = fs.attributesFor(child, entry.Type == direntry.TypeDir)
	op.Entry.AttributesExpiration = never
	op.Entry.EntryExpiration = never
	return nil
}

func (fs *FS) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	node, err := fs.vol.Store().OpenInode(toCoverID(op.Inode))
	if err != nil {
		return translateErr(err)
	}
	op.Attributes = fs.attributesFor(node, node.Dir)
	op.AttributesExpiration = never
	return nil
}

func (fs *FS) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error {
	node, err := fs.vol.Store().OpenInode(toCoverID(op.Inode))
	if err != nil {
		return translateErr(err)
	}
	if op.Size != nil {
		if err := node.Truncate(int64(*op.Size)); err != nil {
			return translateErr(err)
		}
	}
	op.Attributes = fs.attributesFor(node, node.Dir)
	op.AttributesExpiration = never
	return nil
}

func (fs *FS) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	node, err := fs.vol.Store().OpenInode(toCoverID(op.Inode))
	if err != nil {
		return translateErr(err)
	}

	fs.mu.Lock()
	fs.nextH++
	h := fs.nextH
	fs.handles[h] = direntry.New(node)
	fs.mu.Unlock()

	op.Handle = h
	return nil
}

func (fs *FS) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	fs.mu.Lock()
	delete(fs.handles, op.Handle)
	fs.mu.Unlock()
	return nil
}

func (fs *FS) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	fs.mu.Lock()
	dir, ok := fs.handles[op.Handle]
	fs.mu.Unlock()
	if !ok {
		return fuse.EIO
	}

	entries, err := dir.List()
	if err != nil {
		return translateErr(err)
	}

	n := 0
	for i, e := range entries {
		if uint64(i) < uint64(op.Offset) {
			continue
		}
		dirType := fuseutil.DT_File
		if e.Type == direntry.TypeDir {
			dirType = fuseutil.DT_Directory
		}
		written := fuseutil.WriteDirent(op.Dst[n:], fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  toFuseInode(int32(e.InodeID)),
			Name:   e.Name,
			Type:   dirType,
		})
		if written == 0 {
			break
		}
		n += written
	}
	op.BytesRead = n
	return nil
}

func (fs *FS) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	_, err := fs.vol.Store().OpenInode(toCoverID(op.Inode))
	return translateErr(err)
}

func (fs *FS) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	node, err := fs.vol.Store().OpenInode(toCoverID(op.Inode))
	if err != nil {
		return translateErr(err)
	}
	n, err := node.Read(op.Dst, op.Offset)
	op.BytesRead = n
	if err != nil {
		return translateErr(err)
	}
	return nil
}

func (fs *FS) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error {
	node, err := fs.vol.Store().OpenInode(toCoverID(op.Inode))
	if err != nil {
		return translateErr(err)
	}
	return translateErr(node.Write(op.Data, op.Offset))
}

func (fs *FS) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	parentID := uint32(toCoverID(op.Parent))
	child, err := fs.vol.Store().CreateInode(&parentID, op.Name, true)
	if err != nil {
		return translateErr(err)
	}
	parent, err := fs.vol.Store().OpenInode(toCoverID(op.Parent))
	if err != nil {
		return translateErr(err)
	}
	if err := direntry.New(parent).AddEntry(direntry.Entry{Name: op.Name, InodeID: uint32(child.ID), Type: direntry.TypeDir}); err != nil {
		return translateErr(err)
	}
	op.Entry.Child = toFuseInode(child.ID)
	op.Entry.Attributes = fs.attributesFor(child, true)
	op.Entry.AttributesExpiration = never
	op.Entry.EntryExpiration = never
	return nil
}

func (fs *FS) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error {
	parentID := uint32(toCoverID(op.Parent))
	child, err := fs.vol.Store().CreateInode(&parentID, op.Name, false)
	if err != nil {
		return translateErr(err)
	}
	parent, err := fs.vol.Store().OpenInode(toCoverID(op.Parent))
	if err != nil {
		return translateErr(err)
	}
	if err := direntry.New(parent).AddEntry(direntry.Entry{Name: op.Name, InodeID: uint32(child.ID), Type: direntry.TypeFile}); err != nil {
		return translateErr(err)
	}
	op.Entry.Child = toFuseInode(child.ID)
	op.Entry.Attributes = fs.attributesFor(child, false)
	op.Entry.AttributesExpiration = never
	op.Entry.EntryExpiration = never
	return nil
}

func (fs *FS) Unlink(ctx context.Context, op *fuseops.UnlinkOp) error {
	parent, err := fs.vol.Store().OpenInode(toCoverID(op.Parent))
	if err != nil {
		return translateErr(err)
	}
	dir := direntry.New(parent)
	entry, err := dir.Find(op.Name)
	if err != nil {
		return translateErr(err)
	}
	node, err := fs.vol.Store().OpenInode(int32(entry.InodeID))
	if err != nil {
		return translateErr(err)
	}
	if err := dir.RemoveEntry(op.Name); err != nil {
		return translateErr(err)
	}
	return translateErr(node.Destroy())
}

func (fs *FS) RmDir(ctx context.Context, op *fuseops.RmDirOp) error {
	return fs.Unlink(ctx, &fuseops.UnlinkOp{Parent: op.Parent, Name: op.Name})
}

// Rename implements rename(node, new_dir, new_name), holding both parent
// directories' inode locks for the move's entirety via coverfs.Volume.Rename
// (itself backed by direntry.Rename/fragstore.LockPair), per
// original_source/src/CSimpleFS.cpp's SimpleFilesystem::Rename.
func (fs *FS) Rename(ctx context.Context, op *fuseops.RenameOp) error {
	oldParent, err := fs.vol.Store().OpenInode(toCoverID(op.OldParent))
	if err != nil {
		return translateErr(err)
	}
	newParent, err := fs.vol.Store().OpenInode(toCoverID(op.NewParent))
	if err != nil {
		return translateErr(err)
	}
	oldDir := direntry.New(oldParent)
	newDir := direntry.New(newParent)
	return translateErr(fs.vol.Rename(oldDir, newDir, op.OldName, op.NewName))
}

func (fs *FS) Destroy() {
	fs.vol.Unmount()
}
