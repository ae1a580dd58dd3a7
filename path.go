package coverfs

import (
	"github.com/coverfs/coverfs/errs"
	"github.com/coverfs/coverfs/internal/direntry"
	"github.com/coverfs/coverfs/internal/fragstore"
)

// splitPath breaks path into its non-empty '/'- or '\'-separated
// components, grounded on original_source/src/CSimpleFS.cpp's SplitPath:
// a single char-by-char scan, collapsing repeated separators and
// ignoring a leading or trailing one.
func splitPath(path string) []string {
	var parts []string
	start := -1
	for i := 0; i < len(path); i++ {
		if path[i] == '/' || path[i] == '\\' {
			if start >= 0 {
				parts = append(parts, path[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		parts = append(parts, path[start:])
	}
	return parts
}

// OpenNode resolves path, a '/'- or '\'-separated sequence of directory
// entry names relative to the root, to its inode — spec.md §6's
// open_node(id | path) taking the path form. An empty path resolves to
// the root directory. Grounded on
// original_source/src/CSimpleFS.cpp's SimpleFilesystem::OpenNode(path).
func (v *Volume) OpenNode(path string) (*fragstore.Inode, error) {
	node, err := v.store.OpenInode(fragstore.RootID)
	if err != nil {
		return nil, err
	}

	for _, name := range splitPath(path) {
		if !node.Dir {
			return nil, errs.New(errs.NotADirectory, "path component is not a directory: "+name)
		}
		e, err := direntry.New(node).Find(name)
		if err != nil {
			return nil, err
		}
		node, err = v.store.OpenInode(int32(e.InodeID))
		if err != nil {
			return nil, err
		}
		// The type is kept in the parent's entry, not the fragment table.
		if e.Type == direntry.TypeDir {
			node.Dir = true
		}
	}
	return node, nil
}

// OpenDirectory resolves path to a Directory, the open_directory(path)
// operation, failing with errs.NotADirectory if path names a file.
func (v *Volume) OpenDirectory(path string) (*direntry.Directory, error) {
	node, err := v.OpenNode(path)
	if err != nil {
		return nil, err
	}
	if !node.Dir {
		return nil, errs.New(errs.NotADirectory, "not a directory: "+path)
	}
	return direntry.New(node), nil
}

// OpenFile resolves path to a file inode, the open_file(path) operation,
// failing with errs.NotAFile if path names a directory.
func (v *Volume) OpenFile(path string) (*fragstore.Inode, error) {
	node, err := v.OpenNode(path)
	if err != nil {
		return nil, err
	}
	if node.Dir {
		return nil, errs.New(errs.NotAFile, "not a file: "+path)
	}
	return node, nil
}

// Rename moves the entry named oldName out of srcDir and into destDir as
// newName, per spec.md §6's rename(node, new_dir, new_name). The two
// directories' locks are held for the rename's entirety, acquired in
// ascending inode-id order (spec.md §5) via direntry.Rename, and the
// moved inode's own cached name/parent bookkeeping is updated to match.
func (v *Volume) Rename(srcDir, destDir *direntry.Directory, oldName, newName string) error {
	e, err := direntry.Rename(srcDir, destDir, oldName, newName)
	if err != nil {
		return err
	}

	node, err := v.store.OpenInode(int32(e.InodeID))
	if err != nil {
		return err
	}
	parentID := uint32(destDir.ID())
	node.Rename(newName, &parentID)
	return nil
}
