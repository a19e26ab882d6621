// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"fmt"
	"strings"

	"github.com/stratafs/strata/lib/layout"
)

// splitPath breaks an absolute or root-relative path into components,
// rejecting empty paths, overlong paths, and overlong names.
func splitPath(path string) ([]string, error) {
	if len(path) > layout.MaxPath {
		return nil, fmt.Errorf("path longer than %d bytes: %w", layout.MaxPath, ErrNameTooLong)
	}
	var components []string
	for _, component := range strings.Split(path, "/") {
		if component == "" || component == "." {
			continue
		}
		if len(component) > layout.DirNameLen {
			return nil, fmt.Errorf("%q: %w", component, ErrNameTooLong)
		}
		components = append(components, component)
	}
	return components, nil
}

// resolve walks from the root directory to the inode named by path.
// With wantParent set it stops one level early and also returns the
// final component. The returned inode is referenced but unlocked.
func (fs *FS) resolve(path string, wantParent bool) (*Inode, string, error) {
	components, err := splitPath(path)
	if err != nil {
		return nil, "", err
	}
	if wantParent && len(components) == 0 {
		return nil, "", fmt.Errorf("path %q has no parent: %w", path, ErrNotFound)
	}

	ino, err := fs.getInode(layout.RootIno)
	if err != nil {
		return nil, "", err
	}
	for i, name := range components {
		if wantParent && i == len(components)-1 {
			return ino, name, nil
		}
		if err := ino.lock(); err != nil {
			fs.putInode(nil, ino)
			return nil, "", err
		}
		inum, _, err := ino.dirLookup(name)
		ino.unlock()
		if err != nil {
			fs.putInode(nil, ino)
			return nil, "", fmt.Errorf("resolving %q: %w", path, err)
		}
		next, err := fs.getInode(inum)
		if err != nil {
			fs.putInode(nil, ino)
			return nil, "", err
		}
		fs.putInode(nil, ino)
		ino = next
	}
	return ino, "", nil
}
